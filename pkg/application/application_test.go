package application_test

import (
	"net/http"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"github.com/os2mo/mora/pkg/application"
)

type fakeService struct{ name string }

type fakeController struct{ key string }

func (c fakeController) Key() string { return c.key }

func (c fakeController) Register(r *mux.Router) {
	r.HandleFunc(c.key, func(http.ResponseWriter, *http.Request) {})
}

func TestServiceRegistry(t *testing.T) {
	app := application.New()
	app.RegisterServices(&fakeService{name: "units"})

	svc := app.Service(fakeService{}).(*fakeService)
	require.Equal(t, "units", svc.name)
	require.Panics(t, func() { app.Service(struct{}{}) })
}

func TestControllersAreOrdered(t *testing.T) {
	app := application.New()
	app.RegisterControllers(fakeController{"/b"}, fakeController{"/a"}, fakeController{"/b"})

	controllers := app.Controllers()
	require.Len(t, controllers, 2)
	require.Equal(t, "/a", controllers[0].Key())
	require.Equal(t, "/b", controllers[1].Key())
}
