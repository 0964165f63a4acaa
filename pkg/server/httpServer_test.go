package server_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"github.com/os2mo/mora/pkg/application"
	"github.com/os2mo/mora/pkg/server"
)

type prefixedController struct{}

func (prefixedController) Key() string { return "prefixed" }

func (prefixedController) Register(r *mux.Router) {
	api := r.PathPrefix("/service").Subrouter()
	api.HandleFunc("/o/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)
}

func status(code int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(code)
	})
}

func TestRouterAnswersMethodMismatchInSubrouters(t *testing.T) {
	app := application.New()
	app.RegisterControllers(prefixedController{})
	var seen []string
	app.RegisterMiddleware(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = append(seen, r.Method+" "+r.URL.Path)
			next.ServeHTTP(w, r)
		})
	})
	r := server.NewHTTPServer(app, status(http.StatusNotFound), status(http.StatusMethodNotAllowed)).Router()

	cases := []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, "/service/o/", http.StatusOK},
		{http.MethodDelete, "/service/o/", http.StatusMethodNotAllowed},
		{http.MethodGet, "/service/nowhere", http.StatusNotFound},
		{http.MethodGet, "/nowhere", http.StatusNotFound},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))
		require.Equal(t, tc.want, rec.Code, "%s %s", tc.method, tc.path)
	}
	require.Contains(t, seen, "DELETE /service/o/")
}
