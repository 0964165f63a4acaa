package application

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/gorilla/mux"
)

// Controller registers a group of routes.
type Controller interface {
	Register(r *mux.Router)
	Key() string
}

// Module wires one feature area into the application.
type Module interface {
	Register(app Application) error
	Name() string
}

type Application interface {
	Controllers() []Controller
	Middleware() []mux.MiddlewareFunc
	RegisterControllers(controllers ...Controller)
	RegisterMiddleware(middleware ...mux.MiddlewareFunc)
	RegisterServices(services ...any)
	Service(service any) any
}

func New() Application {
	return &application{
		controllers: make(map[string]Controller),
		services:    make(map[reflect.Type]any),
	}
}

// application with a dynamically extendable service registry
type application struct {
	services    map[reflect.Type]any
	controllers map[string]Controller
	middleware  []mux.MiddlewareFunc
}

func (app *application) Middleware() []mux.MiddlewareFunc {
	return app.middleware
}

// Controllers are returned ordered by key so route registration is stable.
func (app *application) Controllers() []Controller {
	keys := make([]string, 0, len(app.controllers))
	for k := range app.controllers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Controller, 0, len(keys))
	for _, k := range keys {
		out = append(out, app.controllers[k])
	}
	return out
}

func (app *application) RegisterControllers(controllers ...Controller) {
	for _, c := range controllers {
		app.controllers[c.Key()] = c
	}
}

func (app *application) RegisterMiddleware(middleware ...mux.MiddlewareFunc) {
	app.middleware = append(app.middleware, middleware...)
}

// RegisterServices registers a new service in the application by its type
func (app *application) RegisterServices(services ...any) {
	for _, service := range services {
		serviceType := reflect.TypeOf(service).Elem()
		app.services[serviceType] = service
	}
}

// Service retrieves a service by its type
func (app *application) Service(service any) any {
	serviceType := reflect.TypeOf(service)
	svc, exists := app.services[serviceType]
	if !exists {
		panic(fmt.Sprintf("service %s not found", serviceType.Name()))
	}
	return svc
}

// Load registers every module with app.
func Load(app Application, modules ...Module) error {
	for _, module := range modules {
		if err := module.Register(app); err != nil {
			return fmt.Errorf("failed to register module %s: %w", module.Name(), err)
		}
	}
	return nil
}
