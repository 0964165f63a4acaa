package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
	"github.com/ulule/limiter/v3"

	"github.com/os2mo/mora/pkg/application"
	"github.com/os2mo/mora/pkg/composables"
	"github.com/os2mo/mora/pkg/configuration"
	"github.com/os2mo/mora/pkg/constants"
	"github.com/os2mo/mora/pkg/httpapi"
	"github.com/os2mo/mora/pkg/middleware"
	"github.com/os2mo/mora/pkg/server"
)

type DefaultOptions struct {
	Logger        *logrus.Logger
	Configuration *configuration.Configuration
	Application   application.Application
	// Pool backs the unit settings; nil runs without them.
	Pool *pgxpool.Pool
}

func Default(options *DefaultOptions) (*server.HTTPServer, error) {
	app := options.Application
	conf := options.Configuration

	loggerOpts := middleware.DefaultLoggerOptions()
	loggerOpts.RequestIDHeader = conf.RequestIDHeader
	loggerOpts.RealIPHeader = conf.RealIPHeader

	// WithLogger opens the root span of each request
	middlewares := []mux.MiddlewareFunc{
		middleware.WithLogger(options.Logger, loggerOpts),
	}
	if options.Pool != nil {
		middlewares = append(middlewares,
			middleware.TracedMiddleware("database"),
			middleware.Provide(constants.PoolKey, options.Pool),
		)
	}
	middlewares = append(middlewares,
		middleware.TracedMiddleware("cors"),
		middleware.Cors(conf.CorsOrigins...),
	)

	if conf.RateLimit.Enabled {
		var store limiter.Store
		var err error

		switch conf.RateLimit.Storage {
		case "redis":
			store, err = middleware.NewRedisStore(conf.RateLimit.RedisURL)
			if err != nil {
				options.Logger.WithError(err).Warn("Failed to create Redis store for rate limiting, falling back to memory")
				store = middleware.NewMemoryStore()
			}
		default:
			store = middleware.NewMemoryStore()
		}

		middlewares = append(middlewares,
			middleware.TracedMiddleware("rateLimit"),
			middleware.RateLimit(middleware.RateLimitConfig{
				RequestsPerPeriod: conf.RateLimit.GlobalRPS,
				Store:             store,
			}),
		)
	}

	app.RegisterMiddleware(middlewares...)

	return server.NewHTTPServer(app, NotFound(), MethodNotAllowed()), nil
}

func NotFound() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeRouteError(w, r, http.StatusNotFound, "E_NO_SUCH_ENDPOINT", "no such endpoint")
	})
}

func MethodNotAllowed() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeRouteError(w, r, http.StatusMethodNotAllowed, "E_METHOD_NOT_ALLOWED", "method not allowed")
	})
}

func writeRouteError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	meta := map[string]any{"path": r.URL.Path, "method": r.Method}
	if id := composables.UseRequestID(r.Context()); id != "" {
		meta["request_id"] = id
	}
	_ = httpapi.WriteError(w, status, code, message, meta)
}
