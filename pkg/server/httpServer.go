package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/gorilla/mux"

	"github.com/os2mo/mora/pkg/application"
)

const shutdownTimeout = 10 * time.Second

func NewHTTPServer(
	app application.Application,
	notFoundHandler, methodNotAllowedHandler http.Handler,
) *HTTPServer {
	return &HTTPServer{
		Controllers:             app.Controllers(),
		Middlewares:             app.Middleware(),
		NotFoundHandler:         notFoundHandler,
		MethodNotAllowedHandler: methodNotAllowedHandler,
	}
}

type HTTPServer struct {
	Controllers             []application.Controller
	Middlewares             []mux.MiddlewareFunc
	NotFoundHandler         http.Handler
	MethodNotAllowedHandler http.Handler
}

// Router mounts every controller behind the middleware stack. Unmatched
// routes run through the same stack so they are logged and traced too.
func (s *HTTPServer) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.Middlewares...)
	for _, controller := range s.Controllers {
		controller.Register(r)
	}

	notFound, notAllowed := s.NotFoundHandler, s.MethodNotAllowedHandler
	for i := len(s.Middlewares) - 1; i >= 0; i-- {
		if notFound != nil {
			notFound = s.Middlewares[i](notFound)
		}
		if notAllowed != nil {
			notAllowed = s.Middlewares[i](notAllowed)
		}
	}
	r.NotFoundHandler = notFound
	r.MethodNotAllowedHandler = notAllowed

	// A subrouter answers a method mismatch itself; without its own handler
	// mux reports the request as not found.
	_ = r.Walk(func(_ *mux.Route, router *mux.Router, _ []*mux.Route) error {
		if router != r && notAllowed != nil {
			router.MethodNotAllowedHandler = notAllowed
		}
		return nil
	})
	return r
}

func (s *HTTPServer) Handler() http.Handler {
	return gziphandler.GzipHandler(s.Router())
}

// Start serves on socketAddress until ctx is cancelled, then drains open
// requests.
func (s *HTTPServer) Start(ctx context.Context, socketAddress string) error {
	srv := &http.Server{
		Addr:              socketAddress,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
