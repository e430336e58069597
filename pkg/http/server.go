package http

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hashicorp/go-hclog"
)

// New initializes the server with its default routers.
func New(l hclog.Logger, opts ...Option) (*Server, error) {
	s := Server{
		l:             l.Named("http"),
		r:             chi.NewRouter(),
		headerTimeout: defaultHeaderTimeout,
	}
	for _, o := range opts {
		o(&s)
	}
	s.n = &http.Server{
		ReadHeaderTimeout: s.headerTimeout,
		IdleTimeout:       s.idleTimeout,
	}

	s.r.Use(middleware.RequestID)
	s.r.Use(middleware.Logger)
	s.r.Use(middleware.Recoverer)
	s.r.Use(middleware.Heartbeat("/healthz"))

	s.r.Get("/", s.rootIndex)

	return &s, nil
}

// Serve binds, initializes the mux, and serves until Shutdown is
// called.
func (s *Server) Serve(bind string) error {
	s.l.Info("HTTP is starting", "bind", bind)
	s.n.Addr = bind
	s.n.Handler = s.r
	if err := s.n.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight
// requests to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.n.Shutdown(ctx)
}

// Handler exposes the root router.
func (s *Server) Handler() http.Handler {
	return s.r
}

func (s *Server) rootIndex(w http.ResponseWriter, r *http.Request) {
	fmt.Fprint(w, "nbrew is running, check other handlers for more information")
}

// Mount attaches a set of routes to the subpath specified by the path
// argument.
func (s *Server) Mount(path string, router chi.Router) {
	s.r.Mount(path, router)
}
