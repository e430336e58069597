package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hashicorp/go-hclog"
)

// Bottle uploads are streamed in the request body, so only the
// headers are bounded by default.
const defaultHeaderTimeout = 10 * time.Second

// Server is the single listener that the graph, the scheduler and
// the bottle reciever are all mounted into.
type Server struct {
	l hclog.Logger
	r chi.Router

	n *http.Server

	headerTimeout time.Duration
	idleTimeout   time.Duration
}

// Option tunes the listener.
type Option func(*Server)

// WithHeaderTimeout bounds how long a client may take to send its
// request headers.
func WithHeaderTimeout(d time.Duration) Option {
	return func(s *Server) { s.headerTimeout = d }
}

// WithIdleTimeout bounds how long a keep-alive connection may sit
// unused.
func WithIdleTimeout(d time.Duration) Option {
	return func(s *Server) { s.idleTimeout = d }
}
