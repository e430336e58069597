package scheduler

import (
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/the-maldridge/nbrew/pkg/graph"
)

// WithLogger sets the parent logger.
func WithLogger(l hclog.Logger) Option {
	return func(s *Scheduler) error {
		s.l = l.Named("scheduler")
		return nil
	}
}

// WithCapacityProvider provides some capacity to the system.
func WithCapacityProvider(c CapacityProvider) Option {
	return func(s *Scheduler) error {
		s.capacityProvider = c
		return nil
	}
}

// WithGraphURL provides the scheduler with the API endpoint that a
// graph server can be found at.
func WithGraphURL(url string) Option {
	return func(s *Scheduler) error {
		s.apiClient = graph.NewAPIClient(s.l, url)
		return nil
	}
}

// WithInterval sets how long the scheduler waits between attempts
// when nothing could be dispatched.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) error {
		s.interval = d
		return nil
	}
}
