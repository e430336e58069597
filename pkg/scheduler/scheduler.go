package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"github.com/the-maldridge/nbrew/pkg/types"
)

var errEmptyQueue = errors.New("none in queue")

// NewScheduler returns a scheduler configured by the given options.
// A graph URL and a capacity provider are required.
func NewScheduler(opts ...Option) (*Scheduler, error) {
	x := Scheduler{
		l:          hclog.NewNullLogger(),
		queueMutex: new(sync.Mutex),
		platforms:  make(map[types.Platform]struct{}),
		interval:   time.Second,
	}
	for _, o := range opts {
		if err := o(&x); err != nil {
			return nil, err
		}
	}
	if x.apiClient == nil {
		return nil, errors.New("scheduler requires a graph url")
	}
	if x.capacityProvider == nil {
		return nil, errors.New("scheduler requires a capacity provider")
	}
	return &x, nil
}

// Pops a build off the queue and hands it off to the CapacityProvider.
func (s *Scheduler) send() error {
	s.queueMutex.Lock()
	defer s.queueMutex.Unlock()

	if len(s.queue) == 0 {
		return errEmptyQueue
	}
	if err := s.capacityProvider.DispatchBuild(s.queue[0]); err != nil {
		s.l.Trace("Unable to dispatch right now", "build", s.queue[0], "err", err)
		return err
	}
	s.l.Debug("Dispatched", "platform", s.queue[0].Platform, "formula", s.queue[0].Pkg)
	s.queue = s.queue[1:]
	return nil
}

// Reconstruct rebuilds the queue from the dispatchable set, leaving
// out anything that is already being built.
func (s *Scheduler) Reconstruct(ctx context.Context) error {
	dispatchable, err := s.apiClient.GetDispatchable(ctx)
	if err != nil {
		return err
	}
	current, err := s.capacityProvider.ListBuilds()
	if err != nil {
		return err
	}

	var queue []Build
	for platform, pkgs := range dispatchable.ByPlatform() {
		for _, pkg := range pkgs {
			b := Build{
				Platform: platform,
				Pkg:      pkg,
				Rev:      dispatchable.Revision,
			}
			alreadyBuilding := false
			for i := range current {
				if b.Equal(&current[i]) {
					alreadyBuilding = true
					break
				}
			}
			if !alreadyBuilding {
				queue = append(queue, b)
			}
		}
	}
	sort.Slice(queue, func(i, j int) bool {
		if queue[i].Platform.Tag() != queue[j].Platform.Tag() {
			return queue[i].Platform.Tag() < queue[j].Platform.Tag()
		}
		return queue[i].Pkg < queue[j].Pkg
	})

	s.queueMutex.Lock()
	defer s.queueMutex.Unlock()
	s.queue = queue
	for platform := range dispatchable.ByPlatform() {
		s.platforms[platform] = struct{}{}
	}
	s.l.Info("Successfully reconstructed queue", "length", len(queue))
	return nil
}

// Update cleans every known platform in the graph and then rebuilds
// the queue.
func (s *Scheduler) Update(ctx context.Context) error {
	s.queueMutex.Lock()
	platforms := make([]types.Platform, 0, len(s.platforms))
	for p := range s.platforms {
		platforms = append(platforms, p)
	}
	s.queueMutex.Unlock()

	for _, p := range platforms {
		if err := s.apiClient.Clean(ctx, p.Tag()); err != nil {
			s.l.Warn("Error cleaning platform", "platform", p, "error", err)
		}
	}
	s.l.Debug("Cleaned all platforms in graph")
	return s.Reconstruct(ctx)
}

// Queue returns a copy of the builds waiting to be dispatched.
func (s *Scheduler) Queue() []Build {
	s.queueMutex.Lock()
	defer s.queueMutex.Unlock()
	return append([]Build(nil), s.queue...)
}

// Run dispatches builds until the context is cancelled.  When the
// queue drains the graph is asked for more work.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.Reconstruct(ctx); err != nil { // Get platforms
		s.l.Warn("Initial reconstruct failed", "error", err)
	}
	if err := s.Update(ctx); err != nil { // Now get real dispatchable
		s.l.Warn("Initial update failed", "error", err)
	}
	for {
		err := s.send()
		if err == nil {
			continue
		}
		if err == errEmptyQueue {
			if err := s.Update(ctx); err != nil {
				s.l.Warn("Error updating queue", "error", err)
			}
		}
		// Don't try to send too often
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.interval):
		}
	}
}
