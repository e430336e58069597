package scheduler

import (
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/the-maldridge/nbrew/pkg/graph"
	"github.com/the-maldridge/nbrew/pkg/types"
)

// A Build is all the information required for a build
type Build struct {
	Platform types.Platform
	Pkg      string
	Rev      string
}

// CapacityProviders are a way for packages to be built.
type CapacityProvider interface {
	DispatchBuild(Build) error
	ListBuilds() ([]Build, error)
	SetSlots(map[string]int)
}

// Scheduler makes builds ready + dispatches them using a CapacityProvider.
type Scheduler struct {
	l hclog.Logger

	queue      []Build
	queueMutex *sync.Mutex
	platforms  map[types.Platform]struct{}
	interval   time.Duration

	apiClient        *graph.APIClient
	capacityProvider CapacityProvider
}

// Option configures the scheduler.
type Option func(*Scheduler) error
