package local

import (
	"net/http"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/the-maldridge/nbrew/pkg/builder"
	"github.com/the-maldridge/nbrew/pkg/formula"
	"github.com/the-maldridge/nbrew/pkg/graph"
	"github.com/the-maldridge/nbrew/pkg/scheduler"
	"github.com/the-maldridge/nbrew/pkg/types"
)

// Config is everything a local provider needs to know.
type Config struct {
	// TapPath is the tap that formulae are loaded from.  When
	// TapURL is set it is a git checkout that is moved to the
	// revision of each build.
	TapPath string
	TapURL  string

	Cellar   string
	Cache    string
	Platform types.Platform

	// GraphURL is where failures and cleans are reported.
	GraphURL string

	// Bottles are uploaded to ReceiverURL if set, otherwise they
	// are left in OutputDir.
	ReceiverURL string
	OutputDir   string
	Repo        string
}

// Local is a capacity provider that builds on this machine.
type Local struct {
	l   hclog.Logger
	cfg Config

	mu      sync.Mutex
	slots   map[string]int
	ongoing []scheduler.Build
	wg      sync.WaitGroup

	tap     *formula.Tap
	builder *builder.Builder
	api     *graph.APIClient
	hc      *http.Client
}
