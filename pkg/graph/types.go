package graph

import (
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/the-maldridge/nbrew/pkg/formula"
	"github.com/the-maldridge/nbrew/pkg/repo"
	"github.com/the-maldridge/nbrew/pkg/storage"
	"github.com/the-maldridge/nbrew/pkg/types"
)

// PkgGraph contains the graph of formulae for a single platform.
type PkgGraph struct {
	// Lock for the package map
	PkgsMutex *sync.Mutex

	// Lock for auxiliary maps
	AuxMutex *sync.Mutex

	l hclog.Logger

	tap         *formula.Tap
	parallelism int

	atom types.Atom
}

// Manager is a collection of graphs that all interact with the same
// tap checkout.
type Manager struct {
	l         hclog.Logger
	cm        CheckoutManager
	graphs    map[string]*PkgGraph
	platforms []types.Platform
	idx       *repo.IndexService
	basepath  string
	rev       string

	storage storage.Storage
}

// Option configures a Manager.
type Option func(*Manager)

// CheckoutManager handles a git checkout
type CheckoutManager interface {
	SetBasepath(string)

	Bootstrap() error
	Fetch() error
	Checkout(string) ([]string, error)
	At() (string, error)
}
