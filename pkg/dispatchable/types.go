package dispatchable

import (
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/the-maldridge/nbrew/pkg/types"
)

// DispatchFinder works out which packages could be handed to a
// builder given a snapshot of every platform's graph.
type DispatchFinder struct {
	l      hclog.Logger
	AtomMu *sync.Mutex

	atoms map[types.Platform]types.Atom
}

// Option configures a DispatchFinder.
type Option func(*DispatchFinder)
