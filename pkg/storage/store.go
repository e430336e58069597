// Package storage holds the pluggable blob stores that graphs are
// persisted into between runs.
package storage

import (
	"sort"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"
)

var (
	log = hclog.L()

	regMu     sync.Mutex
	callbacks []func()
	factories = make(map[string]Factory)
)

// A Factory opens a store.  Stores read their own settings from the
// environment.
type Factory func(hclog.Logger) (Storage, error)

// SetLogger sets the parent of the logger handed to stores.
func SetLogger(l hclog.Logger) {
	log = l.Named("storage")
}

// RegisterFactory makes a store available by name.  The first store
// to claim a name keeps it.
func RegisterFactory(name string, f Factory) {
	regMu.Lock()
	defer regMu.Unlock()
	if _, taken := factories[name]; taken {
		log.Warn("Store already registered", "store", name)
		return
	}
	factories[name] = f
	log.Debug("Registered store", "store", name)
}

// RegisterCallback defers a store's registration until DoCallbacks,
// which runs after logging is configured.
func RegisterCallback(f func()) {
	regMu.Lock()
	callbacks = append(callbacks, f)
	regMu.Unlock()
}

// DoCallbacks runs the deferred registrations.
func DoCallbacks() {
	regMu.Lock()
	cbs := append([]func(){}, callbacks...)
	regMu.Unlock()
	for _, cb := range cbs {
		cb()
	}
}

// Stores lists the registered store names.
func Stores() []string {
	regMu.Lock()
	defer regMu.Unlock()
	out := make([]string, 0, len(factories))
	for name := range factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Initialize opens the named store.
func Initialize(name string) (Storage, error) {
	regMu.Lock()
	f, ok := factories[name]
	regMu.Unlock()
	if !ok {
		log.Error("Unknown store requested", "store", name)
		return nil, &ErrUnknownFactory{attempted: name, known: Stores()}
	}
	return f(log)
}

// ErrUnknownFactory is returned by Initialize for a name nothing
// registered.
type ErrUnknownFactory struct {
	attempted string
	known     []string
}

func (e *ErrUnknownFactory) Error() string {
	return "no store named " + e.attempted + ", have [" + strings.Join(e.known, " ") + "]"
}
