package scheduler

import (
	"sort"

	"github.com/hashicorp/go-hclog"
)

var (
	log hclog.Logger

	initcallbacks []func()

	factories map[string]CapacityFactory
)

// A CapacityFactory is a constructor of a capacity plugin.  It takes
// a single logger which should be used to write out early init
// issues, and provide more information.  Additional configuration
// values are read from NBREW_* environment variables.
type CapacityFactory func(l hclog.Logger) (CapacityProvider, error)

func init() {
	factories = make(map[string]CapacityFactory)
	log = hclog.L()
}

// SetLogger injects a logger into this package to allow setting up a
// logger tree.
func SetLogger(l hclog.Logger) {
	log = l.Named("capacity")
}

// RegisterInitCallback allows a sub pkg to defer initialization until
// after certain very early init has happened such as loading config
// files and configuring loggers.
func RegisterInitCallback(f func()) {
	initcallbacks = append(initcallbacks, f)
}

// DoCallbacks is used to invoke all callbacks and perform phase one
// setup which will register the handlers to the map of factories.
func DoCallbacks() {
	for _, cb := range initcallbacks {
		cb()
	}
}

// RegisterCapacityFactory stores the factory at the given name.  All
// factories are compiled in, so a later registration of the same
// name simply wins.
func RegisterCapacityFactory(name string, f CapacityFactory) {
	factories[name] = f
	log.Debug("Registered capacity provider", "provider", name)
}

// Providers lists the registered capacity providers.
func Providers() []string {
	out := make([]string, 0, len(factories))
	for name := range factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ConstructCapacityProvider attempts to initialize the requested
// capacity provider using the package logger.
func ConstructCapacityProvider(name string) (CapacityProvider, error) {
	f, ok := factories[name]
	if !ok {
		log.Warn("Tried to initialize with bogus provider name", "name", name)
		return nil, NewErrUnknownCapacityProvider(name)
	}
	return f(log)
}
