package graph

import (
	"strings"
)

// ErrCycle is returned when the requested part of the graph cannot
// be ordered because it contains a dependency cycle.  Path starts
// and ends with the same package.
type ErrCycle struct {
	Path []string
}

func (e *ErrCycle) Error() string {
	return "dependency cycle: " + strings.Join(e.Path, " -> ")
}

// ErrMissingDependency is returned when a package depends on
// something that the graph does not contain.
type ErrMissingDependency struct {
	Package    string
	Dependency string
}

func (e *ErrMissingDependency) Error() string {
	return e.Package + " depends on unknown package " + e.Dependency
}

// ErrUnknownPlatform is returned for operations on a platform that
// the manager does not supervise.
type ErrUnknownPlatform struct {
	Platform string
}

func (e *ErrUnknownPlatform) Error() string {
	return "no graph for platform " + e.Platform
}
