package types

// A Package is the node that a formula becomes once it has been
// placed into a graph for a specific platform.  Dependency sets only
// contain the edges that apply to that platform.
type Package struct {
	Name         string
	Version      string `plist:"pkgver"`
	Dirty        bool
	Failed       bool
	Disabled     bool
	BuildDepends map[string]struct{}
	Depends      map[string]struct{}
	TestDepends  map[string]struct{}
}

// An Atom is the state of one platform's graph at a particular tap
// revision.  Atoms are what gets persisted.
type Atom struct {
	Platform Platform
	Rev      string

	Pkgs    map[string]*Package
	Aliases map[string]string

	// Bad contains the formulae that could not be placed into
	// the graph and why.
	Bad map[string]string
}

// NewAtom returns an empty atom for the given platform.
func NewAtom(p Platform) Atom {
	return Atom{
		Platform: p,
		Pkgs:     make(map[string]*Package),
		Aliases:  make(map[string]string),
		Bad:      make(map[string]string),
	}
}
