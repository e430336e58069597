package graph

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/the-maldridge/nbrew/pkg/formula"
	"github.com/the-maldridge/nbrew/pkg/repo"
	"github.com/the-maldridge/nbrew/pkg/types"
)

const (
	white = iota
	grey
	black
)

// edges returns the sorted dependencies of a package restricted to
// the given kinds.  No kinds means build and run.
func edges(p *types.Package, kinds []string) []string {
	if len(kinds) == 0 {
		kinds = []string{types.DepBuild, types.DepRun}
	}
	set := make(map[string]struct{})
	for _, k := range kinds {
		var src map[string]struct{}
		switch k {
		case types.DepBuild:
			src = p.BuildDepends
		case types.DepRun:
			src = p.Depends
		case types.DepTest:
			src = p.TestDepends
		}
		for d := range src {
			set[d] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for d := range set {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// Order returns the closure of the roots in an order where every
// package comes after all of its dependencies.  Ties are broken by
// name so the order is stable between runs.
func (t *PkgGraph) Order(roots []string, kinds ...string) ([]string, error) {
	return t.order(roots, func(string) []string { return kinds })
}

// Levels groups the closure of the roots so that every package in a
// level only depends on packages in earlier levels.  Packages within
// one level can be installed in parallel.
func (t *PkgGraph) Levels(roots []string, kinds ...string) ([][]string, error) {
	return t.levels(roots, func(string) []string { return kinds })
}

// InstallLevels is Levels for an install.  Run dependencies are
// always followed, build dependencies only for the packages that
// fromSource says will be compiled.  fromSource is called with the
// graph locked and must not call back into it.
func (t *PkgGraph) InstallLevels(roots []string, fromSource func(name string) bool) ([][]string, error) {
	return t.levels(roots, func(name string) []string {
		if fromSource(name) {
			return []string{types.DepBuild, types.DepRun}
		}
		return []string{types.DepRun}
	})
}

func (t *PkgGraph) order(roots []string, kindsOf func(string) []string) ([]string, error) {
	resolved := make([]string, len(roots))
	for i, r := range roots {
		resolved[i] = t.canonical(r)
	}
	sort.Strings(resolved)

	t.PkgsMutex.Lock()
	defer t.PkgsMutex.Unlock()

	color := make(map[string]int)
	var order []string
	var stack []string

	var visit func(name string) error
	visit = func(name string) error {
		switch color[name] {
		case black:
			return nil
		case grey:
			for i := range stack {
				if stack[i] == name {
					path := append(append([]string{}, stack[i:]...), name)
					return &ErrCycle{Path: path}
				}
			}
		}

		p, ok := t.atom.Pkgs[name]
		if !ok {
			if len(stack) == 0 {
				return errors.Wrap(formula.ErrNoSuchFormula, name)
			}
			return &ErrMissingDependency{Package: stack[len(stack)-1], Dependency: name}
		}

		color[name] = grey
		stack = append(stack, name)
		for _, d := range edges(p, kindsOf(name)) {
			if err := visit(d); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		color[name] = black
		order = append(order, name)
		return nil
	}

	for _, r := range resolved {
		if err := visit(r); err != nil {
			return nil, err
		}
	}
	return order, nil
}

func (t *PkgGraph) levels(roots []string, kindsOf func(string) []string) ([][]string, error) {
	order, err := t.order(roots, kindsOf)
	if err != nil {
		return nil, err
	}

	t.PkgsMutex.Lock()
	defer t.PkgsMutex.Unlock()

	depth := make(map[string]int, len(order))
	var levels [][]string
	for _, name := range order {
		d := 0
		for _, dep := range edges(t.atom.Pkgs[name], kindsOf(name)) {
			if depth[dep]+1 > d {
				d = depth[dep] + 1
			}
		}
		depth[name] = d
		if d == len(levels) {
			levels = append(levels, nil)
		}
		levels[d] = append(levels[d], name)
	}
	for _, l := range levels {
		sort.Strings(l)
	}
	return levels, nil
}

// Check validates the whole graph: every edge must point at a known
// package and there must be no cycles.  Offending packages are
// recorded as bad and the problems are returned.
func (t *PkgGraph) Check() []error {
	var errs []error
	for _, name := range t.Names() {
		if _, err := t.Order([]string{name}, types.DepBuild, types.DepRun, types.DepTest); err != nil {
			errs = append(errs, err)
			t.AuxMutex.Lock()
			t.atom.Bad[name] = err.Error()
			t.AuxMutex.Unlock()
		}
	}
	return errs
}

// Dependents returns every package with an edge of any kind to the
// named package, sorted by name.
func (t *PkgGraph) Dependents(name string) []string {
	name = t.canonical(name)

	t.PkgsMutex.Lock()
	defer t.PkgsMutex.Unlock()

	var out []string
	for n, p := range t.atom.Pkgs {
		for _, d := range edges(p, []string{types.DepBuild, types.DepRun, types.DepTest}) {
			if d == name {
				out = append(out, n)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// Leaves returns the packages that nothing depends on.
func (t *PkgGraph) Leaves() []string {
	t.PkgsMutex.Lock()
	used := make(map[string]struct{})
	for _, p := range t.atom.Pkgs {
		for _, d := range edges(p, []string{types.DepBuild, types.DepRun, types.DepTest}) {
			used[d] = struct{}{}
		}
	}
	t.PkgsMutex.Unlock()

	var out []string
	for _, n := range t.Names() {
		if _, ok := used[n]; !ok {
			out = append(out, n)
		}
	}
	return out
}

// FailPkg marks a package as failed, which removes it and everything
// that depends on it from dispatch.
func (t *PkgGraph) FailPkg(name string) error {
	return t.setFailed(name, true)
}

// UnfailPkg clears the failure of a package.
func (t *PkgGraph) UnfailPkg(name string) error {
	return t.setFailed(name, false)
}

func (t *PkgGraph) setFailed(name string, failed bool) error {
	name = t.canonical(name)
	t.PkgsMutex.Lock()
	defer t.PkgsMutex.Unlock()
	p, ok := t.atom.Pkgs[name]
	if !ok {
		return errors.Wrap(formula.ErrNoSuchFormula, name)
	}
	p.Failed = failed
	return nil
}

// Clean compares the graph with the bottle index.  A package is
// clean when the index holds a bottle of exactly its pkgver.
func (t *PkgGraph) Clean(idx *repo.IndexService) {
	tag := t.atom.Platform.Tag()

	t.PkgsMutex.Lock()
	defer t.PkgsMutex.Unlock()
	cleaned := 0
	for name, p := range t.atom.Pkgs {
		e, err := idx.GetPackage(tag, name)
		p.Dirty = err != nil || e.PkgVer != p.Version
		if !p.Dirty {
			cleaned++
		}
	}
	t.l.Debug("Cleaned graph", "clean", cleaned, "total", len(t.atom.Pkgs))
}

// Dirty returns the packages that need building, sorted by name.
func (t *PkgGraph) Dirty() []*types.Package {
	t.PkgsMutex.Lock()
	defer t.PkgsMutex.Unlock()
	var out []*types.Package
	for _, p := range t.atom.Pkgs {
		if p.Dirty {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Atom returns a deep copy of the graph's current state.
func (t *PkgGraph) Atom() types.Atom {
	t.PkgsMutex.Lock()
	defer t.PkgsMutex.Unlock()
	t.AuxMutex.Lock()
	defer t.AuxMutex.Unlock()

	a := types.NewAtom(t.atom.Platform)
	a.Rev = t.atom.Rev
	for k, v := range t.atom.Pkgs {
		cp := *v
		a.Pkgs[k] = &cp
	}
	for k, v := range t.atom.Aliases {
		a.Aliases[k] = v
	}
	for k, v := range t.atom.Bad {
		a.Bad[k] = v
	}
	return a
}
