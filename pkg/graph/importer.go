package graph

import (
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"github.com/the-maldridge/nbrew/pkg/formula"
	"github.com/the-maldridge/nbrew/pkg/types"
)

// New returns a new blank graph with the logger configured
func New(l hclog.Logger, p types.Platform, tap *formula.Tap) *PkgGraph {
	x := PkgGraph{
		l:           l.Named(p.Tag()),
		tap:         tap,
		parallelism: 10,
		PkgsMutex:   new(sync.Mutex),
		AuxMutex:    new(sync.Mutex),
		atom:        types.NewAtom(p),
	}
	return &x
}

func (t *PkgGraph) setRev(rev string) {
	t.PkgsMutex.Lock()
	t.atom.Rev = rev
	t.PkgsMutex.Unlock()
}

// Platform returns the platform this graph was built for.
func (t *PkgGraph) Platform() types.Platform {
	return t.atom.Platform
}

// ImportAll tries to read every formula in the tap.
func (t *PkgGraph) ImportAll() error {
	paths, err := t.tap.Paths()
	if err != nil {
		return err
	}
	names := make([]string, 0, len(paths))
	for _, p := range paths {
		names = append(names, formula.Stem(p))
	}
	return t.importNames(names)
}

// ImportChanged looks at a set of paths that changed in the tap and
// imports just the formulae behind them.  Edges are resolved through
// the alias table when formulae are loaded, so a changed table means
// every formula is read again.
func (t *PkgGraph) ImportChanged(paths []string) error {
	var names []string
	for _, p := range paths {
		if path.Base(p) == "aliases" {
			if err := t.LoadAliases(); err != nil {
				return err
			}
			t.l.Debug("Aliases changed, reimporting everything")
			return t.ImportAll()
		}
		if n := formula.NameFromPath(p); n != "" {
			names = append(names, n)
		}
	}
	return t.importNames(names)
}

// importNames is shared by both import codepaths.  Formulae are
// loaded by a pool of workers, formulae that have gone away are
// dropped from the graph.
func (t *PkgGraph) importNames(names []string) error {
	pkgCount := 0

	loadCh := make(chan string, 200)
	wg := new(sync.WaitGroup)

	for i := 0; i < t.parallelism; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for name := range loadCh {
				t.l.Trace("Loading formula", "formula", name)
				if _, err := t.loadFromDisk(name); err != nil {
					t.l.Warn("Error loading formula", "formula", name, "error", err)
					continue
				}
				t.PkgsMutex.Lock()
				pkgCount++
				t.PkgsMutex.Unlock()
			}
			t.l.Trace("Importer shutting down", "ID", id)
		}(i)
	}

	for _, name := range names {
		if !t.tap.Exists(name) {
			t.l.Debug("Formula removed", "formula", name)
			t.PkgsMutex.Lock()
			delete(t.atom.Pkgs, name)
			t.PkgsMutex.Unlock()
			t.AuxMutex.Lock()
			delete(t.atom.Bad, name)
			t.AuxMutex.Unlock()
			continue
		}
		loadCh <- name
	}
	close(loadCh)
	wg.Wait()
	t.l.Debug("Loaded formulae", "count", pkgCount)
	return nil
}

// LoadAliases loads the alias table from the tap.
func (t *PkgGraph) LoadAliases() error {
	aliases, err := t.tap.Aliases()
	if err != nil {
		return err
	}
	t.AuxMutex.Lock()
	t.atom.Aliases = aliases
	t.AuxMutex.Unlock()
	return nil
}

// ResolvePackage returns a package that is referenced by any of the
// names that are valid in a formula: the plain name, an alias, or a
// fully qualified user/tap/name.
func (t *PkgGraph) ResolvePackage(name string) (*types.Package, error) {
	t.PkgsMutex.Lock()
	defer t.PkgsMutex.Unlock()
	pp, ok := t.atom.Pkgs[t.canonical(name)]
	if !ok {
		return nil, errors.Wrap(formula.ErrNoSuchFormula, name)
	}
	return pp, nil
}

// canonical strips any tap qualifier and resolves aliases.
func (t *PkgGraph) canonical(name string) string {
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	t.AuxMutex.Lock()
	defer t.AuxMutex.Unlock()
	if target, ok := t.atom.Aliases[name]; ok {
		return target
	}
	return name
}

func (t *PkgGraph) loadFromDisk(name string) (*types.Package, error) {
	f, err := t.tap.Load(name)
	if err != nil {
		t.markBad(name, err.Error())
		return nil, err
	}
	if errs := formula.Validate(f, name); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i := range errs {
			msgs[i] = errs[i].Error()
		}
		t.markBad(name, strings.Join(msgs, "; "))
		return nil, errors.Errorf("%d validation errors", len(errs))
	}
	pkgver, err := formula.PkgVer(f)
	if err != nil {
		t.markBad(name, err.Error())
		return nil, err
	}

	p := types.Package{
		Name:         f.Name,
		Version:      pkgver,
		Dirty:        true,
		Disabled:     f.Disabled != nil,
		BuildDepends: t.depSet(f, types.DepBuild),
		Depends:      t.depSet(f, types.DepRun, types.DepRecommended),
		TestDepends:  t.depSet(f, types.DepTest),
	}
	t.l.Trace("Loaded formula", "data", p)

	t.AuxMutex.Lock()
	delete(t.atom.Bad, name)
	t.AuxMutex.Unlock()

	t.PkgsMutex.Lock()
	if old, ok := t.atom.Pkgs[name]; ok && old.Version == p.Version {
		// A failure sticks until either someone unfails it or
		// the version moves.
		p.Failed = old.Failed
	}
	t.atom.Pkgs[name] = &p
	t.PkgsMutex.Unlock()
	return &p, nil
}

func (t *PkgGraph) depSet(f *types.Formula, kinds ...string) map[string]struct{} {
	deps := formula.Dependencies(f, t.atom.Platform, kinds...)
	set := make(map[string]struct{}, len(deps))
	for _, d := range deps {
		set[t.canonical(d.Name)] = struct{}{}
	}
	return set
}

func (t *PkgGraph) markBad(name, why string) {
	t.AuxMutex.Lock()
	t.atom.Bad[name] = why
	t.AuxMutex.Unlock()
	t.PkgsMutex.Lock()
	delete(t.atom.Pkgs, name)
	t.PkgsMutex.Unlock()
}

// Bad returns the formulae that could not be placed in the graph
// and why, sorted by name.
func (t *PkgGraph) Bad() map[string]string {
	t.AuxMutex.Lock()
	defer t.AuxMutex.Unlock()
	out := make(map[string]string, len(t.atom.Bad))
	for k, v := range t.atom.Bad {
		out[k] = v
	}
	return out
}

// Names returns the sorted names of every package in the graph.
func (t *PkgGraph) Names() []string {
	t.PkgsMutex.Lock()
	defer t.PkgsMutex.Unlock()
	names := make([]string, 0, len(t.atom.Pkgs))
	for n := range t.atom.Pkgs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
