package graph

import (
	"encoding/json"
	"path"
	"sort"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/the-maldridge/nbrew/pkg/dispatchable"
	"github.com/the-maldridge/nbrew/pkg/formula"
	"github.com/the-maldridge/nbrew/pkg/repo"
	"github.com/the-maldridge/nbrew/pkg/source"
	"github.com/the-maldridge/nbrew/pkg/types"
)

// NewManager creates a collection of graphs under a single manager
// and returns the manager.  Graphs do not have state on return.
func NewManager(l hclog.Logger, platforms []types.Platform, opts ...Option) *Manager {
	x := Manager{
		l:         l.Named("graph"),
		basepath:  "tap",
		graphs:    make(map[string]*PkgGraph),
		platforms: platforms,
	}
	for _, o := range opts {
		o(&x)
	}
	if x.cm == nil {
		x.cm = source.New(l)
	}
	if x.idx == nil {
		x.idx = repo.NewIndexService(l)
	}

	tap := formula.NewTap(x.basepath)
	for _, p := range platforms {
		x.graphs[p.Tag()] = New(x.l, p, tap)
	}
	return &x
}

// Graph returns the graph for a platform tag.
func (m *Manager) Graph(tag string) (*PkgGraph, error) {
	g, ok := m.graphs[tag]
	if !ok {
		return nil, &ErrUnknownPlatform{tag}
	}
	return g, nil
}

// Platforms returns the platforms graphs are kept for, in the order
// they were configured.
func (m *Manager) Platforms() []types.Platform {
	return append([]types.Platform(nil), m.platforms...)
}

// Rev returns the tap revision the graphs are synced to.
func (m *Manager) Rev() string {
	return m.rev
}

// Index returns the bottle index the manager cleans against.
func (m *Manager) Index() *repo.IndexService {
	return m.idx
}

// Bootstrap performs the initial checkout of the tap, and performs
// an import of all configured platforms whose persisted graph is not
// already at the checked out revision.
func (m *Manager) Bootstrap() error {
	m.cm.SetBasepath(m.basepath)
	if err := m.cm.Bootstrap(); err != nil {
		m.l.Error("Error bootstrapping", "error", err)
		return err
	}

	var err error
	m.rev, err = m.cm.At()
	if err != nil {
		m.l.Error("Error retrieving git hash", "error", err)
		return err
	}
	m.loadGraphs()

	var wg sync.WaitGroup
	for tag, graph := range m.graphs {
		if graph.Atom().Rev == m.rev {
			continue
		}
		wg.Add(1)
		go func(tag string, graph *PkgGraph) {
			defer wg.Done()
			m.l.Info("Importing graph", "platform", tag)
			if err := graph.LoadAliases(); err != nil {
				m.l.Warn("Error loading aliases", "error", err)
			}
			if err := graph.ImportAll(); err != nil {
				m.l.Warn("Error importing all formulae", "error", err)
			}
			for _, err := range graph.Check() {
				m.l.Warn("Graph problem", "platform", tag, "error", err)
			}
			graph.setRev(m.rev)
		}(tag, graph)
	}
	wg.Wait()
	m.persistGraphs()
	return nil
}

// UpdateCheckout fetches new history for the tap without moving the
// checkout.
func (m *Manager) UpdateCheckout() error {
	return m.cm.Fetch()
}

// SyncTo causes the graphs to all sync to a specific point in
// history.
func (m *Manager) SyncTo(hash string) error {
	changed, err := m.cm.Checkout(hash)
	if err != nil {
		m.l.Error("Error updating checkout", "error", err)
		return err
	}
	m.rev = hash
	var wg sync.WaitGroup
	for tag, graph := range m.graphs {
		wg.Add(1)
		go func(tag string, graph *PkgGraph) {
			defer wg.Done()
			m.l.Debug("Syncing graph", "platform", tag)
			if err := graph.ImportChanged(changed); err != nil {
				m.l.Error("Error syncing changes", "error", err, "platform", tag)
			}
			for _, err := range graph.Check() {
				m.l.Warn("Graph problem", "platform", tag, "error", err)
			}
			graph.setRev(m.rev)
		}(tag, graph)
	}
	wg.Wait()
	m.persistGraphs()
	m.l.Info("Synced", "changed", changed)
	return nil
}

// ImportChanged feeds paths that changed outside of git, such as
// from a watched local tap, into every graph.
func (m *Manager) ImportChanged(paths []string) {
	for tag, graph := range m.graphs {
		if err := graph.ImportChanged(paths); err != nil {
			m.l.Warn("Error importing changes", "platform", tag, "error", err)
		}
		graph.Check()
	}
	m.persistGraphs()
}

// CleanPlatform reloads the bottle indexes of a platform and
// recomputes which packages are dirty.
func (m *Manager) CleanPlatform(tag string) error {
	graph, err := m.Graph(tag)
	if err != nil {
		return err
	}
	if err := m.idx.ReloadPlatform(tag); err != nil {
		return err
	}
	graph.Clean(m.idx)
	m.persistGraphs()
	return nil
}

// AddBottle records a freshly received bottle in the index and
// recomputes what is dirty on its platform.  Unlike CleanPlatform no
// remote index is fetched.
func (m *Manager) AddBottle(tag string, e *repo.Entry) error {
	graph, err := m.Graph(tag)
	if err != nil {
		return err
	}
	m.idx.Add(tag, e)
	graph.Clean(m.idx)
	m.persistGraphs()
	m.l.Debug("Bottle added", "platform", tag, "formula", e.Name, "pkgver", e.PkgVer)
	return nil
}

// Clean recomputes dirtiness for every graph against what is
// already loaded in the index.
func (m *Manager) Clean() {
	for _, graph := range m.graphs {
		graph.Clean(m.idx)
	}
	m.persistGraphs()
}

// GetDirty returns the packages of a platform that need building.
func (m *Manager) GetDirty(tag string) []*types.Package {
	graph, ok := m.graphs[tag]
	if !ok {
		return nil
	}
	return graph.Dirty()
}

// GetDispatchable returns the packages that could be built right now
// on each platform.
func (m *Manager) GetDispatchable() map[types.Platform][]*types.Package {
	atoms := make([]types.Atom, 0, len(m.graphs))
	for _, graph := range m.graphs {
		atoms = append(atoms, graph.Atom())
	}
	df := dispatchable.New(dispatchable.WithLogger(m.l), dispatchable.WithAtoms(atoms))
	out := df.ImmediatelyDispatchable()
	for _, pkgs := range out {
		sort.Slice(pkgs, func(i, j int) bool { return pkgs[i].Name < pkgs[j].Name })
	}
	return out
}

func (m *Manager) loadGraphs() {
	if m.storage == nil {
		m.l.Warn("Storage is unavailable, graphs will not be loaded")
		return
	}

	for tag, graph := range m.graphs {
		m.l.Debug("Attempting to load graph", "platform", tag)
		graphbytes, err := m.storage.Get([]byte(path.Join("graph", tag)))
		if err != nil {
			m.l.Warn("Error loading graph", "error", err)
			continue
		}
		if graphbytes == nil {
			continue
		}
		atom := types.NewAtom(graph.atom.Platform)
		if err := json.Unmarshal(graphbytes, &atom); err != nil {
			m.l.Warn("Error loading graph", "error", err)
			continue
		}
		graph.PkgsMutex.Lock()
		graph.AuxMutex.Lock()
		graph.atom = atom
		graph.AuxMutex.Unlock()
		graph.PkgsMutex.Unlock()
		m.l.Debug("Loaded Graph", "platform", tag, "count", len(atom.Pkgs), "rev", atom.Rev)
	}
}

func (m *Manager) persistGraphs() {
	if m.storage == nil {
		return
	}

	for tag, graph := range m.graphs {
		graphbytes, err := json.Marshal(graph.Atom())
		if err != nil {
			m.l.Warn("Error serializing graph", "error", err)
			continue
		}
		if err := m.storage.Put([]byte(path.Join("graph", tag)), graphbytes); err != nil {
			m.l.Warn("Error writing graph", "error", err)
			continue
		}
	}
}

// LoadIndexes loads the bottle indexes for every platform and repo
// and then cleans all graphs against them.  A repo that fails to load
// is skipped so that one unreachable mirror doesn't mark the whole
// tap dirty.
func (m *Manager) LoadIndexes(urls map[string]map[string]string) {
	for tag, repos := range urls {
		if _, ok := m.graphs[tag]; !ok {
			m.l.Warn("Index configured for unknown platform", "platform", tag)
			continue
		}
		for name, u := range repos {
			if err := m.idx.LoadIndex(tag, name, u); err != nil {
				m.l.Warn("Index unavailable", "platform", tag, "repo", name, "error", err)
			}
		}
	}
	m.Clean()
}
