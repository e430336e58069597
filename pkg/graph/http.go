package graph

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// HTTPEntry provides the mountpoint for this service into the shared
// webserver routing tree.
func (m *Manager) HTTPEntry() chi.Router {
	r := chi.NewRouter()

	r.Get("/platforms", m.httpPlatforms)
	r.Get("/atom/{platform}", m.httpDumpAtom)
	r.Get("/pkgs/{platform}/{pkg}", m.httpDumpPkg)
	r.Get("/dirty/{platform}", m.httpDumpDirty)
	r.Get("/order/{platform}/{pkg}", m.httpOrder)
	r.Get("/dependents/{platform}/{pkg}", m.httpDependents)
	r.Get("/leaves/{platform}", m.httpLeaves)
	r.Get("/dispatchable", m.httpDumpDispatch)

	r.Post("/pkgs/{platform}/{pkg}/fail", m.httpFailPkg)
	r.Post("/pkgs/{platform}/{pkg}/unfail", m.httpUnfailPkg)
	r.Post("/clean/{platform}", m.httpCleanPlatform)
	r.Post("/syncto/{sha}", m.httpSyncToRev)

	return r
}

func (m *Manager) httpDumpAtom(w http.ResponseWriter, r *http.Request) {
	graph, ok := m.graphs[chi.URLParam(r, "platform")]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	jsonOK(w, graph.Atom())
}

func (m *Manager) httpDumpPkg(w http.ResponseWriter, r *http.Request) {
	graph, ok := m.graphs[chi.URLParam(r, "platform")]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	pkg, err := graph.ResolvePackage(chi.URLParam(r, "pkg"))
	if err != nil {
		jsonError(w, err, http.StatusNotFound)
		return
	}
	graph.PkgsMutex.Lock()
	defer graph.PkgsMutex.Unlock()
	jsonOK(w, pkg)
}

func (m *Manager) httpDumpDirty(w http.ResponseWriter, r *http.Request) {
	tag := chi.URLParam(r, "platform")
	if _, ok := m.graphs[tag]; !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	names := []string{}
	for _, p := range m.GetDirty(tag) {
		names = append(names, p.Name)
	}
	out := struct {
		Rev  string
		Pkgs []string
	}{
		Rev:  m.rev,
		Pkgs: names,
	}
	jsonOK(w, out)
}

func (m *Manager) httpOrder(w http.ResponseWriter, r *http.Request) {
	graph, ok := m.graphs[chi.URLParam(r, "platform")]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	var kinds []string
	if k := r.URL.Query().Get("kinds"); k != "" {
		kinds = strings.Split(k, ",")
	}
	levels, err := graph.Levels([]string{chi.URLParam(r, "pkg")}, kinds...)
	if err != nil {
		jsonError(w, err, http.StatusUnprocessableEntity)
		return
	}
	out := struct {
		Levels [][]string
	}{
		Levels: levels,
	}
	jsonOK(w, out)
}

func (m *Manager) httpPlatforms(w http.ResponseWriter, r *http.Request) {
	tags := []string{}
	for _, p := range m.Platforms() {
		tags = append(tags, p.Tag())
	}
	jsonOK(w, struct{ Platforms []string }{tags})
}

func (m *Manager) httpDependents(w http.ResponseWriter, r *http.Request) {
	graph, ok := m.graphs[chi.URLParam(r, "platform")]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	pkg, err := graph.ResolvePackage(chi.URLParam(r, "pkg"))
	if err != nil {
		jsonError(w, err, http.StatusNotFound)
		return
	}
	out := struct {
		Pkg        string
		Dependents []string
	}{
		Pkg:        pkg.Name,
		Dependents: graph.Dependents(pkg.Name),
	}
	if out.Dependents == nil {
		out.Dependents = []string{}
	}
	jsonOK(w, out)
}

func (m *Manager) httpLeaves(w http.ResponseWriter, r *http.Request) {
	graph, ok := m.graphs[chi.URLParam(r, "platform")]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	leaves := graph.Leaves()
	if leaves == nil {
		leaves = []string{}
	}
	jsonOK(w, struct{ Pkgs []string }{leaves})
}

func (m *Manager) httpDumpDispatch(w http.ResponseWriter, r *http.Request) {
	// Its necessary to re-shape what we get from the API due to
	// the limitations of the JSON format.  Specifically the map
	// keys MUST be strings.
	dispatchable := make(map[string][]string)
	for p, list := range m.GetDispatchable() {
		ret := make([]string, len(list))
		for i, pkg := range list {
			ret[i] = pkg.Name
		}
		dispatchable[p.Tag()] = ret
	}

	out := Dispatchable{
		Pkgs:     dispatchable,
		Revision: m.rev,
	}
	jsonOK(w, out)
}

func (m *Manager) httpFailPkg(w http.ResponseWriter, r *http.Request) {
	graph, ok := m.graphs[chi.URLParam(r, "platform")]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if err := graph.FailPkg(chi.URLParam(r, "pkg")); err != nil {
		jsonError(w, err, http.StatusNotFound)
		return
	}
	m.persistGraphs()
	w.WriteHeader(http.StatusNoContent)
}

func (m *Manager) httpUnfailPkg(w http.ResponseWriter, r *http.Request) {
	graph, ok := m.graphs[chi.URLParam(r, "platform")]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if err := graph.UnfailPkg(chi.URLParam(r, "pkg")); err != nil {
		jsonError(w, err, http.StatusNotFound)
		return
	}
	m.persistGraphs()
	w.WriteHeader(http.StatusNoContent)
}

func (m *Manager) httpCleanPlatform(w http.ResponseWriter, r *http.Request) {
	tag := chi.URLParam(r, "platform")
	if _, ok := m.graphs[tag]; !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err := m.CleanPlatform(tag); err != nil {
		jsonError(w, err, http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (m *Manager) httpSyncToRev(w http.ResponseWriter, r *http.Request) {
	if err := m.UpdateCheckout(); err != nil {
		m.l.Warn("Error updating", "error", err)
		jsonError(w, err, http.StatusInternalServerError)
		return
	}

	if err := m.SyncTo(chi.URLParam(r, "sha")); err != nil {
		jsonError(w, err, http.StatusInternalServerError)
		return
	}

	m.Clean()
	w.WriteHeader(http.StatusNoContent)
}

func jsonOK(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, err error, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	out := struct {
		Error string
	}{
		Error: err.Error(),
	}
	json.NewEncoder(w).Encode(out)
}
