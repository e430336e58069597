package scheduler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// HTTPEntry provides the mountpoint for this service into the shared
// webserver routing tree.
func (s *Scheduler) HTTPEntry() chi.Router {
	r := chi.NewRouter()

	r.Get("/done", s.httpDone)
	r.Get("/queue", s.httpQueue)
	return r
}

func (s *Scheduler) httpDone(w http.ResponseWriter, r *http.Request) {
	if err := s.Update(r.Context()); err != nil {
		s.l.Warn("Error reconstructing queue", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Scheduler) httpQueue(w http.ResponseWriter, r *http.Request) {
	type entry struct {
		Platform string
		Formula  string
		Revision string
	}
	out := []entry{}
	for _, b := range s.Queue() {
		out = append(out, entry{b.Platform.Tag(), b.Pkg, b.Rev})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}
