package graph

import (
	"github.com/the-maldridge/nbrew/pkg/repo"
	"github.com/the-maldridge/nbrew/pkg/storage"
)

// WithStorage enables persistance of the graphs to a durable
// datastore.
func WithStorage(s storage.Storage) Option {
	return func(m *Manager) {
		m.storage = s
	}
}

// WithBasePath points the graph manager at the location on disk that
// the checkout of the tap will be maintained in.
func WithBasePath(b string) Option {
	return func(m *Manager) {
		m.basepath = b
	}
}

// WithCheckoutManager replaces the git checkout manager, which is
// mostly useful for local taps that are not managed by git.
func WithCheckoutManager(cm CheckoutManager) Option {
	return func(m *Manager) {
		m.cm = cm
	}
}

// WithIndex provides the bottle index that graphs are cleaned
// against.
func WithIndex(idx *repo.IndexService) Option {
	return func(m *Manager) {
		m.idx = idx
	}
}
