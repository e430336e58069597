package source

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

// NewWatcher watches every directory under root.  Changes are
// collected until the tree has been quiet for debounce and then
// handed to onChange as slash separated paths relative to root.
func NewWatcher(l hclog.Logger, root string, debounce time.Duration, onChange func([]string)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "creating watcher")
	}
	w := &Watcher{
		l:        l.Named("watcher"),
		root:     root,
		debounce: debounce,
		fsw:      fsw,
		onChange: onChange,
	}

	if err := w.watchTree(root, nil); err != nil {
		fsw.Close()
		return nil, errors.Wrap(err, "watching tap")
	}
	return w, nil
}

// watchTree adds a watch on every directory under dir and passes
// every file found to found, if set.
func (w *Watcher) watchTree(dir string, found func(string)) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			if found != nil {
				found(p)
			}
			return nil
		}
		if d.Name() == ".git" {
			return filepath.SkipDir
		}
		return w.fsw.Add(p)
	})
}

func (w *Watcher) record(pending map[string]struct{}, p string) {
	rel, err := filepath.Rel(w.root, p)
	if err != nil {
		return
	}
	pending[filepath.ToSlash(rel)] = struct{}{}
}

// Run delivers batches of changes until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	pending := make(map[string]struct{})
	timer := time.NewTimer(w.debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.l.Trace("Change", "path", ev.Name, "op", ev.Op.String())
			w.record(pending, ev.Name)
			if ev.Op&fsnotify.Create != 0 {
				// New directories have to be watched too, this
				// is how sharded layouts grow.  Anything written
				// into them before the watch was added produced
				// no event of its own.
				if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
					err := w.watchTree(ev.Name, func(p string) { w.record(pending, p) })
					if err != nil {
						w.l.Warn("Unable to watch new directory", "path", ev.Name, "error", err)
					}
				}
			}
			timer.Reset(w.debounce)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.l.Warn("Watch error", "error", err)
		case <-timer.C:
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			sort.Strings(paths)
			pending = make(map[string]struct{})
			w.l.Debug("Tap changed", "count", len(paths))
			w.onChange(paths)
		}
	}
}
