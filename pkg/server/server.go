// Package server assembles the graph, the scheduler and the bottle
// reciever behind a single HTTP server.
package server

import (
	"context"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/the-maldridge/nbrew/pkg/config"
	"github.com/the-maldridge/nbrew/pkg/graph"
	"github.com/the-maldridge/nbrew/pkg/http"
	"github.com/the-maldridge/nbrew/pkg/reciever"
	"github.com/the-maldridge/nbrew/pkg/repo"
	"github.com/the-maldridge/nbrew/pkg/scheduler"
	"github.com/the-maldridge/nbrew/pkg/source"
	"github.com/the-maldridge/nbrew/pkg/storage"

	_ "github.com/the-maldridge/nbrew/pkg/scheduler/local"
	_ "github.com/the-maldridge/nbrew/pkg/scheduler/nomad"
	_ "github.com/the-maldridge/nbrew/pkg/storage/bc"
	_ "github.com/the-maldridge/nbrew/pkg/storage/sqlite"
)

// Run serves until the context is cancelled.  An empty
// CapacityProvider runs the graph without a scheduler, which is
// useful when builds are dispatched by something else entirely.
func Run(ctx context.Context, l hclog.Logger, cfg *config.Config) error {
	srv, err := http.New(l, http.WithIdleTimeout(cfg.IdleTimeout))
	if err != nil {
		l.Error("Error initializing webserver", "error", err)
		return err
	}

	storage.SetLogger(l)
	storage.DoCallbacks()
	store, err := storage.Initialize(cfg.StorageProvider)
	if err != nil {
		l.Error("Couldn't initialize storage", "error", err)
		return err
	}
	defer store.Close()

	var cm graph.CheckoutManager
	if cfg.TapURL != "" {
		rm := source.New(l)
		rm.SetURL(cfg.TapURL)
		cm = rm
	} else {
		cm = source.NewStatic(l)
	}

	mgr := graph.NewManager(l, cfg.PlatformList(),
		graph.WithStorage(store),
		graph.WithBasePath(cfg.TapPath),
		graph.WithCheckoutManager(cm),
	)
	if err := mgr.Bootstrap(); err != nil {
		return err
	}
	mgr.LoadIndexes(cfg.IndexURLs)
	srv.Mount("/api/graph", mgr.HTTPEntry())

	rcv := reciever.NewReciever(l)
	rcv.SetPath(cfg.ReceiverPath)
	rcv.SetNotify(func(tag string, e *repo.Entry) {
		if err := mgr.AddBottle(tag, e); err != nil {
			l.Warn("Received bottle not added to graph", "platform", tag, "formula", e.Name, "error", err)
		}
	})
	srv.Mount("/api/reciever", rcv.HTTPEntry())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.TapURL == "" {
		w, err := source.NewWatcher(l, cfg.TapPath, time.Second, mgr.ImportChanged)
		if err != nil {
			l.Warn("Local tap will not be watched", "error", err)
		} else {
			go w.Run(ctx)
		}
	}

	if cfg.CapacityProvider != "" {
		s, err := newScheduler(l, cfg)
		if err != nil {
			return err
		}
		srv.Mount("/api/scheduler", s.HTTPEntry())
		go s.Run(ctx)
	}

	errs := make(chan error, 1)
	go func() { errs <- srv.Serve(cfg.Bind) }()

	select {
	case err := <-errs:
		l.Error("HTTP server stopped", "error", err)
		return err
	case <-ctx.Done():
	}

	l.Info("Shutting down")
	sctx, scancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer scancel()
	return srv.Shutdown(sctx)
}

func newScheduler(l hclog.Logger, cfg *config.Config) (*scheduler.Scheduler, error) {
	scheduler.SetLogger(l)
	scheduler.DoCallbacks()
	cp, err := scheduler.ConstructCapacityProvider(cfg.CapacityProvider)
	if err != nil {
		l.Error("Couldn't initialize capacity", "provider", cfg.CapacityProvider, "error", err)
		return nil, err
	}
	cp.SetSlots(cfg.BuildSlots)

	return scheduler.NewScheduler(
		scheduler.WithLogger(l),
		scheduler.WithCapacityProvider(cp),
		scheduler.WithGraphURL(cfg.GraphURL),
	)
}
