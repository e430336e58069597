// Package local provides a capacity provider that builds bottles
// in-process on the host it runs on.
package local

import (
	"context"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"github.com/the-maldridge/nbrew/pkg/bottle"
	"github.com/the-maldridge/nbrew/pkg/builder"
	"github.com/the-maldridge/nbrew/pkg/fetch"
	"github.com/the-maldridge/nbrew/pkg/formula"
	"github.com/the-maldridge/nbrew/pkg/graph"
	"github.com/the-maldridge/nbrew/pkg/scheduler"
	"github.com/the-maldridge/nbrew/pkg/source"
	"github.com/the-maldridge/nbrew/pkg/types"
)

func init() {
	scheduler.RegisterInitCallback(cb)
}

func cb() {
	scheduler.RegisterCapacityFactory("local", New)
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// New returns a local capacity provider configured from the
// environment.  This provider is mostly intended for small taps and
// for testing the rest of the system.
func New(l hclog.Logger) (scheduler.CapacityProvider, error) {
	cfg := Config{
		TapPath:     envOr("NBREW_TAP_PATH", "local-checkout"),
		TapURL:      os.Getenv("NBREW_TAP_URL"),
		Cellar:      envOr("NBREW_CELLAR", "Cellar"),
		Cache:       envOr("NBREW_CACHE", "cache"),
		Platform:    types.HostPlatform(envOr("NBREW_MACOS_RELEASE", "sonoma")),
		GraphURL:    envOr("NBREW_GRAPH_URL", "http://localhost:8080/api/graph"),
		ReceiverURL: os.Getenv("NBREW_RECEIVER_URL"),
		OutputDir:   envOr("NBREW_BOTTLE_DIR", "bottles"),
		Repo:        envOr("NBREW_REPO", "core"),
	}
	return NewWithConfig(l, cfg), nil
}

// NewWithConfig returns a local capacity provider.
func NewWithConfig(l hclog.Logger, cfg Config) *Local {
	// These can only error out if the working directory is gone.
	cfg.TapPath, _ = filepath.Abs(cfg.TapPath)
	cfg.Cellar, _ = filepath.Abs(cfg.Cellar)
	cfg.OutputDir, _ = filepath.Abs(cfg.OutputDir)

	x := Local{
		l:     l.Named("local"),
		cfg:   cfg,
		slots: map[string]int{cfg.Platform.Tag(): 1},
		tap:   formula.NewTap(cfg.TapPath),
		api:   graph.NewAPIClient(l, cfg.GraphURL),
		hc:    &http.Client{Timeout: 10 * time.Minute},
	}
	f := fetch.New(x.l, cfg.Cache)
	x.builder = builder.New(x.l, cfg.Cellar, f, cfg.Platform)
	return &x
}

// SetSlots sets how many builds may run at once per platform tag.
// Only the host platform can ever be built here.
func (c *Local) SetSlots(s map[string]int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n, ok := s[c.cfg.Platform.Tag()]; ok {
		c.slots = map[string]int{c.cfg.Platform.Tag(): n}
	}
}

// DispatchBuild starts a build if there is a free slot.  A git
// checkout can only be at one revision at a time, so builds of
// different revisions never overlap.
func (c *Local) DispatchBuild(b scheduler.Build) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if b.Platform != c.cfg.Platform {
		return new(scheduler.ErrNoCapacity)
	}
	if len(c.ongoing) >= c.slots[b.Platform.Tag()] {
		return new(scheduler.ErrNoCapacity)
	}
	for _, o := range c.ongoing {
		if o.Rev != b.Rev {
			return new(scheduler.ErrNoCapacity)
		}
	}
	if len(c.ongoing) == 0 && c.cfg.TapURL != "" && b.Rev != "" {
		if err := c.checkout(b.Rev); err != nil {
			return err
		}
	}

	c.ongoing = append(c.ongoing, b)
	c.wg.Add(1)
	go c.run(b)
	return nil
}

func (c *Local) checkout(rev string) error {
	repo := source.New(c.l)
	repo.SetBasepath(c.cfg.TapPath)
	repo.SetURL(c.cfg.TapURL)
	if err := repo.Bootstrap(); err != nil {
		return err
	}
	if err := repo.Fetch(); err != nil {
		return err
	}
	_, err := repo.Checkout(rev)
	return err
}

// ListBuilds returns the builds in progress.
func (c *Local) ListBuilds() ([]scheduler.Build, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]scheduler.Build(nil), c.ongoing...), nil
}

// Wait blocks until every dispatched build has finished.
func (c *Local) Wait() {
	c.wg.Wait()
}

func (c *Local) run(b scheduler.Build) {
	defer c.wg.Done()
	defer c.finish(b)

	ctx := context.Background()
	tag := b.Platform.Tag()
	if err := c.build(ctx, b); err != nil {
		c.l.Warn("Error building formula", "formula", b.Pkg, "error", err)
		if err := c.api.Fail(ctx, tag, b.Pkg); err != nil {
			c.l.Warn("Unable to mark formula failed", "formula", b.Pkg, "error", err)
		}
		return
	}
	if err := c.api.Clean(ctx, tag); err != nil {
		c.l.Warn("Unable to clean platform", "platform", tag, "error", err)
	}
}

func (c *Local) finish(b scheduler.Build) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.ongoing {
		if c.ongoing[i].Equal(&b) {
			c.ongoing = append(c.ongoing[:i], c.ongoing[i+1:]...)
			return
		}
	}
}

func (c *Local) build(ctx context.Context, b scheduler.Build) error {
	f, err := c.tap.Load(b.Pkg)
	if err != nil {
		return err
	}
	if err := c.installDeps(ctx, f); err != nil {
		return err
	}
	c.l.Info("Building", "formula", f.Name, "platform", b.Platform, "rev", b.Rev)
	keg, err := c.builder.Install(ctx, f, builder.Options{BuildFromSource: true})
	if err != nil {
		return err
	}
	pkgver, err := formula.PkgVer(f)
	if err != nil {
		return err
	}

	fname, err := bottle.Filename(f, b.Platform.Tag())
	if err != nil {
		return err
	}
	out := filepath.Join(c.cfg.OutputDir, b.Platform.Tag(), c.cfg.Repo, fname)
	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return err
	}
	sum, err := bottle.Pack(keg, f.Name, pkgver, out)
	if err != nil {
		return err
	}
	c.l.Debug("Packed bottle", "path", out, "sha256", sum)

	if c.cfg.ReceiverURL == "" {
		return nil
	}
	return c.upload(ctx, out)
}

// installDeps puts everything a formula needs to compile into the
// cellar.  Dependencies are poured when they have a bottle for this
// platform.
func (c *Local) installDeps(ctx context.Context, f *types.Formula) error {
	g := graph.New(c.l, c.cfg.Platform, c.tap)
	if err := g.LoadAliases(); err != nil {
		return err
	}
	if err := g.ImportAll(); err != nil {
		return err
	}
	levels, err := g.InstallLevels([]string{f.Name}, func(name string) bool {
		if name == f.Name {
			return true
		}
		d, err := c.tap.Load(name)
		return err != nil || c.builder.WillBuild(d, builder.Options{})
	})
	if err != nil {
		return err
	}
	var deps [][]string
	for _, l := range levels {
		var kept []string
		for _, n := range l {
			if n != f.Name {
				kept = append(kept, n)
			}
		}
		if len(kept) > 0 {
			deps = append(deps, kept)
		}
	}
	if len(deps) == 0 {
		return nil
	}
	c.l.Debug("Installing dependencies", "formula", f.Name, "levels", deps)
	return c.builder.InstallAll(ctx, deps, c.tap.Load, 1, builder.Options{})
}

func (c *Local) upload(ctx context.Context, p string) error {
	fd, err := os.Open(p)
	if err != nil {
		return err
	}
	defer fd.Close()

	q := url.Values{}
	q.Set("fname", filepath.Base(p))
	q.Set("repo", c.cfg.Repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.cfg.ReceiverURL+"/file?"+q.Encode(), fd)
	if err != nil {
		return err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("upload of %s: %s", filepath.Base(p), resp.Status)
	}
	c.l.Info("Uploaded bottle", "file", filepath.Base(p))
	return nil
}
