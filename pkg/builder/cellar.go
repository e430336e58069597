package builder

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/the-maldridge/nbrew/pkg/formula"
	"github.com/the-maldridge/nbrew/pkg/types"
)

// Lookup resolves a formula by name.
type Lookup func(name string) (*types.Formula, error)

// InstallAll installs dependency levels in order.  Formulae within a
// level do not depend on each other and are installed in parallel,
// at most jobs at a time.  The first failure stops everything.
func (b *Builder) InstallAll(ctx context.Context, levels [][]string, lookup Lookup, jobs int, opts Options) error {
	if jobs < 1 {
		jobs = 1
	}
	for i, level := range levels {
		b.l.Debug("Installing level", "level", i, "formulae", level)
		eg, egctx := errgroup.WithContext(ctx)
		eg.SetLimit(jobs)
		for _, name := range level {
			eg.Go(func() error {
				f, err := lookup(name)
				if err != nil {
					return err
				}
				_, err = b.Install(egctx, f, opts)
				return errors.Wrapf(err, "installing %s", name)
			})
		}
		if err := eg.Wait(); err != nil {
			return err
		}
	}
	return nil
}

// Installed returns the pkgvers of a formula that have a complete
// keg in the cellar, oldest first.
func (b *Builder) Installed(name string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(b.Cellar, name))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(b.Cellar, name, e.Name(), ReceiptFile)); err == nil {
			out = append(out, e.Name())
		}
	}
	sort.Slice(out, func(i, j int) bool { return formula.CompareVersions(out[i], out[j]) < 0 })
	return out, nil
}

// Receipt reads the install receipt of a keg.
func (b *Builder) Receipt(name, pkgver string) (*Receipt, error) {
	data, err := os.ReadFile(filepath.Join(b.Cellar, name, pkgver, ReceiptFile))
	if err != nil {
		return nil, err
	}
	r := new(Receipt)
	if err := json.Unmarshal(data, r); err != nil {
		return nil, errors.Wrapf(err, "reading receipt of %s %s", name, pkgver)
	}
	return r, nil
}

// Uninstall removes every keg of a formula.
func (b *Builder) Uninstall(name string) error {
	rack := filepath.Join(b.Cellar, name)
	if _, err := os.Stat(rack); err != nil {
		return errors.Errorf("%s is not installed", name)
	}
	b.l.Info("Uninstalling", "formula", name)
	return os.RemoveAll(rack)
}
