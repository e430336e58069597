// Package builder turns formulae into kegs in a cellar.
package builder

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"github.com/the-maldridge/nbrew/pkg/bottle"
	"github.com/the-maldridge/nbrew/pkg/fetch"
	"github.com/the-maldridge/nbrew/pkg/formula"
	"github.com/the-maldridge/nbrew/pkg/service"
	"github.com/the-maldridge/nbrew/pkg/types"
)

// New returns a builder that installs into cellar.
func New(l hclog.Logger, cellar string, f *fetch.Fetcher, p types.Platform) *Builder {
	x := Builder{
		l:        l.Named("builder"),
		Cellar:   cellar,
		Fetcher:  f,
		Platform: p,
		Stdout:   io.Discard,
	}
	return &x
}

// KegPath is where a formula's keg lives, or would live.
func (b *Builder) KegPath(f *types.Formula, head bool) (string, error) {
	if head {
		return filepath.Join(b.Cellar, f.Name, "HEAD"), nil
	}
	pkgver, err := formula.PkgVer(f)
	if err != nil {
		return "", err
	}
	return filepath.Join(b.Cellar, f.Name, pkgver), nil
}

// Install installs a single formula and returns its keg.  Its
// dependencies are expected to be installed already.
func (b *Builder) Install(ctx context.Context, f *types.Formula, opts Options) (string, error) {
	if err := formula.Check(f); err != nil {
		return "", err
	}
	if msg, ok := formula.Deprecation(f); ok {
		b.l.Warn(msg)
	}

	keg, err := b.KegPath(f, opts.Head)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(filepath.Join(keg, ReceiptFile)); err == nil {
		b.l.Info("Already installed", "formula", f.Name, "keg", keg)
		return keg, nil
	}
	// Anything there without a receipt is left over from a failed
	// attempt.
	os.RemoveAll(keg)

	if !b.WillBuild(f, opts) {
		src, err := bottle.Source(f, b.Platform)
		if err != nil {
			return "", err
		}
		return keg, b.pour(ctx, f, src, keg)
	}
	b.l.Debug("Building from source", "formula", f.Name)
	if err := b.build(ctx, f, keg, opts); err != nil {
		os.RemoveAll(keg)
		b.removeEmptyRack(f.Name)
		return "", err
	}
	return keg, nil
}

// WillBuild reports whether Install would compile the formula rather
// than pour a bottle.  Formulae that get compiled need their build
// dependencies installed first.
func (b *Builder) WillBuild(f *types.Formula, opts Options) bool {
	if opts.BuildFromSource || opts.Head {
		return true
	}
	_, err := bottle.Source(f, b.Platform)
	return err != nil
}

func (b *Builder) pour(ctx context.Context, f *types.Formula, src types.Source, keg string) error {
	b.l.Info("Pouring bottle", "formula", f.Name, "url", src.URL)
	archive, err := b.Fetcher.Fetch(ctx, f.Name+"-bottle", src)
	if err != nil {
		return err
	}
	if err := bottle.Pour(archive, src.SHA256, b.Cellar); err != nil {
		os.RemoveAll(keg)
		return err
	}
	if _, err := os.Stat(keg); err != nil {
		return errors.Errorf("bottle of %s did not contain %s", f.Name, keg)
	}
	version, err := formula.Version(f)
	if err != nil {
		return err
	}
	if err := b.finish(ctx, f, keg, version); err != nil {
		os.RemoveAll(keg)
		return err
	}
	return b.writeReceipt(f, keg, Receipt{PouredFromBottle: true, Source: src.URL})
}

func (b *Builder) build(ctx context.Context, f *types.Formula, keg string, opts Options) error {
	src := f.Source
	version, err := formula.Version(f)
	if err != nil {
		return err
	}
	if opts.Head {
		if f.Head == nil {
			return errors.Errorf("%s has no head source", f.Name)
		}
		src = *f.Head
		version = "HEAD"
	}

	buildpath, err := os.MkdirTemp("", "nbrew-"+f.Name+"-")
	if err != nil {
		return err
	}
	if opts.KeepTmp {
		b.l.Info("Keeping build directory", "formula", f.Name, "path", buildpath)
	} else {
		defer os.RemoveAll(buildpath)
	}

	b.l.Info("Building from source", "formula", f.Name, "version", version)
	if err := b.stage(ctx, f.Name, src, opts.Head, buildpath); err != nil {
		return err
	}

	v := kegVars(f.Name, version, keg)
	v["buildpath"] = buildpath
	v["cellar"] = b.Cellar
	for _, r := range f.Resources {
		dst := filepath.Join(buildpath, ".resources", r.Name)
		if err := b.stage(ctx, f.Name+"--"+r.Name, r.Source, false, dst); err != nil {
			return errors.Wrapf(err, "staging resource %s", r.Name)
		}
		v["resource."+r.Name] = dst
	}

	if err := os.MkdirAll(keg, 0755); err != nil {
		return err
	}
	if err := b.runSteps(ctx, f.Name, "install", f.Install, buildpath, v); err != nil {
		return err
	}
	if err := b.finish(ctx, f, keg, version); err != nil {
		return err
	}
	return b.writeReceipt(f, keg, Receipt{Head: opts.Head, Source: sourceString(src)})
}

// finish does the parts shared by poured and built kegs.
func (b *Builder) finish(ctx context.Context, f *types.Formula, keg, version string) error {
	v := kegVars(f.Name, version, keg)
	if err := b.runSteps(ctx, f.Name, "post_install", f.PostInstall, keg, v); err != nil {
		return err
	}
	if f.Service != nil {
		desc, err := service.Render(f, keg, b.Platform)
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(keg, service.FileName(f, b.Platform)), desc, 0644); err != nil {
			return err
		}
	}
	if f.Caveats != "" {
		b.l.Info("Caveats", "formula", f.Name, "caveats", f.Caveats)
	}
	return nil
}

// stage fetches a source and lays it out in dst.
func (b *Builder) stage(ctx context.Context, name string, src types.Source, head bool, dst string) error {
	get := b.Fetcher.Fetch
	if head {
		get = b.Fetcher.FetchHead
	}
	p, err := get(ctx, name, src)
	if err != nil {
		return err
	}
	if src.IsGit() {
		return copyTree(p, dst)
	}
	return fetch.Unpack(p, dst)
}

func (b *Builder) runSteps(ctx context.Context, name, phase string, steps []types.Step, dir string, v vars) error {
	for i, s := range steps {
		if !formula.AppliesOn(s.On, b.Platform) {
			b.l.Trace("Skipping step", "formula", name, "phase", phase, "step", i)
			continue
		}
		args := v.expandAll(s.Run)
		env := []string{"PREFIX=" + v["prefix"]}
		keys := make([]string, 0, len(s.Env))
		for k := range s.Env {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			env = append(env, k+"="+v.expand(s.Env[k]))
		}
		stepDir := dir
		if s.Dir != "" {
			stepDir = filepath.Join(dir, v.expand(s.Dir))
		}

		b.l.Debug("Running step", "formula", name, "phase", phase, "step", i, "args", args)
		out, code, err := b.run(ctx, args, stepDir, env, nil)
		if err != nil {
			return &BuildError{Formula: name, Phase: phase, Step: i, ExitCode: code, Output: out}
		}
	}
	return nil
}

// run executes a command and returns its combined output and exit
// code.  A command that could not be started reports -1.
func (b *Builder) run(ctx context.Context, args []string, dir string, env []string, stdin io.Reader) (string, int, error) {
	if len(args) == 0 {
		return "", -1, errors.New("empty command")
	}
	var buf bytes.Buffer
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), env...)
	cmd.Stdin = stdin
	cmd.Stdout = io.MultiWriter(&buf, b.Stdout)
	cmd.Stderr = io.MultiWriter(&buf, b.Stdout)
	err := cmd.Run()

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return buf.String(), 0, nil
	case errors.As(err, &exitErr):
		return buf.String(), exitErr.ExitCode(), err
	default:
		buf.WriteString(err.Error())
		return buf.String(), -1, err
	}
}

func (b *Builder) writeReceipt(f *types.Formula, keg string, r Receipt) error {
	r.Name = f.Name
	r.PkgVer = filepath.Base(keg)
	r.Platform = b.Platform.Tag()
	r.InstalledAt = time.Now().UTC()
	for _, d := range formula.Dependencies(f, b.Platform, types.DepRun, types.DepRecommended) {
		r.RuntimeDepends = append(r.RuntimeDepends, d.Name)
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	b.l.Info("Installed", "formula", f.Name, "keg", keg, "bottle", r.PouredFromBottle)
	return os.WriteFile(filepath.Join(keg, ReceiptFile), data, 0644)
}

func (b *Builder) removeEmptyRack(name string) {
	rack := filepath.Join(b.Cellar, name)
	if entries, err := os.ReadDir(rack); err == nil && len(entries) == 0 {
		os.Remove(rack)
	}
}

func sourceString(src types.Source) string {
	if src.IsGit() {
		return src.Git.URL
	}
	return src.URL
}

// copyTree copies a checkout into dst, leaving out its git metadata.
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && d.Name() == ".git" {
			return filepath.SkipDir
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		fi, err := d.Info()
		if err != nil {
			return err
		}
		switch {
		case d.IsDir():
			return os.MkdirAll(target, 0755)
		case fi.Mode()&fs.ModeSymlink != 0:
			link, err := os.Readlink(p)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		default:
			in, err := os.Open(p)
			if err != nil {
				return err
			}
			defer in.Close()
			out, err := os.OpenFile(target, os.O_RDWR|os.O_CREATE|os.O_TRUNC, fi.Mode().Perm())
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, in); err != nil {
				out.Close()
				return err
			}
			return out.Close()
		}
	})
}
