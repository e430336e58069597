// Package bottle selects, packs and pours precompiled kegs.
package bottle

import (
	"archive/tar"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"

	"github.com/the-maldridge/nbrew/pkg/fetch"
	"github.com/the-maldridge/nbrew/pkg/formula"
	"github.com/the-maldridge/nbrew/pkg/types"
)

// AllTag is the bottle tag that matches every platform.
const AllTag = "all"

// ErrNoBottle is returned when a formula has no bottle usable on a
// platform.
type ErrNoBottle struct {
	Formula  string
	Platform string
}

func (e *ErrNoBottle) Error() string {
	return "no bottle of " + e.Formula + " for " + e.Platform
}

// Select picks the bottle for a platform: the exact tag if present,
// otherwise the "all" bottle.
func Select(f *types.Formula, p types.Platform) (string, string, error) {
	if f.Bottle != nil {
		if sum, ok := f.Bottle.Files[p.Tag()]; ok {
			return p.Tag(), sum, nil
		}
		if sum, ok := f.Bottle.Files[AllTag]; ok {
			return AllTag, sum, nil
		}
	}
	return "", "", &ErrNoBottle{Formula: f.Name, Platform: p.Tag()}
}

// Filename returns the name a bottle is published under.
func Filename(f *types.Formula, tag string) (string, error) {
	pkgver, err := formula.PkgVer(f)
	if err != nil {
		return "", err
	}
	rebuild := 0
	if f.Bottle != nil {
		rebuild = f.Bottle.Rebuild
	}
	return FilenameFor(f.Name, pkgver, tag, rebuild), nil
}

// FilenameFor builds a bottle file name from its parts.
func FilenameFor(name, pkgver, tag string, rebuild int) string {
	s := name + "--" + pkgver + "." + tag + ".bottle"
	if rebuild > 0 {
		s += "." + strconv.Itoa(rebuild)
	}
	return s + ".tar.gz"
}

// ParseFilename splits a bottle file name into name, pkgver and tag.
func ParseFilename(fname string) (string, string, string, error) {
	base := strings.TrimSuffix(fname, ".tar.gz")
	i := strings.Index(base, "--")
	j := strings.Index(base, ".bottle")
	if base == fname || i <= 0 || j < i || path.Base(fname) != fname {
		return "", "", "", errors.Errorf("%q is not a bottle file name", fname)
	}
	name, rest := base[:i], base[i+2:j]
	k := strings.LastIndex(rest, ".")
	if k <= 0 || k == len(rest)-1 {
		return "", "", "", errors.Errorf("%q is not a bottle file name", fname)
	}
	return name, rest[:k], rest[k+1:], nil
}

// URL returns where a bottle can be downloaded from.
func URL(f *types.Formula, tag string) (string, error) {
	if f.Bottle == nil || f.Bottle.RootURL == "" {
		return "", errors.Errorf("%s has no bottle root_url", f.Name)
	}
	fname, err := Filename(f, tag)
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(f.Bottle.RootURL, "/") + "/" + fname, nil
}

// Source describes a bottle as a fetchable source so it can go
// through the same cache as everything else.
func Source(f *types.Formula, p types.Platform) (types.Source, error) {
	tag, sum, err := Select(f, p)
	if err != nil {
		return types.Source{}, err
	}
	u, err := URL(f, tag)
	if err != nil {
		return types.Source{}, err
	}
	return types.Source{URL: u, SHA256: sum}, nil
}

// Pack writes the keg at kegDir into out as a bottle laid out as
// <name>/<pkgver>/... and returns the sha256 of the result.
func Pack(kegDir, name, pkgver, out string) (string, error) {
	fd, err := os.Create(out)
	if err != nil {
		return "", err
	}
	defer fd.Close()

	h := sha256.New()
	zw := gzip.NewWriter(io.MultiWriter(fd, h))
	tw := tar.NewWriter(zw)
	prefix := path.Join(name, pkgver)

	err = filepath.WalkDir(kegDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(kegDir, p)
		if err != nil {
			return err
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		link := ""
		if fi.Mode()&fs.ModeSymlink != 0 {
			if link, err = os.Readlink(p); err != nil {
				return err
			}
		}
		hdr, err := tar.FileInfoHeader(fi, link)
		if err != nil {
			return err
		}
		hdr.Name = path.Join(prefix, filepath.ToSlash(rel))
		if d.IsDir() {
			hdr.Name += "/"
		}
		hdr.Uname, hdr.Gname = "", ""
		hdr.Uid, hdr.Gid = 0, 0
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if !fi.Mode().IsRegular() {
			return nil
		}
		src, err := os.Open(p)
		if err != nil {
			return err
		}
		defer src.Close()
		_, err = io.Copy(tw, src)
		return err
	})
	if err != nil {
		os.Remove(out)
		return "", errors.Wrapf(err, "packing %s", kegDir)
	}
	if err := tw.Close(); err != nil {
		return "", err
	}
	if err := zw.Close(); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), fd.Close()
}

// Pour verifies a bottle against its checksum and extracts it into
// the cellar.
func Pour(archive, sum, cellar string) error {
	actual, err := fetch.SHA256File(archive)
	if err != nil {
		return err
	}
	if actual != sum {
		return &fetch.ErrChecksumMismatch{URL: archive, Expected: sum, Actual: actual}
	}

	fd, err := os.Open(archive)
	if err != nil {
		return err
	}
	defer fd.Close()
	zr, err := gzip.NewReader(fd)
	if err != nil {
		return errors.Wrapf(err, "couldn't create a gzip decompressor for %s", archive)
	}
	defer zr.Close()
	return errors.Wrapf(fetch.ExtractTar(zr, cellar), "pouring %s", archive)
}
