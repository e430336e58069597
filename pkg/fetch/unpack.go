package fetch

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/bzip2"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Unpack extracts an archive into dest.  The archive type is sniffed
// from its content rather than its name.  When everything in the
// archive is under one top level directory that directory is
// stripped.  Files that are not archives are copied into dest as is.
func Unpack(archive, dest string) error {
	kind, err := sniff(archive)
	if err != nil {
		return errors.Wrapf(err, "couldn't determine file type of %s", archive)
	}

	if err := os.MkdirAll(dest, 0755); err != nil {
		return err
	}
	staging, err := os.MkdirTemp(dest, ".unpack-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(staging)

	fd, err := os.Open(archive)
	if err != nil {
		return err
	}
	defer fd.Close()

	switch kind {
	case "gz":
		zr, zerr := gzip.NewReader(fd)
		if zerr != nil {
			return errors.Wrapf(zerr, "couldn't create a gzip decompressor for %s", archive)
		}
		defer zr.Close()
		err = untar(tar.NewReader(zr), staging)
	case "zst":
		zr, zerr := zstd.NewReader(fd)
		if zerr != nil {
			return errors.Wrapf(zerr, "couldn't create a zstd decompressor for %s", archive)
		}
		defer zr.Close()
		err = untar(tar.NewReader(zr), staging)
	case "bz2":
		err = untar(tar.NewReader(bzip2.NewReader(fd)), staging)
	case "tar":
		err = untar(tar.NewReader(fd), staging)
	case "zip":
		err = unzip(fd, staging)
	default:
		name := filepath.Base(archive)
		if i := strings.Index(name, "--"); i >= 0 {
			name = name[i+2:]
		}
		err = copyFile(fd, filepath.Join(staging, name), 0644)
	}
	if err != nil {
		return errors.Wrapf(err, "couldn't unpack %s", archive)
	}
	return promote(staging, dest)
}

func sniff(p string) (string, error) {
	fd, err := os.Open(p)
	if err != nil {
		return "", err
	}
	defer fd.Close()
	head := make([]byte, 262)
	n, err := io.ReadFull(fd, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", err
	}
	head = head[:n]
	if n == 0 {
		return "", nil
	}
	if bytes.HasPrefix(head, zstdMagic) {
		return "zst", nil
	}
	kind, err := filetype.Match(head)
	if err != nil {
		return "", err
	}
	return kind.Extension, nil
}

// within joins name onto root, refusing names that would escape.
func within(root, name string) (string, error) {
	root = filepath.Clean(root)
	p := filepath.Join(root, filepath.FromSlash(name))
	if p != root && !strings.HasPrefix(p, root+string(os.PathSeparator)) {
		return "", errors.Errorf("illegal path in archive: %s", name)
	}
	return p, nil
}

func untar(tr *tar.Reader, root string) error {
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		target, err := within(root, hdr.Name)
		if err != nil {
			return err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := copyFile(tr, target, os.FileMode(hdr.Mode)&os.ModePerm); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return err
			}
		case tar.TypeLink:
			src, err := within(root, hdr.Linkname)
			if err != nil {
				return err
			}
			if err := os.Link(src, target); err != nil {
				return err
			}
		case tar.TypeXGlobalHeader:
			// pax comments written by git archive
		default:
			return errors.Errorf("unknown type of file %s in archive: %b", hdr.Name, hdr.Typeflag)
		}
	}
}

func unzip(fd *os.File, root string) error {
	fi, err := fd.Stat()
	if err != nil {
		return err
	}
	zr, err := zip.NewReader(fd, fi.Size())
	if err != nil {
		return err
	}
	for _, zf := range zr.File {
		target, err := within(root, zf.Name)
		if err != nil {
			return err
		}
		if zf.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
			continue
		}
		rc, err := zf.Open()
		if err != nil {
			return err
		}
		err = copyFile(rc, target, zf.Mode()&os.ModePerm)
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func copyFile(r io.Reader, target string, mode os.FileMode) error {
	if mode == 0 {
		mode = 0644
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	out, err := os.OpenFile(target, os.O_RDWR|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return errors.Wrapf(err, "couldn't create file at %s", target)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// promote moves the unpacked tree from staging into dest, dropping a
// lone top level directory on the way.
func promote(staging, dest string) error {
	entries, err := os.ReadDir(staging)
	if err != nil {
		return err
	}
	src := staging
	if len(entries) == 1 && entries[0].IsDir() {
		src = filepath.Join(staging, entries[0].Name())
		if entries, err = os.ReadDir(src); err != nil {
			return err
		}
	}
	for _, e := range entries {
		if err := os.Rename(filepath.Join(src, e.Name()), filepath.Join(dest, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

// ExtractTar writes an uncompressed tar stream into dest exactly as
// laid out in the stream.
func ExtractTar(r io.Reader, dest string) error {
	if err := os.MkdirAll(dest, 0755); err != nil {
		return err
	}
	return untar(tar.NewReader(r), dest)
}
