package repo

import (
	"archive/tar"
	"bytes"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"howett.net/plist"

	"github.com/the-maldridge/nbrew/pkg/formula"
)

// ErrNoSuchPackage is returned when no index knows about a package.
var ErrNoSuchPackage = errors.New("no such package")

// IndexFile is the name of the index inside of a repository.
const IndexFile = "index.tar.zst"

const indexMember = "index.plist"

// NewIndexService creates an IndexService
func NewIndexService(l hclog.Logger) *IndexService {
	is := IndexService{
		l:        l.Named("IndexService"),
		hc:       &http.Client{Timeout: 60 * time.Second},
		urls:     make(map[string]map[string]string),
		packages: make(map[string]map[string]*Entry),
	}
	return &is
}

// LoadIndex retrieves the index for one repository of a platform
// and merges it into what is already known for that platform.  The
// URL is remembered so that the platform can be reloaded later.
func (is *IndexService) LoadIndex(tag, repo, path string) error {
	is.mu.Lock()
	if is.urls[tag] == nil {
		is.urls[tag] = make(map[string]string)
	}
	is.urls[tag][repo] = path
	is.mu.Unlock()

	entries, err := is.fetch(path)
	if err != nil {
		is.l.Warn("Error loading index", "platform", tag, "repo", repo, "error", err)
		return err
	}

	is.mu.Lock()
	defer is.mu.Unlock()
	is.merge(tag, entries)
	is.l.Debug("Loaded index", "platform", tag, "repo", repo, "count", len(entries))
	return nil
}

// ReloadPlatform throws away everything known about a platform and
// fetches all of its repositories again.
func (is *IndexService) ReloadPlatform(tag string) error {
	is.mu.RLock()
	urls := make(map[string]string, len(is.urls[tag]))
	for repo, u := range is.urls[tag] {
		urls[repo] = u
	}
	is.mu.RUnlock()

	fresh := make(map[string]*Entry)
	for repo, u := range urls {
		entries, err := is.fetch(u)
		if err != nil {
			is.l.Warn("Error reloading index", "platform", tag, "repo", repo, "error", err)
			return err
		}
		mergeInto(fresh, entries)
	}

	is.mu.Lock()
	is.packages[tag] = fresh
	is.mu.Unlock()
	return nil
}

// Add records a single entry, used when a bottle is received.
func (is *IndexService) Add(tag string, e *Entry) {
	is.mu.Lock()
	defer is.mu.Unlock()
	is.merge(tag, map[string]*Entry{e.Name: e})
}

// PkgCount is a quick check of how many packages this index knows
// about for a platform.
func (is *IndexService) PkgCount(tag string) int {
	is.mu.RLock()
	defer is.mu.RUnlock()
	return len(is.packages[tag])
}

// GetPackage returns a single package from the index.
func (is *IndexService) GetPackage(tag, name string) (*Entry, error) {
	is.mu.RLock()
	defer is.mu.RUnlock()
	pkg, ok := is.packages[tag][name]
	if !ok {
		return nil, errors.Wrap(ErrNoSuchPackage, name)
	}
	return pkg, nil
}

func (is *IndexService) merge(tag string, entries map[string]*Entry) {
	if is.packages[tag] == nil {
		is.packages[tag] = make(map[string]*Entry)
	}
	mergeInto(is.packages[tag], entries)
}

// mergeInto keeps the newest pkgver when more than one repository
// provides the same package.
func mergeInto(dst, src map[string]*Entry) {
	for name, e := range src {
		if e.Name == "" {
			e.Name = name
		}
		if cur, ok := dst[name]; ok && formula.CompareVersions(cur.PkgVer, e.PkgVer) > 0 {
			continue
		}
		dst[name] = e
	}
}

func (is *IndexService) fetch(path string) (map[string]*Entry, error) {
	var rc io.ReadCloser
	switch {
	case strings.HasPrefix(path, "http"):
		resp, err := is.hc.Get(path)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, errors.Errorf("fetching %s: %s", path, resp.Status)
		}
		rc = resp.Body
	case strings.HasPrefix(path, "file://"):
		f, err := os.Open(strings.TrimPrefix(path, "file://"))
		if err != nil {
			return nil, err
		}
		rc = f
	default:
		is.l.Error("Index scheme must be either file or http(s)", "path", path)
		return nil, errors.New("unknown index scheme")
	}
	defer rc.Close()
	return ReadIndex(rc)
}

// ReadIndex decodes an index: a zstd compressed tar holding a single
// plist that maps package names to entries.
func ReadIndex(r io.Reader) (map[string]*Entry, error) {
	d, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer d.Close()

	tarchive := tar.NewReader(d)
	for {
		header, err := tarchive.Next()
		switch err {
		case nil:
		case io.EOF:
			return nil, errors.New("index has no " + indexMember)
		default:
			return nil, err
		}

		if header.Name != indexMember {
			continue
		}

		buf := &bytes.Buffer{}
		if _, err := buf.ReadFrom(tarchive); err != nil {
			return nil, err
		}
		entries := make(map[string]*Entry)
		if err := plist.NewDecoder(bytes.NewReader(buf.Bytes())).Decode(&entries); err != nil {
			return nil, errors.Wrap(err, "couldn't decode index")
		}
		return entries, nil
	}
}

// WriteIndex is the inverse of ReadIndex.
func WriteIndex(w io.Writer, entries map[string]*Entry) error {
	body, err := plist.MarshalIndent(entries, plist.XMLFormat, "\t")
	if err != nil {
		return err
	}

	enc, err := zstd.NewWriter(w)
	if err != nil {
		return err
	}
	tw := tar.NewWriter(enc)
	hdr := &tar.Header{
		Name:    indexMember,
		Mode:    0644,
		Size:    int64(len(body)),
		ModTime: time.Now(),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	if _, err := tw.Write(body); err != nil {
		return err
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return enc.Close()
}

// ReadIndexFile reads an index from disk, a missing file is an empty
// index.
func ReadIndexFile(path string) (map[string]*Entry, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return make(map[string]*Entry), nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadIndex(f)
}

// WriteIndexFile atomically replaces an index on disk.
func WriteIndexFile(path string, entries map[string]*Entry) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := WriteIndex(f, entries); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
