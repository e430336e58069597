// Package fetch retrieves formula sources and resources, verifying
// them against their declared checksums.
package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/the-maldridge/nbrew/pkg/types"
)

// New returns a Fetcher that caches into the given directory.
func New(l hclog.Logger, cache string, opts ...Option) *Fetcher {
	x := Fetcher{
		l:     l.Named("fetch"),
		hc:    &http.Client{Timeout: 30 * time.Minute},
		Cache: cache,
		Jobs:  4,
	}
	for _, o := range opts {
		o(&x)
	}
	return &x
}

// WithHTTPClient replaces the client used for downloads.
func WithHTTPClient(hc *http.Client) Option {
	return func(f *Fetcher) {
		f.hc = hc
	}
}

// WithJobs sets the download parallelism of FetchAll.
func WithJobs(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.Jobs = n
		}
	}
}

// CachePath is where a source with the given checksum and URL is
// kept once downloaded.
func (f *Fetcher) CachePath(sum, u string) string {
	return filepath.Join(f.Cache, sum+"--"+basename(u))
}

func basename(u string) string {
	if p, err := url.Parse(u); err == nil && p.Path != "" {
		return path.Base(p.Path)
	}
	return path.Base(u)
}

// Fetch makes the source available locally and returns its path.
// Archives are verified against their checksum, the url is tried
// first and then each mirror in order.  Git sources are cloned and
// the path of the checkout is returned.
func (f *Fetcher) Fetch(ctx context.Context, name string, src types.Source) (string, error) {
	if src.IsGit() {
		return f.fetchGit(ctx, name, src.Git)
	}
	if src.URL == "" {
		return "", errors.Errorf("%s has no source url", name)
	}
	if src.SHA256 == "" {
		return "", errors.Errorf("%s has no sha256 for %s", name, src.URL)
	}

	dst := f.CachePath(src.SHA256, src.URL)
	defer f.lock(dst)()
	if _, err := os.Stat(dst); err == nil {
		if err := verify(dst, src.URL, src.SHA256); err == nil {
			f.l.Debug("Using cached download", "formula", name, "path", dst)
			return dst, nil
		}
		f.l.Warn("Cached download is corrupt, fetching again", "formula", name, "path", dst)
		os.Remove(dst)
	}
	if err := os.MkdirAll(f.Cache, 0755); err != nil {
		return "", err
	}

	return f.fetchURLs(ctx, src, dst)
}

// FetchHead makes a head source available.  Head archives move, so
// unless a checksum is given they are downloaded every time and not
// verified.
func (f *Fetcher) FetchHead(ctx context.Context, name string, src types.Source) (string, error) {
	if src.IsGit() || src.SHA256 != "" {
		return f.Fetch(ctx, name, src)
	}
	if src.URL == "" {
		return "", errors.Errorf("%s has no head url", name)
	}
	dst := filepath.Join(f.Cache, "head", name+"--"+basename(src.URL))
	defer f.lock(dst)()
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return "", err
	}
	f.l.Warn("Head source is not verified", "formula", name, "url", src.URL)
	return f.fetchURLs(ctx, src, dst)
}

// lock takes the lock for one cache entry and returns its release.
func (f *Fetcher) lock(key string) func() {
	f.keysMu.Lock()
	if f.keys == nil {
		f.keys = make(map[string]*sync.Mutex)
	}
	m, ok := f.keys[key]
	if !ok {
		m = new(sync.Mutex)
		f.keys[key] = m
	}
	f.keysMu.Unlock()
	m.Lock()
	return m.Unlock
}

func (f *Fetcher) fetchURLs(ctx context.Context, src types.Source, dst string) (string, error) {
	var lastErr error
	for _, u := range append([]string{src.URL}, src.Mirrors...) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		err := f.download(ctx, u, dst, src.SHA256)
		if err == nil {
			return dst, nil
		}
		var mismatch *ErrChecksumMismatch
		if errors.As(err, &mismatch) {
			// A mirror serving the same bytes will not do any
			// better, but a mirror serving different ones
			// might.
			f.l.Warn("Checksum mismatch", "url", u, "expected", mismatch.Expected, "actual", mismatch.Actual)
		} else {
			f.l.Warn("Download failed", "url", u, "error", err)
		}
		lastErr = err
	}
	return "", lastErr
}

// download writes u to dst.  An empty sum skips verification.
func (f *Fetcher) download(ctx context.Context, u, dst, sum string) error {
	file, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".*.incomplete")
	if err != nil {
		return errors.Wrapf(err, "couldn't create temporary download file for %s", dst)
	}
	tmp := file.Name()
	defer os.Remove(tmp)
	defer file.Close()

	body, size, err := f.open(ctx, u)
	if err != nil {
		return err
	}
	defer body.Close()

	f.l.Info("Downloading", "url", u, "size", humanize.Bytes(uint64(size)))
	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(file, h), body)
	if err != nil {
		return errors.Wrapf(err, "couldn't download %s", u)
	}
	if err := file.Close(); err != nil {
		return err
	}

	if actual := hex.EncodeToString(h.Sum(nil)); sum != "" && actual != sum {
		return &ErrChecksumMismatch{URL: u, Expected: sum, Actual: actual}
	}
	f.l.Debug("Downloaded", "url", u, "size", humanize.Bytes(uint64(n)))
	return errors.Wrapf(os.Rename(tmp, dst), "couldn't commit completed download of %s", u)
}

// open returns a reader for a URL.  Size is -1 when unknown.
func (f *Fetcher) open(ctx context.Context, u string) (io.ReadCloser, int64, error) {
	p, err := url.Parse(u)
	if err != nil {
		return nil, 0, err
	}
	switch p.Scheme {
	case "file":
		fd, err := os.Open(filepath.FromSlash(p.Path))
		if err != nil {
			return nil, 0, err
		}
		size := int64(-1)
		if fi, err := fd.Stat(); err == nil {
			size = fi.Size()
		}
		return fd, size, nil
	case "http", "https":
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, 0, errors.Wrapf(err, "couldn't make http get request for %s", u)
		}
		resp, err := f.hc.Do(req)
		if err != nil {
			return nil, 0, err
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, 0, errors.Errorf("GET %s: %s", u, resp.Status)
		}
		return resp.Body, resp.ContentLength, nil
	default:
		return nil, 0, errors.Errorf("unsupported url scheme %q", p.Scheme)
	}
}

func verify(p, u, sum string) error {
	actual, err := SHA256File(p)
	if err != nil {
		return err
	}
	if actual != sum {
		return &ErrChecksumMismatch{URL: u, Expected: sum, Actual: actual}
	}
	return nil
}

// SHA256File returns the hex sha256 of a file.
func SHA256File(p string) (string, error) {
	fd, err := os.Open(p)
	if err != nil {
		return "", err
	}
	defer fd.Close()
	h := sha256.New()
	if _, err := io.Copy(h, fd); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// FetchAll fetches a set of named sources concurrently and returns
// where each ended up.  The first failure cancels the rest.
func (f *Fetcher) FetchAll(ctx context.Context, srcs map[string]types.Source) (map[string]string, error) {
	out := make(map[string]string, len(srcs))
	var mu sync.Mutex

	eg, egctx := errgroup.WithContext(ctx)
	eg.SetLimit(f.Jobs)
	for name, src := range srcs {
		eg.Go(func() error {
			p, err := f.Fetch(egctx, name, src)
			if err != nil {
				return errors.Wrapf(err, "couldn't fetch %s", name)
			}
			mu.Lock()
			out[name] = p
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
