package local

import (
	"archive/tar"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hashicorp/go-hclog"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/the-maldridge/nbrew/pkg/reciever"
	"github.com/the-maldridge/nbrew/pkg/repo"
	"github.com/the-maldridge/nbrew/pkg/scheduler"
	"github.com/the-maldridge/nbrew/pkg/types"
)

var linux = types.Platform{Arch: "x86_64", OS: "linux"}

type graphStub struct {
	sync.Mutex
	calls []string
}

func (g *graphStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.Lock()
	g.calls = append(g.calls, r.Method+" "+r.URL.Path)
	g.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func writeTap(t *testing.T) string {
	dir := t.TempDir()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(zw)
	body := "hi"
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "hello-1.0/greeting", Mode: 0644, Size: int64(len(body)), Typeflag: tar.TypeReg}))
	tw.Write([]byte(body))
	require.NoError(t, tw.Close())
	require.NoError(t, zw.Close())
	archive := filepath.Join(dir, "hello-1.0.tar.gz")
	require.NoError(t, os.WriteFile(archive, buf.Bytes(), 0644))
	sum := sha256.Sum256(buf.Bytes())

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "tap", "Formula"), 0755))
	hello := fmt.Sprintf(`desc: hello
homepage: https://example.org
url: file://%s
sha256: %s
install:
  - run: ["sh", "-c", "mkdir -p ${share} && cp greeting ${share}/"]
`, filepath.ToSlash(archive), hex.EncodeToString(sum[:]))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tap", "Formula", "hello.yml"), []byte(hello), 0644))
	broken := fmt.Sprintf(`desc: broken
homepage: https://example.org
url: file://%s
sha256: %s
install:
  - run: ["false"]
`, filepath.ToSlash(archive), hex.EncodeToString(sum[:]))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tap", "Formula", "broken.yml"), []byte(broken), 0644))

	// needy can only compile once its build dependency is in the
	// cellar, and carries a rebuild number for its bottles.
	tool := fmt.Sprintf(`desc: tool
homepage: https://example.org
url: file://%s
sha256: %s
version: "2.0"
install:
  - run: ["sh", "-c", "mkdir -p ${bin} && touch ${bin}/tool"]
`, filepath.ToSlash(archive), hex.EncodeToString(sum[:]))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tap", "Formula", "tool.yml"), []byte(tool), 0644))
	needy := fmt.Sprintf(`desc: needy
homepage: https://example.org
url: file://%s
sha256: %s
version: "1.0"
depends_on:
  - name: tool
    type: build
bottle:
  rebuild: 2
  files:
    arm64_sonoma: %s
install:
  - run: ["test", "-f", "${cellar}/tool/2.0/bin/tool"]
  - run: ["sh", "-c", "mkdir -p ${share} && cp greeting ${share}/"]
`, filepath.ToSlash(archive), hex.EncodeToString(sum[:]), hex.EncodeToString(sum[:]))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tap", "Formula", "needy.yml"), []byte(needy), 0644))
	return filepath.Join(dir, "tap")
}

func TestLocalBuild(t *testing.T) {
	g := &graphStub{}
	gsrv := httptest.NewServer(g)
	defer gsrv.Close()

	rcv := reciever.NewReciever(hclog.NewNullLogger())
	rcv.SetPath(t.TempDir())
	r := chi.NewRouter()
	r.Mount("/api/reciever", rcv.HTTPEntry())
	rsrv := httptest.NewServer(r)
	defer rsrv.Close()

	work := t.TempDir()
	c := NewWithConfig(hclog.NewNullLogger(), Config{
		TapPath:     writeTap(t),
		Cellar:      filepath.Join(work, "Cellar"),
		Cache:       filepath.Join(work, "cache"),
		Platform:    linux,
		GraphURL:    gsrv.URL,
		ReceiverURL: rsrv.URL + "/api/reciever",
		OutputDir:   filepath.Join(work, "bottles"),
		Repo:        "core",
	})
	c.SetSlots(map[string]int{"x86_64_linux": 2})

	require.NoError(t, c.DispatchBuild(scheduler.Build{Platform: linux, Pkg: "hello"}))
	require.NoError(t, c.DispatchBuild(scheduler.Build{Platform: linux, Pkg: "broken"}))

	var noCap *scheduler.ErrNoCapacity
	assert.ErrorAs(t, c.DispatchBuild(scheduler.Build{Platform: types.Platform{Arch: "arm64", OS: "sonoma"}, Pkg: "hello"}), &noCap)

	c.Wait()
	builds, err := c.ListBuilds()
	require.NoError(t, err)
	assert.Empty(t, builds)

	c.SetSlots(map[string]int{"x86_64_linux": 0})
	assert.ErrorAs(t, c.DispatchBuild(scheduler.Build{Platform: linux, Pkg: "hello"}), &noCap)

	assert.FileExists(t, filepath.Join(work, "bottles", "x86_64_linux", "core", "hello--1.0.x86_64_linux.bottle.tar.gz"))
	entries, err := repo.ReadIndexFile(filepath.Join(rcv.Path(), "x86_64_linux", "core", repo.IndexFile))
	require.NoError(t, err)
	assert.Contains(t, entries, "hello")

	g.Lock()
	defer g.Unlock()
	assert.ElementsMatch(t, []string{
		"POST /clean/x86_64_linux",
		"POST /pkgs/x86_64_linux/broken/fail",
	}, g.calls)
}

func TestLocalBuildInstallsDeps(t *testing.T) {
	g := &graphStub{}
	gsrv := httptest.NewServer(g)
	defer gsrv.Close()

	work := t.TempDir()
	c := NewWithConfig(hclog.NewNullLogger(), Config{
		TapPath:   writeTap(t),
		Cellar:    filepath.Join(work, "Cellar"),
		Cache:     filepath.Join(work, "cache"),
		Platform:  linux,
		GraphURL:  gsrv.URL,
		OutputDir: filepath.Join(work, "bottles"),
		Repo:      "core",
	})

	require.NoError(t, c.DispatchBuild(scheduler.Build{Platform: linux, Pkg: "needy"}))
	c.Wait()

	assert.FileExists(t, filepath.Join(work, "Cellar", "tool", "2.0", "bin", "tool"))
	assert.FileExists(t, filepath.Join(work, "bottles", "x86_64_linux", "core", "needy--1.0.x86_64_linux.bottle.2.tar.gz"))
	assert.NoFileExists(t, filepath.Join(work, "bottles", "x86_64_linux", "core", "tool--2.0.x86_64_linux.bottle.tar.gz"))

	g.Lock()
	defer g.Unlock()
	assert.Equal(t, []string{"POST /clean/x86_64_linux"}, g.calls)
}

func TestRegisteredFactory(t *testing.T) {
	scheduler.DoCallbacks()
	assert.Contains(t, scheduler.Providers(), "local")
}
