package repo

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEntries() map[string]*Entry {
	return map[string]*Entry{
		"hello": {Name: "hello", PkgVer: "2.12.1", SHA256: "aa", Filename: "hello--2.12.1.x86_64_linux.bottle.tar.gz"},
		"zlib":  {Name: "zlib", PkgVer: "1.3.1", SHA256: "bb", Filename: "zlib--1.3.1.x86_64_linux.bottle.tar.gz"},
	}
}

func TestIndexRoundTrip(t *testing.T) {
	buf := new(bytes.Buffer)
	require.NoError(t, WriteIndex(buf, testEntries()))

	entries, err := ReadIndex(buf)
	require.NoError(t, err)
	assert.Equal(t, testEntries(), entries)
}

func TestReadIndexFileMissing(t *testing.T) {
	entries, err := ReadIndexFile(filepath.Join(t.TempDir(), IndexFile))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLoadIndexFromFileAndHTTP(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, IndexFile)
	require.NoError(t, WriteIndexFile(path, testEntries()))

	newer := new(bytes.Buffer)
	require.NoError(t, WriteIndex(newer, map[string]*Entry{
		"hello": {Name: "hello", PkgVer: "2.12.1_1", SHA256: "cc"},
	}))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(newer.Bytes())
	}))
	defer srv.Close()

	is := NewIndexService(hclog.NewNullLogger())
	require.NoError(t, is.LoadIndex("x86_64_linux", "core", "file://"+path))
	assert.Equal(t, 2, is.PkgCount("x86_64_linux"))

	require.NoError(t, is.LoadIndex("x86_64_linux", "extra", srv.URL))
	e, err := is.GetPackage("x86_64_linux", "hello")
	require.NoError(t, err)
	assert.Equal(t, "2.12.1_1", e.PkgVer)

	_, err = is.GetPackage("arm64_linux", "hello")
	assert.ErrorIs(t, err, ErrNoSuchPackage)

	is.Add("x86_64_linux", &Entry{Name: "gettext", PkgVer: "0.22.5"})
	assert.Equal(t, 3, is.PkgCount("x86_64_linux"))

	// A reload forgets entries that no repository holds.
	require.NoError(t, is.ReloadPlatform("x86_64_linux"))
	assert.Equal(t, 2, is.PkgCount("x86_64_linux"))
}

func TestLoadIndexBadScheme(t *testing.T) {
	is := NewIndexService(hclog.NewNullLogger())
	assert.Error(t, is.LoadIndex("x86_64_linux", "core", "ftp://nope"))
}
