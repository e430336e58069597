package bottle

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/the-maldridge/nbrew/pkg/fetch"
	"github.com/the-maldridge/nbrew/pkg/types"
)

var (
	linux  = types.Platform{Arch: "x86_64", OS: "linux"}
	sonoma = types.Platform{Arch: "arm64", OS: "sonoma"}
)

func testFormula(files map[string]string) *types.Formula {
	return &types.Formula{
		Name:     "hello",
		Revision: 1,
		Source:   types.Source{URL: "https://example.org/hello-2.12.1.tar.gz"},
		Bottle: &types.Bottle{
			RootURL: "https://bottles.example.org/core/",
			Files:   files,
		},
	}
}

func TestSelect(t *testing.T) {
	f := testFormula(map[string]string{"x86_64_linux": "aa", "all": "bb"})

	tag, sum, err := Select(f, linux)
	require.NoError(t, err)
	assert.Equal(t, "x86_64_linux", tag)
	assert.Equal(t, "aa", sum)

	tag, sum, err = Select(f, sonoma)
	require.NoError(t, err)
	assert.Equal(t, AllTag, tag)
	assert.Equal(t, "bb", sum)

	_, _, err = Select(testFormula(map[string]string{"x86_64_linux": "aa"}), sonoma)
	var nb *ErrNoBottle
	require.ErrorAs(t, err, &nb)
	assert.Equal(t, "arm64_sonoma", nb.Platform)

	_, _, err = Select(&types.Formula{Name: "nobottle"}, linux)
	assert.ErrorAs(t, err, &nb)
}

func TestFilenameAndURL(t *testing.T) {
	f := testFormula(map[string]string{"x86_64_linux": "aa"})

	fname, err := Filename(f, "x86_64_linux")
	require.NoError(t, err)
	assert.Equal(t, "hello--2.12.1_1.x86_64_linux.bottle.tar.gz", fname)

	f.Bottle.Rebuild = 2
	u, err := URL(f, "x86_64_linux")
	require.NoError(t, err)
	assert.Equal(t, "https://bottles.example.org/core/hello--2.12.1_1.x86_64_linux.bottle.2.tar.gz", u)

	src, err := Source(f, linux)
	require.NoError(t, err)
	assert.Equal(t, u, src.URL)
	assert.Equal(t, "aa", src.SHA256)
}

func TestParseFilename(t *testing.T) {
	cases := []struct {
		in                string
		name, pkgver, tag string
		ok                bool
	}{
		{"hello--2.12.1_1.x86_64_linux.bottle.tar.gz", "hello", "2.12.1_1", "x86_64_linux", true},
		{"hello--2.12.1.arm64_sonoma.bottle.3.tar.gz", "hello", "2.12.1", "arm64_sonoma", true},
		{"ca-certificates--2024-03-11.all.bottle.tar.gz", "ca-certificates", "2024-03-11", "all", true},
		{"hello-2.12.1.tar.gz", "", "", "", false},
		{"../hello--1.0.all.bottle.tar.gz", "", "", "", false},
		{"hello--1.0.all.bottle.zip", "", "", "", false},
		{"hello--all.bottle.tar.gz", "", "", "", false},
	}
	for _, c := range cases {
		name, pkgver, tag, err := ParseFilename(c.in)
		if !c.ok {
			assert.Error(t, err, c.in)
			continue
		}
		require.NoError(t, err, c.in)
		assert.Equal(t, c.name, name)
		assert.Equal(t, c.pkgver, pkgver)
		assert.Equal(t, c.tag, tag)
	}
}

func TestPackPour(t *testing.T) {
	keg := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(keg, "bin"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(keg, "bin", "hello"), []byte("#!/bin/sh\necho hi\n"), 0755))
	require.NoError(t, os.Symlink("hello", filepath.Join(keg, "bin", "hi")))

	out := filepath.Join(t.TempDir(), FilenameFor("hello", "2.12.1", "x86_64_linux", 0))
	sum, err := Pack(keg, "hello", "2.12.1", out)
	require.NoError(t, err)
	actual, err := fetch.SHA256File(out)
	require.NoError(t, err)
	assert.Equal(t, actual, sum)

	cellar := t.TempDir()
	require.NoError(t, Pour(out, sum, cellar))

	b, err := os.ReadFile(filepath.Join(cellar, "hello", "2.12.1", "bin", "hello"))
	require.NoError(t, err)
	assert.Equal(t, "#!/bin/sh\necho hi\n", string(b))
	fi, err := os.Stat(filepath.Join(cellar, "hello", "2.12.1", "bin", "hello"))
	require.NoError(t, err)
	assert.NotZero(t, fi.Mode()&0100)
	link, err := os.Readlink(filepath.Join(cellar, "hello", "2.12.1", "bin", "hi"))
	require.NoError(t, err)
	assert.Equal(t, "hello", link)

	var mismatch *fetch.ErrChecksumMismatch
	assert.ErrorAs(t, Pour(out, "00", t.TempDir()), &mismatch)
}
