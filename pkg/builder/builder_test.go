package builder

import (
	"archive/tar"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/the-maldridge/nbrew/pkg/bottle"
	"github.com/the-maldridge/nbrew/pkg/fetch"
	"github.com/the-maldridge/nbrew/pkg/formula"
	"github.com/the-maldridge/nbrew/pkg/types"
)

var linux = types.Platform{Arch: "x86_64", OS: "linux"}

func hexSum(b []byte) string {
	s := sha256.Sum256(b)
	return hex.EncodeToString(s[:])
}

// sourceArchive writes a tar.gz of files into dir and returns a file
// url and checksum for it.
func sourceArchive(t *testing.T, dir, name string, files map[string]string) types.Source {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(zw)
	for n, body := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: n, Mode: 0644, Size: int64(len(body)), Typeflag: tar.TypeReg}))
		_, err := tw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, zw.Close())

	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, buf.Bytes(), 0644))
	return types.Source{URL: "file://" + filepath.ToSlash(p), SHA256: hexSum(buf.Bytes())}
}

func testBuilder(t *testing.T) *Builder {
	dir := t.TempDir()
	f := fetch.New(hclog.NewNullLogger(), filepath.Join(dir, "cache"))
	return New(hclog.NewNullLogger(), filepath.Join(dir, "Cellar"), f, linux)
}

func helloFormula(t *testing.T) *types.Formula {
	srcdir := t.TempDir()
	src := sourceArchive(t, srcdir, "hello-1.0.tar.gz", map[string]string{
		"hello-1.0/greeting": "brew",
	})

	extra := []byte("extra data\n")
	require.NoError(t, os.WriteFile(filepath.Join(srcdir, "extra.txt"), extra, 0644))

	return &types.Formula{
		Name:     "hello",
		Desc:     "says hello",
		Homepage: "https://example.org",
		Source:   src,
		Resources: []types.Resource{{
			Name:   "extra",
			Source: types.Source{URL: "file://" + filepath.ToSlash(filepath.Join(srcdir, "extra.txt")), SHA256: hexSum(extra)},
		}},
		DependsOn: []types.Dependency{{Name: "zlib"}, {Name: "pkgconf", Type: types.DepBuild}},
		Install: []types.Step{
			{Run: []string{"sh", "-c", `mkdir -p ${bin} ${share} && printf '#!/bin/sh\necho %s\n' "$(cat greeting)" > ${bin}/hello && chmod +x ${bin}/hello`}},
			{Run: []string{"cp", "${resource.extra}/extra.txt", "${share}/extra.txt"}},
			{Run: []string{"sh", "-c", `test "$PREFIX" = "$EXPECT"`}, Env: map[string]string{"EXPECT": "${prefix}"}},
			{Run: []string{"false"}, On: []string{"macos"}},
		},
		PostInstall: []types.Step{
			{Run: []string{"sh", "-c", "mkdir -p ${var} && echo ${version} > ${var}/version"}},
		},
		Test: []types.TestStep{
			{Run: []string{"${bin}/hello"}, Expect: "^brew$"},
			{Run: []string{"sh", "-c", "cat > out && grep -q 1.0 out"}, Input: "${version}\n"},
			{Run: []string{"sh", "-c", "exit 2"}, ExitCode: 2},
		},
		Service: &types.Service{Run: []string{"${bin}/hello"}, KeepAlive: true},
	}
}

func TestInstallFromSource(t *testing.T) {
	b := testBuilder(t)
	f := helloFormula(t)

	keg, err := b.Install(context.Background(), f, Options{})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(b.Cellar, "hello", "1.0"), keg)

	assert.FileExists(t, filepath.Join(keg, "bin", "hello"))
	assert.FileExists(t, filepath.Join(keg, "share", "extra.txt"))
	assert.FileExists(t, filepath.Join(keg, "nbrew.hello.service"))
	v, err := os.ReadFile(filepath.Join(keg, "var", "version"))
	require.NoError(t, err)
	assert.Equal(t, "1.0\n", string(v))

	r, err := b.Receipt("hello", "1.0")
	require.NoError(t, err)
	assert.False(t, r.PouredFromBottle)
	assert.Equal(t, "x86_64_linux", r.Platform)
	assert.Equal(t, []string{"zlib"}, r.RuntimeDepends)

	installed, err := b.Installed("hello")
	require.NoError(t, err)
	assert.Equal(t, []string{"1.0"}, installed)

	require.NoError(t, b.Test(context.Background(), f, false))

	// A second install is a no-op.
	_, err = b.Install(context.Background(), f, Options{})
	require.NoError(t, err)

	require.NoError(t, b.Uninstall("hello"))
	assert.NoDirExists(t, filepath.Join(b.Cellar, "hello"))
	assert.Error(t, b.Uninstall("hello"))
}

func TestInstallFailureRemovesKeg(t *testing.T) {
	b := testBuilder(t)
	f := helloFormula(t)
	f.Install = append(f.Install[:1], types.Step{Run: []string{"sh", "-c", "echo boom; exit 3"}})

	_, err := b.Install(context.Background(), f, Options{})
	var be *BuildError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "install", be.Phase)
	assert.Equal(t, 1, be.Step)
	assert.Equal(t, 3, be.ExitCode)
	assert.Contains(t, be.Output, "boom")
	assert.NoDirExists(t, filepath.Join(b.Cellar, "hello"))
}

func TestInstallChecksumMismatch(t *testing.T) {
	b := testBuilder(t)
	f := helloFormula(t)
	f.SHA256 = hexSum([]byte("something else"))

	_, err := b.Install(context.Background(), f, Options{})
	var mismatch *fetch.ErrChecksumMismatch
	assert.ErrorAs(t, err, &mismatch)
}

func TestInstallDisabled(t *testing.T) {
	b := testBuilder(t)
	f := helloFormula(t)
	f.Disabled = &types.Lifecycle{Because: "is unmaintained"}

	_, err := b.Install(context.Background(), f, Options{})
	var disabled *formula.ErrDisabled
	require.ErrorAs(t, err, &disabled)
	assert.NoDirExists(t, filepath.Join(b.Cellar, "hello"))

	f.Disabled = nil
	f.Deprecated = &types.Lifecycle{Because: "is unmaintained"}
	_, err = b.Install(context.Background(), f, Options{})
	assert.NoError(t, err)
}

func TestTestFailures(t *testing.T) {
	b := testBuilder(t)
	f := helloFormula(t)
	_, err := b.Install(context.Background(), f, Options{})
	require.NoError(t, err)

	f.Test = []types.TestStep{{Run: []string{"${bin}/hello"}, Expect: "^cask$"}}
	var be *BuildError
	require.ErrorAs(t, b.Test(context.Background(), f, false), &be)
	assert.Equal(t, "test", be.Phase)

	f.Test = []types.TestStep{{Run: []string{"sh", "-c", "exit 1"}}}
	require.ErrorAs(t, b.Test(context.Background(), f, false), &be)
	assert.Equal(t, 1, be.ExitCode)

	assert.Error(t, b.Test(context.Background(), &types.Formula{Name: "ghost", Version: "1"}, false))
}

func TestPourBottle(t *testing.T) {
	b := testBuilder(t)

	keg := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(keg, "bin"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(keg, "bin", "hello"), []byte("#!/bin/sh\necho brew\n"), 0755))

	bottles := t.TempDir()
	fname := bottle.FilenameFor("hello", "1.0", "x86_64_linux", 0)
	sum, err := bottle.Pack(keg, "hello", "1.0", filepath.Join(bottles, fname))
	require.NoError(t, err)

	f := helloFormula(t)
	f.Install = []types.Step{{Run: []string{"false"}}}
	f.Bottle = &types.Bottle{
		RootURL: "file://" + filepath.ToSlash(bottles),
		Files:   map[string]string{"x86_64_linux": sum},
	}

	got, err := b.Install(context.Background(), f, Options{})
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(got, "bin", "hello"))
	assert.FileExists(t, filepath.Join(got, "var", "version"))
	r, err := b.Receipt("hello", "1.0")
	require.NoError(t, err)
	assert.True(t, r.PouredFromBottle)
	require.NoError(t, b.Test(context.Background(), &types.Formula{
		Name:   "hello",
		Source: f.Source,
		Test:   []types.TestStep{{Run: []string{"${bin}/hello"}, Expect: "brew"}},
	}, false))

	// Forcing a source build runs the broken install steps.
	require.NoError(t, b.Uninstall("hello"))
	_, err = b.Install(context.Background(), f, Options{BuildFromSource: true})
	assert.Error(t, err)
}

func TestInstallHead(t *testing.T) {
	b := testBuilder(t)
	f := helloFormula(t)

	_, err := b.Install(context.Background(), f, Options{Head: true})
	assert.Error(t, err)

	head := f.Source
	f.Head = &head
	keg, err := b.Install(context.Background(), f, Options{Head: true, KeepTmp: true})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(b.Cellar, "hello", "HEAD"), keg)
}

func TestInstallHeadTarballWithoutChecksum(t *testing.T) {
	b := testBuilder(t)
	f := helloFormula(t)
	f.Head = &types.Source{URL: f.URL}
	assert.Empty(t, formula.Validate(f, "hello"))

	keg, err := b.Install(context.Background(), f, Options{Head: true})
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(keg, "bin", "hello"))
	r, err := b.Receipt("hello", "HEAD")
	require.NoError(t, err)
	assert.True(t, r.Head)
}

func TestInstallAll(t *testing.T) {
	b := testBuilder(t)
	dir := t.TempDir()

	mk := func(name string) *types.Formula {
		return &types.Formula{
			Name:    name,
			Version: "1.0",
			Source:  sourceArchive(t, dir, name+".tar.gz", map[string]string{name + "/README": name}),
			Install: []types.Step{{Run: []string{"sh", "-c", "mkdir -p ${share} && cp README ${share}/"}}},
		}
	}
	formulae := map[string]*types.Formula{"a": mk("a"), "b": mk("b"), "c": mk("c")}
	lookup := func(name string) (*types.Formula, error) {
		f, ok := formulae[name]
		if !ok {
			return nil, formula.ErrNoSuchFormula
		}
		return f, nil
	}

	require.NoError(t, b.InstallAll(context.Background(), [][]string{{"a", "b"}, {"c"}}, lookup, 2, Options{}))
	for n := range formulae {
		installed, err := b.Installed(n)
		require.NoError(t, err)
		assert.Equal(t, []string{"1.0"}, installed)
	}

	err := b.InstallAll(context.Background(), [][]string{{"ghost"}}, lookup, 2, Options{})
	assert.ErrorIs(t, err, formula.ErrNoSuchFormula)
}

func TestExpand(t *testing.T) {
	v := kegVars("hello", "1.0", "/c/hello/1.0")
	v["resource.extra"] = "/b/.resources/extra"

	assert.Equal(t, "--prefix=/c/hello/1.0", v.expand("--prefix=${prefix}"))
	assert.Equal(t, "/c/hello/1.0/share/man", v.expand("${man}"))
	assert.Equal(t, "/b/.resources/extra/x", v.expand("${resource.extra}/x"))
	assert.Equal(t, "${HOME} $PREFIX", v.expand("${HOME} $PREFIX"))
}
