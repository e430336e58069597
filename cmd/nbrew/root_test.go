package main

import (
	"archive/tar"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// archive writes a tar.gz holding one file under <name>-1.0/ and
// returns its url and checksum.
func archive(t *testing.T, dir, name, file, body string) (string, string) {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(zw)
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name:     name + "-1.0/" + file,
		Mode:     0644,
		Size:     int64(len(body)),
		Typeflag: tar.TypeReg,
	}))
	_, err := tw.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, zw.Close())

	p := filepath.Join(dir, name+"-1.0.tar.gz")
	require.NoError(t, os.WriteFile(p, buf.Bytes(), 0644))
	s := sha256.Sum256(buf.Bytes())
	return "file://" + filepath.ToSlash(p), hex.EncodeToString(s[:])
}

func writeTap(t *testing.T) string {
	t.Helper()
	tap := t.TempDir()
	src := t.TempDir()
	write := func(name, body string) {
		p := filepath.Join(tap, "Formula", name+".yml")
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0644))
	}

	u, sum := archive(t, src, "base", "README", "base\n")
	write("base", fmt.Sprintf(`desc: a library
homepage: https://example.org/base
url: %s
sha256: %s
install:
  - run: ["sh", "-c", "mkdir -p ${lib} && cp README ${lib}/README"]
`, u, sum))

	u, sum = archive(t, src, "greet", "greeting", "hi\n")
	write("greet", fmt.Sprintf(`desc: prints a greeting
homepage: https://example.org/greet
url: %s
sha256: %s
depends_on:
  - name: base
  - name: builder-tools
    type: build
install:
  - run: ["test", "-x", "${cellar}/builder-tools/1.0/bin/tool"]
  - run: ["sh", "-c", "mkdir -p ${bin} && cp greeting ${bin}/greeting"]
test:
  - run: ["cat", "${bin}/greeting"]
    expect: "^hi$"
service:
  run: ["${bin}/greeting"]
  keep_alive: true
`, u, sum))

	u, sum = archive(t, src, "builder-tools", "tool", "#!/bin/sh\n")
	write("builder-tools", fmt.Sprintf(`desc: build helpers
homepage: https://example.org/tools
url: %s
sha256: %s
uses_from_macos:
  - name: base
install:
  - run: ["sh", "-c", "mkdir -p ${bin} && cp tool ${bin}/tool && chmod +x ${bin}/tool"]
`, u, sum))
	require.NoError(t, os.WriteFile(filepath.Join(tap, "aliases"), []byte("hello greet\n"), 0644))
	return tap
}

func copyDir(src, dst string) error {
	return filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(src, p)
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, 0644)
	})
}

func setup(t *testing.T) string {
	dir := t.TempDir()
	t.Setenv("NBREW_CONFIG", "")
	t.Setenv("NBREW_CELLAR", filepath.Join(dir, "Cellar"))
	t.Setenv("NBREW_CACHE", filepath.Join(dir, "cache"))
	return writeTap(t)
}

func TestLint(t *testing.T) {
	tap := setup(t)
	out, err := execute(t, "--tap", tap, "lint")
	require.NoError(t, err)
	assert.Equal(t, "3 formulae ok\n", out)

	require.NoError(t, os.WriteFile(filepath.Join(tap, "Formula", "broken.yml"), []byte("desc: broken\n"), 0644))
	out, err = execute(t, "--tap", tap, "lint")
	assert.Error(t, err)
	assert.Contains(t, out, "broken: homepage is required")
	assert.Contains(t, out, "broken: url is required")

	_, err = execute(t, "--tap", tap, "lint", "missing")
	assert.Error(t, err)
}

func TestDepsAndOrder(t *testing.T) {
	tap := setup(t)

	out, err := execute(t, "--tap", tap, "--platform", "x86_64_linux", "deps", "hello")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"base", "builder-tools"}, strings.Fields(out))

	out, err = execute(t, "--tap", tap, "--platform", "x86_64_linux", "deps", "--kinds", "run", "greet")
	require.NoError(t, err)
	assert.Equal(t, "base\n", out)

	out, err = execute(t, "--tap", tap, "--platform", "x86_64_linux", "order", "greet")
	require.NoError(t, err)
	assert.Equal(t, "0: base\n1: builder-tools\n2: greet\n", out)

	// base comes with macOS, so builder-tools stands alone there.
	out, err = execute(t, "--tap", tap, "--platform", "arm64_sonoma", "order", "greet")
	require.NoError(t, err)
	assert.Equal(t, "0: base builder-tools\n1: greet\n", out)

	_, err = execute(t, "--tap", tap, "deps", "nothing")
	assert.Error(t, err)
}

func TestUsesAndLeaves(t *testing.T) {
	tap := setup(t)

	out, err := execute(t, "--tap", tap, "--platform", "x86_64_linux", "uses", "base")
	require.NoError(t, err)
	assert.Equal(t, "builder-tools\ngreet\n", out)

	// Nothing uses base from macOS itself.
	out, err = execute(t, "--tap", tap, "--platform", "arm64_sonoma", "uses", "base")
	require.NoError(t, err)
	assert.Equal(t, "greet\n", out)

	out, err = execute(t, "--tap", tap, "--platform", "x86_64_linux", "uses", "hello")
	require.NoError(t, err)
	assert.Empty(t, out)

	out, err = execute(t, "--tap", tap, "--platform", "x86_64_linux", "leaves")
	require.NoError(t, err)
	assert.Equal(t, "greet\n", out)

	_, err = execute(t, "--tap", tap, "uses", "nothing")
	assert.Error(t, err)
}

func TestInstallTestBottle(t *testing.T) {
	tap := setup(t)
	cellar := os.Getenv("NBREW_CELLAR")

	out, err := execute(t, "--tap", tap, "--platform", "x86_64_linux", "install", "hello")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cellar, "greet", "1.0")+"\n", out)
	assert.FileExists(t, filepath.Join(cellar, "base", "1.0", "lib", "README"))
	assert.FileExists(t, filepath.Join(cellar, "greet", "1.0", "bin", "greeting"))
	// greet has no bottle, so its build dependencies must be in
	// place before it is compiled.
	assert.FileExists(t, filepath.Join(cellar, "builder-tools", "1.0", "bin", "tool"))

	out, err = execute(t, "--tap", tap, "--platform", "x86_64_linux", "test", "greet")
	require.NoError(t, err)
	assert.Equal(t, "greet: ok\n", out)

	out, err = execute(t, "--tap", tap, "--platform", "x86_64_linux", "info", "hello")
	require.NoError(t, err)
	assert.Contains(t, out, "greet: 1.0\n")
	assert.Contains(t, out, "Depends (run): base\n")
	assert.Contains(t, out, "Bottle: none\n")
	assert.Contains(t, out, "built from source")

	outDir := t.TempDir()
	out, err = execute(t, "--tap", tap, "--platform", "x86_64_linux", "bottle", "-o", outDir, "greet")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(outDir, "greet--1.0.x86_64_linux.bottle.tar.gz"))
	assert.Contains(t, out, "x86_64_linux: ")

	// A HEAD keg next to the release is never the one bottled.
	require.NoError(t, os.Rename(filepath.Join(outDir, "greet--1.0.x86_64_linux.bottle.tar.gz"), filepath.Join(outDir, "first.tar.gz")))
	require.NoError(t, copyDir(filepath.Join(cellar, "greet", "1.0"), filepath.Join(cellar, "greet", "HEAD")))
	_, err = execute(t, "--tap", tap, "--platform", "x86_64_linux", "bottle", "-o", outDir, "greet")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(outDir, "greet--1.0.x86_64_linux.bottle.tar.gz"))
	assert.NoFileExists(t, filepath.Join(outDir, "greet--HEAD.x86_64_linux.bottle.tar.gz"))

	_, err = execute(t, "--tap", tap, "bottle", "-o", outDir, "base-missing")
	assert.Error(t, err)
}

func TestService(t *testing.T) {
	tap := setup(t)
	cellar := os.Getenv("NBREW_CELLAR")

	out, err := execute(t, "--tap", tap, "--platform", "x86_64_linux", "service", "greet")
	require.NoError(t, err)
	assert.Contains(t, out, "ExecStart="+filepath.Join(cellar, "greet", "1.0", "bin", "greeting"))

	out, err = execute(t, "--tap", tap, "--platform", "arm64_sonoma", "service", "greet")
	require.NoError(t, err)
	assert.Contains(t, out, "<string>nbrew.mxcl.greet</string>")

	_, err = execute(t, "--tap", tap, "service", "base")
	assert.Error(t, err)
}

func TestFetch(t *testing.T) {
	tap := setup(t)
	out, err := execute(t, "--tap", tap, "fetch", "base", "greet")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "base\t"))
	assert.True(t, strings.HasSuffix(lines[1], "--greet-1.0.tar.gz"))
}
