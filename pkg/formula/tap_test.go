package formula

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/the-maldridge/nbrew/pkg/types"
)

func TestTapNames(t *testing.T) {
	tap := NewTap(filepath.Join("testdata", "tap"))
	names, err := tap.Names()
	require.NoError(t, err)
	assert.Len(t, names, 4)
	assert.Equal(t, "Formula/z/zlib.yml", names["zlib"])
}

func TestTapLoad(t *testing.T) {
	tap := NewTap(filepath.Join("testdata", "tap"))

	f, err := tap.Load("zlib")
	require.NoError(t, err)
	assert.Equal(t, "zlib", f.Name)
	assert.Equal(t, "provided by macOS", f.KegOnly)

	_, err = tap.Load("nonexistent")
	assert.ErrorIs(t, err, ErrNoSuchFormula)
	assert.False(t, tap.Exists("nonexistent"))
	assert.True(t, tap.Exists("gettext"))
}

func TestTapAliases(t *testing.T) {
	aliases, err := NewTap(filepath.Join("testdata", "tap")).Aliases()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"libintl": "gettext", "pkg-config": "pkgconf"}, aliases)

	aliases, err = NewTap(t.TempDir()).Aliases()
	require.NoError(t, err)
	assert.Empty(t, aliases)
}

func TestNameFromPath(t *testing.T) {
	assert.Equal(t, "zlib", NameFromPath("Formula/z/zlib.yml"))
	assert.Equal(t, "hello", NameFromPath("Formula/hello.yml"))
	assert.Equal(t, "", NameFromPath("README.md"))
	assert.Equal(t, "", NameFromPath("Formula/notes.txt"))
}

func TestDependencies(t *testing.T) {
	f, err := NewTap(filepath.Join("testdata", "tap")).Load("hello")
	require.NoError(t, err)

	linux := types.Platform{Arch: "x86_64", OS: "linux"}
	mac := types.Platform{Arch: "arm64", OS: "sonoma"}

	names := func(ds []types.Dependency) []string {
		var out []string
		for _, d := range ds {
			out = append(out, d.Name)
		}
		return out
	}

	assert.Equal(t, []string{"gettext", "pkgconf", "zlib"}, names(Dependencies(f, linux)))
	assert.Equal(t, []string{"gettext", "pkgconf"}, names(Dependencies(f, mac)))
	assert.Equal(t, []string{"pkgconf"}, names(Dependencies(f, mac, types.DepBuild)))
	assert.Equal(t, []string{"gettext", "zlib"}, names(Dependencies(f, linux, types.DepRun)))
}

func TestAppliesOn(t *testing.T) {
	linux := types.Platform{Arch: "x86_64", OS: "linux"}
	mac := types.Platform{Arch: "arm64", OS: "sonoma"}

	assert.True(t, AppliesOn(nil, linux))
	assert.True(t, AppliesOn([]string{"linux"}, linux))
	assert.False(t, AppliesOn([]string{"linux"}, mac))
	assert.True(t, AppliesOn([]string{"macos"}, mac))
	assert.True(t, AppliesOn([]string{"ventura", "sonoma"}, mac))
	assert.False(t, AppliesOn([]string{"ventura"}, mac))
}

func TestLifecycle(t *testing.T) {
	f := &types.Formula{Name: "old"}
	assert.NoError(t, Check(f))
	_, ok := Deprecation(f)
	assert.False(t, ok)

	f.Deprecated = &types.Lifecycle{Because: "is not maintained upstream"}
	msg, ok := Deprecation(f)
	assert.True(t, ok)
	assert.Equal(t, "old has been deprecated because it is not maintained upstream", msg)

	f.Disabled = &types.Lifecycle{Because: "does not build"}
	err := Check(f)
	var disabled *ErrDisabled
	require.ErrorAs(t, err, &disabled)
	assert.Equal(t, "old", disabled.Formula)
}
