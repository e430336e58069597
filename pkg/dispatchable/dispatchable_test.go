package dispatchable

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/the-maldridge/nbrew/pkg/types"
)

func set(names ...string) map[string]struct{} {
	s := make(map[string]struct{}, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

func TestImmediatelyDispatchable(t *testing.T) {
	linux := types.Platform{Arch: "x86_64", OS: "linux"}
	atom := types.NewAtom(linux)
	atom.Pkgs["zlib"] = &types.Package{Name: "zlib"}
	atom.Pkgs["gettext"] = &types.Package{Name: "gettext", Dirty: true}
	atom.Pkgs["pkgconf"] = &types.Package{Name: "pkgconf", Dirty: true, Failed: true}
	atom.Pkgs["hello"] = &types.Package{Name: "hello", Dirty: true, Depends: set("gettext", "zlib")}
	atom.Pkgs["curl"] = &types.Package{Name: "curl", Dirty: true, Depends: set("zlib")}
	atom.Pkgs["legacy"] = &types.Package{Name: "legacy", Dirty: true, Disabled: true}
	atom.Pkgs["orphan"] = &types.Package{Name: "orphan", Dirty: true, BuildDepends: set("ghost")}

	df := New(WithAtoms([]types.Atom{atom}))
	out := df.ImmediatelyDispatchable()

	var names []string
	for _, p := range out[linux] {
		names = append(names, p.Name)
	}
	assert.ElementsMatch(t, []string{"gettext", "curl"}, names)
}
