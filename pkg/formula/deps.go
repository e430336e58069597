package formula

import (
	"github.com/pkg/errors"

	"github.com/the-maldridge/nbrew/pkg/types"
)

// Dependencies returns the edges of a formula that apply on the
// given platform, restricted to the requested kinds.  No kinds means
// every kind.  Dependencies that macOS already ships are dropped
// when the platform is macOS.
func Dependencies(f *types.Formula, p types.Platform, kinds ...string) []types.Dependency {
	want := make(map[string]struct{}, len(kinds))
	for _, k := range kinds {
		want[k] = struct{}{}
	}

	var out []types.Dependency
	add := func(d types.Dependency) {
		if len(want) > 0 {
			if _, ok := want[d.Kind()]; !ok {
				return
			}
		}
		if !AppliesOn(d.On, p) {
			return
		}
		if d.Arch != "" && d.Arch != p.Arch {
			return
		}
		out = append(out, d)
	}

	for _, d := range f.DependsOn {
		add(d)
	}
	if !p.IsMacOS() {
		for _, d := range f.UsesFromMacOS {
			add(d)
		}
	}
	return out
}

// AppliesOn decides if something restricted by an "on" list applies
// to a platform.  An empty list applies everywhere.
func AppliesOn(on []string, p types.Platform) bool {
	if len(on) == 0 {
		return true
	}
	for _, o := range on {
		switch {
		case o == "macos" && p.IsMacOS():
			return true
		case o == "linux" && !p.IsMacOS():
			return true
		case o == p.OS:
			return true
		}
	}
	return false
}

// ErrDisabled is returned when something tries to install a
// disabled formula.
type ErrDisabled struct {
	Formula string
	Because string
}

func (e *ErrDisabled) Error() string {
	return e.Formula + " has been disabled because it " + e.Because
}

// Check short-circuits formulae that may no longer be installed.
func Check(f *types.Formula) error {
	if f.Disabled != nil {
		return errors.WithStack(&ErrDisabled{Formula: f.Name, Because: f.Disabled.Because})
	}
	return nil
}

// Deprecation returns the warning for a deprecated formula.
func Deprecation(f *types.Formula) (string, bool) {
	if f.Deprecated == nil {
		return "", false
	}
	return f.Name + " has been deprecated because it " + f.Deprecated.Because, true
}
