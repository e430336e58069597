package dispatchable

import (
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/the-maldridge/nbrew/pkg/types"
)

// New returns a DispatchFinder configured by the given options.
func New(opts ...Option) *DispatchFinder {
	x := DispatchFinder{
		l:      hclog.NewNullLogger(),
		atoms:  make(map[types.Platform]types.Atom),
		AtomMu: new(sync.Mutex),
	}
	for _, o := range opts {
		o(&x)
	}
	return &x
}

// IsDispatchable determines whether a specific package could be
// dispatched right now: every build and run dependency must exist
// and be clean.
func (d *DispatchFinder) IsDispatchable(p types.Platform, pkg *types.Package) bool {
	atom := d.atoms[p]
	for _, deps := range []map[string]struct{}{pkg.BuildDepends, pkg.Depends} {
		for dep := range deps {
			dp, ok := atom.Pkgs[dep]
			if !ok {
				d.l.Warn("Dependency cannot be found in atom", "dep", dep, "pkg", pkg.Name, "platform", p)
				return false
			}
			if dp.Dirty {
				return false
			}
		}
	}
	// If we get this far, all build and run deps are clean.
	return true
}

// ImmediatelyDispatchable returns a map of platforms -> packages that
// can be hypothetically dispatched right now.  Failed and disabled
// packages are never dispatchable.
// *Assumes graph is freshly Cleaned*. If not, will return packages
// that may have been made clean without graph knowing.
func (d *DispatchFinder) ImmediatelyDispatchable() map[types.Platform][]*types.Package {
	dispatchable := make(map[types.Platform][]*types.Package)
	d.AtomMu.Lock()
	defer d.AtomMu.Unlock()
	for p, atom := range d.atoms {
		dispatchable[p] = make([]*types.Package, 0)
		for _, pkg := range atom.Pkgs {
			if !pkg.Dirty || pkg.Failed || pkg.Disabled {
				continue
			}
			if d.IsDispatchable(p, pkg) {
				dispatchable[p] = append(dispatchable[p], pkg)
			}
		}
	}
	return dispatchable
}
