package scheduler

import (
	"github.com/the-maldridge/nbrew/pkg/types"
)

// Equal reports if two builds would produce the same bottle.
func (b *Build) Equal(c *Build) bool {
	return b.Platform == c.Platform &&
		b.Pkg == c.Pkg &&
		b.Rev == c.Rev
}

// ToMap flattens a build into the metadata handed to remote
// builders.
func (b *Build) ToMap() map[string]string {
	return map[string]string{
		"platform": b.Platform.Tag(),
		"formula":  b.Pkg,
		"revision": b.Rev,
	}
}

// BuildFromMap is the inverse of ToMap.
func BuildFromMap(m map[string]string) Build {
	return Build{
		Platform: types.PlatformFromTag(m["platform"]),
		Pkg:      m["formula"],
		Rev:      m["revision"],
	}
}
