package builder

import (
	"path/filepath"
	"regexp"
)

var varRe = regexp.MustCompile(`\$\{([A-Za-z0-9_.+-]+)\}`)

// vars are the substitutions available to steps.  Unknown variables
// are left alone so that shell snippets keep their own.
type vars map[string]string

func kegVars(name, version, keg string) vars {
	return vars{
		"name":    name,
		"version": version,
		"prefix":  keg,
		"bin":     filepath.Join(keg, "bin"),
		"sbin":    filepath.Join(keg, "sbin"),
		"lib":     filepath.Join(keg, "lib"),
		"include": filepath.Join(keg, "include"),
		"share":   filepath.Join(keg, "share"),
		"etc":     filepath.Join(keg, "etc"),
		"man":     filepath.Join(keg, "share", "man"),
		"var":     filepath.Join(keg, "var"),
	}
}

func (v vars) expand(s string) string {
	return varRe.ReplaceAllStringFunc(s, func(m string) string {
		if r, ok := v[varRe.FindStringSubmatch(m)[1]]; ok {
			return r
		}
		return m
	})
}

func (v vars) expandAll(in []string) []string {
	out := make([]string, len(in))
	for i := range in {
		out[i] = v.expand(in[i])
	}
	return out
}
