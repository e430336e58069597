// Package formula loads formulae out of a tap on disk and answers
// questions about them that do not need the rest of the graph.
package formula

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/the-maldridge/nbrew/pkg/types"
)

var (
	sha256Re = regexp.MustCompile(`^[0-9a-f]{64}$`)
	nameRe   = regexp.MustCompile(`^[a-z0-9][a-z0-9+_.@-]*$`)

	depKinds = map[string]struct{}{
		types.DepBuild:       {},
		types.DepRun:         {},
		types.DepTest:        {},
		types.DepOptional:    {},
		types.DepRecommended: {},
	}
)

// Load reads a single formula from disk.  Unknown keys are an error
// so that typos in a formula don't silently drop a stanza.  If the
// formula does not name itself the file stem is used.
func Load(path string) (*types.Formula, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "couldn't read formula %s", path)
	}
	f, err := Parse(b)
	if err != nil {
		return nil, errors.Wrapf(err, "couldn't parse formula %s", path)
	}
	if f.Name == "" {
		f.Name = Stem(path)
	}
	return f, nil
}

// Parse decodes a formula from its YAML representation.
func Parse(b []byte) (*types.Formula, error) {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	f := new(types.Formula)
	if err := dec.Decode(f); err != nil {
		return nil, err
	}
	return f, nil
}

// Stem returns the formula name implied by a file path.
func Stem(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

// Validate checks a formula for everything that can be known
// without fetching anything.  All problems are returned rather than
// just the first one.
func Validate(f *types.Formula, stem string) []error {
	var errs []error
	fail := func(format string, args ...interface{}) {
		errs = append(errs, errors.Errorf(format, args...))
	}

	if !nameRe.MatchString(f.Name) {
		fail("invalid name %q", f.Name)
	}
	if stem != "" && f.Name != stem {
		fail("name %q does not match file name %q", f.Name, stem)
	}
	if f.Desc == "" {
		fail("desc is required")
	}
	if f.Homepage == "" {
		fail("homepage is required")
	}

	switch {
	case f.Source.IsGit():
		if f.Git.URL == "" {
			fail("git source needs a url")
		}
		if f.Git.Revision == "" && f.Git.Tag == "" {
			fail("stable git source must be pinned to a tag or revision")
		}
	case f.URL == "":
		fail("url is required")
	default:
		if !sha256Re.MatchString(f.SHA256) {
			fail("sha256 %q is not a sha256 checksum", f.SHA256)
		}
	}

	// Head archives may go unpinned, they are fetched unverified.
	if f.Head != nil && f.Head.URL == "" && !f.Head.IsGit() {
		fail("head needs a url or git source")
	}
	if f.Head != nil && f.Head.SHA256 != "" && !sha256Re.MatchString(f.Head.SHA256) {
		fail("head sha256 %q is not a sha256 checksum", f.Head.SHA256)
	}

	seen := make(map[string]struct{})
	for _, deps := range [][]types.Dependency{f.DependsOn, f.UsesFromMacOS} {
		for _, d := range deps {
			if d.Name == f.Name {
				fail("formula depends on itself")
			}
			if _, ok := depKinds[d.Kind()]; !ok {
				fail("dependency %s has unknown type %q", d.Name, d.Type)
			}
			if _, dup := seen[d.Name]; dup {
				fail("duplicate dependency %s", d.Name)
			}
			seen[d.Name] = struct{}{}
		}
	}

	rseen := make(map[string]struct{})
	for _, r := range f.Resources {
		if r.Name == "" {
			fail("resource without a name")
			continue
		}
		if _, dup := rseen[r.Name]; dup {
			fail("duplicate resource %s", r.Name)
		}
		rseen[r.Name] = struct{}{}
		if !r.IsGit() && !sha256Re.MatchString(r.SHA256) {
			fail("resource %s has invalid sha256 %q", r.Name, r.SHA256)
		}
	}

	if f.Bottle != nil {
		for tag, sum := range f.Bottle.Files {
			if !sha256Re.MatchString(sum) {
				fail("bottle %s has invalid sha256 %q", tag, sum)
			}
		}
	}

	for i, s := range f.Install {
		if len(s.Run) == 0 {
			fail("install step %d has nothing to run", i)
		}
	}
	for i, s := range f.Test {
		if len(s.Run) == 0 {
			fail("test step %d has nothing to run", i)
		}
		if s.Expect != "" {
			if _, err := regexp.Compile(s.Expect); err != nil {
				fail("test step %d: bad expect: %v", i, err)
			}
		}
	}
	if f.Service != nil && len(f.Service.Run) == 0 {
		fail("service has nothing to run")
	}

	if f.Deprecated != nil && f.Deprecated.Because == "" {
		fail("deprecated needs a reason")
	}
	if f.Disabled != nil && f.Disabled.Because == "" {
		fail("disabled needs a reason")
	}

	if _, err := Version(f); err != nil {
		errs = append(errs, err)
	}
	return errs
}
