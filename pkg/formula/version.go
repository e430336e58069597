package formula

import (
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/blang/semver/v4"
	"github.com/pkg/errors"

	"github.com/the-maldridge/nbrew/pkg/types"
)

var (
	archiveExtRe = regexp.MustCompile(`(\.tar)?\.(gz|tgz|bz2|tbz|xz|txz|zst|zip|7z)$|\.tar$`)
	versionRe    = regexp.MustCompile(`(?:^|[-_.])v?(\d+(?:\.\d+)*(?:[-._]?(?:alpha|beta|rc|pre|p)\d*)?[a-z]?)$`)
)

// Version returns the version of a formula.  An explicit version
// wins, then one parsed out of the URL, then the git tag.
func Version(f *types.Formula) (string, error) {
	if f.Version != "" {
		return f.Version, nil
	}
	if v := VersionFromURL(f.URL); v != "" {
		return v, nil
	}
	if f.Git != nil && f.Git.Tag != "" {
		return strings.TrimPrefix(f.Git.Tag, "v"), nil
	}
	return "", errors.Errorf("unable to determine version of %s", f.Name)
}

// PkgVer is the version plus the formula revision, which is what
// identifies a keg and a bottle.
func PkgVer(f *types.Formula) (string, error) {
	v, err := Version(f)
	if err != nil {
		return "", err
	}
	if f.Revision > 0 {
		v += "_" + strconv.Itoa(f.Revision)
	}
	return v, nil
}

// VersionFromURL tries to find the version embedded in the file name
// of an archive URL.
func VersionFromURL(u string) string {
	if u == "" {
		return ""
	}
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	base := archiveExtRe.ReplaceAllString(path.Base(u), "")
	m := versionRe.FindStringSubmatch(base)
	if m == nil {
		return ""
	}
	return m[1]
}

// CompareVersions orders two versions or pkgvers.  Versions that
// semver can make sense of are compared as such, anything else falls
// back to a plain string comparison.  Revisions break ties.
func CompareVersions(a, b string) int {
	av, arev := splitRevision(a)
	bv, brev := splitRevision(b)

	c := 0
	as, aerr := semver.ParseTolerant(av)
	bs, berr := semver.ParseTolerant(bv)
	if aerr == nil && berr == nil {
		c = as.Compare(bs)
	} else {
		c = strings.Compare(av, bv)
	}
	if c != 0 {
		return c
	}
	switch {
	case arev < brev:
		return -1
	case arev > brev:
		return 1
	}
	return 0
}

func splitRevision(v string) (string, int) {
	i := strings.LastIndex(v, "_")
	if i < 0 {
		return v, 0
	}
	rev, err := strconv.Atoi(v[i+1:])
	if err != nil {
		return v, 0
	}
	return v[:i], rev
}
