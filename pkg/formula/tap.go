package formula

import (
	"bufio"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"

	"github.com/the-maldridge/nbrew/pkg/types"
)

// ErrNoSuchFormula is returned when a tap has no formula by the
// requested name.
var ErrNoSuchFormula = errors.New("no such formula")

const (
	formulaDir  = "Formula"
	formulaGlob = formulaDir + "/**/*.yml"
	aliasFile   = "aliases"
)

// A Tap is a directory tree of formulae, usually a git checkout.
type Tap struct {
	Path string
}

// NewTap returns a tap rooted at the given path.
func NewTap(p string) *Tap {
	return &Tap{Path: p}
}

// Paths lists every formula file in the tap, relative to its root.
func (t *Tap) Paths() ([]string, error) {
	matches, err := doublestar.Glob(os.DirFS(t.Path), formulaGlob)
	if err != nil {
		return nil, errors.Wrapf(err, "couldn't search for formulae in %s", t.Path)
	}
	return matches, nil
}

// Names returns a map of formula name to relative path.
func (t *Tap) Names() (map[string]string, error) {
	paths, err := t.Paths()
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(paths))
	for _, p := range paths {
		names[Stem(p)] = p
	}
	return names, nil
}

// Load reads the named formula.
func (t *Tap) Load(name string) (*types.Formula, error) {
	p, err := t.find(name)
	if err != nil {
		return nil, err
	}
	return Load(filepath.Join(t.Path, filepath.FromSlash(p)))
}

// Exists reports if the named formula is present.
func (t *Tap) Exists(name string) bool {
	_, err := t.find(name)
	return err == nil
}

func (t *Tap) find(name string) (string, error) {
	if name == "" {
		return "", ErrNoSuchFormula
	}
	// Sharded layouts put formulae in Formula/<first letter>/.
	for _, p := range []string{
		path.Join(formulaDir, name+".yml"),
		path.Join(formulaDir, name[:1], name+".yml"),
	} {
		if _, err := os.Stat(filepath.Join(t.Path, filepath.FromSlash(p))); err == nil {
			return p, nil
		}
	}
	matches, err := doublestar.Glob(os.DirFS(t.Path), formulaDir+"/**/"+name+".yml")
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", errors.Wrap(ErrNoSuchFormula, name)
	}
	return matches[0], nil
}

// Aliases reads the alias table of the tap.  Each non comment line
// is "alias target".  A tap without an alias file has no aliases.
func (t *Tap) Aliases() (map[string]string, error) {
	aliases := make(map[string]string)
	f, err := os.Open(filepath.Join(t.Path, aliasFile))
	if os.IsNotExist(err) {
		return aliases, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		l := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(l, "#") || l == "" {
			continue
		}
		flds := strings.Fields(l)
		if len(flds) != 2 {
			return nil, errors.Errorf("malformed alias line %q", l)
		}
		aliases[flds[0]] = flds[1]
	}
	return aliases, scanner.Err()
}

// NameFromPath maps a path that changed in the tap to the formula it
// belongs to.  Paths that are not formulae return an empty string.
func NameFromPath(p string) string {
	p = filepath.ToSlash(p)
	if !strings.HasPrefix(p, formulaDir+"/") || path.Ext(p) != ".yml" {
		return ""
	}
	return Stem(p)
}
