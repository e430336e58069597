package source

import (
	"os"
	"strconv"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

// Static is a checkout manager for a tap that is a plain directory.
// There is no history, so every process start is its own revision
// and changes arrive through a Watcher instead.
type Static struct {
	l    hclog.Logger
	path string
	rev  string
}

// NewStatic returns a checkout manager for an unversioned tap.
func NewStatic(l hclog.Logger) *Static {
	return &Static{l: l.Named("static")}
}

// SetBasepath sets the directory the tap lives in.
func (s *Static) SetBasepath(p string) {
	s.path = p
}

// Bootstrap checks that the tap exists.
func (s *Static) Bootstrap() error {
	st, err := os.Stat(s.path)
	if err != nil {
		return err
	}
	if !st.IsDir() {
		return errors.Errorf("%s is not a directory", s.path)
	}
	s.rev = "local-" + strconv.FormatInt(time.Now().UnixNano(), 36)
	s.l.Info("Using local tap", "path", s.path, "rev", s.rev)
	return nil
}

// At returns the synthetic revision assigned at Bootstrap.
func (s *Static) At() (string, error) {
	if s.rev == "" {
		return "", errors.New("tap is not bootstrapped")
	}
	return s.rev, nil
}

// Checkout only accepts the current revision.
func (s *Static) Checkout(commit string) ([]string, error) {
	if commit != s.rev {
		return nil, errors.Errorf("local tap cannot move to %s", commit)
	}
	return nil, nil
}

// Fetch is a no-op.
func (s *Static) Fetch() error {
	return nil
}
