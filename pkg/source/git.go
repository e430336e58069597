package source

import (
	"os"
	"path/filepath"
	"strconv"
	"sync"

	git "github.com/go-git/go-git/v5"
	gitPlumbing "github.com/go-git/go-git/v5/plumbing"
	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

// New creates a new instance of RepoMngr
func New(l hclog.Logger) *RepoMngr {
	x := RepoMngr{
		l:  l.Named("git"),
		Mu: new(sync.Mutex),
	}
	return &x
}

// SetBasepath sets where the checkout lives on disk.
func (r *RepoMngr) SetBasepath(p string) {
	r.Path = p
}

// SetURL sets the remote the checkout is cloned from.
func (r *RepoMngr) SetURL(u string) {
	r.URL = u
}

// Bootstrap opens the repository at Path, cloning it from URL first
// if there is nothing there yet.
func (r *RepoMngr) Bootstrap() error {
	if r.Path == "" {
		return errors.New("path must be set to bootstrap")
	}
	r.Mu.Lock()
	defer r.Mu.Unlock()

	var err error
	if _, serr := os.Stat(filepath.Join(r.Path, ".git")); serr == nil {
		r.l.Debug("Opening existing repository", "path", r.Path)
		r.repo, err = git.PlainOpen(r.Path)
		return errors.Wrap(err, "opening checkout")
	}

	if r.URL == "" {
		return errors.New("url must be set to clone")
	}
	r.l.Info("Cloning repository", "path", r.Path, "url", r.URL)
	// Full history is needed to diff between arbitrary revisions.
	r.repo, err = git.PlainClone(r.Path, false, &git.CloneOptions{URL: r.URL})
	return errors.Wrap(err, "cloning tap")
}

// At returns the current HEAD hash
func (r *RepoMngr) At() (string, error) {
	if r.repo == nil {
		return "", errors.New("repo must be bootstrapped")
	}
	head, err := r.repo.Head()
	if err != nil {
		r.l.Trace("Error getting HEAD")
		return "", err
	}
	return head.Hash().String(), nil
}

// Checkout moves the worktree to a particular revision and returns
// the paths that differ between the old and new revision.
func (r *RepoMngr) Checkout(commit string) ([]string, error) {
	if r.repo == nil {
		return nil, errors.New("repo must be bootstrapped to checkout")
	}
	r.Mu.Lock()
	defer r.Mu.Unlock()

	oldHead, err := r.repo.Head()
	if err != nil {
		return nil, errors.Wrap(err, "reading HEAD")
	}
	oldCommit, err := r.repo.CommitObject(oldHead.Hash())
	if err != nil {
		return nil, err
	}

	newHash, err := r.repo.ResolveRevision(gitPlumbing.Revision(commit))
	if err != nil {
		return nil, errors.Wrapf(err, "resolving %s", commit)
	}
	r.l.Debug("Attempting to checkout in git repository", "path", r.Path,
		"old", oldHead.Hash().String(), "new", newHash.String())

	if oldHead.Hash() == *newHash {
		r.l.Trace("Nothing changed in checkout")
		return []string{}, nil
	}

	worktree, err := r.repo.Worktree()
	if err != nil {
		return nil, err
	}
	if err := worktree.Checkout(&git.CheckoutOptions{Hash: *newHash, Force: true}); err != nil {
		return nil, errors.Wrap(err, "checking out")
	}

	newCommit, err := r.repo.CommitObject(*newHash)
	if err != nil {
		return nil, err
	}
	diff, err := oldCommit.Patch(newCommit)
	if err != nil {
		return nil, errors.Wrap(err, "diffing revisions")
	}
	stats := diff.Stats()
	r.l.Debug("Files were changed in checkout", "count", strconv.Itoa(len(stats)))
	changed := make([]string, len(stats))
	for i := range stats {
		r.l.Trace("File was changed in checkout", "path", stats[i].Name)
		changed[i] = stats[i].Name
	}
	return changed, nil
}

// Fetch origin.  Having nothing new to fetch is not an error.
func (r *RepoMngr) Fetch() error {
	if r.repo == nil {
		return errors.New("repo must be bootstrapped to fetch")
	}
	r.Mu.Lock()
	defer r.Mu.Unlock()
	r.l.Debug("Fetching origin for git repository", "path", r.Path)
	err := r.repo.Fetch(&git.FetchOptions{RemoteName: "origin"})
	if err == git.NoErrAlreadyUpToDate {
		return nil
	}
	return err
}
