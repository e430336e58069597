package fetch

import (
	"context"
	"os"
	"path/filepath"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/pkg/errors"

	"github.com/the-maldridge/nbrew/pkg/types"
)

// fetchGit clones or updates <cache>/git/<name> and checks out the
// requested point in history.
func (f *Fetcher) fetchGit(ctx context.Context, name string, ref *types.GitRef) (string, error) {
	dst := filepath.Join(f.Cache, "git", name)
	defer f.lock(dst)()

	repo, err := git.PlainOpen(dst)
	switch {
	case err == git.ErrRepositoryNotExists:
		f.l.Info("Cloning", "formula", name, "url", ref.URL)
		if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			return "", err
		}
		repo, err = git.PlainCloneContext(ctx, dst, false, &git.CloneOptions{URL: ref.URL, Tags: git.AllTags})
		if err != nil {
			os.RemoveAll(dst)
			return "", errors.Wrapf(err, "cloning %s", ref.URL)
		}
	case err != nil:
		return "", err
	default:
		f.l.Debug("Updating clone", "formula", name)
		err = repo.FetchContext(ctx, &git.FetchOptions{RemoteName: "origin", Tags: git.AllTags})
		if err != nil && err != git.NoErrAlreadyUpToDate {
			return "", errors.Wrapf(err, "fetching %s", ref.URL)
		}
	}

	hash, err := resolve(repo, ref)
	if err != nil {
		return "", err
	}
	wt, err := repo.Worktree()
	if err != nil {
		return "", err
	}
	if err := wt.Checkout(&git.CheckoutOptions{Hash: hash, Force: true}); err != nil {
		return "", errors.Wrapf(err, "checking out %s", hash)
	}
	f.l.Debug("Checked out", "formula", name, "commit", hash.String())
	return dst, nil
}

// resolve picks the commit a GitRef names.  Revision wins over tag
// which wins over branch, and nothing means the remote HEAD.
func resolve(repo *git.Repository, ref *types.GitRef) (plumbing.Hash, error) {
	var rev string
	switch {
	case ref.Revision != "":
		rev = ref.Revision
	case ref.Tag != "":
		rev = "refs/tags/" + ref.Tag
	case ref.Branch != "":
		rev = "refs/remotes/origin/" + ref.Branch
	default:
		return remoteHead(repo)
	}
	h, err := repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return plumbing.ZeroHash, errors.Wrapf(err, "resolving %s", rev)
	}
	return *h, nil
}

// remoteHead finds what HEAD points at on origin, the local HEAD may
// be detached from an earlier checkout.
func remoteHead(repo *git.Repository) (plumbing.Hash, error) {
	remote, err := repo.Remote("origin")
	if err != nil {
		return plumbing.ZeroHash, err
	}
	refs, err := remote.List(&git.ListOptions{})
	if err != nil {
		return plumbing.ZeroHash, errors.Wrap(err, "listing origin")
	}
	for _, r := range refs {
		if r.Name() != plumbing.HEAD {
			continue
		}
		if r.Type() == plumbing.HashReference {
			return r.Hash(), nil
		}
		h, err := repo.ResolveRevision(plumbing.Revision("refs/remotes/origin/" + r.Target().Short()))
		if err != nil {
			return plumbing.ZeroHash, err
		}
		return *h, nil
	}
	return plumbing.ZeroHash, errors.New("origin has no HEAD")
}
