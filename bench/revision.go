package bench

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	git "gopkg.in/src-d/go-git.v4"
	"gopkg.in/src-d/go-git.v4/plumbing"
	"k8s.io/klog/v2"
)

// ErrRepoNotFound reports an invalid or missing target repository.
var ErrRepoNotFound = errors.New("target repository not found")

// ErrNoRevisions reports an empty revision list.
var ErrNoRevisions = errors.New("at least one revision is required")

// UnresolvableRevisionError reports a revision name that exists neither
// locally nor on the remote.
type UnresolvableRevisionError struct {
	Name string
}

func (e *UnresolvableRevisionError) Error() string {
	return fmt.Sprintf("unable to resolve revision '%s'", e.Name)
}

// Revision is one immutable snapshot of the target repository, materialized
// as its own checkout so that builds of different revisions never share a
// worktree.
type Revision struct {
	// Name is the revision as the user supplied it, kept for display.
	Name string
	// ID is the resolved commit hash.
	ID string
	// Dir is the materialized checkout.
	Dir string
}

// ResolveRevisions turns user-supplied revision names into an ordered list of
// materialized revisions. Input order is preserved; names resolving to the
// same commit are deduplicated, keeping the first-seen display name. A name
// missing locally triggers a fetch of the origin remote before failing.
// Checkouts are cloned under workDir, one directory per distinct commit.
func ResolveRevisions(ctx context.Context, repoDir string, names []string, workDir string) ([]Revision, error) {
	if len(names) == 0 {
		return nil, ErrNoRevisions
	}

	repo, err := git.PlainOpen(repoDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRepoNotFound, repoDir, err)
	}

	fetched := false
	seen := make(map[string]bool)
	var revisions []Revision
	for _, name := range names {
		hash, err := repo.ResolveRevision(plumbing.Revision(name))
		if err != nil && !fetched {
			// The name may only exist on the remote.
			fetched = true
			if ferr := repo.FetchContext(ctx, &git.FetchOptions{RemoteName: "origin"}); ferr != nil && ferr != git.NoErrAlreadyUpToDate {
				klog.Warningf("fetch of origin failed: %v", ferr)
			}
			hash, err = repo.ResolveRevision(plumbing.Revision(name))
		}
		if err != nil {
			return nil, &UnresolvableRevisionError{Name: name}
		}

		id := hash.String()
		if seen[id] {
			klog.Infof("revision '%s' resolves to already-seen commit %s, skipping", name, id)
			continue
		}
		seen[id] = true

		dir, err := checkout(ctx, repoDir, *hash, filepath.Join(workDir, "src-"+id[:12]))
		if err != nil {
			return nil, fmt.Errorf("unable to check out revision '%s': %w", name, err)
		}
		klog.Infof("resolved revision '%s' to %s", name, id)

		revisions = append(revisions, Revision{Name: name, ID: id, Dir: dir})
	}
	return revisions, nil
}

// checkout clones the target repository into dir and checks out the given
// commit.
func checkout(ctx context.Context, repoDir string, hash plumbing.Hash, dir string) (string, error) {
	clone, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:        repoDir,
		NoCheckout: true,
	})
	if err != nil {
		return "", fmt.Errorf("unable to clone the target repository: %w", err)
	}
	w, err := clone.Worktree()
	if err != nil {
		return "", fmt.Errorf("unable to get a worktree based on the given fs: %w", err)
	}
	if err := w.Checkout(&git.CheckoutOptions{Hash: hash}); err != nil {
		return "", fmt.Errorf("unable to check out %s: %w", hash, err)
	}
	return dir, nil
}
