package image

import (
	"context"
	"fmt"
	"os"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// =============================================================================
// Git Clone
// =============================================================================

// cloneRepo shallow-clones a repository into a fresh temporary directory and
// returns the directory path and the checked-out commit hash. The caller owns
// the directory and must remove it.
func (p *Provider) cloneRepo(ctx context.Context, repoURL, branch string) (string, string, error) {
	dir, err := os.MkdirTemp(p.workDir, "build-*")
	if err != nil {
		return "", "", NewAcquireError("cloneRepo", repoURL, fmt.Sprintf("failed to create build directory: %v", err), "", ErrCloneFailed)
	}

	opts := &git.CloneOptions{
		URL:          repoURL,
		Depth:        1,
		SingleBranch: true,
	}
	if branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(branch)
	}

	repo, err := git.PlainCloneContext(ctx, dir, false, opts)
	if err != nil {
		os.RemoveAll(dir)
		return "", "", NewAcquireError("cloneRepo", repoURL, err.Error(), "", ErrCloneFailed)
	}

	head, err := repo.Head()
	if err != nil {
		os.RemoveAll(dir)
		return "", "", NewAcquireError("cloneRepo", repoURL, fmt.Sprintf("failed to resolve HEAD: %v", err), "", ErrCloneFailed)
	}

	return dir, head.Hash().String(), nil
}
