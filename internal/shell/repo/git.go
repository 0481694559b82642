package repo

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// Checkout is a shallow clone of one branch of a repository.
type Checkout struct {
	Dir    string
	Commit string
}

// Close removes the checkout directory.
func (c *Checkout) Close() error {
	return os.RemoveAll(c.Dir)
}

// Fetcher clones repositories for analysis.
type Fetcher struct {
	logger *slog.Logger
}

// NewFetcher creates a repository fetcher.
func NewFetcher(logger *slog.Logger) *Fetcher {
	return &Fetcher{logger: logger.With("component", "fetcher")}
}

// Fetch shallow-clones a single branch into a temporary directory and
// resolves its head commit. The caller owns the checkout and must Close it.
func (f *Fetcher) Fetch(ctx context.Context, url, branch string) (*Checkout, error) {
	dir, err := os.MkdirTemp("", "launchpad-checkout-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout dir: %w", err)
	}

	repository, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:           url,
		Depth:         1,
		SingleBranch:  true,
		ReferenceName: plumbing.NewBranchReferenceName(branch),
		Tags:          git.NoTags,
	})
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to clone %s: %w", url, err)
	}

	head, err := repository.Head()
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to resolve head: %w", err)
	}

	commit := head.Hash().String()
	f.logger.Info("repository fetched", "url", url, "branch", branch, "commit", commit[:8])

	return &Checkout{Dir: dir, Commit: commit}, nil
}
