// Package gitutil clones and updates local working copies of student
// repositories over HTTPS with token auth.
package gitutil

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v6"
	githttp "github.com/go-git/go-git/v6/plumbing/transport/http"
)

// Cloner mirrors repositories into a destination directory. Destinations
// that already hold a clone are pulled instead of re-cloned.
type Cloner struct {
	token  string
	logger *log.Logger
}

// NewCloner creates a Cloner that authenticates with the given API token.
func NewCloner(token string, logger *log.Logger) *Cloner {
	return &Cloner{token: token, logger: logger}
}

func (c *Cloner) auth() *githttp.BasicAuth {
	// GitHub accepts the token as the password with any username.
	return &githttp.BasicAuth{Username: "x-access-token", Password: c.token}
}

// CloneOrPull ensures outDir/<name> holds an up-to-date working copy of the
// repository at cloneURL. The token never lands in the on-disk remote
// config; it travels only in the transport auth.
func (c *Cloner) CloneOrPull(ctx context.Context, cloneURL, name, outDir string) error {
	dest := filepath.Join(outDir, name)

	if _, err := os.Stat(filepath.Join(dest, ".git")); err == nil {
		return c.pull(ctx, dest, name)
	}

	c.logger.Printf("  cloning %s", name)
	_, err := git.PlainCloneContext(ctx, dest, &git.CloneOptions{
		URL:  cloneURL,
		Auth: c.auth(),
	})
	if err != nil {
		return fmt.Errorf("clone %s: %w", name, err)
	}
	return nil
}

func (c *Cloner) pull(ctx context.Context, dest, name string) error {
	c.logger.Printf("  pulling %s", name)
	repo, err := git.PlainOpen(dest)
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("worktree %s: %w", name, err)
	}
	err = wt.PullContext(ctx, &git.PullOptions{
		RemoteName: "origin",
		Auth:       c.auth(),
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("pull %s: %w", name, err)
	}
	return nil
}
