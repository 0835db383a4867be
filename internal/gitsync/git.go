// Package gitsync replicates the data root between devices through an
// ordinary git remote. Objects are content-addressed and immutable, so
// they always union cleanly; session logs are the only files that can
// truly conflict, and those are resolved deterministically by the merge
// in this package. The index database never travels.
package gitsync

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/openhearth/chronicle/internal/model"
)

// commandTimeout bounds every git invocation. Network commands hanging on
// a dead VPN link is the usual failure on laptops; the scheduler treats
// the timeout as a transport error and backs off.
const commandTimeout = 30 * time.Second

// Branch is the branch every device commits to and syncs over.
const Branch = "main"

// Git runs git commands against one working tree.
type Git struct {
	dir     string
	timeout time.Duration
}

// NewGit returns a runner for the repository at dir. dir does not need to
// be a repository yet; InitRepo takes care of that.
func NewGit(dir string) *Git {
	return &Git{dir: dir, timeout: commandTimeout}
}

// Available reports whether a git binary is on PATH.
func Available() bool {
	_, err := exec.LookPath("git")
	return err == nil
}

// run executes one git command and returns its combined output. The
// output is included in errors because git writes its diagnostics to
// stderr and they are always what the operator needs to see.
func (g *Git) run(ctx context.Context, args ...string) (string, error) {
	execCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, "git", args...)
	cmd.Dir = g.dir

	output, err := cmd.CombinedOutput()
	if err != nil {
		return string(output), fmt.Errorf("git %s: %w\noutput: %s",
			strings.Join(args, " "), err, strings.TrimSpace(string(output)))
	}
	return string(output), nil
}

// IsRepo reports whether dir is inside a git work tree.
func (g *Git) IsRepo(ctx context.Context) bool {
	_, err := g.run(ctx, "rev-parse", "--git-dir")
	return err == nil
}

// Init creates the repository and points the unborn HEAD at Branch, so
// the first commit lands there regardless of the host's init.defaultBranch.
func (g *Git) Init(ctx context.Context) error {
	if _, err := g.run(ctx, "init"); err != nil {
		return err
	}
	_, err := g.run(ctx, "symbolic-ref", "HEAD", "refs/heads/"+Branch)
	return err
}

// EnsureIdentity sets a repo-local committer identity when the host has
// none configured. Sync commits are machine-made; they should never fail
// because a fresh machine skipped `git config --global`.
func (g *Git) EnsureIdentity(ctx context.Context, device string) error {
	if _, err := g.run(ctx, "config", "user.name"); err == nil {
		return nil
	}
	name := "chronicle"
	if device != "" {
		name = "chronicle " + device
	}
	if _, err := g.run(ctx, "config", "user.name", name); err != nil {
		return err
	}
	_, err := g.run(ctx, "config", "user.email", "chronicle@localhost")
	return err
}

// SetRemote points origin at url, adding or replacing as needed.
func (g *Git) SetRemote(ctx context.Context, url string) error {
	if _, err := g.run(ctx, "remote", "set-url", "origin", url); err == nil {
		return nil
	}
	_, err := g.run(ctx, "remote", "add", "origin", url)
	return err
}

// RemoteURL returns the configured origin URL, or "" when no remote is
// set up.
func (g *Git) RemoteURL(ctx context.Context) string {
	out, err := g.run(ctx, "remote", "get-url", "origin")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(out)
}

// Dirty reports whether the work tree has uncommitted changes.
func (g *Git) Dirty(ctx context.Context) (bool, error) {
	out, err := g.run(ctx, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) != "", nil
}

// CommitAll stages everything and commits. Returns false when there was
// nothing to commit.
func (g *Git) CommitAll(ctx context.Context, message string) (bool, error) {
	if _, err := g.run(ctx, "add", "-A"); err != nil {
		return false, err
	}
	dirty, err := g.Dirty(ctx)
	if err != nil {
		return false, err
	}
	if !dirty {
		return false, nil
	}
	if _, err := g.run(ctx, "commit", "-m", message); err != nil {
		return false, err
	}
	return true, nil
}

// rev resolves a revision to its hash, or "" when it does not exist
// (unborn HEAD, remote branch never pushed).
func (g *Git) rev(ctx context.Context, name string) string {
	out, err := g.run(ctx, "rev-parse", "--verify", "--quiet", name)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(out)
}

// mergeBase returns the common ancestor of two commits, or "" when the
// histories are unrelated.
func (g *Git) mergeBase(ctx context.Context, a, b string) string {
	out, err := g.run(ctx, "merge-base", a, b)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(out)
}

// unmergedPaths lists conflicted paths during an interrupted merge.
func (g *Git) unmergedPaths(ctx context.Context) ([]string, error) {
	out, err := g.run(ctx, "diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			paths = append(paths, line)
		}
	}
	return paths, nil
}

// stage reads one side of a conflicted path from the index. Stage 1 is
// the common ancestor, 2 is ours, 3 is theirs. ok is false when that side
// does not exist (file added on only one side).
func (g *Git) stage(ctx context.Context, n int, path string) (content []byte, ok bool) {
	out, err := g.run(ctx, "show", fmt.Sprintf(":%d:%s", n, path))
	if err != nil {
		return nil, false
	}
	return []byte(out), true
}

// transportErr tags remote-exchange failures so callers can tell a flaky
// network from a real conflict. Cancellation passes through untagged.
func transportErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", model.ErrTransport, err)
}
