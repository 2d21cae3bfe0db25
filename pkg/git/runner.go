// Package git runs git commands in a local working tree. The workflow
// tools use it for branch, commit, and push operations; everything that
// touches the GitHub API goes through pkg/github instead.
package git

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"issueflow/pkg/logx"
)

// Default timeouts for git operations. Push talks to the network and
// gets a longer budget.
const (
	defaultTimeout = 60 * time.Second
	pushTimeout    = 2 * time.Minute
)

// Runner executes git commands in a fixed working directory.
type Runner struct {
	dir    string
	logger *logx.Logger
}

// NewRunner creates a runner for the given working tree.
func NewRunner(dir string) *Runner {
	return &Runner{
		dir:    dir,
		logger: logx.NewLogger("git"),
	}
}

// Dir returns the working tree the runner operates in.
func (r *Runner) Dir() string {
	return r.dir
}

// run executes a git command in the working tree and returns its
// trimmed combined output.
func (r *Runner) run(ctx context.Context, timeout time.Duration, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	r.logger.Debug("Executing: git %s", strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.dir
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s failed: %w\nOutput: %s", strings.Join(args, " "), err, string(output))
	}

	return strings.TrimSpace(string(output)), nil
}

// CurrentBranch returns the name of the checked-out branch.
func (r *Runner) CurrentBranch(ctx context.Context) (string, error) {
	branch, err := r.run(ctx, defaultTimeout, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", fmt.Errorf("failed to get current branch: %w", err)
	}
	return branch, nil
}

// CreateBranch creates a new branch off the current HEAD and checks it out.
func (r *Runner) CreateBranch(ctx context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("branch name is required")
	}
	if _, err := r.run(ctx, defaultTimeout, "checkout", "-b", name); err != nil {
		return fmt.Errorf("failed to create branch %s: %w", name, err)
	}
	return nil
}

// CheckoutBranch switches to an existing branch.
func (r *Runner) CheckoutBranch(ctx context.Context, name string) error {
	if _, err := r.run(ctx, defaultTimeout, "checkout", name); err != nil {
		return fmt.Errorf("failed to checkout branch %s: %w", name, err)
	}
	return nil
}

// HasChanges reports whether the working tree has uncommitted changes,
// including untracked files.
func (r *Runner) HasChanges(ctx context.Context) (bool, error) {
	status, err := r.run(ctx, defaultTimeout, "status", "--porcelain")
	if err != nil {
		return false, fmt.Errorf("failed to get status: %w", err)
	}
	return status != "", nil
}

// AddAll stages every change in the working tree.
func (r *Runner) AddAll(ctx context.Context) error {
	if _, err := r.run(ctx, defaultTimeout, "add", "-A"); err != nil {
		return fmt.Errorf("failed to stage changes: %w", err)
	}
	return nil
}

// Commit creates a commit from the staged changes.
func (r *Runner) Commit(ctx context.Context, message string) error {
	if message == "" {
		return fmt.Errorf("commit message is required")
	}
	if _, err := r.run(ctx, defaultTimeout, "commit", "-m", message); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// Push pushes a branch to origin, setting the upstream on first push.
func (r *Runner) Push(ctx context.Context, branch string) error {
	if branch == "" {
		return fmt.Errorf("branch name is required")
	}
	if _, err := r.run(ctx, pushTimeout, "push", "-u", "origin", branch); err != nil {
		return fmt.Errorf("failed to push branch %s: %w", branch, err)
	}
	return nil
}

// HeadSHA returns the commit SHA of HEAD.
func (r *Runner) HeadSHA(ctx context.Context) (string, error) {
	sha, err := r.run(ctx, defaultTimeout, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("failed to get HEAD SHA: %w", err)
	}
	return sha, nil
}

// RemoteURL returns the URL of the origin remote.
func (r *Runner) RemoteURL(ctx context.Context) (string, error) {
	url, err := r.run(ctx, defaultTimeout, "remote", "get-url", "origin")
	if err != nil {
		return "", fmt.Errorf("failed to get origin URL: %w", err)
	}
	return url, nil
}
