// Package github provides GitHub operations via the gh CLI: issues,
// pull requests, and CI check runs. All operations are plain API calls
// executed on the host, so authentication and transport stay the CLI's
// concern.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"issueflow/pkg/logx"
)

// DefaultBranch is the default target branch for operations.
const DefaultBranch = "main"

// GitHubClient defines the GitHub operations the cycle controller, the
// workflow tools, and the review engine depend on. Client implements it
// with the gh CLI; tests substitute fakes.
type GitHubClient interface {
	// Issue operations
	GetIssue(ctx context.Context, number int) (*Issue, error)

	// PR operations
	ListPRsForBranch(ctx context.Context, branch string) ([]PullRequest, error)
	GetPR(ctx context.Context, number int) (*PullRequest, error)
	CreatePR(ctx context.Context, opts PRCreateOptions) (*PullRequest, error)
	MergePR(ctx context.Context, number int, opts PRMergeOptions) error
	CommentOnPR(ctx context.Context, number int, body string) error
	GetPRDiff(ctx context.Context, number int) (string, error)

	// CI operations
	GetCheckRuns(ctx context.Context, prNumber int) ([]CICheckResult, error)
	PRSnapshot(ctx context.Context, prNumber int) (*PRSnapshot, error)
}

// Client provides GitHub API operations via the gh CLI.
//
//nolint:govet // Logical grouping preferred over memory optimization
type Client struct {
	owner   string
	repo    string
	logger  *logx.Logger
	timeout time.Duration
}

var _ GitHubClient = (*Client)(nil)

// NewClient creates a new GitHub client for the specified repository.
func NewClient(owner, repo string) *Client {
	return &Client{
		owner:   owner,
		repo:    repo,
		logger:  logx.NewLogger("github"),
		timeout: 30 * time.Second,
	}
}

// NewClientFromRemote creates a GitHub client by parsing a git remote URL.
func NewClientFromRemote(remoteURL string) (*Client, error) {
	owner, repo, err := ParseGitHubURL(remoteURL)
	if err != nil {
		return nil, err
	}
	return NewClient(owner, repo), nil
}

// WithTimeout returns a new client with the specified timeout.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	return &Client{
		owner:   c.owner,
		repo:    c.repo,
		logger:  c.logger,
		timeout: timeout,
	}
}

// Owner returns the repository owner.
func (c *Client) Owner() string {
	return c.owner
}

// Repo returns the repository name.
func (c *Client) Repo() string {
	return c.repo
}

// RepoPath returns the owner/repo path.
func (c *Client) RepoPath() string {
	return fmt.Sprintf("%s/%s", c.owner, c.repo)
}

// APIGet executes a GET request to the GitHub API.
func (c *Client) APIGet(ctx context.Context, endpoint string) ([]byte, error) {
	return c.run(ctx, "api", endpoint)
}

// run executes a gh command and returns the output.
func (c *Client) run(ctx context.Context, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.logger.Debug("Executing: gh %s", strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, "gh", args...)
	output, err := cmd.CombinedOutput()

	if err != nil {
		c.logger.Debug("Command failed: %v, output: %s", err, string(output))
		return nil, fmt.Errorf("gh command failed: %w\nOutput: %s", err, string(output))
	}

	return output, nil
}

// runJSON executes a gh command and unmarshals the JSON response.
func (c *Client) runJSON(ctx context.Context, result interface{}, args ...string) error {
	output, err := c.run(ctx, args...)
	if err != nil {
		return err
	}

	if len(output) == 0 {
		return nil // Empty response is valid for some operations
	}

	if err := json.Unmarshal(output, result); err != nil {
		return fmt.Errorf("failed to parse JSON response: %w\nOutput: %s", err, string(output))
	}

	return nil
}

// RepoExists checks if the configured repository is accessible.
func (c *Client) RepoExists(ctx context.Context) bool {
	_, err := c.run(ctx, "repo", "view", c.RepoPath(), "--json", "name")
	return err == nil
}

// ParseGitHubURL extracts owner and repo from various GitHub URL formats.
func ParseGitHubURL(url string) (owner, repo string, err error) {
	// Handle SSH format: git@github.com:owner/repo.git
	if strings.HasPrefix(url, "git@github.com:") {
		path := strings.TrimPrefix(url, "git@github.com:")
		path = strings.TrimSuffix(path, ".git")
		parts := strings.Split(path, "/")
		if len(parts) != 2 {
			return "", "", fmt.Errorf("invalid GitHub SSH URL format: %s", url)
		}
		return parts[0], parts[1], nil
	}

	// Handle HTTPS format: https://github.com/owner/repo.git
	if strings.HasPrefix(url, "https://github.com/") {
		path := strings.TrimPrefix(url, "https://github.com/")
		path = strings.TrimSuffix(path, ".git")
		parts := strings.Split(path, "/")
		if len(parts) != 2 {
			return "", "", fmt.Errorf("invalid GitHub HTTPS URL format: %s", url)
		}
		return parts[0], parts[1], nil
	}

	return "", "", fmt.Errorf("unsupported Git URL format: %s", url)
}

// CheckAuth verifies that gh CLI is installed and authenticated.
func CheckAuth(ctx context.Context) error {
	if _, err := exec.LookPath("gh"); err != nil {
		return fmt.Errorf("gh CLI not found in PATH: %w", err)
	}

	cmd := exec.CommandContext(ctx, "gh", "auth", "status")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("gh auth check failed (run 'gh auth login'): %w\nOutput: %s", err, string(output))
	}
	return nil
}
