package github

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// PullRequest represents a GitHub pull request.
// Field names match gh CLI --json output (GraphQL field names).
//
//nolint:govet // Logical grouping preferred over memory optimization
type PullRequest struct {
	Number      int    `json:"number"`
	URL         string `json:"url"`
	Title       string `json:"title"`
	State       string `json:"state"`       // OPEN, CLOSED, MERGED
	HeadRefName string `json:"headRefName"` // Source branch
	HeadRefOid  string `json:"headRefOid"`  // Head commit SHA
	BaseRefName string `json:"baseRefName"` // Target branch
	Closed      bool   `json:"closed"`
	MergedAt    string `json:"mergedAt"`  // Non-empty if merged
	Mergeable   string `json:"mergeable"` // MERGEABLE, CONFLICTING, or UNKNOWN
}

// IsMerged returns true if the PR has been merged.
func (pr *PullRequest) IsMerged() bool {
	return pr.MergedAt != ""
}

// PRCreateOptions contains options for creating a pull request.
type PRCreateOptions struct {
	Title       string
	Body        string
	Head        string // Source branch
	Base        string // Target branch (default: main)
	IssueNumber int    // When set, a "Closes #N" line is appended to the body
	Draft       bool
}

// PRMergeOptions contains options for merging a pull request.
type PRMergeOptions struct {
	Method       string // merge, squash, or rebase (default: squash)
	DeleteBranch bool   // Delete branch after merge
}

// ListPRsForBranch lists pull requests whose head is the given branch.
func (c *Client) ListPRsForBranch(ctx context.Context, branch string) ([]PullRequest, error) {
	args := []string{
		"pr", "list",
		"--repo", c.RepoPath(),
		"--head", branch,
		"--json", "number,url,title,state,headRefName,headRefOid,baseRefName,closed,mergedAt",
	}

	var prs []PullRequest
	if err := c.runJSON(ctx, &prs, args...); err != nil {
		return nil, fmt.Errorf("failed to list PRs for branch %s: %w", branch, err)
	}

	return prs, nil
}

// GetPR retrieves a pull request by number.
func (c *Client) GetPR(ctx context.Context, number int) (*PullRequest, error) {
	return c.viewPR(ctx, fmt.Sprintf("%d", number))
}

// viewPR retrieves a pull request by number, URL, or branch name.
func (c *Client) viewPR(ctx context.Context, ref string) (*PullRequest, error) {
	args := []string{
		"pr", "view", ref,
		"--repo", c.RepoPath(),
		"--json", "number,url,title,state,headRefName,headRefOid,baseRefName,closed,mergedAt,mergeable",
	}

	var pr PullRequest
	if err := c.runJSON(ctx, &pr, args...); err != nil {
		return nil, fmt.Errorf("failed to get PR %s: %w", ref, err)
	}

	return &pr, nil
}

// CreatePR creates a new pull request and returns its full details.
func (c *Client) CreatePR(ctx context.Context, opts PRCreateOptions) (*PullRequest, error) {
	if opts.Head == "" {
		return nil, fmt.Errorf("head branch is required")
	}
	if opts.Title == "" {
		return nil, fmt.Errorf("title is required")
	}

	base := opts.Base
	if base == "" {
		base = DefaultBranch
	}

	body := opts.Body
	if opts.IssueNumber > 0 {
		body = fmt.Sprintf("%s\n\nCloses #%d", body, opts.IssueNumber)
	}

	args := []string{
		"pr", "create",
		"--repo", c.RepoPath(),
		"--title", opts.Title,
		"--head", opts.Head,
		"--base", base,
		"--body", body,
	}

	if opts.Draft {
		args = append(args, "--draft")
	}

	// Use longer timeout for PR creation
	client := c.WithTimeout(2 * time.Minute)
	output, err := client.run(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to create PR: %w", err)
	}

	// gh pr create returns the PR URL
	prURL := strings.TrimSpace(string(output))
	if prURL == "" {
		return nil, fmt.Errorf("PR created but no URL returned")
	}

	// Fetch the full PR details
	return c.viewPR(ctx, prURL)
}

// MergePR merges a pull request.
func (c *Client) MergePR(ctx context.Context, number int, opts PRMergeOptions) error {
	method := opts.Method
	if method == "" {
		method = "squash"
	}

	args := []string{
		"pr", "merge", fmt.Sprintf("%d", number),
		"--repo", c.RepoPath(),
		"--" + method,
	}

	if opts.DeleteBranch {
		args = append(args, "--delete-branch")
	}

	// Use longer timeout for merge
	client := c.WithTimeout(2 * time.Minute)
	if _, err := client.run(ctx, args...); err != nil {
		return fmt.Errorf("failed to merge PR #%d: %w", number, err)
	}

	return nil
}

// maxDiffBytes caps the diff fed into a review prompt.
const maxDiffBytes = 200 * 1024

// GetPRDiff returns the unified diff of a pull request, truncated when
// it exceeds the review prompt budget.
func (c *Client) GetPRDiff(ctx context.Context, number int) (string, error) {
	output, err := c.run(ctx, "pr", "diff", fmt.Sprintf("%d", number), "--repo", c.RepoPath())
	if err != nil {
		return "", fmt.Errorf("failed to fetch diff for PR #%d: %w", number, err)
	}

	diff := string(output)
	if len(diff) > maxDiffBytes {
		diff = diff[:maxDiffBytes] + "\n... (diff truncated)"
	}
	return diff, nil
}

// CommentOnPR adds a comment to a pull request.
func (c *Client) CommentOnPR(ctx context.Context, number int, body string) error {
	args := []string{
		"pr", "comment", fmt.Sprintf("%d", number),
		"--repo", c.RepoPath(),
		"--body", body,
	}

	if _, err := c.run(ctx, args...); err != nil {
		return fmt.Errorf("failed to comment on PR #%d: %w", number, err)
	}

	return nil
}
