package testkit

import (
	"context"
	"fmt"

	"issueflow/pkg/github"
)

// FakeGitHub implements github.GitHubClient with function fields. A
// method whose field is nil fails loudly, so each test declares exactly
// the interactions it expects.
type FakeGitHub struct {
	GetIssueFunc         func(ctx context.Context, number int) (*github.Issue, error)
	ListPRsForBranchFunc func(ctx context.Context, branch string) ([]github.PullRequest, error)
	GetPRFunc            func(ctx context.Context, number int) (*github.PullRequest, error)
	CreatePRFunc         func(ctx context.Context, opts github.PRCreateOptions) (*github.PullRequest, error)
	MergePRFunc          func(ctx context.Context, number int, opts github.PRMergeOptions) error
	CommentOnPRFunc      func(ctx context.Context, number int, body string) error
	GetPRDiffFunc        func(ctx context.Context, number int) (string, error)
	GetCheckRunsFunc     func(ctx context.Context, prNumber int) ([]github.CICheckResult, error)
	PRSnapshotFunc       func(ctx context.Context, prNumber int) (*github.PRSnapshot, error)
}

var _ github.GitHubClient = (*FakeGitHub)(nil)

// GetIssue implements github.GitHubClient.
func (f *FakeGitHub) GetIssue(ctx context.Context, number int) (*github.Issue, error) {
	if f.GetIssueFunc == nil {
		return nil, fmt.Errorf("FakeGitHub: GetIssue not scripted")
	}
	return f.GetIssueFunc(ctx, number)
}

// ListPRsForBranch implements github.GitHubClient.
func (f *FakeGitHub) ListPRsForBranch(ctx context.Context, branch string) ([]github.PullRequest, error) {
	if f.ListPRsForBranchFunc == nil {
		return nil, fmt.Errorf("FakeGitHub: ListPRsForBranch not scripted")
	}
	return f.ListPRsForBranchFunc(ctx, branch)
}

// GetPR implements github.GitHubClient.
func (f *FakeGitHub) GetPR(ctx context.Context, number int) (*github.PullRequest, error) {
	if f.GetPRFunc == nil {
		return nil, fmt.Errorf("FakeGitHub: GetPR not scripted")
	}
	return f.GetPRFunc(ctx, number)
}

// CreatePR implements github.GitHubClient.
func (f *FakeGitHub) CreatePR(ctx context.Context, opts github.PRCreateOptions) (*github.PullRequest, error) {
	if f.CreatePRFunc == nil {
		return nil, fmt.Errorf("FakeGitHub: CreatePR not scripted")
	}
	return f.CreatePRFunc(ctx, opts)
}

// MergePR implements github.GitHubClient.
func (f *FakeGitHub) MergePR(ctx context.Context, number int, opts github.PRMergeOptions) error {
	if f.MergePRFunc == nil {
		return fmt.Errorf("FakeGitHub: MergePR not scripted")
	}
	return f.MergePRFunc(ctx, number, opts)
}

// CommentOnPR implements github.GitHubClient.
func (f *FakeGitHub) CommentOnPR(ctx context.Context, number int, body string) error {
	if f.CommentOnPRFunc == nil {
		return fmt.Errorf("FakeGitHub: CommentOnPR not scripted")
	}
	return f.CommentOnPRFunc(ctx, number, body)
}

// GetPRDiff implements github.GitHubClient.
func (f *FakeGitHub) GetPRDiff(ctx context.Context, number int) (string, error) {
	if f.GetPRDiffFunc == nil {
		return "", fmt.Errorf("FakeGitHub: GetPRDiff not scripted")
	}
	return f.GetPRDiffFunc(ctx, number)
}

// GetCheckRuns implements github.GitHubClient.
func (f *FakeGitHub) GetCheckRuns(ctx context.Context, prNumber int) ([]github.CICheckResult, error) {
	if f.GetCheckRunsFunc == nil {
		return nil, fmt.Errorf("FakeGitHub: GetCheckRuns not scripted")
	}
	return f.GetCheckRunsFunc(ctx, prNumber)
}

// PRSnapshot implements github.GitHubClient.
func (f *FakeGitHub) PRSnapshot(ctx context.Context, prNumber int) (*github.PRSnapshot, error) {
	if f.PRSnapshotFunc == nil {
		return nil, fmt.Errorf("FakeGitHub: PRSnapshot not scripted")
	}
	return f.PRSnapshotFunc(ctx, prNumber)
}
