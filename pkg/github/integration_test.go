//go:build integration
// +build integration

package github

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"issueflow/pkg/config"
)

// testClient builds a client for the repository named in ISSUEFLOW_TEST_REPO
// (owner/repo form). Integration tests are skipped when it is unset or when
// no GitHub token is available.
func testClient(t *testing.T) *Client {
	t.Helper()

	repoPath := os.Getenv("ISSUEFLOW_TEST_REPO")
	if repoPath == "" {
		t.Skip("ISSUEFLOW_TEST_REPO not set, skipping integration test")
	}
	if !config.HasGitHubToken() {
		t.Skip("GITHUB_TOKEN not available, skipping integration test")
	}

	parts := strings.SplitN(repoPath, "/", 2)
	if len(parts) != 2 {
		t.Fatalf("ISSUEFLOW_TEST_REPO = %q, want owner/repo", repoPath)
	}
	return NewClient(parts[0], parts[1])
}

// TestIntegration_RepoExists verifies that the test repository is reachable.
func TestIntegration_RepoExists(t *testing.T) {
	client := testClient(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if !client.RepoExists(ctx) {
		t.Fatalf("repository %s not accessible", client.RepoPath())
	}
}

// TestIntegration_CheckAuth verifies gh CLI authentication.
func TestIntegration_CheckAuth(t *testing.T) {
	_ = testClient(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := CheckAuth(ctx); err != nil {
		t.Fatalf("CheckAuth failed: %v", err)
	}
}

// TestIntegration_ListPRsForBranch exercises the pr list path against a
// branch that should not exist.
func TestIntegration_ListPRsForBranch(t *testing.T) {
	client := testClient(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	prs, err := client.ListPRsForBranch(ctx, "issueflow-integration-nonexistent")
	if err != nil {
		t.Fatalf("ListPRsForBranch failed: %v", err)
	}
	if len(prs) != 0 {
		t.Errorf("expected no PRs for nonexistent branch, got %d", len(prs))
	}
}
