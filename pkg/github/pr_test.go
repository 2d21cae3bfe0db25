package github

import (
	"context"
	"encoding/json"
	"testing"
)

func TestPullRequestDecoding(t *testing.T) {
	// gh pr view --json output shape.
	payload := `{
		"number": 3,
		"url": "https://github.com/owner/repo/pull/3",
		"title": "fix: handle empty payloads",
		"state": "OPEN",
		"headRefName": "issue-7-empty-payloads",
		"headRefOid": "abc123def456",
		"baseRefName": "main",
		"closed": false,
		"mergedAt": "",
		"mergeable": "MERGEABLE"
	}`

	var pr PullRequest
	if err := json.Unmarshal([]byte(payload), &pr); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if pr.Number != 3 {
		t.Errorf("Number = %d, want 3", pr.Number)
	}
	if pr.HeadRefName != "issue-7-empty-payloads" {
		t.Errorf("HeadRefName = %q", pr.HeadRefName)
	}
	if pr.HeadRefOid != "abc123def456" {
		t.Errorf("HeadRefOid = %q", pr.HeadRefOid)
	}
	if pr.BaseRefName != "main" {
		t.Errorf("BaseRefName = %q", pr.BaseRefName)
	}
	if pr.IsMerged() {
		t.Error("IsMerged() = true for open PR")
	}
}

func TestPullRequestIsMerged(t *testing.T) {
	tests := []struct {
		name     string
		mergedAt string
		want     bool
	}{
		{"not merged", "", false},
		{"merged", "2025-06-01T12:00:00Z", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pr := PullRequest{MergedAt: tt.mergedAt}
			if got := pr.IsMerged(); got != tt.want {
				t.Errorf("IsMerged() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCreatePRValidation(t *testing.T) {
	client := NewClient("owner", "repo")
	ctx := context.Background()

	if _, err := client.CreatePR(ctx, PRCreateOptions{Title: "no head"}); err == nil {
		t.Error("expected error for missing head branch")
	}

	if _, err := client.CreatePR(ctx, PRCreateOptions{Head: "feature"}); err == nil {
		t.Error("expected error for missing title")
	}
}
