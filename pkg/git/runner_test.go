package git

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// initTestRepo creates a working repo with one commit and a bare origin
// it can push to. Returns the runner for the working repo.
func initTestRepo(t *testing.T) *Runner {
	t.Helper()

	tmpDir := t.TempDir()
	originPath := filepath.Join(tmpDir, "origin.git")
	workPath := filepath.Join(tmpDir, "work")

	gitCmd(t, tmpDir, "init", "--bare", originPath)
	gitCmd(t, tmpDir, "clone", originPath, workPath)
	gitCmd(t, workPath, "config", "user.email", "test@example.com")
	gitCmd(t, workPath, "config", "user.name", "Test")

	if err := os.WriteFile(filepath.Join(workPath, "README.md"), []byte("# test\n"), 0o644); err != nil {
		t.Fatalf("write README: %v", err)
	}
	gitCmd(t, workPath, "add", "-A")
	gitCmd(t, workPath, "commit", "-m", "initial commit")
	gitCmd(t, workPath, "push", "-u", "origin", "HEAD")

	return NewRunner(workPath)
}

func gitCmd(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %s failed: %v\n%s", strings.Join(args, " "), err, output)
	}
}

func TestCreateBranchAndCurrentBranch(t *testing.T) {
	runner := initTestRepo(t)
	ctx := context.Background()

	if err := runner.CreateBranch(ctx, "issue-7-fix"); err != nil {
		t.Fatalf("CreateBranch failed: %v", err)
	}

	branch, err := runner.CurrentBranch(ctx)
	if err != nil {
		t.Fatalf("CurrentBranch failed: %v", err)
	}
	if branch != "issue-7-fix" {
		t.Errorf("CurrentBranch() = %q, want issue-7-fix", branch)
	}
}

func TestCreateBranchRequiresName(t *testing.T) {
	runner := initTestRepo(t)

	if err := runner.CreateBranch(context.Background(), ""); err == nil {
		t.Error("expected error for empty branch name")
	}
}

func TestHasChanges(t *testing.T) {
	runner := initTestRepo(t)
	ctx := context.Background()

	changed, err := runner.HasChanges(ctx)
	if err != nil {
		t.Fatalf("HasChanges failed: %v", err)
	}
	if changed {
		t.Error("HasChanges() = true for clean tree")
	}

	if err := os.WriteFile(filepath.Join(runner.Dir(), "new.go"), []byte("package main\n"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	changed, err = runner.HasChanges(ctx)
	if err != nil {
		t.Fatalf("HasChanges failed: %v", err)
	}
	if !changed {
		t.Error("HasChanges() = false after adding untracked file")
	}
}

func TestCommitAndPush(t *testing.T) {
	runner := initTestRepo(t)
	ctx := context.Background()

	if err := runner.CreateBranch(ctx, "feature"); err != nil {
		t.Fatalf("CreateBranch failed: %v", err)
	}

	if err := os.WriteFile(filepath.Join(runner.Dir(), "feature.go"), []byte("package main\n"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	if err := runner.AddAll(ctx); err != nil {
		t.Fatalf("AddAll failed: %v", err)
	}
	if err := runner.Commit(ctx, "add feature"); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if err := runner.Push(ctx, "feature"); err != nil {
		t.Fatalf("Push failed: %v", err)
	}

	// Tree should be clean after commit
	changed, err := runner.HasChanges(ctx)
	if err != nil {
		t.Fatalf("HasChanges failed: %v", err)
	}
	if changed {
		t.Error("HasChanges() = true after commit")
	}

	sha, err := runner.HeadSHA(ctx)
	if err != nil {
		t.Fatalf("HeadSHA failed: %v", err)
	}
	if len(sha) != 40 {
		t.Errorf("HeadSHA() = %q, want 40-char SHA", sha)
	}
}

func TestCommitRequiresMessage(t *testing.T) {
	runner := initTestRepo(t)

	if err := runner.Commit(context.Background(), ""); err == nil {
		t.Error("expected error for empty commit message")
	}
}

func TestRemoteURL(t *testing.T) {
	runner := initTestRepo(t)

	url, err := runner.RemoteURL(context.Background())
	if err != nil {
		t.Fatalf("RemoteURL failed: %v", err)
	}
	if !strings.HasSuffix(url, "origin.git") {
		t.Errorf("RemoteURL() = %q, want path ending in origin.git", url)
	}
}

func TestCheckoutBranch(t *testing.T) {
	runner := initTestRepo(t)
	ctx := context.Background()

	start, err := runner.CurrentBranch(ctx)
	if err != nil {
		t.Fatalf("CurrentBranch failed: %v", err)
	}

	if err := runner.CreateBranch(ctx, "other"); err != nil {
		t.Fatalf("CreateBranch failed: %v", err)
	}
	if err := runner.CheckoutBranch(ctx, start); err != nil {
		t.Fatalf("CheckoutBranch failed: %v", err)
	}

	branch, err := runner.CurrentBranch(ctx)
	if err != nil {
		t.Fatalf("CurrentBranch failed: %v", err)
	}
	if branch != start {
		t.Errorf("CurrentBranch() = %q, want %q", branch, start)
	}
}
