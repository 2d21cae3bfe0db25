package persistence

import (
	"context"
	"errors"
	"testing"

	"issueflow/pkg/agent/llm"
	"issueflow/pkg/cycle"
	"issueflow/pkg/session"
)

// The store backs the cycle controller's audit trail.
var _ cycle.AuditStore = (*Store)(nil)

func TestSessionSnapshots(t *testing.T) {
	ctx := context.Background()

	t.Run("SaveAndLoadSession", func(t *testing.T) {
		store := createTestStore(t)

		runID, err := store.StartRun(ctx, 7)
		if err != nil {
			t.Fatalf("Failed to start run: %v", err)
		}

		sess := session.New("coder", "You fix issues.")
		sess.AddUserMessage("Implement GitHub Issue #7.")
		sess.AddAssistantMessage("On it.", []llm.ToolCall{
			{ID: "call_1", Name: "create_branch", Parameters: map[string]any{"branch_name": "issue-7-fix"}},
		})
		sess.AddToolResult("call_1", "Branch created: issue-7-fix", false)
		sess.Branch = "issue-7-fix"
		sess.PRNumber = 3
		sess.Finished = true

		if err := store.SaveSession(ctx, runID, sess); err != nil {
			t.Fatalf("Failed to save session: %v", err)
		}

		restored, err := store.LoadLatestSession(ctx, runID)
		if err != nil {
			t.Fatalf("Failed to load session: %v", err)
		}
		if restored.ID != sess.ID {
			t.Errorf("Expected session ID %s, got %s", sess.ID, restored.ID)
		}
		if restored.Agent != "coder" {
			t.Errorf("Expected agent coder, got %q", restored.Agent)
		}
		if restored.Branch != "issue-7-fix" {
			t.Errorf("Expected branch issue-7-fix, got %q", restored.Branch)
		}
		if restored.PRNumber != 3 {
			t.Errorf("Expected PR number 3, got %d", restored.PRNumber)
		}
		if !restored.Finished {
			t.Error("Expected restored session to be finished")
		}
		if restored.MessageCount() != sess.MessageCount() {
			t.Errorf("Expected %d messages, got %d", sess.MessageCount(), restored.MessageCount())
		}

		msgs := restored.Messages()
		if len(msgs) == 0 || len(msgs[1].ToolCalls) != 1 {
			t.Fatalf("Expected restored transcript with tool call, got %d messages", len(msgs))
		}
		if msgs[1].ToolCalls[0].Name != "create_branch" {
			t.Errorf("Expected tool call create_branch, got %q", msgs[1].ToolCalls[0].Name)
		}
	})

	t.Run("SnapshotsAccumulate", func(t *testing.T) {
		store := createTestStore(t)

		runID, err := store.StartRun(ctx, 7)
		if err != nil {
			t.Fatalf("Failed to start run: %v", err)
		}

		sess := session.New("coder", "You fix issues.")
		sess.AddUserMessage("Implement GitHub Issue #7.")
		if err := store.SaveSession(ctx, runID, sess); err != nil {
			t.Fatalf("Failed to save first snapshot: %v", err)
		}

		sess.AddAssistantMessage("Pushed a fix.", nil)
		sess.PRNumber = 3
		if err := store.SaveSession(ctx, runID, sess); err != nil {
			t.Fatalf("Failed to save second snapshot: %v", err)
		}

		snapshots, err := store.GetSessionSnapshots(ctx, runID)
		if err != nil {
			t.Fatalf("Failed to get snapshots: %v", err)
		}
		if len(snapshots) != 2 {
			t.Fatalf("Expected 2 snapshots, got %d", len(snapshots))
		}
		if snapshots[0].MessageCount != 1 || snapshots[1].MessageCount != 2 {
			t.Errorf("Expected message counts [1, 2], got [%d, %d]",
				snapshots[0].MessageCount, snapshots[1].MessageCount)
		}
		if snapshots[0].PRNumber != 0 || snapshots[1].PRNumber != 3 {
			t.Errorf("Expected PR numbers [0, 3], got [%d, %d]",
				snapshots[0].PRNumber, snapshots[1].PRNumber)
		}
		for i, snap := range snapshots {
			if snap.SessionID != sess.ID {
				t.Errorf("Snapshot %d: expected session ID %s, got %s", i, sess.ID, snap.SessionID)
			}
			if snap.Transcript == "" {
				t.Errorf("Snapshot %d: expected non-empty transcript", i)
			}
			if snap.SavedAt.IsZero() {
				t.Errorf("Snapshot %d: expected saved_at to be set", i)
			}
		}

		// The latest snapshot wins.
		restored, err := store.LoadLatestSession(ctx, runID)
		if err != nil {
			t.Fatalf("Failed to load latest session: %v", err)
		}
		if restored.MessageCount() != 2 {
			t.Errorf("Expected latest snapshot with 2 messages, got %d", restored.MessageCount())
		}
	})

	t.Run("LoadLatestWithoutSnapshots", func(t *testing.T) {
		store := createTestStore(t)

		runID, err := store.StartRun(ctx, 7)
		if err != nil {
			t.Fatalf("Failed to start run: %v", err)
		}

		_, err = store.LoadLatestSession(ctx, runID)
		if !errors.Is(err, ErrSnapshotNotFound) {
			t.Errorf("Expected ErrSnapshotNotFound, got %v", err)
		}
	})
}
