package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"issueflow/pkg/session"
)

// SaveSession stores a snapshot of the agent conversation. Snapshots
// accumulate; one is written after every agent turn.
func (s *Store) SaveSession(ctx context.Context, runID string, sess *session.Session) error {
	transcript, err := sess.Serialize()
	if err != nil {
		return fmt.Errorf("failed to serialize session %s: %w", sess.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO session_snapshots
			(run_id, session_id, agent, branch, pr_number, finished, message_count, transcript, saved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, runID, sess.ID, sess.Agent, sess.Branch, sess.PRNumber, sess.Finished,
		sess.MessageCount(), string(transcript), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save session %s: %w", sess.ID, err)
	}
	return nil
}

// GetSessionSnapshots returns the run's snapshots, oldest first.
func (s *Store) GetSessionSnapshots(ctx context.Context, runID string) ([]*SessionSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, session_id, agent, branch, pr_number, finished,
		       message_count, transcript, saved_at
		FROM session_snapshots WHERE run_id = ?
		ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshots for run %s: %w", runID, err)
	}
	defer rows.Close()

	var snapshots []*SessionSnapshot
	for rows.Next() {
		snap := &SessionSnapshot{}
		var branch sql.NullString
		if err := rows.Scan(&snap.ID, &snap.RunID, &snap.SessionID, &snap.Agent,
			&branch, &snap.PRNumber, &snap.Finished, &snap.MessageCount,
			&snap.Transcript, &snap.SavedAt); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snap.Branch = branch.String
		snapshots = append(snapshots, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read snapshots: %w", err)
	}
	return snapshots, nil
}

// LoadLatestSession rebuilds the most recent conversation stored for
// the run.
func (s *Store) LoadLatestSession(ctx context.Context, runID string) (*session.Session, error) {
	var transcript string
	err := s.db.QueryRowContext(ctx, `
		SELECT transcript FROM session_snapshots
		WHERE run_id = ?
		ORDER BY id DESC LIMIT 1
	`, runID).Scan(&transcript)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", runID, ErrSnapshotNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session for run %s: %w", runID, err)
	}

	sess := &session.Session{}
	if err := sess.Deserialize([]byte(transcript)); err != nil {
		return nil, fmt.Errorf("failed to rebuild session for run %s: %w", runID, err)
	}
	return sess, nil
}
