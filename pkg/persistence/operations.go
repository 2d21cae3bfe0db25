package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"issueflow/pkg/lifecycle"
)

// StartRun opens a run record for the issue and returns its ID.
func (s *Store) StartRun(ctx context.Context, issueNumber int) (string, error) {
	runID := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, issue_number, started_at) VALUES (?, ?, ?)
	`, runID, issueNumber, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("failed to start run for issue #%d: %w", issueNumber, err)
	}
	return runID, nil
}

// RecordTransition appends one lifecycle transition to the run.
func (s *Store) RecordTransition(ctx context.Context, runID string, tr lifecycle.StateTransition) error {
	var metadata any
	if len(tr.Metadata) > 0 {
		encoded, err := json.Marshal(tr.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode transition metadata: %w", err)
		}
		metadata = string(encoded)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transitions (run_id, from_state, to_state, metadata, occurred_at)
		VALUES (?, ?, ?, ?, ?)
	`, runID, string(tr.From), string(tr.To), metadata, tr.At)
	if err != nil {
		return fmt.Errorf("failed to record transition %s -> %s: %w", tr.From, tr.To, err)
	}
	return nil
}

// FinishRun closes the run record with its terminal summary.
func (s *Store) FinishRun(ctx context.Context, runID string, summary lifecycle.MachineSummary) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET finished_at = ?, final_state = ?, iterations = ?, pr_number = ?, branch = ?, success = ?
		WHERE id = ?
	`, time.Now().UTC(), string(summary.State), summary.Iteration,
		summary.PRNumber, summary.Branch, summary.Success, runID)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", runID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check finish of run %s: %w", runID, err)
	}
	if rows == 0 {
		return fmt.Errorf("finishing run %s: %w", runID, ErrRunNotFound)
	}
	return nil
}

// GetRun returns one run by ID.
func (s *Store) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, issue_number, started_at, finished_at, final_state,
		       iterations, pr_number, branch, success
		FROM runs WHERE id = ?
	`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", runID, err)
	}
	return run, nil
}

// ListRunsForIssue returns every run recorded for the issue, newest
// first.
func (s *Store) ListRunsForIssue(ctx context.Context, issueNumber int) ([]*Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, issue_number, started_at, finished_at, final_state,
		       iterations, pr_number, branch, success
		FROM runs WHERE issue_number = ?
		ORDER BY started_at DESC
	`, issueNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs for issue #%d: %w", issueNumber, err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read runs: %w", err)
	}
	return runs, nil
}

// GetTransitions returns the run's transitions in the order they were
// applied.
func (s *Store) GetTransitions(ctx context.Context, runID string) ([]*TransitionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, from_state, to_state, metadata, occurred_at
		FROM transitions WHERE run_id = ?
		ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get transitions for run %s: %w", runID, err)
	}
	defer rows.Close()

	var records []*TransitionRecord
	for rows.Next() {
		record := &TransitionRecord{}
		var metadata sql.NullString
		if err := rows.Scan(&record.ID, &record.RunID, &record.FromState,
			&record.ToState, &metadata, &record.OccurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan transition: %w", err)
		}
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &record.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode transition metadata: %w", err)
			}
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read transitions: %w", err)
	}
	return records, nil
}

// scannable covers *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*Run, error) {
	run := &Run{}
	var (
		finishedAt sql.NullTime
		finalState sql.NullString
		branch     sql.NullString
	)
	err := row.Scan(&run.ID, &run.IssueNumber, &run.StartedAt, &finishedAt,
		&finalState, &run.Iterations, &run.PRNumber, &branch, &run.Success)
	if err != nil {
		return nil, err
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		run.FinishedAt = &t
	}
	run.FinalState = finalState.String
	run.Branch = branch.String
	return run, nil
}
