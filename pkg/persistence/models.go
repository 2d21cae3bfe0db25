package persistence

import (
	"errors"
	"time"
)

// ErrRunNotFound is returned when a run ID does not exist.
var ErrRunNotFound = errors.New("run not found")

// ErrSnapshotNotFound is returned when a run has no stored sessions.
var ErrSnapshotNotFound = errors.New("session snapshot not found")

// Run is one cycle run from start to its terminal outcome. FinishedAt
// and FinalState stay empty while the run is in flight.
type Run struct {
	ID          string     `json:"id"`
	IssueNumber int        `json:"issue_number"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	FinalState  string     `json:"final_state,omitempty"`
	Iterations  int        `json:"iterations"`
	PRNumber    int        `json:"pr_number,omitempty"`
	Branch      string     `json:"branch,omitempty"`
	Success     bool       `json:"success"`
}

// TransitionRecord is one applied lifecycle transition.
type TransitionRecord struct {
	ID         int64             `json:"id"`
	RunID      string            `json:"run_id"`
	FromState  string            `json:"from_state"`
	ToState    string            `json:"to_state"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// SessionSnapshot is one stored agent conversation. Transcript holds
// the serialized session JSON.
type SessionSnapshot struct {
	ID           int64     `json:"id"`
	RunID        string    `json:"run_id"`
	SessionID    string    `json:"session_id"`
	Agent        string    `json:"agent"`
	Branch       string    `json:"branch,omitempty"`
	PRNumber     int       `json:"pr_number,omitempty"`
	Finished     bool      `json:"finished"`
	MessageCount int       `json:"message_count"`
	Transcript   string    `json:"transcript"`
	SavedAt      time.Time `json:"saved_at"`
}
