package cycle

import (
	"context"
	"time"

	"issueflow/pkg/lifecycle"
	"issueflow/pkg/logx"
	"issueflow/pkg/session"
)

// auditFinishTimeout bounds the terminal persistence writes.
const auditFinishTimeout = 5 * time.Second

// auditTrail tracks how much of a run has been persisted. The zero
// trail (no store, no run ID) turns every method into a no-op, so the
// controller never branches on whether persistence is wired.
type auditTrail struct {
	store  AuditStore
	logger *logx.Logger
	runID  string
	seen   int
}

func (c *Controller) beginAudit(ctx context.Context, issueNumber int) *auditTrail {
	trail := &auditTrail{store: c.store, logger: c.logger}
	if c.store == nil {
		return trail
	}
	runID, err := c.store.StartRun(ctx, issueNumber)
	if err != nil {
		c.logger.Warn("Could not start audit run for issue #%d: %v", issueNumber, err)
		return trail
	}
	trail.runID = runID
	return trail
}

func (a *auditTrail) enabled() bool {
	return a != nil && a.store != nil && a.runID != ""
}

// flush records the transitions added since the last flush.
func (a *auditTrail) flush(ctx context.Context, m *lifecycle.Machine) {
	if !a.enabled() {
		return
	}
	history := m.History()
	for _, tr := range history[a.seen:] {
		if err := a.store.RecordTransition(ctx, a.runID, tr); err != nil {
			a.logger.Warn("Could not record transition %s -> %s: %v", tr.From, tr.To, err)
		}
	}
	a.seen = len(history)
}

func (a *auditTrail) saveSession(ctx context.Context, sess *session.Session) {
	if !a.enabled() {
		return
	}
	if err := a.store.SaveSession(ctx, a.runID, sess); err != nil {
		a.logger.Warn("Could not save session %s: %v", sess.ID, err)
	}
}

// finish records whatever is still unflushed plus the terminal
// summary. It detaches from the run context so a cancelled run still
// gets its final row.
func (a *auditTrail) finish(ctx context.Context, m *lifecycle.Machine) {
	if !a.enabled() {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditFinishTimeout)
	defer cancel()
	a.flush(ctx, m)
	if err := a.store.FinishRun(ctx, a.runID, m.Summary()); err != nil {
		a.logger.Warn("Could not finish audit run %s: %v", a.runID, err)
	}
}
