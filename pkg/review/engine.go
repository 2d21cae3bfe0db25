package review

import (
	"context"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"issueflow/pkg/agent/middleware/metrics"
	"issueflow/pkg/github"
	"issueflow/pkg/logx"
)

// CheckSource supplies the point-in-time CI view of a pull request.
// *github.Client implements it.
type CheckSource interface {
	PRSnapshot(ctx context.Context, prNumber int) (*github.PRSnapshot, error)
}

// Reviewer produces an AI code review for a pull request.
type Reviewer interface {
	Review(ctx context.Context, snap *github.PRSnapshot, issueText string) (ReviewResult, error)
}

// Engine reduces heterogeneous signals to one recommended action. The
// tie-break order is deliberate: wait while CI runs, then CI failures,
// then review findings. Code that does not compile or pass tests is
// actionable before style commentary.
type Engine struct {
	checks   CheckSource
	reviewer Reviewer
	logger   *logx.Logger
	recorder metrics.Recorder
}

// NewEngine builds a decision engine over the given collaborators.
func NewEngine(checks CheckSource, reviewer Reviewer, logger *logx.Logger, recorder metrics.Recorder) *Engine {
	if logger == nil {
		logger = logx.NewLogger("review-engine")
	}
	if recorder == nil {
		recorder = metrics.Nop()
	}
	return &Engine{checks: checks, reviewer: reviewer, logger: logger, recorder: recorder}
}

// Decide inspects the PR's CI state, runs the AI review once CI has
// settled, and returns the fused verdict. Collaborator failures
// propagate; everything else is expressed in the Decision.
func (e *Engine) Decide(ctx context.Context, prNumber int, issueText string) (Decision, error) {
	snap, err := e.checks.PRSnapshot(ctx, prNumber)
	if err != nil {
		return Decision{}, fmt.Errorf("fetching status of PR #%d: %w", prNumber, err)
	}

	if !snap.CICompleted() {
		pending := snap.PendingChecks()
		e.logger.Info("PR #%d: %d checks still running, waiting", prNumber, len(pending))
		return e.record(Decision{
			Action:        ActionWait,
			Reason:        "CI checks still running",
			PendingChecks: pending,
		}), nil
	}

	// The review runs even when CI already failed; its findings ride
	// along in the feedback either way.
	result, err := e.reviewer.Review(ctx, snap, issueText)
	if err != nil {
		return Decision{}, fmt.Errorf("reviewing PR #%d: %w", prNumber, err)
	}

	effective := result.Decision
	if result.HasCritical() {
		effective = DecisionChangesRequested
	}

	ciFailed := !snap.CIPassed()
	reviewHasIssues := effective == DecisionChangesRequested

	if !ciFailed && !reviewHasIssues {
		e.logger.Info("PR #%d is ready to merge", prNumber)
		return e.record(Decision{
			Action:        ActionMerge,
			Reason:        "CI passed and review approved",
			ReviewSummary: result.Summary,
		}), nil
	}

	action := ActionRequestFixes
	if ciFailed {
		action = ActionFixCI
	}
	var reasons []string
	if ciFailed {
		reasons = append(reasons, "CI checks failed")
	}
	if reviewHasIssues {
		reasons = append(reasons, "code review found issues")
	}

	dec := Decision{
		Action:        action,
		Reason:        upperFirst(strings.Join(reasons, " and ")),
		FailedChecks:  snap.FailedChecks(),
		ReviewSummary: result.Summary,
		Issues:        result.Issues,
	}
	e.logger.Info("PR #%d needs fixes: %s (%d failed checks, %d review issues)",
		prNumber, dec.Reason, len(dec.FailedChecks), len(dec.Issues))
	return e.record(dec), nil
}

func (e *Engine) record(dec Decision) Decision {
	e.recorder.IncDecision(string(dec.Action))
	return dec
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}
