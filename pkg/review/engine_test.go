package review

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"issueflow/pkg/agent/middleware/metrics"
	"issueflow/pkg/github"
	"issueflow/pkg/logx"
)

type fakeChecks struct {
	snap *github.PRSnapshot
	err  error
}

func (f *fakeChecks) PRSnapshot(_ context.Context, _ int) (*github.PRSnapshot, error) {
	return f.snap, f.err
}

type fakeReviewer struct {
	result ReviewResult
	err    error
	calls  int
}

func (f *fakeReviewer) Review(_ context.Context, _ *github.PRSnapshot, _ string) (ReviewResult, error) {
	f.calls++
	return f.result, f.err
}

type decisionCounter struct {
	metrics.NoopRecorder
	actions []string
}

func (d *decisionCounter) IncDecision(action string) {
	d.actions = append(d.actions, action)
}

func check(name, status, conclusion string) github.CICheckResult {
	return github.CICheckResult{Name: name, Status: status, Conclusion: conclusion}
}

func snapWith(checks ...github.CICheckResult) *github.PRSnapshot {
	return &github.PRSnapshot{
		Number:     3,
		Title:      "Fix the widget",
		HeadBranch: "issue-7-fix",
		BaseBranch: "main",
		State:      "OPEN",
		Checks:     checks,
	}
}

func newTestEngine(checks CheckSource, reviewer Reviewer, recorder metrics.Recorder) *Engine {
	return NewEngine(checks, reviewer, logx.NewLogger("engine-test"), recorder)
}

func TestDecideWaitsWhileCIRuns(t *testing.T) {
	snap := snapWith(
		check("lint", github.CheckStatusCompleted, github.CheckConclusionSuccess),
		check("tests", github.CheckStatusInProgress, ""),
	)
	reviewer := &fakeReviewer{}
	counter := &decisionCounter{}
	engine := newTestEngine(&fakeChecks{snap: snap}, reviewer, counter)

	dec, err := engine.Decide(context.Background(), 3, "issue text")
	require.NoError(t, err)

	assert.Equal(t, ActionWait, dec.Action)
	assert.Equal(t, "CI checks still running", dec.Reason)
	assert.Equal(t, []string{"tests"}, dec.PendingChecks)
	assert.Equal(t, 0, reviewer.calls, "reviewer must not run while CI is pending")
	assert.Equal(t, []string{"wait"}, counter.actions)
}

func TestDecideMergesWhenAllGreen(t *testing.T) {
	snap := snapWith(check("tests", github.CheckStatusCompleted, github.CheckConclusionSuccess))
	reviewer := &fakeReviewer{result: ReviewResult{
		Decision: DecisionApproved,
		Summary:  "Clean implementation",
	}}
	counter := &decisionCounter{}
	engine := newTestEngine(&fakeChecks{snap: snap}, reviewer, counter)

	dec, err := engine.Decide(context.Background(), 3, "issue text")
	require.NoError(t, err)

	assert.Equal(t, ActionMerge, dec.Action)
	assert.Equal(t, "CI passed and review approved", dec.Reason)
	assert.Equal(t, "Clean implementation", dec.ReviewSummary)
	assert.Equal(t, 1, reviewer.calls)
	assert.Equal(t, []string{"merge"}, counter.actions)
}

func TestDecideNoChecksIsMergeable(t *testing.T) {
	reviewer := &fakeReviewer{result: ReviewResult{Decision: DecisionApproved, Summary: "ok"}}
	engine := newTestEngine(&fakeChecks{snap: snapWith()}, reviewer, nil)

	dec, err := engine.Decide(context.Background(), 3, "")
	require.NoError(t, err)
	assert.Equal(t, ActionMerge, dec.Action)
}

func TestDecideCriticalFindingBlocksMerge(t *testing.T) {
	// The model said APPROVED but reported a CRITICAL issue. The finding
	// wins over the verdict.
	snap := snapWith(check("tests", github.CheckStatusCompleted, github.CheckConclusionSuccess))
	reviewer := &fakeReviewer{result: ReviewResult{
		Decision: DecisionApproved,
		Summary:  "Mostly fine",
		Issues: []ReviewIssue{
			{Severity: SeverityCritical, Description: "SQL injection in query builder", File: "db/query.go", Line: 42},
		},
	}}
	engine := newTestEngine(&fakeChecks{snap: snap}, reviewer, nil)

	dec, err := engine.Decide(context.Background(), 3, "")
	require.NoError(t, err)

	assert.Equal(t, ActionRequestFixes, dec.Action)
	assert.Equal(t, "Code review found issues", dec.Reason)
	assert.Empty(t, dec.FailedChecks)
	require.Len(t, dec.Issues, 1)
	assert.Equal(t, SeverityCritical, dec.Issues[0].Severity)
}

func TestDecideCIFailureTakesPriority(t *testing.T) {
	snap := snapWith(
		check("tests", github.CheckStatusCompleted, github.CheckConclusionFailure),
		check("lint", github.CheckStatusCompleted, github.CheckConclusionSuccess),
	)
	reviewer := &fakeReviewer{result: ReviewResult{
		Decision: DecisionChangesRequested,
		Summary:  "Needs work",
		Issues:   []ReviewIssue{{Severity: SeverityMajor, Description: "Missing error handling"}},
	}}
	counter := &decisionCounter{}
	engine := newTestEngine(&fakeChecks{snap: snap}, reviewer, counter)

	dec, err := engine.Decide(context.Background(), 3, "")
	require.NoError(t, err)

	assert.Equal(t, ActionFixCI, dec.Action)
	assert.Equal(t, "CI checks failed and code review found issues", dec.Reason)
	require.Len(t, dec.FailedChecks, 1)
	assert.Equal(t, "tests", dec.FailedChecks[0].Name)
	assert.Equal(t, "Needs work", dec.ReviewSummary)
	assert.Len(t, dec.Issues, 1)
	assert.Equal(t, []string{"fix_ci"}, counter.actions)
}

func TestDecideCIFailureWithCleanReview(t *testing.T) {
	snap := snapWith(check("tests", github.CheckStatusCompleted, github.CheckConclusionFailure))
	reviewer := &fakeReviewer{result: ReviewResult{Decision: DecisionApproved, Summary: "Code itself is fine"}}
	engine := newTestEngine(&fakeChecks{snap: snap}, reviewer, nil)

	dec, err := engine.Decide(context.Background(), 3, "")
	require.NoError(t, err)

	assert.Equal(t, ActionFixCI, dec.Action)
	assert.Equal(t, "CI checks failed", dec.Reason)
	assert.Empty(t, dec.Issues)
}

func TestDecideReviewErrorPropagates(t *testing.T) {
	snap := snapWith(check("tests", github.CheckStatusCompleted, github.CheckConclusionSuccess))
	reviewer := &fakeReviewer{err: errors.New("model unavailable")}
	engine := newTestEngine(&fakeChecks{snap: snap}, reviewer, nil)

	_, err := engine.Decide(context.Background(), 3, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reviewing PR #3")
}

func TestDecideSnapshotErrorPropagates(t *testing.T) {
	engine := newTestEngine(&fakeChecks{err: errors.New("gh exploded")}, &fakeReviewer{}, nil)

	_, err := engine.Decide(context.Background(), 3, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetching status of PR #3")
}
