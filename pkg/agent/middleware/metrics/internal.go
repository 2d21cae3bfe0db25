// Package metrics provides in-memory metrics aggregation for runs that have
// no Prometheus server attached.
package metrics

import (
	"sync"
	"time"
)

// InternalRecorder implements the Recorder interface using in-memory
// aggregation keyed by issue. It backs the end-of-run usage report.
type InternalRecorder struct {
	issues map[string]*IssueMetrics
	mu     sync.RWMutex
}

// IssueMetrics represents aggregated LLM usage for one issue.
//
//nolint:govet
type IssueMetrics struct {
	PromptTokens     int64     `json:"prompt_tokens"`
	CompletionTokens int64     `json:"completion_tokens"`
	TotalTokens      int64     `json:"total_tokens"`
	RequestCount     int64     `json:"request_count"`
	TotalCost        float64   `json:"total_cost_usd"`
	IssueID          string    `json:"issue_id"`
	LastUpdated      time.Time `json:"last_updated"`
}

// NewInternalRecorder returns a fresh internal metrics recorder.
func NewInternalRecorder() *InternalRecorder {
	return &InternalRecorder{
		issues: make(map[string]*IssueMetrics),
	}
}

// ObserveRequest records usage for a completed LLM request.
func (r *InternalRecorder) ObserveRequest(
	_, issueID, _, _ string,
	promptTokens, completionTokens int,
	cost float64,
	success bool,
	_ string,
	_ time.Duration,
) {
	// Only successful requests contribute tokens and cost.
	if !success || issueID == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	issue, exists := r.issues[issueID]
	if !exists {
		issue = &IssueMetrics{IssueID: issueID}
		r.issues[issueID] = issue
	}

	issue.PromptTokens += int64(promptTokens)
	issue.CompletionTokens += int64(completionTokens)
	issue.TotalTokens = issue.PromptTokens + issue.CompletionTokens
	issue.TotalCost += cost
	issue.RequestCount++
	issue.LastUpdated = time.Now()
}

// IncThrottle is not aggregated internally.
func (r *InternalRecorder) IncThrottle(_, _ string) {}

// ObserveQueueWait is not aggregated internally.
func (r *InternalRecorder) ObserveQueueWait(_ string, _ time.Duration) {}

// IncTransition is not aggregated internally.
func (r *InternalRecorder) IncTransition(_, _ string) {}

// IncToolExecution is not aggregated internally.
func (r *InternalRecorder) IncToolExecution(_ string, _ bool) {}

// IncDecision is not aggregated internally.
func (r *InternalRecorder) IncDecision(_ string) {}

// IncCycleOutcome is not aggregated internally.
func (r *InternalRecorder) IncCycleOutcome(_ string) {}

// GetIssueMetrics returns a copy of the aggregated metrics for one issue,
// or nil when nothing was recorded.
func (r *InternalRecorder) GetIssueMetrics(issueID string) *IssueMetrics {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if issue, exists := r.issues[issueID]; exists {
		copied := *issue
		return &copied
	}
	return nil
}

// Reset clears all metrics.
func (r *InternalRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.issues = make(map[string]*IssueMetrics)
}

// tee fans every observation out to multiple recorders.
type tee struct {
	recorders []Recorder
}

// Tee returns a Recorder that forwards to every given recorder.
func Tee(recorders ...Recorder) Recorder {
	return &tee{recorders: recorders}
}

func (t *tee) ObserveRequest(model, issueID, componentID, state string, promptTokens, completionTokens int, cost float64, success bool, errorType string, duration time.Duration) {
	for _, r := range t.recorders {
		r.ObserveRequest(model, issueID, componentID, state, promptTokens, completionTokens, cost, success, errorType, duration)
	}
}

func (t *tee) IncThrottle(model, reason string) {
	for _, r := range t.recorders {
		r.IncThrottle(model, reason)
	}
}

func (t *tee) ObserveQueueWait(model string, duration time.Duration) {
	for _, r := range t.recorders {
		r.ObserveQueueWait(model, duration)
	}
}

func (t *tee) IncTransition(from, to string) {
	for _, r := range t.recorders {
		r.IncTransition(from, to)
	}
}

func (t *tee) IncToolExecution(tool string, isError bool) {
	for _, r := range t.recorders {
		r.IncToolExecution(tool, isError)
	}
}

func (t *tee) IncDecision(action string) {
	for _, r := range t.recorders {
		r.IncDecision(action)
	}
}

func (t *tee) IncCycleOutcome(finalState string) {
	for _, r := range t.recorders {
		r.IncCycleOutcome(finalState)
	}
}
