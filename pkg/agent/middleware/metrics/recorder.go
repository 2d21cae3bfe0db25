// Package metrics provides metrics recording for LLM client operations and
// lifecycle events.
package metrics

import (
	"time"
)

// StateProvider provides access to run state for metrics labels.
type StateProvider interface {
	// GetCurrentState returns the current lifecycle state (e.g. GENERATING_CODE).
	GetCurrentState() string
	// GetIssueID returns the issue identifier being worked on.
	GetIssueID() string
	// GetID returns the component ID issuing the request.
	GetID() string
}

// Recorder defines the interface for recording orchestration metrics.
type Recorder interface {
	// ObserveRequest records metrics for a completed LLM request.
	ObserveRequest(
		model, issueID, componentID, state string,
		promptTokens, completionTokens int,
		cost float64,
		success bool,
		errorType string,
		duration time.Duration,
	)

	// IncThrottle increments the throttle counter for rate limiting events.
	IncThrottle(model, reason string)

	// ObserveQueueWait records time spent waiting for rate limit availability.
	ObserveQueueWait(model string, duration time.Duration)

	// IncTransition counts an applied lifecycle state transition.
	IncTransition(from, to string)

	// IncToolExecution counts a workflow tool dispatch.
	IncToolExecution(tool string, isError bool)

	// IncDecision counts a review engine decision by action.
	IncDecision(action string)

	// IncCycleOutcome counts a completed cycle by its terminal state.
	IncCycleOutcome(finalState string)
}

// NoopRecorder implements Recorder with no-op behavior for when metrics are disabled.
type NoopRecorder struct{}

// Nop returns a no-op metrics recorder that discards all metrics.
func Nop() Recorder {
	return &NoopRecorder{}
}

// ObserveRequest does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveRequest(
	_, _, _, _ string,
	_, _ int,
	_ float64,
	_ bool,
	_ string,
	_ time.Duration,
) {
}

// IncThrottle does nothing in the no-op recorder.
func (n *NoopRecorder) IncThrottle(_, _ string) {}

// ObserveQueueWait does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveQueueWait(_ string, _ time.Duration) {}

// IncTransition does nothing in the no-op recorder.
func (n *NoopRecorder) IncTransition(_, _ string) {}

// IncToolExecution does nothing in the no-op recorder.
func (n *NoopRecorder) IncToolExecution(_ string, _ bool) {}

// IncDecision does nothing in the no-op recorder.
func (n *NoopRecorder) IncDecision(_ string) {}

// IncCycleOutcome does nothing in the no-op recorder.
func (n *NoopRecorder) IncCycleOutcome(_ string) {}
