// Package metrics provides Prometheus-based metrics recording.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusRecorder implements the Recorder interface using Prometheus metrics.
type PrometheusRecorder struct {
	requestsTotal    *prometheus.CounterVec
	tokensTotal      *prometheus.CounterVec
	costsTotal       *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	throttleTotal    *prometheus.CounterVec
	queueWaitTime    *prometheus.HistogramVec
	transitionsTotal *prometheus.CounterVec
	toolExecsTotal   *prometheus.CounterVec
	decisionsTotal   *prometheus.CounterVec
	cyclesTotal      *prometheus.CounterVec
}

// NewPrometheusRecorder creates a new Prometheus-based metrics recorder.
// Collectors are registered on the default registry via promauto; create at
// most one per process.
func NewPrometheusRecorder() *PrometheusRecorder {
	return &PrometheusRecorder{
		requestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_requests_total",
				Help: "Total number of LLM requests by model, issue, state, and status",
			},
			[]string{"model", "issue", "component", "state", "status", "error_type"},
		),
		tokensTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_tokens_total",
				Help: "Total number of tokens used in LLM requests",
			},
			[]string{"model", "issue", "component", "state", "type"},
		),
		costsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_costs_total",
				Help: "Total cost in USD for LLM requests",
			},
			[]string{"model", "issue", "component", "state"},
		),
		requestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "llm_request_duration_seconds",
				Help:    "Duration of LLM requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"model", "issue", "component", "state"},
		),
		throttleTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_throttle_total",
				Help: "Total number of LLM throttling events",
			},
			[]string{"model", "reason"},
		),
		queueWaitTime: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "llm_queue_wait_duration_seconds",
				Help:    "Time spent waiting for rate limit availability",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"model"},
		),
		transitionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "issueflow_transitions_total",
				Help: "Total number of applied lifecycle state transitions",
			},
			[]string{"from", "to"},
		),
		toolExecsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "issueflow_tool_executions_total",
				Help: "Total number of workflow tool dispatches",
			},
			[]string{"tool", "status"},
		),
		decisionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "issueflow_review_decisions_total",
				Help: "Total number of review engine decisions by action",
			},
			[]string{"action"},
		),
		cyclesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "issueflow_cycles_total",
				Help: "Total number of completed issue cycles by terminal state",
			},
			[]string{"final_state"},
		),
	}
}

// ObserveRequest records metrics for a completed LLM request.
func (p *PrometheusRecorder) ObserveRequest(
	model, issueID, componentID, state string,
	promptTokens, completionTokens int,
	cost float64,
	success bool,
	errorType string,
	duration time.Duration,
) {
	status := "success"
	if !success {
		status = "error"
	}

	p.requestsTotal.WithLabelValues(model, issueID, componentID, state, status, errorType).Inc()

	// Tokens and costs only count on success.
	if success {
		p.tokensTotal.WithLabelValues(model, issueID, componentID, state, "prompt").Add(float64(promptTokens))
		p.tokensTotal.WithLabelValues(model, issueID, componentID, state, "completion").Add(float64(completionTokens))
		p.costsTotal.WithLabelValues(model, issueID, componentID, state).Add(cost)
	}

	p.requestDuration.WithLabelValues(model, issueID, componentID, state).Observe(duration.Seconds())
}

// IncThrottle increments the throttle counter for rate limiting events.
func (p *PrometheusRecorder) IncThrottle(model, reason string) {
	p.throttleTotal.WithLabelValues(model, reason).Inc()
}

// ObserveQueueWait records time spent waiting for rate limit availability.
func (p *PrometheusRecorder) ObserveQueueWait(model string, duration time.Duration) {
	p.queueWaitTime.WithLabelValues(model).Observe(duration.Seconds())
}

// IncTransition counts an applied lifecycle state transition.
func (p *PrometheusRecorder) IncTransition(from, to string) {
	p.transitionsTotal.WithLabelValues(from, to).Inc()
}

// IncToolExecution counts a workflow tool dispatch.
func (p *PrometheusRecorder) IncToolExecution(tool string, isError bool) {
	status := "success"
	if isError {
		status = "error"
	}
	p.toolExecsTotal.WithLabelValues(tool, status).Inc()
}

// IncDecision counts a review engine decision by action.
func (p *PrometheusRecorder) IncDecision(action string) {
	p.decisionsTotal.WithLabelValues(action).Inc()
}

// IncCycleOutcome counts a completed cycle by its terminal state.
func (p *PrometheusRecorder) IncCycleOutcome(finalState string) {
	p.cyclesTotal.WithLabelValues(finalState).Inc()
}
