// Package retry provides retry logic with exponential backoff for resilient LLM calls.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"strings"
	"time"

	"issueflow/pkg/agent/llmerrors"
)

// Policy selects a backoff schedule per classified error type. Retry budgets
// come from llmerrors.DefaultRetryConfigs unless overridden.
type Policy struct {
	Overrides map[llmerrors.ErrorType]llmerrors.RetryConfig
}

// NewPolicy creates a retry policy using the default per-type budgets.
func NewPolicy() *Policy {
	return &Policy{}
}

// ConfigFor returns the backoff schedule for the error's classified type.
// Unclassified errors get the unknown-type schedule, except timeouts which
// use the transient schedule.
func (p *Policy) ConfigFor(err error) llmerrors.RetryConfig {
	errType := llmerrors.TypeOf(err)
	if errType == llmerrors.ErrorTypeUnknown && errors.Is(err, context.DeadlineExceeded) {
		errType = llmerrors.ErrorTypeTransient
	}
	if config, exists := p.Overrides[errType]; exists {
		return config
	}
	if config, exists := llmerrors.DefaultRetryConfigs[errType]; exists {
		return config
	}
	return llmerrors.DefaultRetryConfigs[llmerrors.ErrorTypeUnknown]
}

// ShouldRetry determines if an error is worth retrying at all.
//
// DeadlineExceeded stays retryable: per-request HTTP timeouts wrap
// DeadlineExceeded but the parent context is still valid. The retry loop's
// own context guard stops us when the parent really is done.
func (p *Policy) ShouldRetry(err error) bool {
	if err == nil {
		return false
	}

	// Never retry context cancellation
	if errors.Is(err, context.Canceled) {
		return false
	}

	var llmErr *llmerrors.Error
	if errors.As(err, &llmErr) {
		return llmErr.IsRetryable() && p.ConfigFor(err).MaxRetries > 0
	}

	// Unclassified errors: blocklist obvious auth and bad-request failures,
	// retry the rest on the unknown-type budget.
	if looksNonRetryable(err) {
		return false
	}
	return p.ConfigFor(err).MaxRetries > 0
}

// looksNonRetryable catches auth and client errors that escaped provider
// classification.
func looksNonRetryable(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{"400", "401", "403", "404", "unauthorized", "forbidden", "invalid api key"} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// CalculateDelay computes the backoff delay before the given retry attempt
// (attempt 1 is the first retry).
func (p *Policy) CalculateDelay(config llmerrors.RetryConfig, attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	delay := time.Duration(float64(config.InitialDelay) * math.Pow(config.BackoffFactor, float64(attempt-1)))

	// Cap at maximum delay
	if config.MaxDelay > 0 && delay > config.MaxDelay {
		delay = config.MaxDelay
	}

	// Add up to ±10% jitter to prevent thundering herd
	if config.Jitter && delay > 0 {
		jitter := time.Duration((rand.Float64()*0.2 - 0.1) * float64(delay)) //nolint:gosec // Jitter doesn't need crypto randomness
		delay += jitter
	}

	if delay < 0 {
		delay = config.InitialDelay
	}

	return delay
}
