// Package circuit provides a circuit breaker for LLM provider calls.
package circuit

import (
	"fmt"
	"sync"
	"time"
)

// State represents the current state of a circuit breaker.
type State int

const (
	Closed   State = iota // Normal operation, requests pass through
	Open                  // Tripped, requests rejected without calling the provider
	HalfOpen              // Probing whether the provider recovered
)

func (s State) String() string {
	switch s {
	case Closed:
		return "CLOSED"
	case Open:
		return "OPEN"
	case HalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Config defines circuit breaker thresholds.
type Config struct {
	FailureThreshold int           `json:"failure_threshold"` // Consecutive failures before opening
	SuccessThreshold int           `json:"success_threshold"` // Successes in half-open before closing
	Timeout          time.Duration `json:"timeout"`           // Open duration before probing half-open
}

// DefaultConfig provides reasonable defaults for circuit breaker behavior.
//
//nolint:gochecknoglobals // Sensible default config pattern
var DefaultConfig = Config{
	FailureThreshold: 5,
	SuccessThreshold: 3,
	Timeout:          30 * time.Second,
}

// Error is returned when the circuit rejects a request.
type Error struct {
	State State
}

func (e *Error) Error() string {
	return fmt.Sprintf("circuit breaker is %s", e.State)
}

// Breaker defines the interface for circuit breaker implementations.
type Breaker interface {
	// Allow reports whether a request may proceed in the current state.
	Allow() bool

	// Record feeds the outcome of a request into the state machine.
	Record(success bool)

	// GetState returns the current circuit breaker state.
	GetState() State

	// Reset forces the breaker back to closed.
	Reset()
}

//nolint:govet // Logical field grouping preferred over memory alignment
type breaker struct {
	config          Config
	mu              sync.RWMutex
	state           State
	failureCount    int
	successCount    int
	lastFailureTime time.Time
}

// New creates a circuit breaker with the given configuration.
func New(config Config) Breaker {
	return &breaker{
		config: config,
		state:  Closed,
	}
}

func (b *breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true

	case Open:
		if time.Since(b.lastFailureTime) >= b.config.Timeout {
			b.state = HalfOpen
			b.successCount = 0
			return true
		}
		return false

	case HalfOpen:
		// Probes are not serialized here; rate limiting bounds concurrency.
		return true

	default:
		return false
	}
}

func (b *breaker) Record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if success {
		b.onSuccess()
	} else {
		b.onFailure()
	}
}

func (b *breaker) GetState() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

func (b *breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = Closed
	b.failureCount = 0
	b.successCount = 0
}

func (b *breaker) onSuccess() {
	switch b.state {
	case Closed:
		b.failureCount = 0

	case HalfOpen:
		b.successCount++
		if b.successCount >= b.config.SuccessThreshold {
			b.state = Closed
			b.failureCount = 0
			b.successCount = 0
		}
	}
}

func (b *breaker) onFailure() {
	b.failureCount++
	b.lastFailureTime = time.Now()

	switch b.state {
	case Closed:
		if b.failureCount >= b.config.FailureThreshold {
			b.state = Open
		}

	case HalfOpen:
		// Any failure during probing re-opens the circuit.
		b.state = Open
		b.successCount = 0
	}
}
