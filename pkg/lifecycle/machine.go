package lifecycle

import (
	"time"

	"issueflow/pkg/agent/middleware/metrics"
	"issueflow/pkg/logx"
)

// DefaultMaxIterations bounds the fix cycle when the caller does not
// configure a limit.
const DefaultMaxIterations = 5

// IssueContext carries the issue identity and the artifacts accumulated
// while working on it. The machine owns the copy it was constructed
// with; callers mutate it through the setters.
type IssueContext struct {
	Number    int
	Title     string
	Body      string
	Branch    string
	PRNumber  int
	PRURL     string
	Iteration int
}

// StateTransition records one applied transition.
type StateTransition struct {
	From     State
	To       State
	At       time.Time
	Metadata map[string]string
}

// MachineSummary is a point-in-time digest of a machine, shaped for
// logging and terminal reports.
type MachineSummary struct {
	IssueNumber   int    `json:"issue_number"`
	State         State  `json:"current_state"`
	Iteration     int    `json:"iteration"`
	MaxIterations int    `json:"max_iterations"`
	Terminal      bool   `json:"is_terminal"`
	Success       bool   `json:"is_success"`
	PRNumber      int    `json:"pr_number"`
	Branch        string `json:"branch_name"`
	Transitions   int    `json:"transitions_count"`
}

// Machine tracks one issue through the lifecycle. It is not safe for
// concurrent use; the cycle controller goroutine owns it.
type Machine struct {
	issue         IssueContext
	maxIterations int
	state         State
	history       []StateTransition
	logger        *logx.Logger
	recorder      metrics.Recorder
}

// NewMachine starts a machine in CREATED for the given issue.
func NewMachine(issue IssueContext, maxIterations int, logger *logx.Logger, recorder metrics.Recorder) *Machine {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	if logger == nil {
		logger = logx.NewLogger("lifecycle")
	}
	if recorder == nil {
		recorder = metrics.Nop()
	}
	return &Machine{
		issue:         issue,
		maxIterations: maxIterations,
		state:         StateCreated,
		logger:        logger,
		recorder:      recorder,
	}
}

// Current returns the machine's state.
func (m *Machine) Current() State {
	return m.state
}

// CanTransitionTo reports whether the table allows moving to the given
// state from the current one.
func (m *Machine) CanTransitionTo(to State) bool {
	return CanTransition(m.state, to)
}

// TransitionTo applies a transition and appends it to the history. A
// request the table forbids is rejected: the state stays put and the
// method returns false. A legal request to re-enter GENERATING_CODE at
// or past the iteration budget lands in MAX_ITERATIONS_REACHED instead.
func (m *Machine) TransitionTo(to State, metadata map[string]string) bool {
	if !m.CanTransitionTo(to) {
		m.logger.Warn("Invalid transition attempted: %s -> %s (valid: %v)",
			m.state, to, validTransitions[m.state])
		return false
	}

	if to == StateGeneratingCode && m.issue.Iteration > 0 && m.issue.Iteration >= m.maxIterations {
		m.logger.Warn("Iteration %d hit the budget of %d, redirecting to %s",
			m.issue.Iteration, m.maxIterations, StateMaxIterations)
		to = StateMaxIterations
	}

	from := m.state
	m.state = to
	m.history = append(m.history, StateTransition{
		From:     from,
		To:       to,
		At:       time.Now().UTC(),
		Metadata: metadata,
	})
	m.recorder.IncTransition(string(from), string(to))
	m.logger.Info("State transition: %s -> %s (iteration %d)", from, to, m.issue.Iteration)
	return true
}

// IsTerminal reports whether the machine reached a final state.
func (m *Machine) IsTerminal() bool {
	return m.state.Terminal()
}

// IsSuccess reports whether the machine finished in COMPLETED.
func (m *Machine) IsSuccess() bool {
	return m.state == StateCompleted
}

// IncrementIteration bumps the fix-cycle counter and returns the new
// value.
func (m *Machine) IncrementIteration() int {
	m.issue.Iteration++
	m.logger.Info("Iteration incremented to %d for issue #%d", m.issue.Iteration, m.issue.Number)
	return m.issue.Iteration
}

// Iteration returns the current fix-cycle counter.
func (m *Machine) Iteration() int {
	return m.issue.Iteration
}

// MaxIterations returns the configured iteration budget.
func (m *Machine) MaxIterations() int {
	return m.maxIterations
}

// Issue returns a copy of the issue context.
func (m *Machine) Issue() IssueContext {
	return m.issue
}

// SetBranch records the working branch on the issue context.
func (m *Machine) SetBranch(branch string) {
	m.issue.Branch = branch
}

// SetPR records the pull request opened for the issue.
func (m *Machine) SetPR(number int, url string) {
	m.issue.PRNumber = number
	m.issue.PRURL = url
}

// History returns a copy of the applied transitions, oldest first.
func (m *Machine) History() []StateTransition {
	out := make([]StateTransition, len(m.history))
	copy(out, m.history)
	return out
}

// Summary returns a digest of the machine's progress.
func (m *Machine) Summary() MachineSummary {
	return MachineSummary{
		IssueNumber:   m.issue.Number,
		State:         m.state,
		Iteration:     m.issue.Iteration,
		MaxIterations: m.maxIterations,
		Terminal:      m.IsTerminal(),
		Success:       m.IsSuccess(),
		PRNumber:      m.issue.PRNumber,
		Branch:        m.issue.Branch,
		Transitions:   len(m.history),
	}
}
