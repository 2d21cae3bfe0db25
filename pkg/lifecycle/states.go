// Package lifecycle tracks an issue through the software-change
// pipeline: analysis, code generation, CI, review, and merge. The
// transition table is the single source of truth; everything else in
// the package derives from it.
package lifecycle

// State identifies one stage of the issue lifecycle.
type State string

const (
	// StateCreated is the entry state of every machine.
	StateCreated State = "CREATED"

	// Analysis phase.
	StateAnalyzing       State = "ANALYZING"
	StateContextBuilding State = "CONTEXT_BUILDING"

	// Development phase.
	StateGeneratingCode State = "GENERATING_CODE"
	StateCommitting     State = "COMMITTING"
	StateCreatingPR     State = "CREATING_PR"

	// CI phase.
	StateCIRunning State = "CI_RUNNING"
	StateCIPassed  State = "CI_PASSED"
	StateCIFailed  State = "CI_FAILED"

	// Review phase.
	StateReviewing        State = "REVIEWING"
	StateChangesRequested State = "CHANGES_REQUESTED"
	StateApproved         State = "APPROVED"

	// Final phase.
	StateMerging       State = "MERGING"
	StateCompleted     State = "COMPLETED"
	StateFailed        State = "FAILED"
	StateMaxIterations State = "MAX_ITERATIONS_REACHED"
)

// validTransitions is the canonical transition table. CI_FAILED and
// CHANGES_REQUESTED loop back to GENERATING_CODE, forming the retry
// cycle; the three terminal states have no outgoing edges.
var validTransitions = map[State][]State{
	StateCreated:         {StateAnalyzing},
	StateAnalyzing:       {StateContextBuilding, StateFailed},
	StateContextBuilding: {StateGeneratingCode, StateFailed},
	StateGeneratingCode:  {StateCommitting, StateFailed},
	StateCommitting:      {StateCreatingPR, StateFailed},
	StateCreatingPR:      {StateCIRunning, StateFailed},
	StateCIRunning:       {StateCIPassed, StateCIFailed},
	StateCIPassed:        {StateReviewing},
	StateCIFailed:        {StateGeneratingCode, StateFailed, StateMaxIterations},
	StateReviewing:       {StateApproved, StateChangesRequested, StateFailed},
	StateChangesRequested: {
		StateGeneratingCode,
		StateFailed,
		StateMaxIterations,
	},
	StateApproved:      {StateMerging, StateCompleted},
	StateMerging:       {StateCompleted, StateFailed},
	StateCompleted:     {},
	StateFailed:        {},
	StateMaxIterations: {},
}

// CanTransition reports whether the table allows from -> to.
func CanTransition(from, to State) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the state has no outgoing transitions.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateMaxIterations:
		return true
	default:
		return false
	}
}

// States returns every state in the table, in pipeline order.
func States() []State {
	return []State{
		StateCreated,
		StateAnalyzing,
		StateContextBuilding,
		StateGeneratingCode,
		StateCommitting,
		StateCreatingPR,
		StateCIRunning,
		StateCIPassed,
		StateCIFailed,
		StateReviewing,
		StateChangesRequested,
		StateApproved,
		StateMerging,
		StateCompleted,
		StateFailed,
		StateMaxIterations,
	}
}
