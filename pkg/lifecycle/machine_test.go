package lifecycle

import (
	"testing"
	"time"
)

func newTestMachine(maxIterations int) *Machine {
	issue := IssueContext{Number: 7, Title: "Fix the widget", Body: "It is broken"}
	return NewMachine(issue, maxIterations, nil, nil)
}

func TestCanTransition_AllowedTransitions(t *testing.T) {
	testCases := []struct {
		from State
		to   State
	}{
		{StateCreated, StateAnalyzing},

		{StateAnalyzing, StateContextBuilding},
		{StateAnalyzing, StateFailed},

		{StateContextBuilding, StateGeneratingCode},
		{StateContextBuilding, StateFailed},

		{StateGeneratingCode, StateCommitting},
		{StateGeneratingCode, StateFailed},

		{StateCommitting, StateCreatingPR},
		{StateCommitting, StateFailed},

		{StateCreatingPR, StateCIRunning},
		{StateCreatingPR, StateFailed},

		{StateCIRunning, StateCIPassed},
		{StateCIRunning, StateCIFailed},

		{StateCIPassed, StateReviewing},

		{StateCIFailed, StateGeneratingCode},
		{StateCIFailed, StateFailed},
		{StateCIFailed, StateMaxIterations},

		{StateReviewing, StateApproved},
		{StateReviewing, StateChangesRequested},
		{StateReviewing, StateFailed},

		{StateChangesRequested, StateGeneratingCode},
		{StateChangesRequested, StateFailed},
		{StateChangesRequested, StateMaxIterations},

		{StateApproved, StateMerging},
		{StateApproved, StateCompleted},

		{StateMerging, StateCompleted},
		{StateMerging, StateFailed},
	}

	for _, tc := range testCases {
		if !CanTransition(tc.from, tc.to) {
			t.Errorf("Expected %s -> %s to be allowed", tc.from, tc.to)
		}
	}
}

func TestCanTransition_DisallowedTransitions(t *testing.T) {
	testCases := []struct {
		from State
		to   State
	}{
		{StateCreated, StateCompleted},
		{StateCreated, StateGeneratingCode},
		{StateCreated, StateFailed},
		{StateCIRunning, StateFailed},
		{StateCIPassed, StateFailed},
		{StateCIPassed, StateApproved},
		{StateApproved, StateFailed},
		{StateGeneratingCode, StateCreatingPR},
		{StateReviewing, StateMerging},
		{StateCompleted, StateAnalyzing},
		{StateFailed, StateCreated},
		{StateMaxIterations, StateGeneratingCode},
	}

	for _, tc := range testCases {
		if CanTransition(tc.from, tc.to) {
			t.Errorf("Expected %s -> %s to be rejected", tc.from, tc.to)
		}
	}
}

func TestTerminalStatesHaveNoExits(t *testing.T) {
	for _, terminal := range []State{StateCompleted, StateFailed, StateMaxIterations} {
		if !terminal.Terminal() {
			t.Errorf("Expected %s to be terminal", terminal)
		}
		for _, to := range States() {
			if CanTransition(terminal, to) {
				t.Errorf("Terminal state %s has exit to %s", terminal, to)
			}
		}
	}
}

func TestAllStatesReachableFromCreated(t *testing.T) {
	visited := map[State]bool{StateCreated: true}
	frontier := []State{StateCreated}
	for len(frontier) > 0 {
		next := frontier[0]
		frontier = frontier[1:]
		for _, to := range validTransitions[next] {
			if !visited[to] {
				visited[to] = true
				frontier = append(frontier, to)
			}
		}
	}

	for _, s := range States() {
		if !visited[s] {
			t.Errorf("State %s is unreachable from %s", s, StateCreated)
		}
	}
}

func TestTransitionTo_HappyPath(t *testing.T) {
	m := newTestMachine(5)
	chain := []State{
		StateAnalyzing,
		StateContextBuilding,
		StateGeneratingCode,
		StateCommitting,
		StateCreatingPR,
		StateCIRunning,
		StateCIPassed,
		StateReviewing,
		StateApproved,
		StateMerging,
		StateCompleted,
	}

	for _, to := range chain {
		if !m.TransitionTo(to, nil) {
			t.Fatalf("Expected transition to %s from %s to succeed", to, m.Current())
		}
	}

	if m.Current() != StateCompleted {
		t.Errorf("Expected final state %s, got %s", StateCompleted, m.Current())
	}
	if !m.IsTerminal() {
		t.Error("Expected machine to be terminal")
	}
	if !m.IsSuccess() {
		t.Error("Expected machine to be successful")
	}

	history := m.History()
	if len(history) != len(chain) {
		t.Fatalf("Expected %d history entries, got %d", len(chain), len(history))
	}
	for i, entry := range history {
		if entry.To != chain[i] {
			t.Errorf("History entry %d: expected To=%s, got %s", i, chain[i], entry.To)
		}
		if i > 0 && entry.From != history[i-1].To {
			t.Errorf("History entry %d: From=%s does not chain from previous To=%s",
				i, entry.From, history[i-1].To)
		}
	}
	if history[0].From != StateCreated {
		t.Errorf("Expected first transition from %s, got %s", StateCreated, history[0].From)
	}
}

func TestTransitionTo_RejectionLeavesStateUntouched(t *testing.T) {
	m := newTestMachine(5)

	if m.TransitionTo(StateCompleted, nil) {
		t.Error("Expected CREATED -> COMPLETED to be rejected")
	}
	if m.Current() != StateCreated {
		t.Errorf("Expected state to stay %s, got %s", StateCreated, m.Current())
	}
	if len(m.History()) != 0 {
		t.Errorf("Expected no history after rejection, got %d entries", len(m.History()))
	}

	m.TransitionTo(StateAnalyzing, nil)
	if m.TransitionTo(StateMerging, nil) {
		t.Error("Expected ANALYZING -> MERGING to be rejected")
	}
	if m.Current() != StateAnalyzing {
		t.Errorf("Expected state to stay %s, got %s", StateAnalyzing, m.Current())
	}
	if len(m.History()) != 1 {
		t.Errorf("Expected 1 history entry, got %d", len(m.History()))
	}
}

func TestTransitionTo_RecordsMetadataAndTime(t *testing.T) {
	m := newTestMachine(5)
	before := time.Now().UTC()

	if !m.TransitionTo(StateAnalyzing, map[string]string{"trigger": "cycle_start"}) {
		t.Fatal("Expected transition to succeed")
	}

	history := m.History()
	if len(history) != 1 {
		t.Fatalf("Expected 1 history entry, got %d", len(history))
	}
	entry := history[0]
	if entry.Metadata["trigger"] != "cycle_start" {
		t.Errorf("Expected metadata to be recorded, got %v", entry.Metadata)
	}
	if entry.At.Before(before) || entry.At.After(time.Now().UTC()) {
		t.Errorf("Expected timestamp near now, got %v", entry.At)
	}
}

// driveTo walks the machine along the happy path until it sits in the
// requested state.
func driveTo(t *testing.T, m *Machine, target State) {
	t.Helper()
	path := map[State][]State{
		StateCIFailed: {
			StateAnalyzing, StateContextBuilding, StateGeneratingCode,
			StateCommitting, StateCreatingPR, StateCIRunning, StateCIFailed,
		},
		StateChangesRequested: {
			StateAnalyzing, StateContextBuilding, StateGeneratingCode,
			StateCommitting, StateCreatingPR, StateCIRunning, StateCIPassed,
			StateReviewing, StateChangesRequested,
		},
	}
	for _, to := range path[target] {
		if !m.TransitionTo(to, nil) {
			t.Fatalf("driveTo: transition to %s from %s failed", to, m.Current())
		}
	}
}

func TestTransitionTo_MaxIterationsRedirect(t *testing.T) {
	m := newTestMachine(2)
	driveTo(t, m, StateCIFailed)
	m.IncrementIteration()
	m.IncrementIteration()

	if !m.TransitionTo(StateGeneratingCode, nil) {
		t.Fatal("Expected redirected transition to report success")
	}
	if m.Current() != StateMaxIterations {
		t.Errorf("Expected redirect to %s, got %s", StateMaxIterations, m.Current())
	}
	if !m.IsTerminal() {
		t.Error("Expected machine to be terminal after redirect")
	}
	if m.IsSuccess() {
		t.Error("Expected redirect outcome to not count as success")
	}

	history := m.History()
	last := history[len(history)-1]
	if last.From != StateCIFailed || last.To != StateMaxIterations {
		t.Errorf("Expected history to record %s -> %s, got %s -> %s",
			StateCIFailed, StateMaxIterations, last.From, last.To)
	}
}

func TestTransitionTo_RedirectFromChangesRequested(t *testing.T) {
	m := newTestMachine(1)
	driveTo(t, m, StateChangesRequested)
	m.IncrementIteration()

	if !m.TransitionTo(StateGeneratingCode, nil) {
		t.Fatal("Expected redirected transition to report success")
	}
	if m.Current() != StateMaxIterations {
		t.Errorf("Expected redirect to %s, got %s", StateMaxIterations, m.Current())
	}
}

func TestTransitionTo_NoRedirectBelowBudget(t *testing.T) {
	m := newTestMachine(2)
	driveTo(t, m, StateCIFailed)
	m.IncrementIteration()

	if !m.TransitionTo(StateGeneratingCode, nil) {
		t.Fatal("Expected transition to succeed")
	}
	if m.Current() != StateGeneratingCode {
		t.Errorf("Expected %s below the budget, got %s", StateGeneratingCode, m.Current())
	}
}

func TestTransitionTo_NoRedirectOnFirstPass(t *testing.T) {
	// Iteration 0 is the initial attempt; the budget only applies to
	// retries.
	m := NewMachine(IssueContext{Number: 7}, 0, nil, nil)
	if m.MaxIterations() != DefaultMaxIterations {
		t.Errorf("Expected default budget %d, got %d", DefaultMaxIterations, m.MaxIterations())
	}

	m.TransitionTo(StateAnalyzing, nil)
	m.TransitionTo(StateContextBuilding, nil)
	if !m.TransitionTo(StateGeneratingCode, nil) {
		t.Fatal("Expected transition to succeed")
	}
	if m.Current() != StateGeneratingCode {
		t.Errorf("Expected %s at iteration 0, got %s", StateGeneratingCode, m.Current())
	}
}

func TestTransitionTo_RedirectRequiresLegalRequest(t *testing.T) {
	// The table is checked before the budget: an illegal request to
	// GENERATING_CODE is rejected outright, not redirected.
	m := newTestMachine(1)
	m.IncrementIteration()

	if m.TransitionTo(StateGeneratingCode, nil) {
		t.Error("Expected CREATED -> GENERATING_CODE to be rejected")
	}
	if m.Current() != StateCreated {
		t.Errorf("Expected state to stay %s, got %s", StateCreated, m.Current())
	}
}

func TestIncrementIteration(t *testing.T) {
	m := newTestMachine(5)
	for want := 1; want <= 3; want++ {
		if got := m.IncrementIteration(); got != want {
			t.Errorf("Expected iteration %d, got %d", want, got)
		}
	}
	if m.Iteration() != 3 {
		t.Errorf("Expected iteration 3, got %d", m.Iteration())
	}
}

func TestSettersReflectedInIssueAndSummary(t *testing.T) {
	m := newTestMachine(5)
	m.SetBranch("issue-7-fix-the-widget")
	m.SetPR(3, "https://github.com/acme/widgets/pull/3")
	m.TransitionTo(StateAnalyzing, nil)

	issue := m.Issue()
	if issue.Branch != "issue-7-fix-the-widget" {
		t.Errorf("Expected branch on issue context, got %q", issue.Branch)
	}
	if issue.PRNumber != 3 || issue.PRURL != "https://github.com/acme/widgets/pull/3" {
		t.Errorf("Expected PR on issue context, got #%d %q", issue.PRNumber, issue.PRURL)
	}

	summary := m.Summary()
	if summary.IssueNumber != 7 {
		t.Errorf("Expected issue number 7, got %d", summary.IssueNumber)
	}
	if summary.State != StateAnalyzing {
		t.Errorf("Expected state %s, got %s", StateAnalyzing, summary.State)
	}
	if summary.PRNumber != 3 {
		t.Errorf("Expected PR number 3, got %d", summary.PRNumber)
	}
	if summary.Branch != "issue-7-fix-the-widget" {
		t.Errorf("Expected branch in summary, got %q", summary.Branch)
	}
	if summary.Transitions != 1 {
		t.Errorf("Expected 1 transition, got %d", summary.Transitions)
	}
	if summary.Terminal || summary.Success {
		t.Error("Expected non-terminal summary")
	}
}

func TestHistoryReturnsCopy(t *testing.T) {
	m := newTestMachine(5)
	m.TransitionTo(StateAnalyzing, nil)

	history := m.History()
	history[0].To = StateFailed

	if m.History()[0].To != StateAnalyzing {
		t.Error("Expected History to return a copy")
	}
}
