// Package cycle drives one issue end to end: parse it, run the coding
// agent until a pull request exists, then alternate CI/review checks
// with fix turns until the change merges or the iteration budget runs
// out. The lifecycle machine records every step of the way.
package cycle

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"issueflow/pkg/agent/llm"
	"issueflow/pkg/agent/middleware/metrics"
	"issueflow/pkg/agent/toolloop"
	"issueflow/pkg/github"
	"issueflow/pkg/issues"
	"issueflow/pkg/lifecycle"
	"issueflow/pkg/logx"
	"issueflow/pkg/review"
	"issueflow/pkg/session"
)

// DefaultCooldown is how long the controller waits before each
// CI/review poll when the options leave it unset.
const DefaultCooldown = 30 * time.Second

// correctivePRSteps caps the short follow-up turn that asks the agent
// to open the pull request it forgot.
const correctivePRSteps = 5

// metadataLimit caps metadata values recorded on transitions.
const metadataLimit = 500

// Decider resolves a pull request's CI and review status into the
// next action. *review.Engine implements it.
type Decider interface {
	Decide(ctx context.Context, prNumber int, issueText string) (review.Decision, error)
}

// ToolSource is the provider surface the controller needs: the loop's
// dispatch interface plus the documentation block spliced into the
// system prompt. *tools.Provider implements it.
type ToolSource interface {
	toolloop.ToolProvider
	PromptDocumentation() (string, error)
}

// AuditStore persists cycle progress for later inspection.
// *persistence.Store implements it; a nil store disables persistence.
// Store failures are logged and never interrupt a run.
type AuditStore interface {
	StartRun(ctx context.Context, issueNumber int) (string, error)
	RecordTransition(ctx context.Context, runID string, tr lifecycle.StateTransition) error
	SaveSession(ctx context.Context, runID string, sess *session.Session) error
	FinishRun(ctx context.Context, runID string, summary lifecycle.MachineSummary) error
}

// Options bounds one cycle run. Zero values select the defaults.
type Options struct {
	// MaxAgentSteps caps tool-loop iterations per agent turn.
	MaxAgentSteps int

	// MaxFixIterations caps CI/review fix rounds before the run parks
	// in MAX_ITERATIONS_REACHED.
	MaxFixIterations int

	// Cooldown is the wait before each CI/review poll.
	Cooldown time.Duration

	// Counter plus MaxContextTokens enable transcript compaction
	// between agent steps.
	Counter          session.TokenCounter
	MaxContextTokens int

	// Instructions is repo-local guidance appended to the coding
	// agent's system prompt. Empty means none.
	Instructions string
}

func (o Options) withDefaults() Options {
	if o.MaxAgentSteps <= 0 {
		o.MaxAgentSteps = toolloop.DefaultMaxIterations
	}
	if o.MaxFixIterations <= 0 {
		o.MaxFixIterations = lifecycle.DefaultMaxIterations
	}
	if o.Cooldown == 0 {
		o.Cooldown = DefaultCooldown
	}
	return o
}

// Result is the terminal report of one cycle run. History is the full
// transition record, present even when the run ends in an error.
type Result struct {
	FinalState lifecycle.State
	PRNumber   int
	PRURL      string
	Iterations int
	History    []lifecycle.StateTransition
}

// Completed reports whether the change merged.
func (r *Result) Completed() bool {
	return r.FinalState == lifecycle.StateCompleted
}

// Deps wires the controller's collaborators. LLM, Tools, GitHub, and
// Decider are required; the rest may be nil.
type Deps struct {
	LLM      llm.LLMClient
	Tools    ToolSource
	GitHub   github.GitHubClient
	Decider  Decider
	Store    AuditStore
	Logger   *logx.Logger
	Recorder metrics.Recorder
}

// Controller drives issues through the lifecycle. Safe to reuse
// across runs; each run gets its own machine and session.
type Controller struct {
	loop     *toolloop.Loop
	tools    ToolSource
	github   github.GitHubClient
	decider  Decider
	store    AuditStore
	logger   *logx.Logger
	recorder metrics.Recorder
}

// New validates the wiring and returns a controller.
func New(deps Deps) (*Controller, error) {
	if deps.LLM == nil {
		return nil, fmt.Errorf("llm client is required")
	}
	if deps.Tools == nil {
		return nil, fmt.Errorf("tool provider is required")
	}
	if deps.GitHub == nil {
		return nil, fmt.Errorf("github client is required")
	}
	if deps.Decider == nil {
		return nil, fmt.Errorf("decider is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logx.NewLogger("cycle")
	}
	recorder := deps.Recorder
	if recorder == nil {
		recorder = metrics.Nop()
	}
	return &Controller{
		loop:     toolloop.New(deps.LLM, deps.Tools, logger, recorder),
		tools:    deps.Tools,
		github:   deps.GitHub,
		decider:  deps.Decider,
		store:    deps.Store,
		logger:   logger,
		recorder: recorder,
	}, nil
}

// RunCycle processes one issue to a terminal outcome. Running out of
// fix iterations is a reported outcome, not an error: the result says
// MAX_ITERATIONS_REACHED and the error is nil. Errors come back
// alongside the result so callers still see how far the run got.
func (c *Controller) RunCycle(ctx context.Context, issueNumber int, opts Options) (*Result, error) {
	opts = opts.withDefaults()

	issue, err := c.github.GetIssue(ctx, issueNumber)
	if err != nil {
		return nil, fmt.Errorf("fetching issue #%d: %w", issueNumber, err)
	}
	parsed := issues.Parse(issue)

	machine := lifecycle.NewMachine(lifecycle.IssueContext{
		Number: issue.Number,
		Title:  issue.Title,
		Body:   issue.Body,
	}, opts.MaxFixIterations, c.logger, c.recorder)

	audit := c.beginAudit(ctx, issueNumber)
	res, err := c.drive(ctx, machine, parsed, opts, audit)
	c.recorder.IncCycleOutcome(string(machine.Current()))
	audit.finish(ctx, machine)
	return res, err
}

// drive is the run skeleton: first agent turn, pull request, then the
// poll/decide/fix loop.
func (c *Controller) drive(ctx context.Context, m *lifecycle.Machine, parsed *issues.ParsedIssue, opts Options, audit *auditTrail) (*Result, error) {
	toolDocs, err := c.tools.PromptDocumentation()
	if err != nil {
		return c.fail(ctx, m, audit, err, "building system prompt")
	}
	sess := session.New("coder", buildSystemPrompt(toolDocs, opts.Instructions))

	m.TransitionTo(lifecycle.StateAnalyzing, map[string]string{
		"task_type": string(parsed.TaskType),
	})
	m.TransitionTo(lifecycle.StateContextBuilding, nil)
	m.TransitionTo(lifecycle.StateGeneratingCode, nil)

	c.logger.Info("🚀 Starting agent run for issue #%d (%s)", parsed.Number, parsed.TaskType)
	outcome, err := c.loop.Run(ctx, sess, toolloop.Config{
		UserMessage:      buildTaskPrompt(parsed),
		MaxIterations:    opts.MaxAgentSteps,
		Counter:          opts.Counter,
		MaxContextTokens: opts.MaxContextTokens,
	})
	if err != nil {
		return c.fail(ctx, m, audit, err, "agent turn")
	}
	audit.saveSession(ctx, sess)
	c.syncArtifacts(m, sess)

	m.TransitionTo(lifecycle.StateCommitting, nil)
	m.TransitionTo(lifecycle.StateCreatingPR, nil)

	if sess.PRNumber == 0 {
		c.logger.Warn("Agent turn ended (%s) without a pull request, sending corrective turn", outcome.Status)
		if _, err := c.loop.Run(ctx, sess, toolloop.Config{
			UserMessage:   noPRFeedback,
			MaxIterations: correctivePRSteps,
		}); err != nil {
			return c.fail(ctx, m, audit, err, "corrective turn")
		}
		audit.saveSession(ctx, sess)
		c.syncArtifacts(m, sess)
		if sess.PRNumber == 0 {
			return c.fail(ctx, m, audit,
				fmt.Errorf("agent finished without creating a pull request"), "creating pull request")
		}
	}

	c.logger.Info("📬 PR #%d is up: %s", sess.PRNumber, sess.PRURL)
	m.TransitionTo(lifecycle.StateCIRunning, map[string]string{
		"pr_number": strconv.Itoa(sess.PRNumber),
	})
	audit.flush(ctx, m)

	issueText := parsed.FullDescription()
	for {
		if err := sleepCtx(ctx, opts.Cooldown); err != nil {
			return c.fail(ctx, m, audit, err, "waiting for CI")
		}

		dec, err := c.decider.Decide(ctx, m.Issue().PRNumber, issueText)
		if err != nil {
			return c.fail(ctx, m, audit, err, "checking PR status")
		}

		switch dec.Action {
		case review.ActionWait:
			c.logger.Info("⏳ %s (pending: %s)", dec.Reason, strings.Join(dec.PendingChecks, ", "))
			continue

		case review.ActionMerge:
			return c.merge(ctx, m, audit, dec)

		case review.ActionFixCI:
			m.TransitionTo(lifecycle.StateCIFailed, map[string]string{
				"failed_checks": strings.Join(checkNames(dec.FailedChecks), ","),
			})

		case review.ActionRequestFixes:
			m.TransitionTo(lifecycle.StateCIPassed, nil)
			m.TransitionTo(lifecycle.StateReviewing, nil)
			m.TransitionTo(lifecycle.StateChangesRequested, map[string]string{
				"issues": strconv.Itoa(len(dec.Issues)),
			})

		default:
			return c.fail(ctx, m, audit, fmt.Errorf("unknown action %q", dec.Action), "checking PR status")
		}

		iteration := m.IncrementIteration()
		m.TransitionTo(lifecycle.StateGeneratingCode, map[string]string{
			"iteration": strconv.Itoa(iteration),
		})
		if m.Current() == lifecycle.StateMaxIterations {
			c.logger.Warn("🛑 Giving up on issue #%d after %d fix iterations", parsed.Number, iteration)
			audit.flush(ctx, m)
			return c.result(m), nil
		}
		audit.flush(ctx, m)

		c.logger.Info("🔧 Fix iteration %d/%d: %s", iteration, m.MaxIterations(), dec.Reason)
		if _, err := c.loop.Run(ctx, sess, toolloop.Config{
			UserMessage:      review.BuildFeedbackMessage(dec),
			MaxIterations:    opts.MaxAgentSteps,
			Counter:          opts.Counter,
			MaxContextTokens: opts.MaxContextTokens,
		}); err != nil {
			return c.fail(ctx, m, audit, err, "fix turn")
		}
		audit.saveSession(ctx, sess)
		c.syncArtifacts(m, sess)

		m.TransitionTo(lifecycle.StateCommitting, nil)
		m.TransitionTo(lifecycle.StateCreatingPR, nil)
		m.TransitionTo(lifecycle.StateCIRunning, nil)
		audit.flush(ctx, m)
	}
}

// merge lands the approved change. A merge failure fails the run from
// MERGING, which the table allows.
func (c *Controller) merge(ctx context.Context, m *lifecycle.Machine, audit *auditTrail, dec review.Decision) (*Result, error) {
	m.TransitionTo(lifecycle.StateCIPassed, nil)
	m.TransitionTo(lifecycle.StateReviewing, nil)
	m.TransitionTo(lifecycle.StateApproved, map[string]string{
		"reason": dec.Reason,
	})
	m.TransitionTo(lifecycle.StateMerging, nil)
	audit.flush(ctx, m)

	pr := m.Issue().PRNumber
	if err := c.github.MergePR(ctx, pr, github.PRMergeOptions{
		Method:       "squash",
		DeleteBranch: true,
	}); err != nil {
		return c.fail(ctx, m, audit, err, fmt.Sprintf("merging PR #%d", pr))
	}

	m.TransitionTo(lifecycle.StateCompleted, nil)
	audit.flush(ctx, m)
	c.logger.Info("🎉 Issue #%d completed, PR #%d merged", m.Issue().Number, pr)
	return c.result(m), nil
}

// fail surfaces the cause and moves to FAILED where the table allows
// it; from states without a FAILED edge the machine keeps its current
// state and the error alone reports the problem.
func (c *Controller) fail(ctx context.Context, m *lifecycle.Machine, audit *auditTrail, cause error, action string) (*Result, error) {
	m.TransitionTo(lifecycle.StateFailed, map[string]string{
		"error": truncate(cause.Error(), metadataLimit),
	})
	audit.flush(ctx, m)
	return c.result(m), fmt.Errorf("%s: %w", action, cause)
}

func (c *Controller) result(m *lifecycle.Machine) *Result {
	issue := m.Issue()
	return &Result{
		FinalState: m.Current(),
		PRNumber:   issue.PRNumber,
		PRURL:      issue.PRURL,
		Iterations: m.Iteration(),
		History:    m.History(),
	}
}

// syncArtifacts copies what the tools produced during a turn onto the
// machine's issue context.
func (c *Controller) syncArtifacts(m *lifecycle.Machine, sess *session.Session) {
	if sess.Branch != "" {
		m.SetBranch(sess.Branch)
	}
	if sess.PRNumber != 0 {
		m.SetPR(sess.PRNumber, sess.PRURL)
	}
}

func checkNames(checks []github.CICheckResult) []string {
	names := make([]string, 0, len(checks))
	for _, check := range checks {
		names = append(names, check.Name)
	}
	return names
}

// sleepCtx waits for d or until the context ends.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
