// Package toolloop runs the bounded conversation between an LLM and the
// workflow tools: request a completion, execute every tool call in the
// reply, feed the observations back, and repeat until the model
// finishes, answers in plain text, or runs out of iterations.
package toolloop

import (
	"context"
	"fmt"
	"time"

	"issueflow/pkg/agent/llm"
	"issueflow/pkg/agent/middleware/metrics"
	"issueflow/pkg/logx"
	"issueflow/pkg/session"
	"issueflow/pkg/tools"
)

// ToolProvider is what the loop needs from the tools package.
type ToolProvider interface {
	Get(name string) (tools.Tool, error)
	Definitions() ([]tools.ToolDefinition, error)
}

// ExhaustedMessage is reported as the result when the iteration budget
// runs out before the model calls finish.
const ExhaustedMessage = "Agent reached maximum iterations without completing the task."

// DefaultMaxIterations bounds a run when the config leaves it unset.
const DefaultMaxIterations = 15

// Config defines one loop run.
type Config struct {
	// SystemPrompt replaces the session's system prompt when non-empty.
	// Continuation runs leave it empty to keep the original.
	SystemPrompt string

	// UserMessage is appended to the transcript before the first model
	// call. Empty means resume from the transcript as it stands.
	UserMessage string

	MaxIterations int
	MaxTokens     int

	// Counter plus MaxContextTokens enable the compaction guard: before
	// each model call an oversized transcript has its old message
	// bodies truncated. Both zero disables the guard.
	Counter          session.TokenCounter
	MaxContextTokens int
}

// Loop drives agent conversations. The session passed to Run owns the
// transcript, so a second Run with the same session continues where the
// first left off.
type Loop struct {
	client   llm.LLMClient
	provider ToolProvider
	logger   *logx.Logger
	recorder metrics.Recorder
}

// New creates a loop over the given client and tool provider. A nil
// recorder falls back to the no-op recorder.
func New(client llm.LLMClient, provider ToolProvider, logger *logx.Logger, recorder metrics.Recorder) *Loop {
	if recorder == nil {
		recorder = metrics.Nop()
	}
	return &Loop{
		client:   client,
		provider: provider,
		logger:   logger,
		recorder: recorder,
	}
}

// Run executes the loop until the model finishes, responds without
// tools, or the iteration budget is spent. LLM failures abort the run;
// tool failures never do, they travel back to the model as error
// observations.
func (l *Loop) Run(ctx context.Context, sess *session.Session, cfg Config) (Outcome, error) {
	if sess == nil {
		return Outcome{}, fmt.Errorf("session is required")
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = llm.CoderMaxTokens
	}
	if cfg.SystemPrompt != "" {
		sess.SystemPrompt = cfg.SystemPrompt
	}
	if cfg.UserMessage != "" {
		sess.AddUserMessage(cfg.UserMessage)
	}

	defs, err := l.provider.Definitions()
	if err != nil {
		return Outcome{}, fmt.Errorf("loading tool definitions: %w", err)
	}

	for iteration := 0; iteration < cfg.MaxIterations; iteration++ {
		if cfg.Counter != nil && cfg.MaxContextTokens > 0 {
			if sess.CompactIfOver(cfg.Counter, cfg.MaxContextTokens) {
				l.logger.Info("Compacted session transcript to fit %d tokens", cfg.MaxContextTokens)
			}
		}

		req := l.buildRequest(sess, defs, cfg.MaxTokens)
		l.logger.Info("🔄 LLM call to '%s': %d messages, %d tools (step %d/%d)",
			l.client.GetModelName(), len(req.Messages), len(defs), iteration+1, cfg.MaxIterations)

		start := time.Now()
		resp, err := l.client.Complete(ctx, req)
		duration := time.Since(start)
		if err != nil {
			l.logger.Error("❌ LLM call failed after %.3gs: %v", duration.Seconds(), err)
			return Outcome{}, fmt.Errorf("LLM completion failed: %w", err)
		}
		l.logger.Info("✅ LLM call completed in %.3gs: %d chars, %d tool calls",
			duration.Seconds(), len(resp.Content), len(resp.ToolCalls))

		sess.AddAssistantMessage(resp.Content, resp.ToolCalls)

		if len(resp.ToolCalls) == 0 {
			return Outcome{Status: StatusResponded, Result: resp.Content, Iterations: iteration + 1}, nil
		}

		// Every call in the batch executes and gets a result, even when
		// one of them is finish; the API requires a result per call.
		finished := false
		summary := ""
		for i := range resp.ToolCalls {
			call := &resp.ToolCalls[i]
			observation, artifact, isError := l.dispatch(ctx, call)
			sess.AddToolResult(call.ID, observation, isError)
			l.recorder.IncToolExecution(call.Name, isError)

			if done, s := foldArtifact(sess, artifact); done {
				finished = true
				summary = s
			}
		}

		if finished {
			sess.Finished = true
			sess.CompletionMessage = summary
			return Outcome{Status: StatusDone, Result: summary, Iterations: iteration + 1}, nil
		}
	}

	l.logger.Warn("⚠️  Maximum tool iterations (%d) reached", cfg.MaxIterations)
	return Outcome{Status: StatusExhausted, Result: ExhaustedMessage, Iterations: cfg.MaxIterations}, nil
}

// dispatch resolves and executes one tool call, translating failures
// into the observation strings the model is trained against.
func (l *Loop) dispatch(ctx context.Context, call *llm.ToolCall) (string, *tools.Artifact, bool) {
	tool, err := l.provider.Get(call.Name)
	if err != nil {
		l.logger.Warn("Model called unknown tool %q", call.Name)
		return fmt.Sprintf("Error: Unknown tool '%s'", call.Name), nil, true
	}

	start := time.Now()
	result, err := tool.Exec(ctx, call.Parameters)
	duration := time.Since(start)
	if err != nil {
		l.logger.Error("Tool %s failed after %.3fs: %v", call.Name, duration.Seconds(), err)
		return fmt.Sprintf("Error executing %s: %v", call.Name, err), nil, true
	}
	l.logger.Info("Tool %s completed in %.3fs", call.Name, duration.Seconds())
	if result == nil {
		return "", nil, false
	}
	return result.Content, result.Artifact, false
}

// foldArtifact records a typed tool artifact on the session. Folding is
// best-effort bookkeeping and can never fail the loop. Returns whether
// the artifact ends the run, with the finish summary.
func foldArtifact(sess *session.Session, a *tools.Artifact) (bool, string) {
	if a == nil {
		return false, ""
	}
	switch a.Kind {
	case tools.ArtifactBranchCreated:
		sess.Branch = a.Branch
	case tools.ArtifactPRCreated:
		sess.PRNumber = a.PRNumber
		sess.PRURL = a.PRURL
	case tools.ArtifactFinished:
		return true, a.Summary
	}
	return false, ""
}

func (l *Loop) buildRequest(sess *session.Session, defs []tools.ToolDefinition, maxTokens int) llm.CompletionRequest {
	transcript := sess.Messages()
	messages := make([]llm.CompletionMessage, 0, len(transcript)+1)
	if sess.SystemPrompt != "" {
		messages = append(messages, llm.NewSystemMessage(sess.SystemPrompt))
	}
	messages = append(messages, transcript...)
	return llm.CompletionRequest{
		Messages:    messages,
		Tools:       defs,
		MaxTokens:   maxTokens,
		Temperature: llm.TemperatureDeterministic,
	}
}
