// Package session holds the transcript of one agent run: the ordered
// messages exchanged with the model, the tool results fed back to it,
// and the typed artifacts those tools produced. A session outlives a
// single loop invocation so feedback rounds continue the conversation
// instead of starting over.
package session

import (
	"time"

	"github.com/google/uuid"

	"issueflow/pkg/agent/llm"
)

// TokenCounter reports approximate token counts for text. Satisfied by
// utils.TokenCounter.
type TokenCounter interface {
	CountTokens(text string) int
}

// Session is owned by a single goroutine; methods are not safe for
// concurrent use.
type Session struct {
	ID      string
	Agent   string
	Started time.Time

	// SystemPrompt is kept out of the transcript and prepended when the
	// request is built, so compaction can never drop it.
	SystemPrompt string

	messages []llm.CompletionMessage

	// Artifacts folded out of tool results as the run progresses.
	Branch   string
	PRNumber int
	PRURL    string

	// Finished flips when the model calls finish; CompletionMessage
	// carries its summary.
	Finished          bool
	CompletionMessage string
}

// New creates an empty session for the named agent.
func New(agent, systemPrompt string) *Session {
	return &Session{
		ID:           uuid.NewString(),
		Agent:        agent,
		Started:      time.Now().UTC(),
		SystemPrompt: systemPrompt,
	}
}

// AddUserMessage appends a plain user message.
func (s *Session) AddUserMessage(content string) {
	s.messages = append(s.messages, llm.CompletionMessage{
		Role:    llm.RoleUser,
		Content: content,
	})
}

// AddAssistantMessage appends the model's reply, including any tool
// calls it made.
func (s *Session) AddAssistantMessage(content string, calls []llm.ToolCall) {
	s.messages = append(s.messages, llm.CompletionMessage{
		Role:      llm.RoleAssistant,
		Content:   content,
		ToolCalls: append([]llm.ToolCall(nil), calls...),
	})
}

// AddToolResult appends one observation. Results for a batch of calls
// share a single user message, so consecutive results merge into the
// trailing one; every recorded call gets a result, error or not.
func (s *Session) AddToolResult(callID, content string, isError bool) {
	result := llm.ToolResult{ToolCallID: callID, Content: content, IsError: isError}
	if n := len(s.messages); n > 0 {
		last := &s.messages[n-1]
		if last.Role == llm.RoleUser && len(last.ToolResults) > 0 {
			last.ToolResults = append(last.ToolResults, result)
			return
		}
	}
	s.messages = append(s.messages, llm.CompletionMessage{
		Role:        llm.RoleUser,
		ToolResults: []llm.ToolResult{result},
	})
}

// Messages returns a copy of the transcript, without the system prompt.
func (s *Session) Messages() []llm.CompletionMessage {
	out := make([]llm.CompletionMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

// MessageCount returns the number of transcript messages.
func (s *Session) MessageCount() int {
	return len(s.messages)
}

// compactKeepRecent is how many trailing messages compaction leaves
// untouched; the model needs its recent working context intact.
const compactKeepRecent = 6

// compactSnippetLen is what a compacted message body is cut down to.
const compactSnippetLen = 400

// CompactIfOver shrinks old message bodies when the transcript exceeds
// maxTokens. Messages are truncated in place rather than dropped, which
// keeps every tool call paired with its result. Returns true when
// anything was compacted.
func (s *Session) CompactIfOver(counter TokenCounter, maxTokens int) bool {
	if counter == nil || maxTokens <= 0 {
		return false
	}
	if s.EstimateTokens(counter) <= maxTokens {
		return false
	}

	compacted := false
	limit := len(s.messages) - compactKeepRecent
	for i := 0; i < limit; i++ {
		msg := &s.messages[i]
		if len(msg.Content) > compactSnippetLen {
			msg.Content = msg.Content[:compactSnippetLen] + "\n... (truncated)"
			compacted = true
		}
		for j := range msg.ToolResults {
			if len(msg.ToolResults[j].Content) > compactSnippetLen {
				msg.ToolResults[j].Content = msg.ToolResults[j].Content[:compactSnippetLen] + "\n... (truncated)"
				compacted = true
			}
		}
	}
	return compacted
}

// EstimateTokens sums the approximate token counts of the system prompt
// and every message body in the transcript.
func (s *Session) EstimateTokens(counter TokenCounter) int {
	total := counter.CountTokens(s.SystemPrompt)
	for i := range s.messages {
		msg := &s.messages[i]
		total += counter.CountTokens(msg.Content)
		for j := range msg.ToolResults {
			total += counter.CountTokens(msg.ToolResults[j].Content)
		}
	}
	return total
}
