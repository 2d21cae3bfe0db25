package session

import (
	"encoding/json"
	"fmt"
	"time"

	"issueflow/pkg/agent/llm"
)

// Snapshot types mirror the session with explicit JSON tags so the
// stored form stays stable even if the in-memory types move.

type snapshotMessage struct {
	Role        string           `json:"role"`
	Content     string           `json:"content,omitempty"`
	ToolCalls   []snapshotCall   `json:"tool_calls,omitempty"`
	ToolResults []snapshotResult `json:"tool_results,omitempty"`
}

type snapshotCall struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

type snapshotResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}

type snapshot struct {
	ID                string            `json:"id"`
	Agent             string            `json:"agent"`
	Started           time.Time         `json:"started"`
	SystemPrompt      string            `json:"system_prompt,omitempty"`
	Messages          []snapshotMessage `json:"messages"`
	Branch            string            `json:"branch,omitempty"`
	PRNumber          int               `json:"pr_number,omitempty"`
	PRURL             string            `json:"pr_url,omitempty"`
	Finished          bool              `json:"finished"`
	CompletionMessage string            `json:"completion_message,omitempty"`
}

// Serialize renders the full session state as JSON for the audit store.
func (s *Session) Serialize() ([]byte, error) {
	snap := snapshot{
		ID:                s.ID,
		Agent:             s.Agent,
		Started:           s.Started,
		SystemPrompt:      s.SystemPrompt,
		Messages:          make([]snapshotMessage, len(s.messages)),
		Branch:            s.Branch,
		PRNumber:          s.PRNumber,
		PRURL:             s.PRURL,
		Finished:          s.Finished,
		CompletionMessage: s.CompletionMessage,
	}
	for i := range s.messages {
		snap.Messages[i] = messageToSnapshot(&s.messages[i])
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("serializing session %s: %w", s.ID, err)
	}
	return data, nil
}

// Deserialize replaces the session's state with the stored form.
func (s *Session) Deserialize(data []byte) error {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("deserializing session: %w", err)
	}
	s.ID = snap.ID
	s.Agent = snap.Agent
	s.Started = snap.Started
	s.SystemPrompt = snap.SystemPrompt
	s.Branch = snap.Branch
	s.PRNumber = snap.PRNumber
	s.PRURL = snap.PRURL
	s.Finished = snap.Finished
	s.CompletionMessage = snap.CompletionMessage

	s.messages = make([]llm.CompletionMessage, len(snap.Messages))
	for i := range snap.Messages {
		s.messages[i] = snapshotToMessage(&snap.Messages[i])
	}
	return nil
}

func messageToSnapshot(msg *llm.CompletionMessage) snapshotMessage {
	sm := snapshotMessage{
		Role:    string(msg.Role),
		Content: msg.Content,
	}
	for i := range msg.ToolCalls {
		tc := &msg.ToolCalls[i]
		sm.ToolCalls = append(sm.ToolCalls, snapshotCall{
			ID:         tc.ID,
			Name:       tc.Name,
			Parameters: tc.Parameters,
		})
	}
	for i := range msg.ToolResults {
		tr := &msg.ToolResults[i]
		sm.ToolResults = append(sm.ToolResults, snapshotResult{
			ToolCallID: tr.ToolCallID,
			Content:    tr.Content,
			IsError:    tr.IsError,
		})
	}
	return sm
}

func snapshotToMessage(sm *snapshotMessage) llm.CompletionMessage {
	msg := llm.CompletionMessage{
		Role:    llm.CompletionRole(sm.Role),
		Content: sm.Content,
	}
	for i := range sm.ToolCalls {
		sc := &sm.ToolCalls[i]
		msg.ToolCalls = append(msg.ToolCalls, llm.ToolCall{
			ID:         sc.ID,
			Name:       sc.Name,
			Parameters: sc.Parameters,
		})
	}
	for i := range sm.ToolResults {
		sr := &sm.ToolResults[i]
		msg.ToolResults = append(msg.ToolResults, llm.ToolResult{
			ToolCallID: sr.ToolCallID,
			Content:    sr.Content,
			IsError:    sr.IsError,
		})
	}
	return msg
}
