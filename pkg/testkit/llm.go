// Package testkit provides shared fakes for behavioral tests: a
// scripted LLM client and a function-field GitHub client. Production
// code never imports this package.
package testkit

import (
	"context"
	"fmt"
	"sync"

	"issueflow/pkg/agent/llm"
)

// ScriptStep is one scripted model turn.
type ScriptStep struct {
	Response llm.CompletionResponse
	Err      error
}

// ScriptedLLM plays back a fixed sequence of responses and records
// every request it saw. Running past the end of the script fails the
// call, which surfaces tests that loop more than they expect to.
type ScriptedLLM struct {
	mu       sync.Mutex
	steps    []ScriptStep
	requests []llm.CompletionRequest
}

// NewScriptedLLM builds a client that answers with the given steps in
// order.
func NewScriptedLLM(steps ...ScriptStep) *ScriptedLLM {
	return &ScriptedLLM{steps: steps}
}

// Append adds steps to the end of the script.
func (s *ScriptedLLM) Append(steps ...ScriptStep) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, steps...)
}

// Complete implements llm.LLMClient.
func (s *ScriptedLLM) Complete(_ context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, in)
	if len(s.requests) > len(s.steps) {
		return llm.CompletionResponse{}, fmt.Errorf("scripted LLM exhausted after %d calls", len(s.steps))
	}
	step := s.steps[len(s.requests)-1]
	return step.Response, step.Err
}

// Stream implements llm.LLMClient by replaying the scripted completion
// as a single chunk.
func (s *ScriptedLLM) Stream(ctx context.Context, in llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	resp, err := s.Complete(ctx, in)
	if err != nil {
		return nil, err
	}
	ch := make(chan llm.StreamChunk, 1)
	ch <- llm.StreamChunk{Content: resp.Content, Done: true}
	close(ch)
	return ch, nil
}

// GetModelName implements llm.LLMClient.
func (s *ScriptedLLM) GetModelName() string { return "scripted-model" }

// Requests returns a copy of every request seen so far.
func (s *ScriptedLLM) Requests() []llm.CompletionRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]llm.CompletionRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

// CallCount returns how many completions were requested.
func (s *ScriptedLLM) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// Call builds a tool call for scripting assistant turns.
func Call(id, name string, params map[string]any) llm.ToolCall {
	return llm.ToolCall{ID: id, Name: name, Parameters: params}
}

// ToolTurn scripts an assistant turn that invokes the given tools.
func ToolTurn(calls ...llm.ToolCall) ScriptStep {
	return ScriptStep{Response: llm.CompletionResponse{ToolCalls: calls, StopReason: "tool_use"}}
}

// TextTurn scripts an assistant turn that answers in plain text.
func TextTurn(text string) ScriptStep {
	return ScriptStep{Response: llm.CompletionResponse{Content: text, StopReason: "end_turn"}}
}

// ErrTurn scripts a failing model call.
func ErrTurn(err error) ScriptStep {
	return ScriptStep{Err: err}
}
