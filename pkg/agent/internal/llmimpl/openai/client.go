// Package openai provides the OpenAI adapter for the llm.LLMClient interface,
// built on the official openai-go package and the Responses API.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"issueflow/pkg/agent/llm"
	"issueflow/pkg/agent/llmerrors"
	"issueflow/pkg/config"
	"issueflow/pkg/tools"
)

// Client wraps the official OpenAI client to implement llm.LLMClient.
type Client struct {
	client openai.Client
	model  string
}

// NewClient creates a raw OpenAI client; middleware is applied at a higher level.
func NewClient(apiKey, model string) llm.LLMClient {
	return &Client{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

// flattenMessages renders the transcript as a single labeled input string.
// The Responses API accepts plain text input; tool calls and results are
// rendered inline so no loop context is lost.
func flattenMessages(messages []llm.CompletionMessage) string {
	var b strings.Builder
	for i := range messages {
		msg := &messages[i]
		switch msg.Role {
		case llm.RoleSystem:
			fmt.Fprintf(&b, "System: %s\n\n", msg.Content)
		case llm.RoleAssistant:
			if msg.Content != "" {
				fmt.Fprintf(&b, "Assistant: %s\n\n", msg.Content)
			}
			for j := range msg.ToolCalls {
				tc := &msg.ToolCalls[j]
				args, err := json.Marshal(tc.Parameters)
				if err != nil {
					args = []byte("{}")
				}
				fmt.Fprintf(&b, "Assistant called %s(%s) [%s]\n\n", tc.Name, args, tc.ID)
			}
		case llm.RoleUser:
			for j := range msg.ToolResults {
				tr := &msg.ToolResults[j]
				label := "Tool result"
				if tr.IsError {
					label = "Tool error"
				}
				fmt.Fprintf(&b, "%s [%s]:\n%s\n\n", label, tr.ToolCallID, tr.Content)
			}
			if msg.Content != "" {
				b.WriteString(msg.Content)
				b.WriteString("\n\n")
			}
		}
	}
	return strings.TrimSuffix(b.String(), "\n\n")
}

// convertPropertyToSchema recursively converts a schema property to the map
// form the Responses API expects.
func convertPropertyToSchema(prop *tools.Property) map[string]any {
	schema := map[string]any{
		"type":        prop.Type,
		"description": prop.Description,
	}
	if len(prop.Enum) > 0 {
		schema["enum"] = prop.Enum
	}
	if prop.Type == "array" && prop.Items != nil {
		schema["items"] = convertPropertyToSchema(prop.Items)
	}
	if prop.Type == "object" && prop.Properties != nil {
		properties := make(map[string]any, len(prop.Properties))
		for name, child := range prop.Properties {
			if child != nil {
				properties[name] = convertPropertyToSchema(child)
			}
		}
		schema["properties"] = properties
	}
	return schema
}

// Complete implements the llm.LLMClient interface.
//
//nolint:gocritic // CompletionRequest passed by value to match the interface
func (c *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	if len(in.Messages) == 0 {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, "message list cannot be empty")
	}

	// Cap MaxTokens at the model's real limit to avoid API errors.
	maxTokens := in.MaxTokens
	if info, known := config.GetModelInfo(c.model); known && info.MaxOutputTokens > 0 && maxTokens > info.MaxOutputTokens {
		maxTokens = info.MaxOutputTokens
	}

	params := responses.ResponseNewParams{
		Model:           c.model,
		MaxOutputTokens: openai.Int(int64(maxTokens)),
		Input:           responses.ResponseNewParamsInputUnion{OfString: openai.String(flattenMessages(in.Messages))},
	}

	if len(in.Tools) > 0 {
		toolParams := make([]responses.ToolUnionParam, len(in.Tools))
		for i := range in.Tools {
			tool := &in.Tools[i]
			properties := make(map[string]any, len(tool.InputSchema.Properties))
			for name := range tool.InputSchema.Properties {
				prop := tool.InputSchema.Properties[name]
				properties[name] = convertPropertyToSchema(&prop)
			}
			toolParams[i] = responses.ToolUnionParam{
				OfFunction: &responses.FunctionToolParam{
					Name:        tool.Name,
					Description: openai.String(tool.Description),
					Parameters: openai.FunctionParameters(map[string]any{
						"type":       "object",
						"properties": properties,
						"required":   tool.InputSchema.Required,
					}),
				},
			}
		}
		params.Tools = toolParams
	}

	resp, err := c.client.Responses.New(ctx, params)
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}
	if resp == nil {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "received empty response from OpenAI Responses API")
	}

	var toolCalls []llm.ToolCall
	for i := range resp.Output {
		item := &resp.Output[i]
		switch item.Type {
		case "function_call":
			funcItem := item.AsFunctionCall()
			var args map[string]any
			if funcItem.Arguments != "" {
				if err := json.Unmarshal([]byte(funcItem.Arguments), &args); err != nil {
					continue
				}
			}
			toolCalls = append(toolCalls, llm.ToolCall{
				ID:         funcItem.ID,
				Name:       funcItem.Name,
				Parameters: args,
			})
		case "reasoning":
			// Internal reasoning items never belong in the visible transcript.
			continue
		}
	}

	stopReason := "end_turn"
	if len(toolCalls) > 0 {
		stopReason = "tool_use"
	}

	return llm.CompletionResponse{
		Content:    resp.OutputText(),
		ToolCalls:  toolCalls,
		StopReason: stopReason,
	}, nil
}

// Stream implements the llm.LLMClient interface. The agent loop only uses
// Complete, so streaming wraps a single completion.
//
//nolint:gocritic // CompletionRequest passed by value to match the interface
func (c *Client) Stream(ctx context.Context, in llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	ch := make(chan llm.StreamChunk, 1)
	go func() {
		defer close(ch)
		resp, err := c.Complete(ctx, in)
		if err != nil {
			ch <- llm.StreamChunk{Error: err}
			return
		}
		ch <- llm.StreamChunk{Content: resp.Content}
		ch <- llm.StreamChunk{Done: true}
	}()
	return ch, nil
}

// GetModelName returns the model name for this client.
func (c *Client) GetModelName() string {
	return c.model
}

// classifyError maps OpenAI SDK errors to the typed error taxonomy. The SDK
// reports HTTP failures as formatted strings, so classification is textual.
func classifyError(err error) *llmerrors.Error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, "request timeout")
	}
	if errors.Is(err, context.Canceled) {
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, "request canceled")
	}

	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "401"), strings.Contains(lower, "403"),
		strings.Contains(lower, "unauthorized"), strings.Contains(lower, "api key"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeAuth, err, "authentication error")
	case strings.Contains(lower, "429"), strings.Contains(lower, "rate limit"),
		strings.Contains(lower, "quota"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeRateLimit, err, "rate limiting detected")
	case strings.Contains(lower, "400"), strings.Contains(lower, "invalid"),
		strings.Contains(lower, "too large"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeBadPrompt, err, "prompt or request error")
	case strings.Contains(lower, "500"), strings.Contains(lower, "502"),
		strings.Contains(lower, "503"), strings.Contains(lower, "504"),
		strings.Contains(lower, "timeout"), strings.Contains(lower, "connection"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, "server or connection error")
	}

	return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeUnknown, err, "unclassified error")
}
