// Package anthropic provides the Anthropic Claude adapter for the llm.LLMClient interface.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"issueflow/pkg/agent/llm"
	"issueflow/pkg/agent/llmerrors"
	"issueflow/pkg/tools"
)

// Client wraps the Anthropic API client to implement llm.LLMClient.
type Client struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewClient creates a raw Claude client; middleware is applied at a higher level.
func NewClient(apiKey, model string) llm.LLMClient {
	return &Client{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  anthropic.Model(model),
	}
}

// flattenMessage renders a message's text plus any tool activity as plain text.
// The Messages API transcript we send is text-only; rendering calls and results
// inline keeps the agent loop's full context visible to the model.
func flattenMessage(msg *llm.CompletionMessage) string {
	if len(msg.ToolCalls) == 0 && len(msg.ToolResults) == 0 {
		return msg.Content
	}

	var parts []string
	if msg.Content != "" {
		parts = append(parts, msg.Content)
	}
	for i := range msg.ToolCalls {
		tc := &msg.ToolCalls[i]
		args, err := json.Marshal(tc.Parameters)
		if err != nil {
			args = []byte("{}")
		}
		parts = append(parts, fmt.Sprintf("[tool call %s] %s(%s)", tc.ID, tc.Name, args))
	}
	for i := range msg.ToolResults {
		tr := &msg.ToolResults[i]
		label := "tool result"
		if tr.IsError {
			label = "tool error"
		}
		parts = append(parts, fmt.Sprintf("[%s %s]\n%s", label, tr.ToolCallID, tr.Content))
	}
	return strings.Join(parts, "\n\n")
}

// ensureAlternation prepares messages for the Anthropic Messages API:
// system messages move to the top-level system parameter, consecutive
// non-assistant messages merge into single user messages, and the result
// must strictly alternate user/assistant and end on user.
func ensureAlternation(messages []llm.CompletionMessage) (systemPrompt string, alternating []llm.CompletionMessage, err error) {
	if len(messages) == 0 {
		return "", nil, fmt.Errorf("message list cannot be empty")
	}

	var systemParts []string
	var rest []llm.CompletionMessage
	for i := range messages {
		msg := &messages[i]
		if msg.Role == llm.RoleSystem {
			systemParts = append(systemParts, msg.Content)
		} else {
			rest = append(rest, *msg)
		}
	}
	systemPrompt = strings.Join(systemParts, "\n\n")

	if len(rest) == 0 {
		return "", nil, fmt.Errorf("must have at least one non-system message")
	}

	var merged []llm.CompletionMessage
	var userParts []string
	var userCache *llm.CacheControl

	flushUser := func() {
		if len(userParts) == 0 {
			return
		}
		merged = append(merged, llm.CompletionMessage{
			Role:         llm.RoleUser,
			Content:      strings.Join(userParts, "\n\n"),
			CacheControl: userCache,
		})
		userParts = nil
		userCache = nil
	}

	for i := range rest {
		msg := &rest[i]
		if msg.Role == llm.RoleAssistant {
			flushUser()
			merged = append(merged, llm.CompletionMessage{
				Role:         llm.RoleAssistant,
				Content:      flattenMessage(msg),
				CacheControl: msg.CacheControl,
			})
			continue
		}

		userParts = append(userParts, flattenMessage(msg))
		// Anthropic only honors the last cache marker in a merged block.
		if msg.CacheControl != nil {
			userCache = msg.CacheControl
		}
	}
	flushUser()

	for i := range merged {
		if i > 0 && merged[i].Role == merged[i-1].Role {
			return "", nil, fmt.Errorf("alternation violation at index %d: consecutive %s messages", i, merged[i].Role)
		}
	}
	if merged[0].Role != llm.RoleUser {
		return "", nil, fmt.Errorf("first message must be user role, got: %s", merged[0].Role)
	}
	if merged[len(merged)-1].Role != llm.RoleUser {
		return "", nil, fmt.Errorf("last message must be user role, got: %s", merged[len(merged)-1].Role)
	}

	return systemPrompt, merged, nil
}

// propertyToMap recursively converts a schema property to the map form the
// Anthropic API expects.
func propertyToMap(prop *tools.Property) map[string]any {
	m := map[string]any{"type": prop.Type}
	if prop.Description != "" {
		m["description"] = prop.Description
	}
	if len(prop.Enum) > 0 {
		m["enum"] = prop.Enum
	}
	if prop.Items != nil {
		m["items"] = propertyToMap(prop.Items)
	}
	if len(prop.Properties) > 0 {
		nested := make(map[string]any, len(prop.Properties))
		for name, child := range prop.Properties {
			if child != nil {
				nested[name] = propertyToMap(child)
			}
		}
		m["properties"] = nested
	}
	return m
}

// Complete implements the llm.LLMClient interface.
//
//nolint:gocritic // CompletionRequest passed by value to match the interface
func (c *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	systemPrompt, alternating, err := ensureAlternation(in.Messages)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, fmt.Sprintf("message alternation error: %v", err))
	}

	messages := make([]anthropic.MessageParam, 0, len(alternating))
	for i := range alternating {
		msg := &alternating[i]

		var content anthropic.ContentBlockParamUnion
		if msg.CacheControl != nil {
			cacheControl := anthropic.NewCacheControlEphemeralParam()
			switch msg.CacheControl.TTL {
			case "1h":
				cacheControl.TTL = anthropic.CacheControlEphemeralTTLTTL1h
			case "5m":
				cacheControl.TTL = anthropic.CacheControlEphemeralTTLTTL5m
			}
			content.OfText = &anthropic.TextBlockParam{
				Text:         msg.Content,
				Type:         "text",
				CacheControl: cacheControl,
			}
		} else {
			content = anthropic.NewTextBlock(msg.Content)
		}

		messages = append(messages, anthropic.MessageParam{
			Role:    anthropic.MessageParamRole(msg.Role),
			Content: []anthropic.ContentBlockParamUnion{content},
		})
	}

	params := anthropic.MessageNewParams{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   int64(in.MaxTokens),
		Temperature: anthropic.Float(float64(in.Temperature)),
	}

	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{
			Text: systemPrompt,
			Type: "text",
		}}
	}

	if len(in.Tools) > 0 {
		toolParams := make([]anthropic.ToolUnionParam, 0, len(in.Tools))
		for i := range in.Tools {
			tool := &in.Tools[i]
			props := make(map[string]any, len(tool.InputSchema.Properties))
			for name := range tool.InputSchema.Properties {
				prop := tool.InputSchema.Properties[name]
				props[name] = propertyToMap(&prop)
			}

			schema := anthropic.ToolInputSchemaParam{
				Type:       "object",
				Properties: props,
				Required:   tool.InputSchema.Required,
			}
			// Tool descriptions ride in the prompt; the wire schema carries
			// only the parameter shapes.
			toolParams = append(toolParams, anthropic.ToolUnionParamOfTool(schema, tool.Name))
		}
		params.Tools = toolParams

		switch in.ToolChoice {
		case "any":
			params.ToolChoice = anthropic.ToolChoiceUnionParam{
				OfAny: &anthropic.ToolChoiceAnyParam{},
			}
		default:
			params.ToolChoice = anthropic.ToolChoiceUnionParam{
				OfAuto: &anthropic.ToolChoiceAutoParam{},
			}
		}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}
	if resp == nil || len(resp.Content) == 0 {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "received empty response from Claude API")
	}

	var responseText string
	var toolCalls []llm.ToolCall
	for i := range resp.Content {
		block := &resp.Content[i]
		switch block.Type {
		case "text":
			responseText += block.AsText().Text
		case "tool_use":
			toolUse := block.AsToolUse()
			var args map[string]any
			if err := json.Unmarshal(toolUse.Input, &args); err != nil {
				return llm.CompletionResponse{}, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeBadPrompt, err, fmt.Sprintf("unparseable input for tool %s", toolUse.Name))
			}
			toolCalls = append(toolCalls, llm.ToolCall{
				ID:         toolUse.ID,
				Name:       toolUse.Name,
				Parameters: args,
			})
		}
	}

	return llm.CompletionResponse{
		Content:    responseText,
		ToolCalls:  toolCalls,
		StopReason: string(resp.StopReason),
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
	return string(c.model)
}

// classifyError maps Anthropic SDK errors to the typed error taxonomy so the
// retry middleware can pick the right budget.
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

	errStr := err.Error()
	if code := extractStatusCode(errStr); code != 0 {
		switch code {
		case 401:
			return llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeAuth, code, "authentication failed - check API key")
		case 403:
			return llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeAuth, code, "permission denied - check API access")
		case 429:
			return llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeRateLimit, code, "rate limit exceeded")
		case 400:
			return llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeBadPrompt, code, "bad request - check prompt format and parameters")
		default:
			return llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeTransient, code, "server error")
		}
	}

	lower := strings.ToLower(errStr)
	switch {
	case strings.Contains(lower, "timeout"),
		strings.Contains(lower, "connection"),
		strings.Contains(lower, "network"),
		strings.Contains(lower, "temporary"),
		strings.Contains(errStr, "EOF"),
		strings.Contains(lower, "reset"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, "network or connection error")
	case strings.Contains(lower, "rate"),
		strings.Contains(lower, "quota"),
		strings.Contains(lower, "overloaded"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeRateLimit, err, "rate limiting detected")
	case strings.Contains(lower, "auth"),
		strings.Contains(lower, "api key"),
		strings.Contains(lower, "unauthorized"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeAuth, err, "authentication error")
	case strings.Contains(lower, "invalid"),
		strings.Contains(lower, "malformed"),
		strings.Contains(lower, "too large"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeBadPrompt, err, "prompt or request error")
	}

	return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeUnknown, err, "unclassified error")
}

// extractStatusCode pulls an HTTP status code out of an SDK error string.
// The SDK embeds the status in its message rather than exposing it directly.
func extractStatusCode(errStr string) int {
	lower := strings.ToLower(errStr)
	for _, pattern := range []string{"status code: ", "status: ", "http ", "code "} {
		idx := strings.Index(lower, pattern)
		if idx == -1 {
			continue
		}
		start := idx + len(pattern)
		if start >= len(errStr) {
			continue
		}
		for _, code := range []int{400, 401, 403, 429, 500, 502, 503, 504} {
			if strings.HasPrefix(errStr[start:], fmt.Sprintf("%d", code)) {
				return code
			}
		}
	}
	return 0
}
