// Package google provides the Google Gemini adapter for the llm.LLMClient interface.
package google

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"issueflow/pkg/agent/llm"
	"issueflow/pkg/agent/llmerrors"
	"issueflow/pkg/tools"
)

// Client wraps the Google GenAI client to implement llm.LLMClient.
type Client struct {
	client *genai.Client
	apiKey string
	model  string
	// Gemini attaches thought signatures to assistant turns; replaying the
	// original Content values on later requests keeps them valid.
	responseCache []*genai.Content
}

// NewClient creates a raw Gemini client; middleware is applied at a higher
// level. The underlying genai client needs a context, so it is created
// lazily on the first Complete call.
func NewClient(apiKey, model string) llm.LLMClient {
	return &Client{
		apiKey: apiKey,
		model:  model,
	}
}

// Complete implements the llm.LLMClient interface.
//
//nolint:gocritic // CompletionRequest passed by value to match the interface
func (g *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	if g.client == nil {
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  g.apiKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return llm.CompletionResponse{}, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, "failed to create Gemini client")
		}
		g.client = client
	}

	contents, systemInstruction, err := convertMessages(in.Messages, g.responseCache)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, fmt.Sprintf("message conversion error: %v", err))
	}

	//nolint:gosec // MaxTokens validated at a higher layer
	maxTokens := int32(in.MaxTokens)
	config := &genai.GenerateContentConfig{
		Temperature:     &in.Temperature,
		MaxOutputTokens: maxTokens,
	}
	if systemInstruction != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: systemInstruction}},
		}
	}

	if len(in.Tools) > 0 {
		config.Tools = []*genai.Tool{
			{FunctionDeclarations: convertTools(in.Tools)},
		}
		// Gemini can answer with empty content when tool use is optional,
		// especially once the transcript references tools that are no longer
		// offered. Mode ANY forces a call to one of the provided tools.
		config.ToolConfig = &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{
				Mode: genai.FunctionCallingConfigModeAny,
			},
		}
	}

	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeUnknown, err, "Gemini API call failed")
	}
	if result == nil {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "empty response from Gemini API")
	}

	if len(result.Candidates) > 0 && result.Candidates[0].Content != nil {
		g.responseCache = append(g.responseCache, result.Candidates[0].Content)
	}

	response := llm.CompletionResponse{
		Content:    result.Text(),
		StopReason: "end_turn",
	}
	if functionCalls := result.FunctionCalls(); len(functionCalls) > 0 {
		response.ToolCalls = convertFunctionCalls(functionCalls)
		response.StopReason = "tool_use"
	}
	return response, nil
}

// Stream implements the llm.LLMClient interface.
//
//nolint:revive // ctx and in kept for interface consistency
func (g *Client) Stream(ctx context.Context, in llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	return nil, llmerrors.NewError(llmerrors.ErrorTypeUnknown, "streaming not implemented for Gemini client")
}

// GetModelName returns the model name for this client.
func (g *Client) GetModelName() string {
	return g.model
}

// convertMessages maps the transcript to Gemini Content values and extracts
// the system instruction. Cached assistant responses are replayed verbatim to
// preserve their thought signatures.
func convertMessages(messages []llm.CompletionMessage, responseCache []*genai.Content) ([]*genai.Content, string, error) {
	if len(messages) == 0 {
		return nil, "", fmt.Errorf("message list cannot be empty")
	}

	var systemInstruction string
	var contents []*genai.Content
	assistantIdx := 0

	for i := range messages {
		msg := &messages[i]

		if msg.Role == llm.RoleSystem {
			if systemInstruction != "" {
				systemInstruction += "\n\n" + msg.Content
			} else {
				systemInstruction = msg.Content
			}
			continue
		}

		var role string
		switch msg.Role {
		case llm.RoleUser:
			role = "user"
		case llm.RoleAssistant:
			role = "model"
		default:
			return nil, "", fmt.Errorf("unsupported message role: %s", msg.Role)
		}

		if msg.Role == llm.RoleAssistant {
			if len(msg.ToolCalls) > 0 && assistantIdx < len(responseCache) {
				contents = append(contents, responseCache[assistantIdx])
				assistantIdx++
				continue
			}
			assistantIdx++
		}

		var parts []*genai.Part
		if msg.Content != "" {
			parts = append(parts, &genai.Part{Text: msg.Content})
		}
		for j := range msg.ToolCalls {
			tc := &msg.ToolCalls[j]
			parts = append(parts, &genai.Part{
				FunctionCall: &genai.FunctionCall{
					ID:   tc.ID,
					Name: tc.Name,
					Args: tc.Parameters,
				},
			})
		}
		for j := range msg.ToolResults {
			tr := &msg.ToolResults[j]
			// Gemini matches responses by function name, not call ID; the
			// loop stores the tool name in ToolCallID for this provider.
			if tr.ToolCallID == "" {
				continue
			}
			parts = append(parts, &genai.Part{
				FunctionResponse: &genai.FunctionResponse{
					Name: tr.ToolCallID,
					Response: map[string]any{
						"content":  tr.Content,
						"is_error": tr.IsError,
					},
				},
			})
		}

		if len(parts) > 0 {
			contents = append(contents, &genai.Content{
				Role:  role,
				Parts: parts,
			})
		}
	}

	return contents, systemInstruction, nil
}

// convertTools maps tool definitions to Gemini function declarations.
func convertTools(toolDefs []tools.ToolDefinition) []*genai.FunctionDeclaration {
	declarations := make([]*genai.FunctionDeclaration, len(toolDefs))
	for i := range toolDefs {
		tool := &toolDefs[i]
		properties := make(map[string]*genai.Schema, len(tool.InputSchema.Properties))
		for name := range tool.InputSchema.Properties {
			prop := tool.InputSchema.Properties[name]
			properties[name] = convertProperty(&prop)
		}
		declarations[i] = &genai.FunctionDeclaration{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters: &genai.Schema{
				Type:       genai.TypeObject,
				Properties: properties,
				Required:   tool.InputSchema.Required,
			},
		}
	}
	return declarations
}

// convertProperty recursively maps a schema property to a Gemini schema.
func convertProperty(prop *tools.Property) *genai.Schema {
	schema := &genai.Schema{
		Description: prop.Description,
	}

	switch prop.Type {
	case "string":
		schema.Type = genai.TypeString
	case "number":
		schema.Type = genai.TypeNumber
	case "integer":
		schema.Type = genai.TypeInteger
	case "boolean":
		schema.Type = genai.TypeBoolean
	case "array":
		schema.Type = genai.TypeArray
		if prop.Items != nil {
			schema.Items = convertProperty(prop.Items)
		}
	case "object":
		schema.Type = genai.TypeObject
		if prop.Properties != nil {
			properties := make(map[string]*genai.Schema, len(prop.Properties))
			for name, child := range prop.Properties {
				if child != nil {
					properties[name] = convertProperty(child)
				}
			}
			schema.Properties = properties
		}
	default:
		schema.Type = genai.TypeString
	}

	if len(prop.Enum) > 0 {
		schema.Enum = prop.Enum
	}

	return schema
}

// convertFunctionCalls extracts tool calls from a Gemini response. Gemini
// does not always provide call IDs, so the function name doubles as the ID
// and result matching runs on names.
func convertFunctionCalls(calls []*genai.FunctionCall) []llm.ToolCall {
	toolCalls := make([]llm.ToolCall, len(calls))
	for i := range calls {
		call := calls[i]
		id := call.ID
		if id == "" {
			id = call.Name
		}
		toolCalls[i] = llm.ToolCall{
			ID:         id,
			Name:       call.Name,
			Parameters: call.Args,
		}
	}
	return toolCalls
}
