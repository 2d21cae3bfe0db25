// Package logging provides logging middleware for LLM clients.
package logging

import (
	"context"
	"strings"

	"issueflow/pkg/agent/llm"
	"issueflow/pkg/agent/llmerrors"
	"issueflow/pkg/logx"
	"issueflow/pkg/tools"
)

// Long messages get truncated in the dump; the transcript is in the
// session store if the tail matters.
const maxDumpedMessageLen = 10000

// EmptyResponseMiddleware logs the full request context whenever an
// empty-response error comes back, then passes the error through
// unchanged. Purely diagnostic.
func EmptyResponseMiddleware() llm.Middleware {
	logger := logx.NewLogger("llm-middleware")

	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				resp, err := next.Complete(ctx, req)
				if err != nil && llmerrors.Is(err, llmerrors.ErrorTypeEmptyResponse) {
					dumpRequest(logger, req)
				}
				return resp, err //nolint:wrapcheck // Middleware passes through errors unchanged
			},
			func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
				return next.Stream(ctx, req) //nolint:wrapcheck // Middleware passes through errors unchanged
			},
			func() string {
				return next.GetModelName()
			},
		)
	}
}

// dumpRequest logs the messages and request parameters that produced an
// empty completion.
func dumpRequest(logger *logx.Logger, req llm.CompletionRequest) {
	logger.Error("🚨 Empty response from LLM; request follows")

	for i := range req.Messages {
		msg := &req.Messages[i]
		content := msg.Content
		if len(content) > maxDumpedMessageLen {
			content = content[:maxDumpedMessageLen] + "\n[... truncated ...]"
		}
		logger.Error("Message [%d] role=%s: %s", i, msg.Role, content)
	}

	logger.Error("Request: temperature=%v max_tokens=%d tools=%d",
		req.Temperature, req.MaxTokens, len(req.Tools))
	if len(req.Tools) > 0 {
		logger.Error("Available tools: %s", strings.Join(toolNames(req.Tools), ", "))
	}
}

func toolNames(defs []tools.ToolDefinition) []string {
	names := make([]string, len(defs))
	for i := range defs {
		names[i] = defs[i].Name
	}
	return names
}
