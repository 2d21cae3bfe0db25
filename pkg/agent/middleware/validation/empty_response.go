// Package validation provides response validation middleware for LLM clients.
package validation

import (
	"context"
	"strings"

	"issueflow/pkg/agent/llm"
	"issueflow/pkg/agent/llmerrors"
	"issueflow/pkg/logx"
)

// Empty completions get one retry with guidance before the error
// surfaces to the loop.
const maxEmptyAttempts = 2

const guidanceMessage = "Your last reply was empty. Respond with a tool call to continue working, " +
	"or a short message describing where you stopped."

// Middleware validates completions and retries truly empty ones once
// with guidance before surfacing ErrorTypeEmptyResponse. A reply with
// text but no tool calls is a deliberate stop and passes through; only
// a reply with neither is treated as empty.
func Middleware() llm.Middleware {
	logger := logx.NewLogger("empty-response-validator")

	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				for attempt := 1; attempt <= maxEmptyAttempts; attempt++ {
					resp, err := next.Complete(ctx, req)

					// Anything other than an empty-response error passes through.
					if err != nil && !llmerrors.Is(err, llmerrors.ErrorTypeEmptyResponse) {
						return resp, err //nolint:wrapcheck // Middleware passes through errors unchanged
					}

					if err == nil && !isEmpty(resp) {
						return resp, nil
					}

					if attempt < maxEmptyAttempts {
						logger.Warn("⚠️ Empty completion from %s (attempt %d/%d), retrying with guidance",
							next.GetModelName(), attempt, maxEmptyAttempts)
						modified := req
						modified.Messages = append(modified.Messages, llm.CompletionMessage{
							Role:    llm.RoleUser,
							Content: guidanceMessage,
						})
						req = modified
					}
				}

				logger.Error("❌ Empty completion persisted after guidance retry")
				return llm.CompletionResponse{}, llmerrors.NewError(
					llmerrors.ErrorTypeEmptyResponse,
					"no content or tool calls after guidance retry",
				)
			},
			func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
				// Validation does not apply to streams.
				return next.Stream(ctx, req) //nolint:wrapcheck // Middleware passes through errors unchanged
			},
			func() string {
				return next.GetModelName()
			},
		)
	}
}

// isEmpty reports a completion with neither text nor tool calls.
func isEmpty(resp llm.CompletionResponse) bool {
	return len(resp.ToolCalls) == 0 && strings.TrimSpace(resp.Content) == ""
}
