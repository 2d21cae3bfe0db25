// Package timeout provides timeout middleware for LLM clients.
package timeout

import (
	"context"
	"time"

	"issueflow/pkg/agent/llm"
)

// Middleware returns a middleware function that wraps an LLM client with per-request timeout logic.
// Each request gets a timeout context to prevent hanging requests.
func Middleware(duration time.Duration) llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				timeoutCtx, cancel := context.WithTimeout(ctx, duration)
				defer cancel()

				return next.Complete(timeoutCtx, req)
			},
			func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
				// The timeout context must outlive this call: cancelling on
				// return would kill the stream mid-delivery. A forwarding
				// goroutine cancels once the stream drains.
				timeoutCtx, cancel := context.WithTimeout(ctx, duration)

				ch, err := next.Stream(timeoutCtx, req)
				if err != nil {
					cancel()
					return nil, err
				}

				out := make(chan llm.StreamChunk)
				go func() {
					defer cancel()
					defer close(out)
					for chunk := range ch {
						out <- chunk
					}
				}()
				return out, nil
			},
			func() string {
				return next.GetModelName()
			},
		)
	}
}
