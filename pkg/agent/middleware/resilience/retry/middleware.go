package retry

import (
	"context"
	"fmt"
	"time"

	"issueflow/pkg/agent/llm"
	"issueflow/pkg/agent/llmerrors"
)

// Middleware returns a middleware function that wraps an LLM client with retry logic.
// Failed requests are retried per the policy's type-specific backoff schedule; once
// a retryable error exhausts its budget, a ServiceUnavailable error is emitted so
// callers know further retries are pointless.
func Middleware(policy *Policy) llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				var lastErr error

				for attempt := 0; ; attempt++ {
					resp, err := next.Complete(ctx, req)
					if err == nil {
						return resp, nil
					}
					lastErr = err

					if !policy.ShouldRetry(err) {
						return llm.CompletionResponse{}, err
					}

					config := policy.ConfigFor(err)
					if attempt >= config.MaxRetries {
						return llm.CompletionResponse{}, llmerrors.NewServiceUnavailableError(lastErr, attempt+1)
					}

					delay := policy.CalculateDelay(config, attempt+1)
					select {
					case <-ctx.Done():
						return llm.CompletionResponse{}, fmt.Errorf("retry cancelled: %w", ctx.Err())
					case <-time.After(delay):
					}
				}
			},
			func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
				var lastErr error

				// Only stream setup is retried; chunks already delivered
				// cannot be replayed.
				for attempt := 0; ; attempt++ {
					ch, err := next.Stream(ctx, req)
					if err == nil {
						return ch, nil
					}
					lastErr = err

					if !policy.ShouldRetry(err) {
						return nil, err
					}

					config := policy.ConfigFor(err)
					if attempt >= config.MaxRetries {
						return nil, llmerrors.NewServiceUnavailableError(lastErr, attempt+1)
					}

					delay := policy.CalculateDelay(config, attempt+1)
					select {
					case <-ctx.Done():
						return nil, fmt.Errorf("stream retry cancelled: %w", ctx.Err())
					case <-time.After(delay):
					}
				}
			},
			func() string {
				return next.GetModelName()
			},
		)
	}
}
