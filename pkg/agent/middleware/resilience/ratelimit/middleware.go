package ratelimit

import (
	"context"
	"fmt"
	"time"

	"issueflow/pkg/agent/llm"
	"issueflow/pkg/agent/middleware/metrics"
)

// Middleware returns rate limiting middleware bound to one provider's
// limiter. Tokens are reserved up front from the estimated prompt size; the
// concurrency slot is held for the duration of the request.
func Middleware(limiters *ProviderLimiterMap, provider string, estimator TokenEstimator, recorder metrics.Recorder) llm.Middleware {
	if estimator == nil {
		estimator = NewDefaultTokenEstimator()
	}
	if recorder == nil {
		recorder = metrics.Nop()
	}

	acquire := func(ctx context.Context, req llm.CompletionRequest, model string) (func(), error) {
		limiter, err := limiters.GetLimiter(provider)
		if err != nil {
			recorder.IncThrottle(model, "no_limiter")
			return nil, fmt.Errorf("rate limiter lookup for %s: %w", model, err)
		}

		tokens := estimator.EstimatePrompt(req)
		start := time.Now()
		release, err := limiter.Acquire(ctx, tokens, model)
		if err != nil {
			recorder.IncThrottle(model, "rate_limit")
			return nil, fmt.Errorf("rate limit acquire for %s: %w", model, err)
		}
		recorder.ObserveQueueWait(model, time.Since(start))
		return release, nil
	}

	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				release, err := acquire(ctx, req, next.GetModelName())
				if err != nil {
					return llm.CompletionResponse{}, err
				}
				defer release()
				return next.Complete(ctx, req) //nolint:wrapcheck // Middleware passes through errors unchanged
			},
			func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
				release, err := acquire(ctx, req, next.GetModelName())
				if err != nil {
					return nil, err
				}
				ch, err := next.Stream(ctx, req)
				if err != nil {
					release()
					return nil, err //nolint:wrapcheck // Middleware passes through errors unchanged
				}

				// Hold the slot until the stream drains.
				out := make(chan llm.StreamChunk)
				go func() {
					defer close(out)
					defer release()
					for chunk := range ch {
						out <- chunk
					}
				}()
				return out, nil
			},
			next.GetModelName,
		)
	}
}
