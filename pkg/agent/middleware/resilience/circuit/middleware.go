package circuit

import (
	"context"

	"issueflow/pkg/agent/llm"
	"issueflow/pkg/agent/llmerrors"
)

// Middleware wraps an LLM client with circuit breaker logic. While the
// circuit is open, requests fail fast with *Error instead of reaching the
// provider.
func Middleware(breaker Breaker) llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				if !breaker.Allow() {
					return llm.CompletionResponse{}, &Error{State: breaker.GetState()}
				}

				resp, err := next.Complete(ctx, req)
				breaker.Record(countsAsSuccess(err))

				return resp, err //nolint:wrapcheck // Middleware passes through errors unchanged
			},
			func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
				if !breaker.Allow() {
					return nil, &Error{State: breaker.GetState()}
				}

				// Only stream establishment feeds the breaker; individual
				// chunks are not tracked.
				ch, err := next.Stream(ctx, req)
				breaker.Record(countsAsSuccess(err))

				return ch, err //nolint:wrapcheck // Middleware passes through errors unchanged
			},
			next.GetModelName,
		)
	}
}

// countsAsSuccess reports whether an outcome counts as healthy for breaker
// purposes. Bad prompts and bad credentials are caller errors, not provider
// failures, and never trip the circuit.
func countsAsSuccess(err error) bool {
	if err == nil {
		return true
	}
	switch llmerrors.TypeOf(err) {
	case llmerrors.ErrorTypeBadPrompt, llmerrors.ErrorTypeAuth:
		return true
	default:
		return false
	}
}
