package llm

import (
	"context"
	"fmt"
	"testing"
)

// TestWrapClient tests the WrapClient helper function.
func TestWrapClient(t *testing.T) {
	completeCalled := false
	streamCalled := false
	modelNameCalled := false

	client := WrapClient(
		func(_ context.Context, _ CompletionRequest) (CompletionResponse, error) {
			completeCalled = true
			return CompletionResponse{Content: "wrapped"}, nil
		},
		func(_ context.Context, _ CompletionRequest) (<-chan StreamChunk, error) {
			streamCalled = true
			ch := make(chan StreamChunk)
			close(ch)
			return ch, nil
		},
		func() string {
			modelNameCalled = true
			return "wrapped-model"
		},
	)

	ctx := context.Background()
	req := NewCompletionRequest([]CompletionMessage{NewUserMessage("test")})

	resp, err := client.Complete(ctx, req)
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !completeCalled {
		t.Error("Complete function was not called")
	}
	if resp.Content != "wrapped" {
		t.Errorf("expected 'wrapped', got %q", resp.Content)
	}

	if _, err = client.Stream(ctx, req); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !streamCalled {
		t.Error("Stream function was not called")
	}

	modelName := client.GetModelName()
	if !modelNameCalled {
		t.Error("GetModelName function was not called")
	}
	if modelName != "wrapped-model" {
		t.Errorf("expected 'wrapped-model', got %q", modelName)
	}
}

// TestWrapClientNilStream verifies a nil stream function yields a closed channel.
func TestWrapClientNilStream(t *testing.T) {
	client := WrapClient(
		func(_ context.Context, _ CompletionRequest) (CompletionResponse, error) {
			return CompletionResponse{}, nil
		},
		nil,
		func() string { return "m" },
	)

	ch, err := client.Stream(context.Background(), CompletionRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := <-ch; ok {
		t.Error("expected closed channel from nil stream function")
	}
}

// transformMiddleware returns a middleware that rewrites the response content.
func transformMiddleware(transform func(string) string) Middleware {
	return func(next LLMClient) LLMClient {
		return WrapClient(
			func(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
				resp, err := next.Complete(ctx, req)
				if err != nil {
					return resp, err
				}
				resp.Content = transform(resp.Content)
				return resp, nil
			},
			func(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error) {
				return next.Stream(ctx, req)
			},
			func() string {
				return next.GetModelName()
			},
		)
	}
}

// TestChainOrdering verifies earlier middlewares wrap later ones.
func TestChainOrdering(t *testing.T) {
	base := &mockLLMClient{
		completeFunc: func(_ context.Context, _ CompletionRequest) (CompletionResponse, error) {
			return CompletionResponse{Content: "base"}, nil
		},
	}

	tests := []struct {
		name        string
		middlewares []Middleware
		expected    string
	}{
		{
			name:        "no middlewares",
			middlewares: nil,
			expected:    "base",
		},
		{
			name: "single middleware",
			middlewares: []Middleware{
				transformMiddleware(func(s string) string { return "prefix:" + s }),
			},
			expected: "prefix:base",
		},
		{
			name: "three middlewares, first is outermost",
			middlewares: []Middleware{
				transformMiddleware(func(s string) string { return "mw1:" + s }),
				transformMiddleware(func(s string) string { return s + ":mw2" }),
				transformMiddleware(func(s string) string { return "[" + s + "]" }),
			},
			// base="base" -> mw3="[base]" -> mw2="[base]:mw2" -> mw1="mw1:[base]:mw2"
			expected: "mw1:[base]:mw2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := Chain(base, tt.middlewares...)
			resp, err := client.Complete(context.Background(), NewCompletionRequest([]CompletionMessage{NewUserMessage("test")}))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if resp.Content != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, resp.Content)
			}
		})
	}
}

// TestChainRequestModification tests middleware that modifies requests.
func TestChainRequestModification(t *testing.T) {
	base := &mockLLMClient{
		completeFunc: func(_ context.Context, req CompletionRequest) (CompletionResponse, error) {
			// Base sees the modified temperature
			return CompletionResponse{
				Content: fmt.Sprintf("temp=%.1f", req.Temperature),
			}, nil
		},
	}

	tempMiddleware := func(next LLMClient) LLMClient {
		return WrapClient(
			func(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
				req.Temperature = 0.9
				return next.Complete(ctx, req)
			},
			nil,
			func() string {
				return next.GetModelName()
			},
		)
	}

	client := Chain(base, tempMiddleware)

	req := NewCompletionRequest([]CompletionMessage{NewUserMessage("test")})
	req.Temperature = 0.5 // Original temperature

	resp, err := client.Complete(context.Background(), req)
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if resp.Content != "temp=0.9" {
		t.Errorf("expected 'temp=0.9', got %q", resp.Content)
	}
}

// TestChainErrorHandling tests middleware error propagation.
func TestChainErrorHandling(t *testing.T) {
	base := &mockLLMClient{
		completeFunc: func(_ context.Context, _ CompletionRequest) (CompletionResponse, error) {
			return CompletionResponse{}, fmt.Errorf("base error")
		},
	}

	errorMiddleware := func(next LLMClient) LLMClient {
		return WrapClient(
			func(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
				resp, err := next.Complete(ctx, req)
				if err != nil {
					return resp, fmt.Errorf("middleware wrapper: %w", err)
				}
				return resp, nil
			},
			nil,
			func() string {
				return next.GetModelName()
			},
		)
	}

	client := Chain(base, errorMiddleware)

	_, err := client.Complete(context.Background(), NewCompletionRequest([]CompletionMessage{NewUserMessage("test")}))
	if err == nil {
		t.Error("expected error, got nil")
	}
	if err.Error() != "middleware wrapper: base error" {
		t.Errorf("expected 'middleware wrapper: base error', got %q", err.Error())
	}
}

// TestChainShortCircuit tests middleware that short-circuits the chain.
func TestChainShortCircuit(t *testing.T) {
	baseCalled := false
	base := &mockLLMClient{
		completeFunc: func(_ context.Context, _ CompletionRequest) (CompletionResponse, error) {
			baseCalled = true
			return CompletionResponse{Content: "base"}, nil
		},
	}

	shortCircuitMiddleware := func(next LLMClient) LLMClient {
		return WrapClient(
			func(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
				if len(req.Messages) > 0 && req.Messages[0].Content == "skip" {
					return CompletionResponse{Content: "short-circuited"}, nil
				}
				return next.Complete(ctx, req)
			},
			nil,
			func() string {
				return next.GetModelName()
			},
		)
	}

	client := Chain(base, shortCircuitMiddleware)
	ctx := context.Background()

	resp1, err := client.Complete(ctx, NewCompletionRequest([]CompletionMessage{NewUserMessage("skip")}))
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if resp1.Content != "short-circuited" {
		t.Errorf("expected 'short-circuited', got %q", resp1.Content)
	}
	if baseCalled {
		t.Error("base should not have been called (short-circuited)")
	}

	baseCalled = false
	resp2, err := client.Complete(ctx, NewCompletionRequest([]CompletionMessage{NewUserMessage("normal")}))
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if resp2.Content != "base" {
		t.Errorf("expected 'base', got %q", resp2.Content)
	}
	if !baseCalled {
		t.Error("base should have been called (not short-circuited)")
	}
}

// TestChainModelNamePropagation tests GetModelName through the chain.
func TestChainModelNamePropagation(t *testing.T) {
	base := &mockLLMClient{
		getModelNameFunc: func() string {
			return "base-model-v1"
		},
	}

	passthrough := func(next LLMClient) LLMClient {
		return WrapClient(
			func(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
				return next.Complete(ctx, req)
			},
			nil,
			func() string {
				return next.GetModelName()
			},
		)
	}

	client := Chain(base, passthrough, passthrough)

	if modelName := client.GetModelName(); modelName != "base-model-v1" {
		t.Errorf("expected 'base-model-v1', got %q", modelName)
	}
}
