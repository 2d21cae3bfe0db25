// Package metrics provides metrics middleware for LLM clients.
package metrics

import (
	"context"
	"errors"
	"time"

	"issueflow/pkg/agent/llm"
	"issueflow/pkg/agent/llmerrors"
	"issueflow/pkg/logx"
	"issueflow/pkg/utils"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// UsageExtractor is a function that extracts token usage from a request and response.
type UsageExtractor func(req llm.CompletionRequest, resp llm.CompletionResponse) (promptTokens, completionTokens int)

// DefaultUsageExtractor counts tokens with tiktoken over the flattened message
// texts. Providers that report exact usage can substitute their own extractor.
func DefaultUsageExtractor(req llm.CompletionRequest, resp llm.CompletionResponse) (promptTokens, completionTokens int) {
	var promptText string
	for i := range req.Messages {
		promptText += req.Messages[i].Content + "\n"
	}
	promptTokens = utils.CountTokensSimple(promptText)
	completionTokens = utils.CountTokensSimple(resp.Content)
	return promptTokens, completionTokens
}

// Pricing returns the cost in USD per million prompt and completion tokens for
// a model. Unknown models should return (0, 0).
type Pricing func(model string) (inputCPM, outputCPM float64)

// Middleware returns a middleware function that records metrics for LLM operations.
// It tracks request latency, token usage, cost, success/failure rates, and error types.
func Middleware(recorder Recorder, usageExtractor UsageExtractor, pricing Pricing, stateProvider StateProvider, logger *logx.Logger) llm.Middleware {
	if usageExtractor == nil {
		usageExtractor = DefaultUsageExtractor
	}
	if pricing == nil {
		pricing = func(string) (float64, float64) { return 0, 0 }
	}
	if stateProvider == nil {
		stateProvider = nopStateProvider{}
	}

	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				start := time.Now()
				model := next.GetModelName()

				resp, err := next.Complete(ctx, req)
				duration := time.Since(start)

				var promptTokens, completionTokens int
				var cost float64
				if err == nil {
					promptTokens, completionTokens = usageExtractor(req, resp)
					inCPM, outCPM := pricing(model)
					cost = float64(promptTokens)*inCPM/1e6 + float64(completionTokens)*outCPM/1e6
				}

				errorType := ""
				if err != nil {
					errorType = getErrorType(err)
				}

				issueID := stateProvider.GetIssueID()
				componentID := stateProvider.GetID()
				state := stateProvider.GetCurrentState()

				recorder.ObserveRequest(
					model,
					issueID,
					componentID,
					state,
					promptTokens,
					completionTokens,
					cost,
					err == nil,
					errorType,
					duration,
				)

				if logger != nil {
					status := statusSuccess
					if err != nil {
						status = statusError
					}
					totalTokens := promptTokens + completionTokens
					logger.Info("🎯 LLM Request: model=%s issue=%s state=%s tokens=%d+%d=%d status=%s duration=%dms",
						model, issueID, state, promptTokens, completionTokens, totalTokens, status, duration.Milliseconds())
				}

				return resp, err //nolint:wrapcheck // Middleware should pass through errors unchanged
			},
			func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
				start := time.Now()
				model := next.GetModelName()

				ch, err := next.Stream(ctx, req)
				duration := time.Since(start)

				// Streams only track setup time and success/failure; counting
				// tokens would require consuming the whole stream here.
				errorType := ""
				if err != nil {
					errorType = getErrorType(err)
				}

				recorder.ObserveRequest(
					model,
					stateProvider.GetIssueID(),
					stateProvider.GetID(),
					stateProvider.GetCurrentState(),
					0,
					0,
					0,
					err == nil,
					errorType,
					duration,
				)

				return ch, err //nolint:wrapcheck // Middleware should pass through errors unchanged
			},
			func() string {
				return next.GetModelName()
			},
		)
	}
}

// nopStateProvider labels requests issued outside any run context.
type nopStateProvider struct{}

func (nopStateProvider) GetCurrentState() string { return "" }
func (nopStateProvider) GetIssueID() string      { return "" }
func (nopStateProvider) GetID() string           { return "" }

// getErrorType classifies errors for metrics labeling.
func getErrorType(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	return llmerrors.TypeOf(err).String()
}
