// Package agent assembles LLM clients with their middleware chains.
package agent

import (
	"context"
	"fmt"

	"issueflow/pkg/agent/internal/llmimpl/anthropic"
	"issueflow/pkg/agent/internal/llmimpl/google"
	"issueflow/pkg/agent/internal/llmimpl/ollama"
	"issueflow/pkg/agent/internal/llmimpl/openai"
	"issueflow/pkg/agent/llm"
	"issueflow/pkg/agent/middleware/logging"
	"issueflow/pkg/agent/middleware/metrics"
	"issueflow/pkg/agent/middleware/resilience/circuit"
	"issueflow/pkg/agent/middleware/resilience/ratelimit"
	"issueflow/pkg/agent/middleware/resilience/retry"
	"issueflow/pkg/agent/middleware/resilience/timeout"
	"issueflow/pkg/agent/middleware/validation"
	"issueflow/pkg/config"
	"issueflow/pkg/logx"
)

// ClientFactory builds provider clients wrapped in the standard middleware
// chain. Circuit breakers and rate limiters are per-provider and shared
// across every client the factory creates, so the coder and reviewer compete
// for the same provider budget instead of each getting their own.
type ClientFactory struct {
	cfg      *config.Config
	recorder metrics.Recorder
	breakers map[string]circuit.Breaker
	limiters *ratelimit.ProviderLimiterMap
}

// NewClientFactory creates a factory from the resilience configuration. The
// context governs the lifetime of background refill timers; cancel it or
// call Stop when done.
func NewClientFactory(ctx context.Context, cfg *config.Config, recorder metrics.Recorder) *ClientFactory {
	if recorder == nil {
		recorder = metrics.Nop()
	}

	breakerCfg := circuit.Config{
		FailureThreshold: cfg.Resilience.CircuitBreaker.FailureThreshold,
		SuccessThreshold: cfg.Resilience.CircuitBreaker.SuccessThreshold,
		Timeout:          cfg.Resilience.CircuitBreaker.Timeout.Std(),
	}

	breakers := make(map[string]circuit.Breaker)
	limits := make(map[string]ratelimit.Config)
	for provider, pl := range cfg.Resilience.RateLimit.AsMap() {
		breakers[provider] = circuit.New(breakerCfg)
		limits[provider] = ratelimit.Config{
			TokensPerMinute: pl.TokensPerMinute,
			MaxConcurrency:  pl.MaxConcurrency,
		}
	}

	return &ClientFactory{
		cfg:      cfg,
		recorder: recorder,
		breakers: breakers,
		limiters: ratelimit.NewProviderLimiterMap(ctx, limits, cfg.Resilience.Timeout.Std()),
	}
}

// Stop shuts down the factory's background refill timers.
func (f *ClientFactory) Stop() {
	f.limiters.Stop()
}

// NewClient creates a client for the model with the full middleware chain:
// Metrics -> Validation -> Logging -> CircuitBreaker -> Retry -> RateLimit
// -> Timeout -> provider. The provider and its API key are resolved from the
// model name. stateProvider and logger may be nil; metrics then carry empty
// run labels.
func (f *ClientFactory) NewClient(model string, stateProvider metrics.StateProvider, logger *logx.Logger) (llm.LLMClient, error) {
	provider, err := config.GetModelProvider(model)
	if err != nil {
		return nil, fmt.Errorf("cannot create client for %s: %w", model, err)
	}

	apiKey, err := config.GetAPIKey(provider)
	if err != nil {
		return nil, fmt.Errorf("cannot create client for %s: %w", model, err)
	}

	var raw llm.LLMClient
	switch provider {
	case config.ProviderAnthropic:
		raw = anthropic.NewClient(apiKey, model)
	case config.ProviderOpenAI:
		raw = openai.NewClient(apiKey, model)
	case config.ProviderGoogle:
		raw = google.NewClient(apiKey, model)
	case config.ProviderOllama:
		raw = ollama.NewClient(apiKey, model) // GetAPIKey returns the host URL for Ollama
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}

	breaker, ok := f.breakers[provider]
	if !ok {
		return nil, fmt.Errorf("no circuit breaker configured for provider %s", provider)
	}

	return llm.Chain(raw,
		metrics.Middleware(f.recorder, nil, pricingFromRegistry, stateProvider, logger),
		validation.Middleware(),
		logging.EmptyResponseMiddleware(),
		circuit.Middleware(breaker),
		retry.Middleware(retry.NewPolicy()),
		ratelimit.Middleware(f.limiters, provider, nil, f.recorder),
		timeout.Middleware(f.cfg.Resilience.Timeout.Std()),
	), nil
}

// pricingFromRegistry looks up per-million token costs in the model registry.
func pricingFromRegistry(model string) (inputCPM, outputCPM float64) {
	info, known := config.GetModelInfo(model)
	if !known {
		return 0, 0
	}
	return info.InputCPM, info.OutputCPM
}
