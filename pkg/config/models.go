package config

import (
	"fmt"
	"os"
	"strings"
)

// Provider identifiers used for API key lookup, rate limiting, and client
// selection.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGoogle    = "google"
	ProviderOllama    = "ollama"
)

// API key environment variable names.
const (
	EnvAnthropicAPIKey = "ANTHROPIC_API_KEY"
	EnvOpenAIAPIKey    = "OPENAI_API_KEY"
	EnvGoogleAPIKey    = "GOOGLE_GENAI_API_KEY"
	EnvOllamaHost      = "OLLAMA_HOST"
	EnvGitHubToken     = "GITHUB_TOKEN"
)

// Model name constants for the models we ship pricing data for.
const (
	ModelClaudeSonnet45 = "claude-sonnet-4-5"
	ModelClaudeSonnet37 = "claude-3-7-sonnet-20250219"
	ModelClaudeOpus45   = "claude-opus-4-5"
	ModelGPT4o          = "gpt-4o"
	ModelGPT5           = "gpt-5"
	ModelO3             = "o3"
	ModelO3Mini         = "o3-mini"
	ModelO4Mini         = "o4-mini"
	ModelGemini25Flash  = "gemini-2.5-flash"
	ModelGemini3Pro     = "gemini-3-pro-preview"

	DefaultCoderModel    = ModelClaudeSonnet45
	DefaultReviewerModel = ModelClaudeSonnet45

	// DefaultOllamaHost is used when OLLAMA_HOST is unset.
	DefaultOllamaHost = "http://localhost:11434"
)

// ModelInfo contains static information about a known LLM model.
// This data is hardcoded in the application, not user-configurable.
type ModelInfo struct {
	Provider         string  // API provider (anthropic, openai, google, ollama)
	InputCPM         float64 // Cost per million input tokens (USD)
	OutputCPM        float64 // Cost per million output tokens (USD)
	MaxContextTokens int     // Maximum context window size in tokens
	MaxOutputTokens  int     // Maximum output tokens per request
}

// KnownModels carries pricing and provider information for common models.
// Unknown models are still usable; their provider is inferred via
// ProviderPatterns and their cost reported as zero.
//
//nolint:gochecknoglobals // Static model registry
var KnownModels = map[string]ModelInfo{
	ModelClaudeSonnet37: {
		Provider:         ProviderAnthropic,
		InputCPM:         3.0,
		OutputCPM:        15.0,
		MaxContextTokens: 200000,
		MaxOutputTokens:  8192,
	},
	ModelClaudeSonnet45: {
		Provider:         ProviderAnthropic,
		InputCPM:         3.0,
		OutputCPM:        15.0,
		MaxContextTokens: 200000,
		MaxOutputTokens:  8192,
	},
	ModelClaudeOpus45: {
		Provider:         ProviderAnthropic,
		InputCPM:         15.0,
		OutputCPM:        75.0,
		MaxContextTokens: 200000,
		MaxOutputTokens:  16384,
	},
	ModelGPT4o: {
		Provider:         ProviderOpenAI,
		InputCPM:         2.5,
		OutputCPM:        10.0,
		MaxContextTokens: 128000,
		MaxOutputTokens:  4096,
	},
	ModelGPT5: {
		Provider:         ProviderOpenAI,
		InputCPM:         20.0,
		OutputCPM:        60.0,
		MaxContextTokens: 128000,
		MaxOutputTokens:  4096,
	},
	ModelO3: {
		Provider:         ProviderOpenAI,
		InputCPM:         1.1,
		OutputCPM:        4.4,
		MaxContextTokens: 128000,
		MaxOutputTokens:  16384,
	},
	ModelO3Mini: {
		Provider:         ProviderOpenAI,
		InputCPM:         1.1,
		OutputCPM:        4.4,
		MaxContextTokens: 128000,
		MaxOutputTokens:  16384,
	},
	ModelO4Mini: {
		Provider:         ProviderOpenAI,
		InputCPM:         1.1,
		OutputCPM:        4.4,
		MaxContextTokens: 128000,
		MaxOutputTokens:  16384,
	},
	ModelGemini25Flash: {
		Provider:         ProviderGoogle,
		InputCPM:         0.30,
		OutputCPM:        2.50,
		MaxContextTokens: 1048576,
		MaxOutputTokens:  65536,
	},
	ModelGemini3Pro: {
		Provider:         ProviderGoogle,
		InputCPM:         2.0,
		OutputCPM:        12.0,
		MaxContextTokens: 1048576,
		MaxOutputTokens:  65536,
	},
}

// ProviderPattern maps a model name prefix to a provider.
type ProviderPattern struct {
	Prefix   string
	Provider string
}

// ProviderPatterns defines rules for inferring providers from unknown model
// names, so new models work without code changes.
//
//nolint:gochecknoglobals // Static inference rules
var ProviderPatterns = []ProviderPattern{
	{"claude", ProviderAnthropic},
	{"gpt", ProviderOpenAI},
	{"o1", ProviderOpenAI},
	{"o3", ProviderOpenAI},
	{"o4", ProviderOpenAI},
	{"gemini", ProviderGoogle},
	// Common open-source model prefixes served by Ollama
	{"phi", ProviderOllama},
	{"llama", ProviderOllama},
	{"qwen", ProviderOllama},
	{"mistral", ProviderOllama},
	{"codellama", ProviderOllama},
	{"deepseek", ProviderOllama},
	{"ollama:", ProviderOllama}, // Explicit prefix like "ollama:phi4"
}

// GetModelProvider returns the API provider for a model name. Checks
// KnownModels first, then prefix patterns. An unmappable model is an error;
// no client can be constructed for it.
func GetModelProvider(modelName string) (string, error) {
	if info, exists := KnownModels[modelName]; exists {
		return info.Provider, nil
	}

	for i := range ProviderPatterns {
		if strings.HasPrefix(modelName, ProviderPatterns[i].Prefix) {
			return ProviderPatterns[i].Provider, nil
		}
	}

	return "", fmt.Errorf("unknown model %q: no provider mapping or prefix match", modelName)
}

// GetModelInfo returns the ModelInfo for a model name. For unknown models it
// returns conservative defaults with the inferred provider and false.
func GetModelInfo(modelName string) (ModelInfo, bool) {
	if info, exists := KnownModels[modelName]; exists {
		return info, true
	}

	provider := ""
	for i := range ProviderPatterns {
		if strings.HasPrefix(modelName, ProviderPatterns[i].Prefix) {
			provider = ProviderPatterns[i].Provider
			break
		}
	}

	return ModelInfo{
		Provider:         provider,
		InputCPM:         0.0, // No cost tracking for unknown models
		OutputCPM:        0.0,
		MaxContextTokens: 32000,
		MaxOutputTokens:  4096,
	}, false
}

// CalculateCost returns the USD cost for a model and token usage. Unknown
// models cost zero so new models remain usable without pricing data.
func CalculateCost(modelName string, promptTokens, completionTokens int) float64 {
	info, known := GetModelInfo(modelName)
	if !known {
		return 0.0
	}
	inputCost := (float64(promptTokens) / 1_000_000.0) * info.InputCPM
	outputCost := (float64(completionTokens) / 1_000_000.0) * info.OutputCPM
	return inputCost + outputCost
}

// GetAPIKey returns the API key for a provider, checking the decrypted
// secrets file first and environment variables second. For Ollama the host
// URL is returned instead of a key.
func GetAPIKey(provider string) (string, error) {
	var envVar string
	switch provider {
	case ProviderAnthropic:
		envVar = EnvAnthropicAPIKey
	case ProviderOpenAI:
		envVar = EnvOpenAIAPIKey
	case ProviderGoogle:
		envVar = EnvGoogleAPIKey
	case ProviderOllama:
		host := os.Getenv(EnvOllamaHost)
		if host == "" {
			host = DefaultOllamaHost
		}
		return host, nil
	default:
		return "", fmt.Errorf("unknown provider: %s", provider)
	}

	key, err := GetSecret(envVar)
	if err == nil && key != "" {
		return key, nil
	}

	return "", fmt.Errorf("API key not found: %s not set in secrets file or environment", envVar)
}

// GetGitHubToken returns the GitHub token from the secrets file or
// environment, or empty when absent. The gh CLI falls back to its own
// credential store when this is empty.
func GetGitHubToken() string {
	token, err := GetSecret(EnvGitHubToken)
	if err == nil && token != "" {
		return token
	}
	return ""
}

// HasGitHubToken reports whether a GitHub token is available.
func HasGitHubToken() bool {
	return GetGitHubToken() != ""
}
