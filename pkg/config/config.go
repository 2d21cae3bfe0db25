// Package config provides configuration loading, validation, and secrets
// management.
//
// Configuration lives in .issueflow/config.yaml and is parsed into a
// versioned Config struct. Loading applies defaults, then validates; callers
// receive the config by value and pass it down explicitly. Secrets (API
// keys, tokens) come from an encrypted .issueflow/secrets.json.enc file when
// present, with environment variables as the fallback.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"issueflow/pkg/logx"
)

const (
	// ConfigDirName is the per-project directory holding config and secrets.
	ConfigDirName = ".issueflow"
	// ConfigFileName is the config file name inside ConfigDirName.
	ConfigFileName = "config.yaml"
	// DatabaseFilename is the audit store file inside ConfigDirName.
	DatabaseFilename = "issueflow.db"
	// SchemaVersion is the supported config schema version.
	SchemaVersion = "1.0"

	// DefaultMaxAgentSteps bounds the tool-calling loop within one turn.
	DefaultMaxAgentSteps = 15
	// DefaultMaxFixIterations bounds CI/review fix rounds per cycle.
	DefaultMaxFixIterations = 5
	// DefaultCooldown is the pause before each CI/review poll.
	DefaultCooldown = 30 * time.Second

	// DefaultBaseBranch is the PR target branch when none is configured.
	DefaultBaseBranch = "main"

	// DefaultMetricsAddr serves /metrics when metrics are enabled without an
	// explicit address.
	DefaultMetricsAddr = ":9090"
)

// Duration wraps time.Duration so YAML configs can use human-readable
// strings ("30s", "2m").
type Duration time.Duration

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration in time.Duration string form.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the underlying time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the root configuration for a project.
type Config struct {
	Version    string           `yaml:"version"`
	GitHub     GitHubConfig     `yaml:"github"`
	Workspace  WorkspaceConfig  `yaml:"workspace"`
	Agents     AgentConfig      `yaml:"agents"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Resilience ResilienceConfig `yaml:"resilience"`
}

// GitHubConfig identifies the repository the cycle operates on. When owner
// and repo are empty, the gh CLI resolves the repository from the working
// directory.
type GitHubConfig struct {
	Owner      string `yaml:"owner"`
	Repo       string `yaml:"repo"`
	BaseBranch string `yaml:"base_branch"` // PR target branch (default: main)
}

// Repository returns "owner/repo", or empty when not configured.
func (g GitHubConfig) Repository() string {
	if g.Owner == "" || g.Repo == "" {
		return ""
	}
	return g.Owner + "/" + g.Repo
}

// WorkspaceConfig locates the checkout the file tools operate on.
type WorkspaceConfig struct {
	Dir string `yaml:"dir"` // Workspace root; file tool paths resolve under it (default: cwd)
}

// AgentConfig selects models and iteration budgets.
type AgentConfig struct {
	CoderModel       string   `yaml:"coder_model"`        // Model driving the tool-calling loop
	ReviewerModel    string   `yaml:"reviewer_model"`     // Model producing structured code reviews
	MaxAgentSteps    int      `yaml:"max_agent_steps"`    // Loop iterations per turn (default: 15)
	MaxFixIterations int      `yaml:"max_fix_iterations"` // Fix rounds per cycle (default: 5)
	Cooldown         Duration `yaml:"cooldown"`           // Pause before each CI/review poll (default: 30s)
}

// MetricsConfig controls the Prometheus surface.
type MetricsConfig struct {
	Enabled       bool   `yaml:"enabled"`        // Record and serve Prometheus metrics
	ListenAddr    string `yaml:"listen_addr"`    // promhttp listen address (default: :9090 when enabled)
	PrometheusURL string `yaml:"prometheus_url"` // Prometheus server for run-cost queries (optional)
}

// CircuitBreakerConfig defines circuit breaker thresholds for LLM calls.
type CircuitBreakerConfig struct {
	FailureThreshold int      `yaml:"failure_threshold"` // Consecutive failures before opening
	SuccessThreshold int      `yaml:"success_threshold"` // Half-open successes before closing
	Timeout          Duration `yaml:"timeout"`           // Open duration before probing
}

// ProviderLimits defines rate limiting for one API provider.
type ProviderLimits struct {
	TokensPerMinute int `yaml:"tokens_per_minute"`
	MaxConcurrency  int `yaml:"max_concurrency"`
}

// RateLimitConfig groups rate limits by provider.
type RateLimitConfig struct {
	Anthropic ProviderLimits `yaml:"anthropic"`
	OpenAI    ProviderLimits `yaml:"openai"`
	Google    ProviderLimits `yaml:"google"`
	Ollama    ProviderLimits `yaml:"ollama"`
}

// AsMap returns the limits keyed by provider constant.
func (r RateLimitConfig) AsMap() map[string]ProviderLimits {
	return map[string]ProviderLimits{
		ProviderAnthropic: r.Anthropic,
		ProviderOpenAI:    r.OpenAI,
		ProviderGoogle:    r.Google,
		ProviderOllama:    r.Ollama,
	}
}

// ProviderDefaults defines default rate limits per provider, applied when
// the config file does not override them.
//
//nolint:gochecknoglobals // Static provider defaults
var ProviderDefaults = map[string]ProviderLimits{
	ProviderAnthropic: {
		TokensPerMinute: 300000,
		MaxConcurrency:  5,
	},
	ProviderOpenAI: {
		TokensPerMinute: 150000,
		MaxConcurrency:  5,
	},
	ProviderGoogle: {
		TokensPerMinute: 1200000, // Gemini contexts are large; keep headroom above them
		MaxConcurrency:  5,
	},
	ProviderOllama: {
		TokensPerMinute: 1000000, // Effectively unlimited for local inference
		MaxConcurrency:  2,       // Bounded by GPU memory
	},
}

// ResilienceConfig bundles the LLM middleware knobs.
type ResilienceConfig struct {
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	Timeout        Duration             `yaml:"timeout"` // Per-request timeout
}

// DefaultPath returns the standard config file path under projectDir.
func DefaultPath(projectDir string) string {
	return filepath.Join(projectDir, ConfigDirName, ConfigFileName)
}

// Default returns a config with every default applied and no repository
// binding.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads, parses, and validates a YAML config file. Unknown fields are
// rejected. A missing or empty file yields the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config to path, creating the parent directory if needed.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config %s: %w", path, err)
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Version == "" {
		cfg.Version = SchemaVersion
	}
	if cfg.GitHub.BaseBranch == "" {
		cfg.GitHub.BaseBranch = DefaultBaseBranch
	}
	if cfg.Workspace.Dir == "" {
		cfg.Workspace.Dir = "."
	}

	if cfg.Agents.CoderModel == "" {
		cfg.Agents.CoderModel = DefaultCoderModel
	}
	if cfg.Agents.ReviewerModel == "" {
		cfg.Agents.ReviewerModel = DefaultReviewerModel
	}
	if cfg.Agents.MaxAgentSteps == 0 {
		cfg.Agents.MaxAgentSteps = DefaultMaxAgentSteps
	}
	if cfg.Agents.MaxFixIterations == 0 {
		cfg.Agents.MaxFixIterations = DefaultMaxFixIterations
	}
	if cfg.Agents.Cooldown == 0 {
		cfg.Agents.Cooldown = Duration(DefaultCooldown)
	}

	if cfg.Metrics.Enabled && cfg.Metrics.ListenAddr == "" {
		cfg.Metrics.ListenAddr = DefaultMetricsAddr
	}

	if cfg.Resilience.CircuitBreaker.FailureThreshold == 0 {
		cfg.Resilience.CircuitBreaker.FailureThreshold = 5
	}
	if cfg.Resilience.CircuitBreaker.SuccessThreshold == 0 {
		cfg.Resilience.CircuitBreaker.SuccessThreshold = 3
	}
	if cfg.Resilience.CircuitBreaker.Timeout == 0 {
		cfg.Resilience.CircuitBreaker.Timeout = Duration(30 * time.Second)
	}
	if cfg.Resilience.RateLimit.Anthropic.TokensPerMinute == 0 {
		cfg.Resilience.RateLimit.Anthropic = ProviderDefaults[ProviderAnthropic]
	}
	if cfg.Resilience.RateLimit.OpenAI.TokensPerMinute == 0 {
		cfg.Resilience.RateLimit.OpenAI = ProviderDefaults[ProviderOpenAI]
	}
	if cfg.Resilience.RateLimit.Google.TokensPerMinute == 0 {
		cfg.Resilience.RateLimit.Google = ProviderDefaults[ProviderGoogle]
	}
	if cfg.Resilience.RateLimit.Ollama.TokensPerMinute == 0 {
		cfg.Resilience.RateLimit.Ollama = ProviderDefaults[ProviderOllama]
	}
	if cfg.Resilience.Timeout == 0 {
		cfg.Resilience.Timeout = Duration(3 * time.Minute) // Reasoning models can be slow
	}
}

// Validate checks the config for errors. Called automatically by Load;
// exposed for configs built in code.
func (c *Config) Validate() error {
	if c.Version != SchemaVersion {
		return fmt.Errorf("unsupported config version %q (supported: %s)", c.Version, SchemaVersion)
	}

	if (c.GitHub.Owner == "") != (c.GitHub.Repo == "") {
		return fmt.Errorf("github owner and repo must be set together (owner=%q repo=%q)", c.GitHub.Owner, c.GitHub.Repo)
	}

	if _, err := GetModelProvider(c.Agents.CoderModel); err != nil {
		return fmt.Errorf("coder_model: %w", err)
	}
	if _, err := GetModelProvider(c.Agents.ReviewerModel); err != nil {
		return fmt.Errorf("reviewer_model: %w", err)
	}
	if c.Agents.MaxAgentSteps < 1 {
		return fmt.Errorf("max_agent_steps must be at least 1, got %d", c.Agents.MaxAgentSteps)
	}
	if c.Agents.MaxFixIterations < 1 {
		return fmt.Errorf("max_fix_iterations must be at least 1, got %d", c.Agents.MaxFixIterations)
	}
	if c.Agents.Cooldown < 0 {
		return fmt.Errorf("cooldown must not be negative, got %s", c.Agents.Cooldown.Std())
	}

	if c.Resilience.CircuitBreaker.FailureThreshold < 1 {
		return fmt.Errorf("circuit_breaker.failure_threshold must be at least 1")
	}
	if c.Resilience.CircuitBreaker.SuccessThreshold < 1 {
		return fmt.Errorf("circuit_breaker.success_threshold must be at least 1")
	}
	if c.Resilience.Timeout <= 0 {
		return fmt.Errorf("resilience timeout must be positive, got %s", c.Resilience.Timeout.Std())
	}
	for provider, limits := range c.Resilience.RateLimit.AsMap() {
		if limits.TokensPerMinute < 1 {
			return fmt.Errorf("rate_limit.%s.tokens_per_minute must be at least 1", provider)
		}
		if limits.MaxConcurrency < 1 {
			return fmt.Errorf("rate_limit.%s.max_concurrency must be at least 1", provider)
		}
	}

	c.warnRateLimitCapacity()
	return nil
}

// warnRateLimitCapacity flags per-provider token budgets too small to ever
// admit a full-context request for the configured models. The limiter keeps
// 90% of tokens_per_minute as usable capacity.
func (c *Config) warnRateLimitCapacity() {
	logger := logx.NewLogger("config")
	limits := c.Resilience.RateLimit.AsMap()
	for _, model := range []string{c.Agents.CoderModel, c.Agents.ReviewerModel} {
		info, known := GetModelInfo(model)
		if !known || info.Provider == "" {
			continue
		}
		capacity := int(float64(limits[info.Provider].TokensPerMinute) * 0.9)
		if capacity < info.MaxContextTokens {
			logger.Warn("rate_limit.%s.tokens_per_minute=%d gives %d usable tokens, below %s's %d-token context; full-context requests will stall",
				info.Provider, limits[info.Provider].TokensPerMinute, capacity, model, info.MaxContextTokens)
		}
	}
}
