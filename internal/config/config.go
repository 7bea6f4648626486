package config

import "time"

// Config represents the main application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Provider  ProviderConfig  `yaml:"provider"`
	Retry     RetryConfig     `yaml:"retry"`
	Runner    RunnerConfig    `yaml:"runner"`
	Client    ClientConfig    `yaml:"client"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Logging   LoggingConfig   `yaml:"logging"`

	// Runtime version information, not persisted.
	Version string `yaml:"-"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr string `yaml:"addr"`
	// ShutdownTimeout bounds graceful shutdown on SIGINT/SIGTERM.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// ProviderConfig selects the primary and fallback model providers.
type ProviderConfig struct {
	// Primary names the provider used first for every run: "anthropic",
	// "gemini" or "ollama".
	Primary string `yaml:"primary"`
	// Fallback names the provider switched to, at most once per run, after the
	// primary is exhausted or degraded. Empty disables fallback.
	Fallback string `yaml:"fallback"`

	Anthropic AnthropicConfig `yaml:"anthropic"`
	Gemini    GeminiConfig    `yaml:"gemini"`
	Ollama    OllamaConfig    `yaml:"ollama"`
}

// AnthropicConfig configures the Anthropic-compatible HTTP provider.
type AnthropicConfig struct {
	APIKey      string        `yaml:"api_key,omitempty"`
	BaseURL     string        `yaml:"base_url,omitempty"`
	Model       string        `yaml:"model"`
	MaxTokens   int32         `yaml:"max_tokens"`
	Temperature float32       `yaml:"temperature"`
	HTTPTimeout time.Duration `yaml:"http_timeout"`
}

// GeminiConfig configures the Gemini provider.
type GeminiConfig struct {
	APIKey      string  `yaml:"api_key,omitempty"`
	Model       string  `yaml:"model"`
	MaxTokens   int32   `yaml:"max_tokens"`
	Temperature float32 `yaml:"temperature"`
}

// OllamaConfig configures the local Ollama provider.
type OllamaConfig struct {
	BaseURL     string        `yaml:"base_url,omitempty"`
	Model       string        `yaml:"model"`
	MaxTokens   int32         `yaml:"max_tokens"`
	Temperature float32       `yaml:"temperature"`
	HTTPTimeout time.Duration `yaml:"http_timeout"`
}

// RetryConfig bounds transient-failure retries around model calls.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts per model call, including
	// the first one.
	MaxAttempts int           `yaml:"max_attempts"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

// RunnerConfig bounds the agent run loop.
type RunnerConfig struct {
	// MaxToolIterations caps model<->tool round trips per run.
	MaxToolIterations int `yaml:"max_tool_iterations"`
	// ToolConcurrency caps concurrent tool calls within one model turn.
	ToolConcurrency int `yaml:"tool_concurrency"`
}

// ClientConfig holds client-side settings.
type ClientConfig struct {
	ServerURL string `yaml:"server_url"`
	// WatchdogCeiling is how long a streaming run may stay silent before the
	// client force-aborts its local state.
	WatchdogCeiling time.Duration `yaml:"watchdog_ceiling"`
}

// RateLimitConfig holds provider rate limiter settings.
type RateLimitConfig struct {
	Enabled           bool  `yaml:"enabled"`
	RequestsPerMinute int   `yaml:"requests_per_minute"`
	TokensPerMinute   int64 `yaml:"tokens_per_minute"`
	BurstSize         int   `yaml:"burst_size"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  bool   `yaml:"file"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            "localhost:8787",
			ShutdownTimeout: 10 * time.Second,
		},
		Provider: ProviderConfig{
			Primary:  "anthropic",
			Fallback: "ollama",
			Anthropic: AnthropicConfig{
				Model:       "claude-sonnet-4-20250514",
				MaxTokens:   4096,
				Temperature: 0.3,
				HTTPTimeout: 120 * time.Second,
			},
			Gemini: GeminiConfig{
				Model:       "gemini-2.5-flash",
				MaxTokens:   4096,
				Temperature: 0.3,
			},
			Ollama: OllamaConfig{
				BaseURL:     "http://localhost:11434",
				Model:       "llama3.2",
				MaxTokens:   4096,
				Temperature: 0.3,
				HTTPTimeout: 120 * time.Second,
			},
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			RetryDelay:  1 * time.Second,
			MaxDelay:    30 * time.Second,
		},
		Runner: RunnerConfig{
			MaxToolIterations: 8,
			ToolConcurrency:   4,
		},
		Client: ClientConfig{
			ServerURL:       "http://localhost:8787",
			WatchdogCeiling: 30 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 60,
			TokensPerMinute:   1000000,
			BurstSize:         10,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  true,
		},
	}
}
