package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Dir returns the folio configuration directory, creating it if needed.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	dir := filepath.Join(home, ".folio")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return dir, nil
}

// Load reads config.yaml from the config directory, applying defaults for
// anything the file does not set. A missing file is not an error.
func Load() (*Config, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	return LoadFrom(filepath.Join(dir, "config.yaml"))
}

// LoadFrom reads configuration from the given path.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			applyEnv(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays API keys from the environment. Environment wins over the
// file so keys can stay out of it.
func applyEnv(cfg *Config) {
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.Provider.Anthropic.APIKey = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.Provider.Gemini.APIKey = v
	}
	if v := os.Getenv("FOLIO_SERVER_URL"); v != "" {
		cfg.Client.ServerURL = v
	}
}

// Validate checks bounds that would otherwise surface as confusing runtime
// behavior.
func (c *Config) Validate() error {
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Runner.MaxToolIterations < 1 {
		return fmt.Errorf("runner.max_tool_iterations must be at least 1, got %d", c.Runner.MaxToolIterations)
	}
	if c.Runner.ToolConcurrency < 1 {
		return fmt.Errorf("runner.tool_concurrency must be at least 1, got %d", c.Runner.ToolConcurrency)
	}
	if c.Client.WatchdogCeiling <= 0 {
		return fmt.Errorf("client.watchdog_ceiling must be positive, got %v", c.Client.WatchdogCeiling)
	}
	switch c.Provider.Primary {
	case "anthropic", "gemini", "ollama":
	default:
		return fmt.Errorf("provider.primary must be anthropic, gemini or ollama, got %q", c.Provider.Primary)
	}
	if c.Provider.Fallback != "" {
		switch c.Provider.Fallback {
		case "anthropic", "gemini", "ollama":
		default:
			return fmt.Errorf("provider.fallback must be anthropic, gemini or ollama, got %q", c.Provider.Fallback)
		}
		if c.Provider.Fallback == c.Provider.Primary {
			return fmt.Errorf("provider.fallback must differ from provider.primary")
		}
	}
	return nil
}

// Save writes the configuration back to config.yaml.
func (c *Config) Save() error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, "config.yaml"), data, 0600)
}
