package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all codestream configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Decoder behaviour
	Decoder DecoderConfig `yaml:"decoder"`

	// Upstream model transport
	Transport TransportConfig `yaml:"transport"`

	// Capture file following
	Tail TailConfig `yaml:"tail"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// DecoderConfig configures the stream decoder.
type DecoderConfig struct {
	// Narrative also stops at the first ``` fence.
	StopAtFence bool `yaml:"stop_at_fence"`

	// Keep never-closed file blocks in the final result instead of dropping them.
	SalvageDrafts bool `yaml:"salvage_drafts"`
}

// TransportConfig configures the chunk source used by `codestream fetch`.
type TransportConfig struct {
	Provider   string `yaml:"provider"` // openai, gemini
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	Timeout    string `yaml:"timeout"`
	MaxRetries int    `yaml:"max_retries"`
	ReadSize   int    `yaml:"read_size"` // bytes per chunk read from a body or file
}

// TailConfig configures `codestream tail`.
type TailConfig struct {
	IdleTimeout string `yaml:"idle_timeout"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "codestream",
		Version: "0.3.0",

		Decoder: DecoderConfig{
			StopAtFence:   false,
			SalvageDrafts: false,
		},

		Transport: TransportConfig{
			Provider:   "openai",
			BaseURL:    "https://api.openai.com/v1",
			Model:      "gpt-4o-mini",
			Timeout:    "5m",
			MaxRetries: 3,
			ReadSize:   4096,
		},

		Tail: TailConfig{
			IdleTimeout: "30s",
		},

		Logging: LoggingConfig{
			Level:     "info",
			Format:    "text",
			Dir:       filepath.Join(".codestream", "logs"),
			DebugMode: false,
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Defaults plus environment when there is no config file
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	// Provider keys (later entries win)
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.Transport.APIKey = key
		if c.Transport.Provider == "" {
			c.Transport.Provider = "openai"
		}
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Transport.APIKey = key
		c.Transport.Provider = "gemini"
	}

	if url := os.Getenv("CODESTREAM_BASE_URL"); url != "" {
		c.Transport.BaseURL = url
	}
	if model := os.Getenv("CODESTREAM_MODEL"); model != "" {
		c.Transport.Model = model
	}
	if os.Getenv("CODESTREAM_DEBUG") == "1" {
		c.Logging.DebugMode = true
	}
}

// GetTransportTimeout returns the transport timeout as a duration.
func (c *Config) GetTransportTimeout() time.Duration {
	d, err := time.ParseDuration(c.Transport.Timeout)
	if err != nil {
		return 5 * time.Minute
	}
	return d
}

// GetTailIdleTimeout returns how long `tail` waits for new bytes before ending the session.
func (c *Config) GetTailIdleTimeout() time.Duration {
	d, err := time.ParseDuration(c.Tail.IdleTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// GetReadSize returns the chunk read size, falling back to 4KiB.
func (c *Config) GetReadSize() int {
	if c.Transport.ReadSize <= 0 {
		return 4096
	}
	return c.Transport.ReadSize
}

// ValidProviders lists all supported transport providers.
var ValidProviders = []string{"openai", "gemini"}

// Validate validates the configuration needed for live fetching.
func (c *Config) Validate() error {
	if c.Transport.APIKey == "" {
		return fmt.Errorf("transport API key not configured (set OPENAI_API_KEY or GEMINI_API_KEY)")
	}

	validProvider := false
	for _, p := range ValidProviders {
		if c.Transport.Provider == p {
			validProvider = true
			break
		}
	}
	if !validProvider {
		return fmt.Errorf("invalid transport provider: %s (valid: %v)", c.Transport.Provider, ValidProviders)
	}

	if c.Transport.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be >= 0, got %d", c.Transport.MaxRetries)
	}

	return nil
}
