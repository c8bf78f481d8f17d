// Package config loads service configuration from a YAML file with
// environment variable expansion and credential fallbacks.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xynenyx/relay/internal/usage"
)

// Config is the immutable process-lifetime configuration snapshot.
type Config struct {
	Port int `yaml:"port"`

	Providers ProvidersConfig `yaml:"providers"`

	// Timeouts in seconds.
	RequestTimeout   int `yaml:"request_timeout"`
	StreamingTimeout int `yaml:"streaming_timeout"`

	// Completion cache time-to-live in seconds.
	CacheTTL int `yaml:"cache_ttl"`

	// Usage ledger database path.
	LedgerPath string `yaml:"ledger_path"`

	// Cost rates per 1K tokens, keyed by model id.
	CostRates map[string]usage.Rate `yaml:"cost_rates"`
}

// ProvidersConfig holds per-vendor settings.
type ProvidersConfig struct {
	OpenAI    OpenAIConfig `yaml:"openai"`
	Anthropic VendorConfig `yaml:"anthropic"`
	Gemini    VendorConfig `yaml:"gemini"`
	Ollama    OllamaConfig `yaml:"ollama"`
}

// OpenAIConfig configures the primary vendor.
type OpenAIConfig struct {
	Enabled        bool   `yaml:"enabled"`
	APIKey         string `yaml:"api_key,omitempty"`
	Model          string `yaml:"model,omitempty"`
	EmbeddingModel string `yaml:"embedding_model,omitempty"`
}

// VendorConfig configures a placeholder vendor.
type VendorConfig struct {
	Enabled bool   `yaml:"enabled"`
	APIKey  string `yaml:"api_key,omitempty"`
}

// OllamaConfig configures the local vendor.
type OllamaConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url,omitempty"`
	Model   string `yaml:"model,omitempty"`
}

// Load reads and validates configuration from a YAML file. Environment
// variables referenced in the file are expanded, and vendor API keys
// fall back to the conventional environment variables when unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Expand environment variables in the config
	expanded := os.ExpandEnv(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expanded), &config); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// Validate applies defaults and checks the configuration. Credentials
// may come from the environment instead of the file.
func (c *Config) Validate() error {
	var errors []string

	if c.Port <= 0 {
		c.Port = 8003
	}

	if c.Providers.OpenAI.APIKey == "" {
		c.Providers.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.Providers.Anthropic.APIKey == "" {
		c.Providers.Anthropic.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if c.Providers.Gemini.APIKey == "" {
		c.Providers.Gemini.APIKey = os.Getenv("GOOGLE_API_KEY")
	}

	if c.Providers.OpenAI.Enabled && c.Providers.OpenAI.APIKey == "" {
		errors = append(errors, "openai api_key is required when openai is enabled (set in config or OPENAI_API_KEY env var)")
	}

	if c.Providers.Ollama.Enabled && c.Providers.Ollama.URL == "" {
		c.Providers.Ollama.URL = "http://localhost:11434"
	}

	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 60
	}
	if c.StreamingTimeout <= 0 {
		c.StreamingTimeout = 300
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 3600
	}
	if c.LedgerPath == "" {
		c.LedgerPath = "usage.db"
	}
	if len(c.CostRates) == 0 {
		c.CostRates = usage.DefaultRates()
	}

	if len(errors) > 0 {
		return fmt.Errorf("%s", strings.Join(errors, "; "))
	}

	return nil
}

// RequestTimeoutDuration returns the request timeout as a duration.
func (c *Config) RequestTimeoutDuration() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// StreamingTimeoutDuration returns the streaming timeout as a duration.
func (c *Config) StreamingTimeoutDuration() time.Duration {
	return time.Duration(c.StreamingTimeout) * time.Second
}

// CacheTTLDuration returns the cache TTL as a duration.
func (c *Config) CacheTTLDuration() time.Duration {
	return time.Duration(c.CacheTTL) * time.Second
}
