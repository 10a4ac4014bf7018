// Package config loads the ema-chat YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	ProviderOpenAI          = "openai"
	ProviderChatCompletions = "chatcompletions"
	ProviderAnthropic       = "anthropic"
	ProviderGemini          = "gemini"

	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Backend      BackendConfig      `yaml:"backend"`
	Capabilities CapabilitiesConfig `yaml:"capabilities"`
	Pacing       PacingConfig       `yaml:"pacing"`
	Tools        ToolsConfig        `yaml:"tools"`
	Storage      StorageConfig      `yaml:"storage"`
	Logging      LoggingConfig      `yaml:"logging"`
	Metrics      MetricsConfig      `yaml:"metrics"`
}

type BackendConfig struct {
	Provider string `yaml:"provider"` // openai, chatcompletions, anthropic, gemini
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `yaml:"api_key_env"`
	MaxTokens int    `yaml:"max_tokens"`
}

// APIKey reads the key from the configured environment variable.
func (c BackendConfig) APIKey() string {
	if c.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.APIKeyEnv)
}

type CapabilitiesConfig struct {
	Tools         bool `yaml:"tools"`
	Images        bool `yaml:"images"`
	Reasoning     bool `yaml:"reasoning"`
	ContextWindow int  `yaml:"context_window"`
}

type PacingConfig struct {
	Duration  time.Duration `yaml:"duration"`
	Frequency int           `yaml:"frequency"`
	Tiers     []PacingTier  `yaml:"tiers"`
}

type PacingTier struct {
	Characters int `yaml:"characters"`
	Frequency  int `yaml:"frequency"`
}

type ToolsConfig struct {
	MaxOutputBytes int             `yaml:"max_output_bytes"`
	WebSearch      WebSearchConfig `yaml:"web_search"`
	MCPServers     []MCPServer     `yaml:"mcp_servers"`
}

type WebSearchConfig struct {
	// Provider is "brave", "duckduckgo" or empty to disable web search.
	Provider   string `yaml:"provider"`
	APIKeyEnv  string `yaml:"api_key_env"`
	MaxResults int    `yaml:"max_results"`
	// FetchPages is how many result pages are fetched and summarised per
	// search.
	FetchPages int `yaml:"fetch_pages"`
}

func (c WebSearchConfig) APIKey() string {
	if c.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.APIKeyEnv)
}

type MCPServer struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

type StorageConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type LoggingConfig struct {
	// File is the rotated log file. Empty logs to stderr.
	File       string `yaml:"file"`
	Level      string `yaml:"level"` // debug, info, warn, error
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

type MetricsConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			Provider:  ProviderOpenAI,
			Model:     "gpt-4.1-mini",
			APIKeyEnv: "OPENAI_API_KEY",
		},
		Capabilities: CapabilitiesConfig{Tools: true, Images: true},
		Pacing: PacingConfig{
			Duration:  200 * time.Millisecond,
			Frequency: 10,
			Tiers: []PacingTier{
				{Characters: 1000, Frequency: 6},
				{Characters: 2000, Frequency: 4},
				{Characters: 5000, Frequency: 2},
			},
		},
		Tools: ToolsConfig{
			MaxOutputBytes: 64 * 1024,
			WebSearch: WebSearchConfig{
				Provider:   "duckduckgo",
				MaxResults: 5,
			},
		},
		Storage: StorageConfig{Driver: DriverMemory},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Metrics: MetricsConfig{Interval: time.Minute},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	config := Default()
	if path == "" {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return config, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) Validate() error {
	var problems []error

	providers := []string{ProviderOpenAI, ProviderChatCompletions, ProviderAnthropic, ProviderGemini}
	if !slices.Contains(providers, strings.ToLower(c.Backend.Provider)) {
		problems = append(problems, fmt.Errorf("backend.provider must be one of %s", strings.Join(providers, ", ")))
	}
	if c.Backend.Model == "" {
		problems = append(problems, errors.New("backend.model is required"))
	}
	if c.Backend.MaxTokens < 0 {
		problems = append(problems, errors.New("backend.max_tokens must not be negative"))
	}

	if c.Pacing.Duration < 0 || c.Pacing.Frequency < 0 {
		problems = append(problems, errors.New("pacing.duration and pacing.frequency must not be negative"))
	}
	for i, tier := range c.Pacing.Tiers {
		if tier.Characters <= 0 || tier.Frequency <= 0 {
			problems = append(problems, fmt.Errorf("pacing.tiers[%d] needs positive characters and frequency", i))
		}
	}

	switch strings.ToLower(c.Tools.WebSearch.Provider) {
	case "", "brave", "duckduckgo":
	default:
		problems = append(problems, fmt.Errorf("tools.web_search.provider %q is not supported", c.Tools.WebSearch.Provider))
	}
	for i, server := range c.Tools.MCPServers {
		if server.Name == "" || server.URL == "" {
			problems = append(problems, fmt.Errorf("tools.mcp_servers[%d] needs a name and url", i))
		}
	}

	switch c.Storage.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Storage.DSN == "" {
			problems = append(problems, errors.New("storage.dsn is required for the sqlite driver"))
		}
	default:
		problems = append(problems, fmt.Errorf("storage.driver %q is not supported", c.Storage.Driver))
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Errorf("logging.level %q is not supported", c.Logging.Level))
	}

	if c.Metrics.Enabled && c.Metrics.Interval <= 0 {
		problems = append(problems, errors.New("metrics.interval must be positive when metrics are enabled"))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(problems...))
	}
	return nil
}
