package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"gopkg.in/yaml.v3"

	"github.com/jdgilhuly/go_second_opinion/pkg/prompt"
)

// Config holds the top-level second-opinion server configuration.
type Config struct {
	Providers Providers             `yaml:"providers"`
	Tools     map[string]ToolConfig `yaml:"tools"`
	Logging   LoggingConfig         `yaml:"logging"`
	HTTP      HTTPConfig            `yaml:"http"`
}

// Providers holds one ProviderConfig per backend kind.
type Providers struct {
	OpenAI ProviderConfig `yaml:"openai"`
	Gemini ProviderConfig `yaml:"gemini"`
	Ollama ProviderConfig `yaml:"ollama"`
	Claude ProviderConfig `yaml:"claude"`
}

// ProviderConfig holds configuration for a single opinion backend. Which
// connection fields are required depends on the backend kind; see Validate.
type ProviderConfig struct {
	Enabled      bool          `yaml:"enabled"`
	APIKey       string        `yaml:"api_key,omitempty"`
	BaseURL      string        `yaml:"base_url,omitempty"`
	Command      string        `yaml:"command,omitempty"`
	Model        string        `yaml:"model,omitempty"`
	DefaultRole  string        `yaml:"default_role"`
	CustomPrompt string        `yaml:"custom_prompt,omitempty"`
	Timeout      time.Duration `yaml:"timeout,omitempty"`
}

// ToolConfig overrides the description of a named tool or disables it.
type ToolConfig struct {
	Description string `yaml:"description,omitempty"`
	Enabled     *bool  `yaml:"enabled,omitempty"`
}

// IsEnabled reports whether the tool should be exposed. Tools are enabled
// unless explicitly turned off.
func (t ToolConfig) IsEnabled() bool {
	return t.Enabled == nil || *t.Enabled
}

// LoggingConfig controls the process logger.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	Enabled bool   `yaml:"enabled"`
}

// HTTPConfig controls the optional HTTP tool surface. An empty Addr leaves
// it disabled.
type HTTPConfig struct {
	Addr string `yaml:"addr,omitempty"`
}

// envOverrides lists the environment variables that take precedence over
// values read from the config file.
type envOverrides struct {
	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	OllamaBaseURL string `env:"OLLAMA_BASE_URL"`
	LogLevel      string `env:"LOG_LEVEL"`
	HTTPAddr      string `env:"SECOND_OPINION_HTTP_ADDR"`
}

const defaultRole = "You are an expert reviewer giving an independent second opinion. Be concise and point out disagreements."

// Default returns a Config populated with sensible defaults. Every provider
// starts disabled.
func Default() *Config {
	return &Config{
		Providers: Providers{
			OpenAI: ProviderConfig{
				Model:       "gpt-4o",
				DefaultRole: defaultRole,
			},
			Gemini: ProviderConfig{
				Command:     "gemini",
				Model:       "gemini-2.5-pro",
				DefaultRole: defaultRole,
			},
			Ollama: ProviderConfig{
				BaseURL:     "http://localhost:11434",
				Model:       "llama3.2",
				DefaultRole: defaultRole,
			},
			Claude: ProviderConfig{
				Command:     "claude",
				DefaultRole: defaultRole,
			},
		},
		Tools: make(map[string]ToolConfig),
		Logging: LoggingConfig{
			Level:   "info",
			Enabled: true,
		},
	}
}

// Load reads and parses a YAML config file at the given path, then applies
// environment overrides. It does not validate; call Validate before use.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	if cfg.Tools == nil {
		cfg.Tools = make(map[string]ToolConfig)
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads config from the given path. If the file does not exist,
// it returns the default configuration with environment overrides applied.
// Other errors (e.g. parse failures) are still returned.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg = Default()
			if err := cfg.ApplyEnv(); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays environment variables onto c. Set variables win over
// file-provided values; unset ones leave c untouched.
func (c *Config) ApplyEnv() error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parsing environment overrides: %w", err)
	}

	if o.OpenAIAPIKey != "" {
		c.Providers.OpenAI.APIKey = o.OpenAIAPIKey
	}
	if o.OllamaBaseURL != "" {
		c.Providers.Ollama.BaseURL = o.OllamaBaseURL
	}
	if o.LogLevel != "" {
		c.Logging.Level = strings.ToLower(o.LogLevel)
	}
	if o.HTTPAddr != "" {
		c.HTTP.Addr = o.HTTPAddr
	}
	return nil
}

// Validate checks the config for required fields and returns a descriptive
// error if any are missing or invalid. Disabled providers are not checked
// beyond their timeout.
func (c *Config) Validate() error {
	var errs []error

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level must be one of debug, info, warn, error, got %q", c.Logging.Level))
	}

	errs = append(errs, validateProvider("openai", c.Providers.OpenAI, "api_key", "model")...)
	errs = append(errs, validateProvider("gemini", c.Providers.Gemini, "command", "model")...)
	errs = append(errs, validateProvider("ollama", c.Providers.Ollama, "base_url", "model")...)
	errs = append(errs, validateProvider("claude", c.Providers.Claude, "command")...)

	return errors.Join(errs...)
}

func validateProvider(name string, p ProviderConfig, required ...string) []error {
	var errs []error

	if p.Timeout < 0 {
		errs = append(errs, fmt.Errorf("providers.%s.timeout must be >= 0, got %s", name, p.Timeout))
	}
	if !p.Enabled {
		return errs
	}

	fields := map[string]string{
		"api_key":  p.APIKey,
		"base_url": p.BaseURL,
		"command":  p.Command,
		"model":    p.Model,
	}
	for _, field := range required {
		if strings.TrimSpace(fields[field]) == "" {
			errs = append(errs, fmt.Errorf("providers.%s.%s is required when the provider is enabled", name, field))
		}
	}

	if p.CustomPrompt != "" {
		if err := prompt.Check(name, p.CustomPrompt); err != nil {
			errs = append(errs, fmt.Errorf("providers.%s.custom_prompt: %w", name, err))
		}
	}
	return errs
}
