// Package config loads Echo's runtime configuration.
//
// Precedence, lowest to highest: built-in defaults, an optional YAML file,
// environment variables. Every knob has a sane default so a bare
// `ECHO_GEMINI_API_KEY=... echo` just works.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Provider names accepted by Config.Provider.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Config is Echo's complete runtime configuration.
type Config struct {
	// HTTPAddr is the listen address for the JSON API.
	HTTPAddr string `yaml:"http_addr"`
	// DBPath is the SQLite database file.
	DBPath string `yaml:"db_path"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Provider selects the generation backend: "gemini" or "openai".
	Provider string `yaml:"provider"`

	Gemini GeminiConfig `yaml:"gemini"`
	OpenAI OpenAIConfig `yaml:"openai"`

	// RateLimit caps generation turns per user per RateWindow. Zero
	// disables throttling.
	RateLimit  int           `yaml:"rate_limit"`
	RateWindow time.Duration `yaml:"rate_window"`

	// SessionTTL is the bearer token lifetime for the web API.
	SessionTTL time.Duration `yaml:"session_ttl"`
}

// GeminiConfig configures the Gemini provider. The API key is env-only.
type GeminiConfig struct {
	APIKey  string        `yaml:"-"`
	BaseURL string        `yaml:"base_url"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// OpenAIConfig configures the OpenAI-compatible provider. The API key is
// env-only.
type OpenAIConfig struct {
	APIKey  string        `yaml:"-"`
	BaseURL string        `yaml:"base_url"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		HTTPAddr:   ":8080",
		DBPath:     "echo.db",
		LogLevel:   "info",
		LogFormat:  "json",
		Provider:   ProviderGemini,
		RateLimit:  30,
		RateWindow: time.Minute,
		SessionTTL: 12 * time.Hour,
	}
}

// Load builds the configuration from defaults, the YAML file at path (when
// it exists; a missing file is not an error), and environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			// No file, defaults + env only.
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv layers ECHO_* environment variables over the current values.
// Secrets (API keys) only ever come from the environment.
func (c *Config) applyEnv() {
	c.HTTPAddr = stringOr("ECHO_HTTP_ADDR", c.HTTPAddr)
	c.DBPath = stringOr("ECHO_DB_PATH", c.DBPath)
	c.LogLevel = stringOr("ECHO_LOG_LEVEL", c.LogLevel)
	c.LogFormat = stringOr("ECHO_LOG_FORMAT", c.LogFormat)
	c.Provider = stringOr("ECHO_PROVIDER", c.Provider)

	c.Gemini.APIKey = stringOr("ECHO_GEMINI_API_KEY", os.Getenv("GEMINI_API_KEY"))
	c.Gemini.BaseURL = stringOr("ECHO_GEMINI_BASE_URL", c.Gemini.BaseURL)
	c.Gemini.Model = stringOr("ECHO_GEMINI_MODEL", c.Gemini.Model)

	c.OpenAI.APIKey = stringOr("ECHO_OPENAI_API_KEY", os.Getenv("OPENAI_API_KEY"))
	c.OpenAI.BaseURL = stringOr("ECHO_OPENAI_BASE_URL", c.OpenAI.BaseURL)
	c.OpenAI.Model = stringOr("ECHO_OPENAI_MODEL", c.OpenAI.Model)

	c.RateLimit = intOr("ECHO_RATE_LIMIT", c.RateLimit)
	c.RateWindow = durationOr("ECHO_RATE_WINDOW", c.RateWindow)
	c.SessionTTL = durationOr("ECHO_SESSION_TTL", c.SessionTTL)
}

// validate rejects configurations the app cannot start with.
func (c *Config) validate() error {
	switch c.Provider {
	case ProviderGemini:
		if c.Gemini.APIKey == "" {
			return errors.New("config: gemini provider selected but no API key set (ECHO_GEMINI_API_KEY)")
		}
	case ProviderOpenAI:
		if c.OpenAI.APIKey == "" {
			return errors.New("config: openai provider selected but no API key set (ECHO_OPENAI_API_KEY)")
		}
	default:
		return fmt.Errorf("config: unknown provider %q", c.Provider)
	}
	if c.DBPath == "" {
		return errors.New("config: db_path must not be empty")
	}
	return nil
}
