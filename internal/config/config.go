// ABOUTME: Configuration loading and parsing for llm-chat
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/2389/llm-chat/internal/transport"
)

// Defaults applied by Load when a field is left empty.
const (
	DefaultHTTPAddr    = "127.0.0.1:8089"
	DefaultMetricsPath = "/metrics"
	DefaultTimeout     = 100 * time.Second
)

// Config represents the complete llm-chat configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics" toml:"metrics"`
	Reasoning ReasoningConfig `yaml:"reasoning" toml:"reasoning"`
	Sessions  []SessionConfig `yaml:"sessions" toml:"sessions"`
}

// ServerConfig holds the collaborator API listen address
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

// ReasoningConfig holds the initial state of the shared reasoning flag.
// Hidden is a pointer so an omitted value can default to true.
type ReasoningConfig struct {
	Hidden *bool `yaml:"hidden" toml:"hidden"`
}

// IsHidden reports the configured flag, true when unset.
func (r ReasoningConfig) IsHidden() bool {
	return r.Hidden == nil || *r.Hidden
}

// SessionConfig describes one named conversation and the endpoint it talks to
type SessionConfig struct {
	Name         string `yaml:"name" toml:"name"`
	Transport    string `yaml:"transport" toml:"transport"`
	Endpoint     string `yaml:"endpoint" toml:"endpoint"`
	APIKey       string `yaml:"api_key" toml:"api_key"`
	Model        string `yaml:"model" toml:"model"`
	MaxTokens    int    `yaml:"max_tokens" toml:"max_tokens"`
	SystemPrompt string `yaml:"system_prompt" toml:"system_prompt"`

	Timeout time.Duration `yaml:"-" toml:"-"`

	// Raw string value for unmarshaling
	TimeoutRaw string `yaml:"timeout" toml:"timeout"`
}

// Kind returns the transport variant for this session.
func (s SessionConfig) Kind() transport.Kind {
	return transport.Kind(s.Transport)
}

// SameEndpoint reports whether other would build an identical transport.
// The system prompt is not part of the comparison.
func (s SessionConfig) SameEndpoint(other SessionConfig) bool {
	return s.Transport == other.Transport &&
		s.Endpoint == other.Endpoint &&
		s.APIKey == other.APIKey &&
		s.Model == other.Model &&
		s.MaxTokens == other.MaxTokens &&
		s.Timeout == other.Timeout
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expanded := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = DefaultHTTPAddr
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
	for i := range c.Sessions {
		if c.Sessions[i].TimeoutRaw == "" {
			c.Sessions[i].Timeout = DefaultTimeout
		}
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if len(c.Sessions) == 0 {
		return fmt.Errorf("at least one session is required")
	}

	seen := make(map[string]bool, len(c.Sessions))
	for i, s := range c.Sessions {
		if s.Name == "" {
			return fmt.Errorf("sessions[%d].name is required", i)
		}
		if seen[s.Name] {
			return fmt.Errorf("sessions[%d].name %q is used more than once", i, s.Name)
		}
		seen[s.Name] = true

		switch s.Kind() {
		case transport.KindCompletions:
			if err := transport.ValidateEndpoint(s.Endpoint); err != nil {
				return fmt.Errorf("session %q: endpoint: %w", s.Name, err)
			}
		case transport.KindContentArray:
			if s.APIKey == "" {
				return fmt.Errorf("session %q: api_key is required for transport %q", s.Name, s.Transport)
			}
			if s.Endpoint != "" {
				if err := transport.ValidateEndpoint(s.Endpoint); err != nil {
					return fmt.Errorf("session %q: endpoint: %w", s.Name, err)
				}
			}
		default:
			return fmt.Errorf("session %q: unknown transport %q (want %q or %q)",
				s.Name, s.Transport, transport.KindCompletions, transport.KindContentArray)
		}

		if s.MaxTokens < 0 {
			return fmt.Errorf("session %q: max_tokens must not be negative", s.Name)
		}
		if s.Timeout < 0 {
			return fmt.Errorf("session %q: timeout must not be negative", s.Name)
		}
	}

	return nil
}

// Session returns the named session config.
func (c *Config) Session(name string) (SessionConfig, bool) {
	for _, s := range c.Sessions {
		if s.Name == name {
			return s, true
		}
	}
	return SessionConfig{}, false
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	for i := range cfg.Sessions {
		s := &cfg.Sessions[i]
		if s.TimeoutRaw == "" {
			continue
		}
		d, err := time.ParseDuration(s.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing sessions[%d].timeout %q: %w", i, s.TimeoutRaw, err)
		}
		s.Timeout = d
	}
	return nil
}
