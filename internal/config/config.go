// ABOUTME: Configuration loading and parsing for the beacon client
// ABOUTME: Supports YAML and TOML files with env var expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config is the complete beacon client configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server" toml:"server"`
	Notifier NotifierConfig `yaml:"notifier" toml:"notifier"`
	Auth     AuthConfig     `yaml:"auth" toml:"auth"`
	Storage  StorageConfig  `yaml:"storage" toml:"storage"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics" toml:"metrics"`
}

// ServerConfig holds the platform API endpoints.
type ServerConfig struct {
	BaseURL    string `yaml:"base_url" toml:"base_url"`
	StreamPath string `yaml:"stream_path" toml:"stream_path"`
}

// NotifierConfig holds the background notifier connection settings.
// Origin is the platform's own origin used to normalize navigation URLs.
type NotifierConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	URL     string `yaml:"url" toml:"url"`
	Origin  string `yaml:"origin" toml:"origin"`
}

// AuthConfig holds identity verification settings.
type AuthConfig struct {
	VerifyPath string `yaml:"verify_path" toml:"verify_path"`
	TokenFile  string `yaml:"token_file" toml:"token_file"`
	TokenEnv   string `yaml:"token_env" toml:"token_env"`
}

// StorageConfig holds the per-session snapshot database settings.
type StorageConfig struct {
	Path      string `yaml:"path" toml:"path"`
	SessionID string `yaml:"session_id" toml:"session_id"`

	DedupeTTL time.Duration `yaml:"-" toml:"-"`
	// Raw string value for unmarshaling
	DedupeTTLRaw string `yaml:"dedupe_ttl" toml:"dedupe_ttl"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig holds the metrics endpoint configuration.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Addr    string `yaml:"addr" toml:"addr"`
}

// Load reads a configuration file and returns a parsed Config. The
// format is selected by extension: .toml parses as TOML, everything else
// as YAML. Environment variables in the format ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if err := toml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with environment variable
// values. Unset variables expand to an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// parseDurations converts raw duration strings into time.Duration values.
func parseDurations(cfg *Config) error {
	if cfg.Storage.DedupeTTLRaw != "" {
		d, err := time.ParseDuration(cfg.Storage.DedupeTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing dedupe_ttl %q: %w", cfg.Storage.DedupeTTLRaw, err)
		}
		cfg.Storage.DedupeTTL = d
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.StreamPath == "" {
		cfg.Server.StreamPath = "/api/stream"
	}
	if cfg.Auth.VerifyPath == "" {
		cfg.Auth.VerifyPath = "/api/auth/verify"
	}
	if cfg.Auth.TokenEnv == "" {
		cfg.Auth.TokenEnv = "BEACON_TOKEN"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

// Validate checks that all required configuration fields are present.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server.base_url is required")
	}

	if c.Notifier.Enabled && c.Notifier.URL == "" {
		return fmt.Errorf("notifier.url is required when the notifier is enabled")
	}

	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required")
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr is required when metrics are enabled")
	}

	return nil
}
