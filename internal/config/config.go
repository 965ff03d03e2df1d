// ABOUTME: Configuration loading and parsing for coven-relay
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

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

// Config represents the complete coven-relay configuration
type Config struct {
	Server  ServerConfig  `yaml:"server" toml:"server"`
	History HistoryConfig `yaml:"history" toml:"history"`
	Contact ContactConfig `yaml:"contact" toml:"contact"`
	Auth    AuthConfig    `yaml:"auth" toml:"auth"`
	Notify  NotifyConfig  `yaml:"notify" toml:"notify"`
	Limits  LimitsConfig  `yaml:"limits" toml:"limits"`
	Logging LoggingConfig `yaml:"logging" toml:"logging"`
	Metrics MetricsConfig `yaml:"metrics" toml:"metrics"`
}

// ServerConfig holds the listener settings
type ServerConfig struct {
	HTTPAddr          string        `yaml:"http_addr" toml:"http_addr"`
	ReadHeaderTimeout time.Duration `yaml:"-" toml:"-"`
	ShutdownTimeout   time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	ReadHeaderTimeoutRaw string `yaml:"read_header_timeout" toml:"read_header_timeout"`
	ShutdownTimeoutRaw   string `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
}

// HistoryConfig selects the conversation history backend
type HistoryConfig struct {
	Backend string `yaml:"backend" toml:"backend"`
	Path    string `yaml:"path" toml:"path"`
}

// ContactConfig holds the contact form log location
type ContactConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// AuthConfig holds admin login configuration. Leaving admin_username empty
// disables admin authentication entirely.
type AuthConfig struct {
	AdminUsername     string        `yaml:"admin_username" toml:"admin_username"`
	AdminPasswordHash string        `yaml:"admin_password_hash" toml:"admin_password_hash"`
	JWTSecret         string        `yaml:"jwt_secret" toml:"jwt_secret"`
	SecureCookie      bool          `yaml:"secure_cookie" toml:"secure_cookie"`
	TokenTTL          time.Duration `yaml:"-" toml:"-"`

	TokenTTLRaw string `yaml:"token_ttl" toml:"token_ttl"`
}

// Enabled reports whether admin login is configured.
func (a AuthConfig) Enabled() bool {
	return a.AdminUsername != ""
}

// NotifyConfig holds outbound email notification settings
type NotifyConfig struct {
	Enabled        bool          `yaml:"enabled" toml:"enabled"`
	SMTPHost       string        `yaml:"smtp_host" toml:"smtp_host"`
	SMTPPort       int           `yaml:"smtp_port" toml:"smtp_port"`
	Username       string        `yaml:"username" toml:"username"`
	Password       string        `yaml:"password" toml:"password"`
	From           string        `yaml:"from" toml:"from"`
	To             []string      `yaml:"to" toml:"to"`
	MaxInFlight    int           `yaml:"max_in_flight" toml:"max_in_flight"`
	Backlog        int           `yaml:"backlog" toml:"backlog"`
	Timeout        time.Duration `yaml:"-" toml:"-"`
	CoalesceWindow time.Duration `yaml:"-" toml:"-"`

	TimeoutRaw        string `yaml:"timeout" toml:"timeout"`
	CoalesceWindowRaw string `yaml:"coalesce_window" toml:"coalesce_window"`
}

// LimitsConfig bounds per-connection resource use
type LimitsConfig struct {
	FramesPerSecond float64 `yaml:"frames_per_second" toml:"frames_per_second"`
	Burst           int     `yaml:"burst" toml:"burst"`
	MaxFrameBytes   int     `yaml:"max_frame_bytes" toml:"max_frame_bytes"`
	SendQueue       int     `yaml:"send_queue" toml:"send_queue"`
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

// DefaultPath returns the config file location.
// Priority: RELAY_CONFIG env var > XDG_CONFIG_HOME/coven/relay.yaml > ~/.config/coven/relay.yaml
func DefaultPath() string {
	if envPath := os.Getenv("RELAY_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "relay.yaml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "coven", "relay.yaml")
}

// Default returns a configuration with every optional field filled in.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
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

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// Unset variables expand to an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "127.0.0.1:8080"
	}
	if c.Server.ReadHeaderTimeout == 0 {
		c.Server.ReadHeaderTimeout = 10 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 5 * time.Second
	}
	if c.History.Backend == "" {
		c.History.Backend = "file"
	}
	if c.History.Path == "" {
		c.History.Path = "chatHistory.json"
	}
	if c.Contact.Path == "" {
		c.Contact.Path = "messages.json"
	}
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = 12 * time.Hour
	}
	if c.Notify.SMTPPort == 0 {
		c.Notify.SMTPPort = 587
	}
	if c.Notify.MaxInFlight == 0 {
		c.Notify.MaxInFlight = 4
	}
	if c.Notify.Backlog == 0 {
		c.Notify.Backlog = 64
	}
	if c.Notify.Timeout == 0 {
		c.Notify.Timeout = 10 * time.Second
	}
	if c.Limits.FramesPerSecond == 0 {
		c.Limits.FramesPerSecond = 20
	}
	if c.Limits.Burst == 0 {
		c.Limits.Burst = 40
	}
	if c.Limits.MaxFrameBytes == 0 {
		c.Limits.MaxFrameBytes = 64 * 1024
	}
	if c.Limits.SendQueue == 0 {
		c.Limits.SendQueue = 64
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	switch c.History.Backend {
	case "file", "sqlite":
	default:
		return fmt.Errorf("history.backend must be \"file\" or \"sqlite\", got %q", c.History.Backend)
	}
	if c.History.Path == "" {
		return fmt.Errorf("history.path is required")
	}

	if c.Auth.Enabled() {
		if c.Auth.AdminPasswordHash == "" {
			return fmt.Errorf("auth.admin_password_hash is required when auth.admin_username is set")
		}
		if len(c.Auth.JWTSecret) < 32 {
			return fmt.Errorf("auth.jwt_secret must be at least 32 bytes when auth.admin_username is set")
		}
	}

	if c.Notify.Enabled {
		if c.Notify.SMTPHost == "" {
			return fmt.Errorf("notify.smtp_host is required when notify is enabled")
		}
		if c.Notify.From == "" {
			return fmt.Errorf("notify.from is required when notify is enabled")
		}
		if len(c.Notify.To) == 0 {
			return fmt.Errorf("notify.to needs at least one recipient when notify is enabled")
		}
	}

	if c.Limits.FramesPerSecond < 0 || c.Limits.Burst < 0 || c.Limits.MaxFrameBytes < 0 || c.Limits.SendQueue < 0 {
		return fmt.Errorf("limits must not be negative")
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be \"text\" or \"json\", got %q", c.Logging.Format)
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"server.read_header_timeout", cfg.Server.ReadHeaderTimeoutRaw, &cfg.Server.ReadHeaderTimeout},
		{"server.shutdown_timeout", cfg.Server.ShutdownTimeoutRaw, &cfg.Server.ShutdownTimeout},
		{"auth.token_ttl", cfg.Auth.TokenTTLRaw, &cfg.Auth.TokenTTL},
		{"notify.timeout", cfg.Notify.TimeoutRaw, &cfg.Notify.Timeout},
		{"notify.coalesce_window", cfg.Notify.CoalesceWindowRaw, &cfg.Notify.CoalesceWindow},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must not be negative", f.name)
		}
		*f.dst = d
	}

	return nil
}
