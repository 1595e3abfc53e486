// ABOUTME: Configuration loading and parsing for coven-responder
// ABOUTME: Reads TOML or YAML, expands ${VAR}, applies RESPONDER_* overrides, parses durations

package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Defaults applied when a field is left empty.
const (
	DefaultDedupeTTL  = 10 * time.Minute
	DefaultDedupeSize = 10000
	DefaultLogLevel   = "info"
)

// Config represents the complete coven-responder configuration
type Config struct {
	Matrix   MatrixConfig   `toml:"matrix" yaml:"matrix"`
	Database DatabaseConfig `toml:"database" yaml:"database"`
	Bridge   BridgeConfig   `toml:"bridge" yaml:"bridge"`
	Logging  LoggingConfig  `toml:"logging" yaml:"logging"`
}

// MatrixConfig holds the bot account credentials
type MatrixConfig struct {
	Homeserver  string `toml:"homeserver" yaml:"homeserver" env:"RESPONDER_MATRIX_HOMESERVER"`
	Username    string `toml:"username" yaml:"username" env:"RESPONDER_MATRIX_USERNAME"`
	Password    string `toml:"password" yaml:"password" env:"RESPONDER_MATRIX_PASSWORD"`
	RecoveryKey string `toml:"recovery_key" yaml:"recovery_key" env:"RESPONDER_MATRIX_RECOVERY_KEY"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	// Path is the SQLite file holding the responds and the audit log
	Path string `toml:"path" yaml:"path" env:"RESPONDER_DB_PATH"`
	// CryptoPath is the SQLite file holding Matrix encryption state.
	// Defaults to crypto.db next to Path.
	CryptoPath string `toml:"crypto_path" yaml:"crypto_path" env:"RESPONDER_CRYPTO_DB_PATH"`
}

// BridgeConfig controls which messages the bot handles
type BridgeConfig struct {
	AllowedRooms    []string `toml:"allowed_rooms" yaml:"allowed_rooms" env:"RESPONDER_ALLOWED_ROOMS"`
	CommandPrefix   string   `toml:"command_prefix" yaml:"command_prefix" env:"RESPONDER_COMMAND_PREFIX"`
	TypingIndicator bool     `toml:"typing_indicator" yaml:"typing_indicator" env:"RESPONDER_TYPING_INDICATOR"`
	DedupeSize      int      `toml:"dedupe_size" yaml:"dedupe_size" env:"RESPONDER_DEDUPE_SIZE"`

	DedupeTTL time.Duration `toml:"-" yaml:"-"`

	// Raw string value for file unmarshaling
	DedupeTTLRaw string `toml:"dedupe_ttl" yaml:"dedupe_ttl" env:"RESPONDER_DEDUPE_TTL"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `toml:"level" yaml:"level" env:"RESPONDER_LOG_LEVEL"`
}

var envVarRe = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads a configuration file from the given path and returns a parsed Config.
// The format follows the file extension: .toml, or .yaml/.yml.
// ${VAR_NAME} references are expanded before decoding, and RESPONDER_*
// environment variables override the decoded values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg, err := Parse(filepath.Ext(path), data)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Parse decodes data in the format named by ext, applies environment
// overrides and defaults, but does not validate.
func Parse(ext string, data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	var cfg Config
	switch strings.ToLower(ext) {
	case ".toml":
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q (want .toml, .yaml or .yml)", ext)
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarRe.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarRe.FindStringSubmatch(match)[1])
	})
}

func (c *Config) applyDefaults() {
	if c.Bridge.DedupeTTL == 0 {
		c.Bridge.DedupeTTL = DefaultDedupeTTL
	}
	if c.Bridge.DedupeSize == 0 {
		c.Bridge.DedupeSize = DefaultDedupeSize
	}
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Database.CryptoPath == "" && c.Database.Path != "" {
		c.Database.CryptoPath = filepath.Join(filepath.Dir(c.Database.Path), "crypto.db")
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Matrix.Homeserver == "" {
		return fmt.Errorf("matrix.homeserver is required")
	}
	u, err := url.Parse(c.Matrix.Homeserver)
	if err != nil {
		return fmt.Errorf("matrix.homeserver is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("matrix.homeserver must use http or https scheme")
	}
	if c.Matrix.Username == "" {
		return fmt.Errorf("matrix.username is required")
	}
	if c.Matrix.Password == "" {
		return fmt.Errorf("matrix.password is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Bridge.DedupeTTL < 0 {
		return fmt.Errorf("bridge.dedupe_ttl must not be negative")
	}
	if c.Bridge.DedupeSize < 0 {
		return fmt.Errorf("bridge.dedupe_size must not be negative")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	if cfg.Bridge.DedupeTTLRaw != "" {
		d, err := time.ParseDuration(cfg.Bridge.DedupeTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing dedupe_ttl %q: %w", cfg.Bridge.DedupeTTLRaw, err)
		}
		cfg.Bridge.DedupeTTL = d
	}
	return nil
}

// IsRoomAllowed reports whether the bot should handle messages from roomID.
// An empty allow list admits every room.
func (b BridgeConfig) IsRoomAllowed(roomID string) bool {
	if len(b.AllowedRooms) == 0 {
		return true
	}
	for _, allowed := range b.AllowedRooms {
		if allowed == roomID {
			return true
		}
	}
	return false
}
