// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers TOML and YAML loading, env var expansion, env overrides, and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validTOML = `
[matrix]
homeserver = "https://matrix.example.org"
username = "responder"
password = "hunter2"
recovery_key = "EsTx abcd"

[database]
path = "/var/lib/responder/responder.db"

[bridge]
allowed_rooms = ["!one:example.org", "!two:example.org"]
command_prefix = "!responder"
typing_indicator = true
dedupe_ttl = "90s"
dedupe_size = 500

[logging]
level = "debug"
`

const validYAML = `
matrix:
  homeserver: "https://matrix.example.org"
  username: "responder"
  password: "hunter2"

database:
  path: "/var/lib/responder/responder.db"
  crypto_path: "/var/lib/responder/keys.db"

bridge:
  allowed_rooms:
    - "!one:example.org"
  command_prefix: "!responder"
  dedupe_ttl: "5m"
`

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_TOML(t *testing.T) {
	cfg, err := Load(writeConfig(t, "config.toml", validTOML))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Matrix.Homeserver != "https://matrix.example.org" {
		t.Errorf("Matrix.Homeserver = %q", cfg.Matrix.Homeserver)
	}
	if cfg.Matrix.Username != "responder" {
		t.Errorf("Matrix.Username = %q, want %q", cfg.Matrix.Username, "responder")
	}
	if cfg.Matrix.RecoveryKey != "EsTx abcd" {
		t.Errorf("Matrix.RecoveryKey = %q", cfg.Matrix.RecoveryKey)
	}
	if cfg.Database.Path != "/var/lib/responder/responder.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.Database.CryptoPath != filepath.Join("/var/lib/responder", "crypto.db") {
		t.Errorf("Database.CryptoPath = %q, want crypto.db beside the database", cfg.Database.CryptoPath)
	}
	if len(cfg.Bridge.AllowedRooms) != 2 {
		t.Errorf("Bridge.AllowedRooms len = %d, want 2", len(cfg.Bridge.AllowedRooms))
	}
	if cfg.Bridge.CommandPrefix != "!responder" {
		t.Errorf("Bridge.CommandPrefix = %q", cfg.Bridge.CommandPrefix)
	}
	if !cfg.Bridge.TypingIndicator {
		t.Error("Bridge.TypingIndicator = false, want true")
	}
	if cfg.Bridge.DedupeTTL != 90*time.Second {
		t.Errorf("Bridge.DedupeTTL = %v, want %v", cfg.Bridge.DedupeTTL, 90*time.Second)
	}
	if cfg.Bridge.DedupeSize != 500 {
		t.Errorf("Bridge.DedupeSize = %d, want 500", cfg.Bridge.DedupeSize)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
}

func TestLoad_YAML(t *testing.T) {
	for _, name := range []string{"config.yaml", "config.yml"} {
		t.Run(name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, name, validYAML))
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}

			if cfg.Matrix.Password != "hunter2" {
				t.Errorf("Matrix.Password = %q", cfg.Matrix.Password)
			}
			if cfg.Database.CryptoPath != "/var/lib/responder/keys.db" {
				t.Errorf("Database.CryptoPath = %q", cfg.Database.CryptoPath)
			}
			if cfg.Bridge.DedupeTTL != 5*time.Minute {
				t.Errorf("Bridge.DedupeTTL = %v, want %v", cfg.Bridge.DedupeTTL, 5*time.Minute)
			}
			if cfg.Bridge.TypingIndicator {
				t.Error("Bridge.TypingIndicator = true, want false")
			}
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	content := `
[matrix]
homeserver = "https://matrix.example.org"
username = "responder"
password = "hunter2"

[database]
path = "responder.db"
`
	cfg, err := Load(writeConfig(t, "config.toml", content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Bridge.DedupeTTL != DefaultDedupeTTL {
		t.Errorf("Bridge.DedupeTTL = %v, want %v", cfg.Bridge.DedupeTTL, DefaultDedupeTTL)
	}
	if cfg.Bridge.DedupeSize != DefaultDedupeSize {
		t.Errorf("Bridge.DedupeSize = %d, want %d", cfg.Bridge.DedupeSize, DefaultDedupeSize)
	}
	if cfg.Logging.Level != DefaultLogLevel {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, DefaultLogLevel)
	}
	if !cfg.Bridge.IsRoomAllowed("!anything:example.org") {
		t.Error("empty allow list should admit every room")
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_RESPONDER_PASSWORD", "from-env")
	t.Setenv("TEST_RESPONDER_HOME", "/srv/responder")

	content := `
[matrix]
homeserver = "https://matrix.example.org"
username = "responder"
password = "${TEST_RESPONDER_PASSWORD}"
recovery_key = "${TEST_RESPONDER_UNSET_VAR}"

[database]
path = "${TEST_RESPONDER_HOME}/responder.db"
`
	cfg, err := Load(writeConfig(t, "config.toml", content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Matrix.Password != "from-env" {
		t.Errorf("Matrix.Password = %q, want %q", cfg.Matrix.Password, "from-env")
	}
	if cfg.Matrix.RecoveryKey != "" {
		t.Errorf("Matrix.RecoveryKey = %q, want empty for unset var", cfg.Matrix.RecoveryKey)
	}
	if cfg.Database.Path != "/srv/responder/responder.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("RESPONDER_MATRIX_PASSWORD", "override")
	t.Setenv("RESPONDER_DB_PATH", "/tmp/override.db")
	t.Setenv("RESPONDER_ALLOWED_ROOMS", "!a:example.org,!b:example.org,!c:example.org")
	t.Setenv("RESPONDER_TYPING_INDICATOR", "false")
	t.Setenv("RESPONDER_DEDUPE_TTL", "1h")
	t.Setenv("RESPONDER_LOG_LEVEL", "warn")

	cfg, err := Load(writeConfig(t, "config.toml", validTOML))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Matrix.Password != "override" {
		t.Errorf("Matrix.Password = %q, want %q", cfg.Matrix.Password, "override")
	}
	if cfg.Matrix.Username != "responder" {
		t.Errorf("Matrix.Username = %q, file value should survive", cfg.Matrix.Username)
	}
	if cfg.Database.Path != "/tmp/override.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if strings.Join(cfg.Bridge.AllowedRooms, " ") != "!a:example.org !b:example.org !c:example.org" {
		t.Errorf("Bridge.AllowedRooms = %v", cfg.Bridge.AllowedRooms)
	}
	if cfg.Bridge.TypingIndicator {
		t.Error("Bridge.TypingIndicator = true, want env override false")
	}
	if cfg.Bridge.DedupeTTL != time.Hour {
		t.Errorf("Bridge.DedupeTTL = %v, want %v", cfg.Bridge.DedupeTTL, time.Hour)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "warn")
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		wantErr string
	}{
		{
			name:    "unsupported extension",
			file:    "config.json",
			content: `{}`,
			wantErr: "unsupported config format",
		},
		{
			name:    "invalid toml",
			file:    "config.toml",
			content: "[matrix\nhomeserver = ",
			wantErr: "parsing config file",
		},
		{
			name:    "invalid yaml",
			file:    "config.yaml",
			content: "matrix: [unclosed",
			wantErr: "parsing config file",
		},
		{
			name: "missing homeserver",
			file: "config.toml",
			content: `
[matrix]
username = "responder"
password = "x"
[database]
path = "r.db"
`,
			wantErr: "matrix.homeserver is required",
		},
		{
			name: "homeserver scheme",
			file: "config.toml",
			content: `
[matrix]
homeserver = "ftp://matrix.example.org"
username = "responder"
password = "x"
[database]
path = "r.db"
`,
			wantErr: "http or https",
		},
		{
			name: "missing password",
			file: "config.toml",
			content: `
[matrix]
homeserver = "https://matrix.example.org"
username = "responder"
[database]
path = "r.db"
`,
			wantErr: "matrix.password is required",
		},
		{
			name: "missing database path",
			file: "config.toml",
			content: `
[matrix]
homeserver = "https://matrix.example.org"
username = "responder"
password = "x"
`,
			wantErr: "database.path is required",
		},
		{
			name: "unknown log level",
			file: "config.toml",
			content: `
[matrix]
homeserver = "https://matrix.example.org"
username = "responder"
password = "x"
[database]
path = "r.db"
[logging]
level = "loud"
`,
			wantErr: "logging.level",
		},
		{
			name: "unparseable dedupe ttl",
			file: "config.toml",
			content: `
[matrix]
homeserver = "https://matrix.example.org"
username = "responder"
password = "x"
[database]
path = "r.db"
[bridge]
dedupe_ttl = "soon"
`,
			wantErr: "parsing dedupe_ttl",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.file, tt.content))
			if err == nil {
				t.Fatalf("Load() error = nil, want %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err == nil || !strings.Contains(err.Error(), "reading config file") {
		t.Fatalf("Load() error = %v, want reading config file error", err)
	}
}

func TestBridgeConfig_IsRoomAllowed(t *testing.T) {
	b := BridgeConfig{AllowedRooms: []string{"!one:example.org"}}

	if !b.IsRoomAllowed("!one:example.org") {
		t.Error("listed room should be allowed")
	}
	if b.IsRoomAllowed("!two:example.org") {
		t.Error("unlisted room should be rejected")
	}
}
