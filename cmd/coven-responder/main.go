// ABOUTME: Entry point for coven-responder
// ABOUTME: Migrates the responds store, then answers trigger phrases in Matrix rooms

package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/coven-responder/internal/bot"
	"github.com/2389/coven-responder/internal/config"
	"github.com/2389/coven-responder/internal/responds"
	"github.com/2389/coven-responder/internal/store"
)

const banner = `
  ___ _____   _____ _ __        _ __ ___  ___ _ __   ___  _ __   __| | ___ _ __
 / __/ _ \ \ / / _ \ '_ \ _____| '__/ _ \/ __| '_ \ / _ \| '_ \ / _' |/ _ \ '__|
| (_| (_) \ V /  __/ | | |_____| | |  __/\__ \ |_) | (_) | | | | (_| |  __/ |
 \___\___/ \_/ \___|_| |_|     |_|  \___||___/ .__/ \___/|_| |_|\__,_|\___|_|
                                             |_|
`

// getConfigPath returns the path to the responder config file.
// Priority: RESPONDER_CONFIG env var > XDG_CONFIG_HOME/coven/responder.toml > ~/.config/coven/responder.toml
func getConfigPath() string {
	if envPath := os.Getenv("RESPONDER_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "responder.toml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "coven", "responder.toml")
}

// getDataPath returns the path to the coven data directory.
// Priority: XDG_DATA_HOME/coven > ~/.local/share/coven
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data"
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "coven")
}

func main() {
	if len(os.Args) > 1 && os.Args[1] == "init" {
		if err := runInit(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config from %s: %w", configPath, err)
	}

	logger := setupLogger(cfg.Logging.Level)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:     %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Database:   %s\n", cfg.Database.Path)
	green.Print("    ▶ ")
	fmt.Printf("Homeserver: %s\n", cfg.Matrix.Homeserver)
	green.Print("    ▶ ")
	fmt.Printf("Username:   %s\n", cfg.Matrix.Username)
	if cfg.Bridge.CommandPrefix != "" {
		green.Print("    ▶ ")
		fmt.Printf("Prefix:     %s\n", cfg.Bridge.CommandPrefix)
	}
	if cfg.Matrix.RecoveryKey != "" {
		green.Print("    ▶ ")
		fmt.Println("Encryption: enabled")
	}
	fmt.Println()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer s.Close()

	// Nothing is served until the persisted responds are in the current shape.
	if err := migrateStore(ctx, s, logger); err != nil {
		return err
	}

	registry := responds.NewRegistry(s, logger)
	b := bot.New(registry, s, bot.Options{
		Prefix:     cfg.Bridge.CommandPrefix,
		DedupeTTL:  cfg.Bridge.DedupeTTL,
		DedupeSize: cfg.Bridge.DedupeSize,
	}, logger)

	bridge, err := NewBridge(cfg, b, logger)
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}

	// Login to Matrix (required before crypto setup)
	if err := bridge.Login(ctx); err != nil {
		return fmt.Errorf("matrix login: %w", err)
	}

	if cfg.Matrix.RecoveryKey != "" {
		cryptoMgr, err := SetupCrypto(ctx, bridge.matrix, cfg.Matrix.RecoveryKey, cfg.Database.CryptoPath, logger)
		if err != nil {
			return fmt.Errorf("setting up encryption: %w", err)
		}
		defer cryptoMgr.Close()
	} else {
		logger.Info("encryption disabled (no recovery key)")
	}

	logger.Info("starting bridge")
	return bridge.Run(ctx)
}

// migrateStore brings the responds blob up to date and records the upgrade
// in the audit log.
func migrateStore(ctx context.Context, s *store.SQLiteStore, logger *slog.Logger) error {
	migrator := responds.NewMigrator(s, logger)
	from, err := migrator.Cursor(ctx)
	if err != nil {
		return fmt.Errorf("reading migration cursor: %w", err)
	}

	applied, err := migrator.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("migrating responds: %w", err)
	}
	if applied == 0 {
		return nil
	}

	logger.Info("responds migrated", "from", from, "to", from+applied)
	err = s.AppendAuditLog(ctx, &store.AuditEntry{
		Actor:  "coven-responder",
		Action: store.AuditMigrate,
		Detail: map[string]any{"from": from, "to": from + applied},
	})
	if err != nil {
		logger.Warn("failed to write audit entry", "error", err)
	}
	return nil
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn", "warning":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func runInit() error {
	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println("    Interactive Setup")
	fmt.Println("    -----------------")
	fmt.Println()

	configPath := getConfigPath()
	reader := bufio.NewReader(os.Stdin)

	if _, err := os.Stat(configPath); err == nil {
		yellow.Printf("    Config already exists at %s\n", configPath)
		fmt.Print("    Overwrite? [y/N]: ")
		answer, _ := reader.ReadString('\n')
		if strings.ToLower(strings.TrimSpace(answer)) != "y" {
			fmt.Println("    Aborted.")
			return nil
		}
		fmt.Println()
	}

	ask := func(prompt, fallback string) string {
		green.Print("    ▶ ")
		fmt.Print(prompt)
		answer, _ := reader.ReadString('\n')
		answer = strings.TrimSpace(answer)
		if answer == "" {
			return fallback
		}
		return answer
	}

	homeserver := ask("Matrix homeserver URL [https://matrix.org]: ", "https://matrix.org")
	username := ask("Matrix username: ", "")
	password := ask("Matrix password: ", "")
	recoveryKey := ask("Matrix recovery key (optional, for E2EE): ", "")
	dbPath := filepath.Join(getDataPath(), "responder.db")
	dbPath = ask(fmt.Sprintf("Database path [%s]: ", dbPath), dbPath)
	prefix := ask("Command prefix (optional, e.g. '!responder'): ", "")

	cfg := renderConfig(homeserver, username, password, recoveryKey, dbPath, prefix)

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(cfg), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	fmt.Println()
	green.Printf("    ✓ Config written to %s\n", configPath)
	fmt.Println()
	fmt.Println("    Next steps:")
	fmt.Println("    1. Invite the bot account to your rooms")
	fmt.Println("    2. Run: coven-responder")
	fmt.Println()

	return nil
}

// renderConfig produces the TOML written by init.
func renderConfig(homeserver, username, password, recoveryKey, dbPath, prefix string) string {
	var b strings.Builder
	b.WriteString("# coven-responder configuration\n# Generated by coven-responder init\n\n")
	fmt.Fprintf(&b, "[matrix]\nhomeserver = %q\nusername = %q\npassword = %q\n", homeserver, username, password)
	if recoveryKey != "" {
		fmt.Fprintf(&b, "recovery_key = %q\n", recoveryKey)
	}
	fmt.Fprintf(&b, "\n[database]\npath = %q\n", dbPath)
	fmt.Fprintf(&b, `
[bridge]
# Only respond in these rooms (empty = all joined rooms)
allowed_rooms = []
# Commands must start with this prefix (empty = any message can be a command)
command_prefix = %q
# Show typing while a reply is prepared
typing_indicator = false
# How long a handled event ID is remembered
dedupe_ttl = "10m"

[logging]
level = "info"
`, prefix)
	return b.String()
}
