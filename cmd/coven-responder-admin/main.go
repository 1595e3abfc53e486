// ABOUTME: Admin CLI for the coven-responder trigger store
// ABOUTME: Opens the responder database directly to list, edit, migrate, and audit responds

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/coven-responder/internal/config"
	"github.com/2389/coven-responder/internal/responds"
	"github.com/2389/coven-responder/internal/store"
)

const banner = `
  ___ ___  ___ _ __   ___  _ __   __| | ___ _ __       __ _  __| |_ __ ___ (_)_ __
 |  _/ _ \/ __| '_ \ / _ \| '_ \ / _' |/ _ \ '__|____ / _' |/ _' | '_ ' _ \| | '_ \
 | ||  __/\__ \ |_) | (_) | | | | (_| |  __/ | |_____| (_| | (_| | | | | | | | | | |
 |_| \___||___/ .__/ \___/|_| |_|\__,_|\___|_|        \__,_|\__,_|_| |_| |_|_|_| |_|
              |_|
`

// adminActor is recorded in the audit log for changes made from the CLI.
const adminActor = "admin-cli"

// errNeedsMigration is returned when the store holds an older responds
// format than the CLI reads.
var errNeedsMigration = errors.New("responds store needs migration; run: coven-responder-admin migrate")

// app carries the state shared by every subcommand.
type app struct {
	dbPath     string
	configPath string
	jsonOutput bool

	store    *store.SQLiteStore
	registry *responds.Registry
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "coven-responder-admin",
		Short:         "Manage coven-responder triggers",
		Long:          "Manage the trigger/response registry that coven-responder answers from.\n" + banner,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&a.dbPath, "db", "", "responder database (default: database.path from config, $RESPONDER_DB_PATH, or ~/.local/share/coven/responder.db)")
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "responder config file to read database.path from (default: $RESPONDER_CONFIG)")
	root.PersistentFlags().BoolVar(&a.jsonOutput, "json", false, "output as JSON")

	root.AddCommand(
		a.listCmd(),
		a.addCmd(),
		a.deleteCmd(),
		a.matchCmd(),
		a.migrateCmd(),
		a.auditCmd(),
		versionCmd(),
	)
	return root
}

// resolveDBPath picks the database following:
// --db flag > database.path in the config file > RESPONDER_DB_PATH > XDG data dir.
func (a *app) resolveDBPath() (string, error) {
	if a.dbPath != "" {
		return a.dbPath, nil
	}

	configPath := a.configPath
	if configPath == "" {
		configPath = os.Getenv("RESPONDER_CONFIG")
	}
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return "", fmt.Errorf("reading config file: %w", err)
		}
		cfg, err := config.Parse(filepath.Ext(configPath), data)
		if err != nil {
			return "", err
		}
		if cfg.Database.Path != "" {
			return cfg.Database.Path, nil
		}
	}

	if envPath := os.Getenv("RESPONDER_DB_PATH"); envPath != "" {
		return envPath, nil
	}

	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "responder.db", nil
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}
	return filepath.Join(dataDir, "coven", "responder.db"), nil
}

// withStore wraps a RunE so the store is open while it runs and closed
// afterwards, whether or not it fails. With requireCurrent set the command
// refuses a store that still has migrations pending.
func (a *app) withStore(requireCurrent bool, run func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		if err := a.open(cmd.Context(), requireCurrent); err != nil {
			return err
		}
		defer func() {
			if cerr := a.close(); err == nil {
				err = cerr
			}
		}()
		return run(cmd, args)
	}
}

// open connects to the store. With requireCurrent set it refuses a store
// that still has migrations pending.
func (a *app) open(ctx context.Context, requireCurrent bool) error {
	path, err := a.resolveDBPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	s, err := store.NewSQLiteStore(path)
	if err != nil {
		return fmt.Errorf("opening store %s: %w", path, err)
	}
	a.store = s
	a.registry = responds.NewRegistry(s, nil)

	if !requireCurrent {
		return nil
	}
	if err := a.ensureCurrent(ctx); err != nil {
		_ = a.close()
		return err
	}
	return nil
}

// ensureCurrent fails when migrations are pending over existing responds.
// A store with no responds at all is simply stamped current.
func (a *app) ensureCurrent(ctx context.Context) error {
	migrator := responds.NewMigrator(a.store, nil)
	pending, err := migrator.Pending(ctx)
	if err != nil {
		return fmt.Errorf("checking migrations: %w", err)
	}
	if pending == 0 {
		return nil
	}

	present, err := a.respondKeys(ctx)
	if err != nil {
		return err
	}
	if len(present) > 0 {
		return errNeedsMigration
	}

	if _, err := migrator.Migrate(ctx); err != nil {
		return fmt.Errorf("initializing store: %w", err)
	}
	return nil
}

// respondKeys lists which responds blobs, current or legacy, the store holds.
func (a *app) respondKeys(ctx context.Context) ([]string, error) {
	keys, err := a.store.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing stored keys: %w", err)
	}
	var present []string
	for _, k := range keys {
		if k == responds.BlobKey || k == responds.LegacyKey {
			present = append(present, k)
		}
	}
	return present, nil
}

func (a *app) close() error {
	if a.store == nil {
		return nil
	}
	err := a.store.Close()
	a.store = nil
	return err
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "coven-responder-admin v0.1.0")
		},
	}
}

// out returns where a command writes its results.
func out(cmd *cobra.Command) io.Writer {
	return cmd.OutOrStdout()
}
