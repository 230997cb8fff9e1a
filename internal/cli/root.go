package cli

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/castlight/rolodex/internal/engine"
	"github.com/castlight/rolodex/internal/remote"
	"github.com/castlight/rolodex/internal/store"
)

// RootOptions holds global flags shared by all commands.
type RootOptions struct {
	Verbose  bool
	Format   string // "json" | "text"
	Config   string
	Database string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the rolodex CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "rolodex",
		Short: "Local identity cache for a messaging backend",
		Long: `Rolodex maintains a local, searchable mirror of a messaging backend's
directory of people and conversation channels: it ingests search results
and interaction events, verifies records against the remote authority,
collapses duplicates, and ranks the converged set for instant search.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			configureLogging(opts.Verbose)
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Config, "config", "", "path to YAML config file")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")

	cmd.AddCommand(NewSearchCommand(opts))
	cmd.AddCommand(NewShowCommand(opts))
	cmd.AddCommand(NewStatsCommand(opts))
	cmd.AddCommand(NewCleanupCommand(opts))
	cmd.AddCommand(NewVerifyCommand(opts))
	cmd.AddCommand(NewPinCommand(opts))
	cmd.AddCommand(NewUnpinCommand(opts))
	cmd.AddCommand(NewRecentCommand(opts))
	cmd.AddCommand(NewPinnedCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

func configureLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

// formatter builds the output formatter for a command.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{Format: o.Format, Writer: cmd.OutOrStdout()}
}

// openEngine assembles an engine from config and flags. needsAuthority
// marks commands that call the remote authority; they refuse to run
// without a configured base URL rather than degrade records against a
// dead endpoint.
func (o *RootOptions) openEngine(needsAuthority bool) (*engine.Engine, func(), error) {
	cfg := &Config{}
	if o.Config != "" {
		loaded, err := LoadConfig(o.Config)
		if err != nil {
			return nil, nil, WrapExitError(ExitCommandError, "config", err)
		}
		cfg = loaded
	}

	dbPath := o.Database
	if dbPath == "" {
		dbPath = cfg.DB
	}
	if dbPath == "" {
		return nil, nil, WrapExitError(ExitCommandError, "no database", fmt.Errorf("set --db or db in the config file"))
	}

	if needsAuthority && cfg.Authority.BaseURL == "" {
		return nil, nil, WrapExitError(ExitCommandError, "no authority",
			fmt.Errorf("this command needs authority.base_url in the config file"))
	}

	timeout, err := cfg.AuthorityTimeout(10 * time.Second)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "config", err)
	}
	cooldown, err := cfg.Cooldown(engine.DefaultCleanupCooldown)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "config", err)
	}

	st, err := store.Open(dbPath)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "open database", err)
	}

	var engOpts []engine.Option
	engOpts = append(engOpts, engine.WithCleanupCooldown(cooldown))
	if cfg.RecentLimit > 0 {
		engOpts = append(engOpts, engine.WithRecentLimit(cfg.RecentLimit))
	}
	if cfg.BatchSize > 0 {
		engOpts = append(engOpts, engine.WithBatchSize(cfg.BatchSize))
	}

	authority := remote.NewHTTPAuthority(cfg.Authority.BaseURL, timeout)
	eng := engine.New(st, authority, cfg.CurrentUserID, engOpts...)

	cleanup := func() {
		if err := st.Close(); err != nil {
			slog.Warn("store close failed", "error", err)
		}
	}
	return eng, cleanup, nil
}
