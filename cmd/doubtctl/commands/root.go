// Package commands provides the doubtctl commands for inspecting and maintaining
// stored chat history.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/ashureev/doubt-solver/internal/config"
	"github.com/ashureev/doubt-solver/internal/history"
	"github.com/ashureev/doubt-solver/internal/store"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "dev"

// Global flags
var (
	backendFlag string
	dbPathFlag  string
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "doubtctl",
	Short: "Inspect and maintain AI Doubt Solver chat history",
	Long: `doubtctl reads the same configuration as the server (environment and .env)
and works directly on the chat history store.

Examples:
  doubtctl sessions
  doubtctl show "Two Sum"
  doubtctl export "Two Sum" --statement two-sum.txt --out ./exports
  doubtctl clear "Two Sum"`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&backendFlag, "backend", "", "Store backend override (sqlite|redis|memory)")
	rootCmd.PersistentFlags().StringVar(&dbPathFlag, "db", "", "SQLite database path override")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log to stderr")

	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(clearCmd)
}

// Execute runs the root command.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

// openHistory loads configuration and opens the configured history store.
// The returned function closes the underlying store.
func openHistory() (*history.Store, func(), error) {
	level := slog.LevelError
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	opts := cfg.StoreOptions()
	if backendFlag != "" {
		opts.Backend = backendFlag
	}
	if dbPathFlag != "" {
		opts.DBPath = dbPathFlag
	}

	kv, err := store.Open(opts)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	closeFn := func() {
		if closeErr := kv.Close(); closeErr != nil {
			slog.Warn("Failed to close store", "error", closeErr)
		}
	}
	return history.New(kv, logger), closeFn, nil
}
