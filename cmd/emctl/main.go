package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"eventmitra/backend/internal/config"
	"eventmitra/backend/internal/db"
	"eventmitra/backend/internal/logging"
	"eventmitra/backend/internal/repository"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

var (
	// Version is set via ldflags during build.
	Version = "dev"
)

// env is opened once per invocation by the root command.
type env struct {
	cfg     *config.Config
	logger  *slog.Logger
	pool    *pgxpool.Pool
	repo    *repository.Repository
	cleanup logging.Cleanup
}

var current env

var rootCmd = &cobra.Command{
	Use:           "emctl",
	Short:         "EventMitra operator tooling",
	Long:          "emctl applies database migrations, bootstraps admin accounts and loads fixture data.",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadCLI()
		if err != nil {
			return err
		}
		logger, cleanup, err := logging.New(cfg.Logging)
		if err != nil {
			return fmt.Errorf("log error: %w", err)
		}
		logger = logger.With("service", "emctl", "command", cmd.Name())
		slog.SetDefault(logger)

		pool, err := db.NewPool(cmd.Context(), cfg.DatabaseURL)
		if err != nil {
			_ = cleanup()
			return fmt.Errorf("db error: %w", err)
		}
		current = env{cfg: cfg, logger: logger, pool: pool, repo: repository.New(pool), cleanup: cleanup}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if current.pool != nil {
			current.pool.Close()
		}
		if current.cleanup != nil {
			_ = current.cleanup()
		}
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(createAdminCmd)
	rootCmd.AddCommand(seedCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
