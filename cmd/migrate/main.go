package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"

	"github.com/joao-fontenele/ecomarket/internal/config"
	"github.com/joao-fontenele/ecomarket/internal/database"
	"github.com/joao-fontenele/ecomarket/internal/telemetry"
)

var (
	logger *slog.Logger
	cfg    *config.Config
	steps  int
)

var rootCmd = &cobra.Command{
	Use:           "migrate",
	Short:         "Manage the ecomarket database schema",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load("migrate", "")
		if err != nil {
			return err
		}
		logger = telemetry.NewLogger(os.Stdout, cfg.LogLevel, cfg.ServiceName)
		return cfg.Require("POSTGRES_URL")
	},
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply every pending migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(func(m *migrate.Migrate) error {
			err := m.Up()
			if errors.Is(err, migrate.ErrNoChange) {
				logger.Info("no pending migrations")
				return nil
			}
			if err != nil {
				return fmt.Errorf("migration up failed: %w", err)
			}
			logger.Info("migrations applied successfully")
			return nil
		})
	},
}

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the last migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		if steps < 1 {
			return fmt.Errorf("--steps must be at least 1, got %d", steps)
		}
		return withMigrator(func(m *migrate.Migrate) error {
			err := m.Steps(-steps)
			if errors.Is(err, migrate.ErrNoChange) {
				logger.Info("no migrations to rollback")
				return nil
			}
			if err != nil {
				return fmt.Errorf("migration down failed: %w", err)
			}
			logger.Info("migrations rolled back successfully", "steps", steps)
			return nil
		})
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(func(m *migrate.Migrate) error {
			version, dirty, err := m.Version()
			if errors.Is(err, migrate.ErrNilVersion) {
				logger.Info("no migrations applied yet")
				return nil
			}
			if err != nil {
				return fmt.Errorf("failed to get version: %w", err)
			}
			logger.Info("current migration version", slog.Uint64("version", uint64(version)), slog.Bool("dirty", dirty))
			return nil
		})
	},
}

func init() {
	downCmd.Flags().IntVar(&steps, "steps", 1, "Number of migrations to roll back")
	rootCmd.AddCommand(upCmd, downCmd, versionCmd)
}

func withMigrator(fn func(m *migrate.Migrate) error) error {
	m, err := database.NewMigrator(cfg.MigrationsPath, cfg.PostgresURL)
	if err != nil {
		return err
	}
	defer func() { _, _ = m.Close() }()
	return fn(m)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if logger == nil {
			logger = telemetry.NewLogger(os.Stderr, "info", "migrate")
		}
		logger.Error("migrate failed", "error", err)
		os.Exit(1)
	}
}
