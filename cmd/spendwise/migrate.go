package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"spendwise/internal/config"
	"spendwise/internal/storage"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the SQLite schema",
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := sqliteConfig()
			if err != nil {
				return err
			}
			if steps < 1 {
				return fmt.Errorf("--steps must be at least 1, got %d", steps)
			}
			if err := storage.RollbackMigrations(cfg.SQLiteDBPath, steps); err != nil {
				return err
			}
			logger.Info("Migrations rolled back", "db_path", cfg.SQLiteDBPath, "steps", steps)
			return nil
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := sqliteConfig()
			if err != nil {
				return err
			}
			if err := storage.RunMigrations(cfg.SQLiteDBPath); err != nil {
				return err
			}
			logger.Info("Migrations applied", "db_path", cfg.SQLiteDBPath)
			return nil
		},
	}, down, &cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := sqliteConfig()
			if err != nil {
				return err
			}
			v, dirty, err := storage.MigrationVersion(cfg.SQLiteDBPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", v, dirty)
			return nil
		},
	})
	return cmd
}

func sqliteConfig() (*config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.DataBackend != "sqlite" {
		return nil, errors.New("migrations only apply to the sqlite backend")
	}
	return cfg, nil
}
