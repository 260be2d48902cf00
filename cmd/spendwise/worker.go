package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"spendwise/internal/amqp"
	"spendwise/internal/cli"
	applog "spendwise/internal/log"
	"spendwise/internal/sheets/google"
	"spendwise/internal/worker"
)

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Mirror expense events into a Google Sheet",
		Long: `worker consumes expense lifecycle events from AMQP and mirrors them into
a Google Sheet: one row per expense, rewritten on update and cleared on delete.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.AMQPURL == "" {
				return errors.New("worker requires AMQP_URL")
			}
			if !cfg.MirrorEnabled() {
				return errors.New("worker requires GOOGLE_SPREADSHEET_ID")
			}

			client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
			if err != nil {
				return fmt.Errorf("connect to AMQP: %w", err)
			}
			defer client.Close()

			mirror, err := google.New(ctx, google.Options{
				SpreadsheetID:   cfg.GoogleSpreadsheetID,
				SheetName:       cfg.GoogleSheetName,
				CredentialsJSON: cfg.GoogleServiceAccountJSON,
				CredentialsFile: cfg.GoogleServiceAccountFile,
			})
			if err != nil {
				return err
			}

			runner := worker.NewRunner(client, worker.NewSyncWorker(mirror, time.Local))
			if err := runner.Start(ctx); err != nil {
				return err
			}
			logger.Info("Sheets mirror worker started",
				applog.FieldComponent, applog.ComponentWorker,
				"queue", cfg.AMQPQueue,
				"sheet", cfg.GoogleSheetName)

			return cli.GracefulShutdown(ctx, logger.Logger, shutdownTimeout, func(ctx context.Context) error {
				return runner.Stop(ctx)
			})
		},
	}
}
