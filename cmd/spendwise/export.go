package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"spendwise/internal/cli"
	"spendwise/internal/core"
	"spendwise/internal/services"
)

func exportCmd() *cobra.Command {
	var (
		owner  string
		format string
		period string
		output string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a user's expenses for a period",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			f, err := services.ParseExportFormat(format)
			if err != nil {
				return err
			}
			p, err := core.ParsePeriod(period)
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			app, err := cli.Bootstrap(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer app.Close()

			var w io.Writer = cmd.OutOrStdout()
			if output != "" {
				if info, err := os.Stat(output); err == nil && info.IsDir() {
					output = filepath.Join(output, app.Export.Filename(f, p))
				}
				file, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create output: %w", err)
				}
				defer file.Close()
				w = file
			}

			if err := app.Export.Export(ctx, owner, f, p, w); err != nil {
				return err
			}
			if output != "" {
				logger.Info("Export written", "path", output, "format", f, "period", p)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "user id whose expenses are exported (required)")
	cmd.Flags().StringVar(&format, "format", "csv", "csv, json or xlsx")
	cmd.Flags().StringVar(&period, "period", "monthly", "weekly, monthly, 3months, 6months, yearly or all")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file or directory (default stdout)")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}
