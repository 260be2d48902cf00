package main

import (
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"spendwise/internal/cli"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the JSON API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			app, err := cli.Bootstrap(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := app.Close(); err != nil {
					logger.Error("Failed to release resources", "error", err)
				}
			}()

			srv := app.HTTPServer()
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				logger.Info("Starting HTTP server",
					"addr", srv.Addr,
					"backend", cfg.DataBackend,
					"rate_limit_per_minute", cfg.RateLimitPerMinute)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				return cli.GracefulShutdown(gctx, logger.Logger, shutdownTimeout, srv.Shutdown)
			})
			return g.Wait()
		},
	}
}
