// Package cli provides the initialization shared by the spendwise
// subcommands: environment loading, logging, configuration and wiring of the
// repository, services and optional event bus.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"spendwise/internal/amqp"
	"spendwise/internal/auth"
	"spendwise/internal/backend"
	"spendwise/internal/blob"
	"spendwise/internal/config"
	"spendwise/internal/core"
	apphttp "spendwise/internal/http"
	applog "spendwise/internal/log"
	"spendwise/internal/services"
	"spendwise/internal/store"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger initializes structured logging and sets it as the default
// logger.
func SetupLogger(level, format string) *applog.Logger {
	return applog.Setup(level, format)
}

// LoadAndValidateConfig loads configuration through v and validates it.
func LoadAndValidateConfig(v *viper.Viper) (*config.Config, error) {
	cfg := config.LoadFrom(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// App holds the wired dependencies of a running command.
type App struct {
	Config *config.Config
	Logger *applog.Logger

	Repo     store.Repository
	Receipts *blob.LocalStore
	Tokens   *auth.Tokens
	Events   *amqp.Client // nil when no broker is configured

	Categories *services.CategoryService
	Expenses   *services.ExpenseService
	Spending   *services.SpendingService
	Export     *services.ExportService

	cleanup []func() error
}

// Bootstrap builds the repository, services and optional AMQP client from
// cfg. A broker that cannot be reached is logged and skipped; expense writes
// do not depend on it.
func Bootstrap(ctx context.Context, cfg *config.Config, logger *applog.Logger) (*App, error) {
	app := &App{Config: cfg, Logger: logger}

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	res, err := backend.NewFactory(logger.Logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		return nil, err
	}
	app.Repo = res.Repository
	app.cleanup = append(app.cleanup, res.Cleanup)

	formatter, err := core.NewFormatter(cfg.DefaultCurrency, cfg.DefaultLocale)
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	app.Receipts, err = blob.NewLocalStore(cfg.ReceiptsDir, cfg.PublicBaseURL, cfg.JWTSecret)
	if err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("init receipt store: %w", err)
	}
	app.Tokens = auth.NewTokens(cfg.JWTSecret, cfg.JWTIssuer, cfg.TokenTTL)

	var events services.EventPublisher
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.WarnContext(ctx, "AMQP unavailable, expense events disabled",
				applog.FieldComponent, applog.ComponentAMQP,
				applog.FieldError, err)
		} else {
			app.Events = client
			app.cleanup = append(app.cleanup, client.Close)
			events = client
		}
	}

	loc := time.Local
	app.Categories = services.NewCategoryService(app.Repo)
	app.Expenses = services.NewExpenseService(app.Repo, app.Receipts, events)
	app.Spending = services.NewSpendingService(app.Repo, formatter, loc)
	app.Export = services.NewExportService(app.Repo, loc)

	logger.InfoContext(ctx, "Application initialized",
		"backend", cfg.DataBackend,
		"currency", cfg.DefaultCurrency,
		"events_enabled", app.Events != nil)
	return app, nil
}

// HTTPServer builds the API server for the app.
func (a *App) HTTPServer() *apphttp.Server {
	return apphttp.NewServer(net.JoinHostPort("", a.Config.Port), apphttp.Deps{
		Categories: a.Categories,
		Expenses:   a.Expenses,
		Spending:   a.Spending,
		Export:     a.Export,
		Receipts:   a.Receipts,
		Tokens:     a.Tokens,
		Store:      a.Repo,
	}, apphttp.Options{
		Logger:             a.Logger,
		RateLimitPerMinute: a.Config.RateLimitPerMinute,
		TrustedProxies:     a.Config.TrustedProxies,
	})
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		if err := a.cleanup[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.cleanup = nil
	return errors.Join(errs...)
}

// GracefulShutdown waits for ctx to be cancelled and then runs shutdown with
// a fresh context bounded by timeout.
func GracefulShutdown(ctx context.Context, logger *slog.Logger, timeout time.Duration, shutdown func(context.Context) error) error {
	<-ctx.Done()
	logger.Info("Shutdown signal received", "reason", context.Cause(ctx))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := shutdown(shutdownCtx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			logger.Warn("Shutdown timeout reached")
		}
		return err
	}
	logger.Info("Shutdown complete")
	return nil
}
