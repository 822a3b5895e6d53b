// Package cli provides common initialization shared by the fintrack
// binaries: logging, .env loading, configuration and signal handling.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fintrack/internal/backend"
	"fintrack/internal/config"
	applog "fintrack/internal/log"
	"fintrack/internal/metrics"

	"github.com/joho/godotenv"
)

// SetupLogger builds the process logger at level and installs it as the
// slog default.
func SetupLogger(component string, level slog.Level) *applog.Logger {
	cfg := applog.DefaultConfig()
	cfg.Component = component
	cfg.Level = level
	logger := applog.New(cfg)
	applog.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it. The config is
// returned even when invalid so the caller can still pick a log level.
func LoadAndValidateConfig() (*config.Config, error) {
	cfg := config.Load()
	return cfg, cfg.Validate()
}

// OpenBackend creates the configured ledger store and optional publisher.
func OpenBackend(ctx context.Context, logger *applog.Logger, cfg *config.Config, m *metrics.Metrics) (*backend.BackendResult, error) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	result, err := backend.NewFactory(logger.WithComponent(applog.ComponentBackend).Logger, m).
		CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, fmt.Errorf("open %s backend: %w", cfg.DataBackend, err)
	}
	return result, nil
}

// GracefulShutdown returns a context cancelled on SIGINT or SIGTERM. Once
// the signal arrives, cleanup runs with a context bounded by timeout and
// the returned channel is closed when it finishes.
func GracefulShutdown(logger *applog.Logger, timeout time.Duration, cleanup func(context.Context)) (context.Context, <-chan struct{}) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		defer close(done)
		<-ctx.Done()
		stop()
		logger.Info("Shutdown signal received", applog.FieldOperation, applog.OpShutdown)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if cleanup != nil {
			cleanup(shutdownCtx)
		}
		if shutdownCtx.Err() != nil {
			logger.Warn("Shutdown timeout reached")
			return
		}
		logger.Info("Shutdown complete")
	}()

	return ctx, done
}

// Fatal logs err with args and exits with status 1.
func Fatal(logger *applog.Logger, msg string, err error, args ...any) {
	logFatal(logger, msg, err, args...)
	os.Exit(1)
}

// ConfigFatal reports an invalid configuration and exits with status 1.
func ConfigFatal(logger *applog.Logger, err error) {
	Fatal(logger, "Configuration validation failed", err, configFailureArgs()...)
}

func configFailureArgs() []any {
	return []any{
		applog.FieldErrorType, applog.ErrorTypeConfiguration,
		applog.FieldOperation, applog.OpValidate,
	}
}

func logFatal(logger *applog.Logger, msg string, err error, args ...any) {
	logger.Error(msg, append([]any{applog.FieldError, err}, args...)...)
}
