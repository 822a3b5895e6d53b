package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"fintrack/internal/cli"
	apphttp "fintrack/internal/http"
	applog "fintrack/internal/log"
	"fintrack/internal/metrics"
	"fintrack/internal/services"
)

func main() {
	cli.LoadEnvFile()

	cfg, cfgErr := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(applog.ComponentApp, cfg.SlogLevel())
	if cfgErr != nil {
		cli.ConfigFatal(logger, cfgErr)
	}

	m := metrics.New("fintrack")

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	be, err := cli.OpenBackend(startCtx, logger, cfg, m)
	cancelStart()
	if err != nil {
		cli.Fatal(logger, "Failed to initialize backend", err,
			applog.FieldErrorType, applog.ErrorTypeDatabase, applog.FieldOperation, applog.OpStartup)
	}

	ledgerSvc := services.NewLedgerService(be.Store)
	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Services{
		Ledger:    ledgerSvc,
		NetIncome: services.NewNetIncomeService(be.Store, m),
		Recurring: services.NewRecurringProcessor(be.Store, be.Notifier(), m, cfg.UpcomingHorizonDays),
		Budget:    services.NewBudgetService(be.Store),
		Store:     be.Store,
	}, apphttp.Options{
		Logger:             logger,
		Metrics:            m,
		RequestTimeout:     cfg.RequestTimeout,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	})
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = cfg.RequestTimeout + 3*time.Second
	srv.MaxHeaderBytes = 1 << 16

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
		if err := be.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", applog.FieldError, err)
		}
	})

	logger.Info("Starting fintrack server",
		applog.FieldOperation, applog.OpStartup,
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"amqp", be.Publisher != nil,
		slog.Duration("request_timeout", cfg.RequestTimeout))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		cli.Fatal(logger, "Server error", err)
	}

	<-ctx.Done()
	<-done
	logger.Info("Server stopped gracefully")
}
