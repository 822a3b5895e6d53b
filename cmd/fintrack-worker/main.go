package main

import (
	"context"
	"errors"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/cli"
	applog "fintrack/internal/log"
	"fintrack/internal/metrics"
	"fintrack/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	cfg, cfgErr := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(applog.ComponentWorker, cfg.SlogLevel())
	if cfgErr != nil {
		cli.ConfigFatal(logger, cfgErr)
	}
	if cfg.AMQPURL == "" {
		cli.Fatal(logger, "Worker cannot start", errors.New("AMQP_URL is required"))
	}

	logger.Info("Starting fintrack-worker", applog.FieldOperation, applog.OpStartup, "queue", cfg.AMQPQueue)

	m := metrics.New("fintrack_worker")

	// Owner names enrich the reminders when the ledger is shared with the
	// server. A memory ledger is private to this process, so it is skipped.
	var owners worker.OwnerReader
	if cfg.DataBackend != "memory" {
		ledgerCfg := *cfg
		ledgerCfg.AMQPURL = ""
		startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
		be, err := cli.OpenBackend(startCtx, logger, &ledgerCfg, nil)
		cancelStart()
		if err != nil {
			logger.Warn("Ledger unavailable, reminders will carry owner ids only", applog.FieldError, err)
		} else {
			owners = worker.CacheOwners(be.Store, 1024, 5*time.Minute)
			defer func() {
				if err := be.Cleanup(); err != nil {
					logger.Error("Backend cleanup error", applog.FieldError, err)
				}
			}()
		}
	}

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, m)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize AMQP client", err,
			applog.FieldErrorType, applog.ErrorTypeNetwork, applog.FieldOperation, applog.OpStartup)
	}
	defer client.Close()

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	ctx = applog.NewContext(ctx, logger)
	reminders := worker.NewReminderWorker(owners, m, logger.WithComponent(applog.ComponentWorker).Logger)
	if err := client.ConsumeUpcoming(ctx, reminders.HandleUpcoming); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", applog.FieldError, err)
		return
	}
	<-done
	logger.Info("Worker shutdown complete")
}
