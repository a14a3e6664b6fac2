package main

import (
	"context"
	"time"

	"carteira/internal/cli"
	"carteira/internal/log"
	"carteira/internal/services"
	"carteira/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentRecurring)
	logger.Info("Starting recurring-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	cli.RequireSQLite(logger, cfg)

	backend := cli.InitBackend(context.Background(), logger, cfg)

	var events services.EventPublisher
	amqpClient := cli.InitAMQP(logger, cfg, false)
	if amqpClient != nil {
		events = amqpClient
	}

	processor := services.NewRecurringProcessor(backend.Backend, events)
	scheduler := worker.NewRecurringScheduler(processor, cli.Clock(cfg), logger)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(context.Context) {
		scheduler.Stop()
		if amqpClient != nil {
			_ = amqpClient.Close()
		}
		if err := backend.Close(); err != nil {
			logger.Error("Backend cleanup error", log.FieldError, err)
		}
	})

	// Catch up on anything that came due while the worker was down.
	_, _ = scheduler.RunOnce(ctx)

	if err := scheduler.Start(ctx, cfg.RecurringSchedule); err != nil {
		logger.Error("Failed to schedule recurring bills", log.FieldError, err)
		return
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Recurring-worker stopped")
}
