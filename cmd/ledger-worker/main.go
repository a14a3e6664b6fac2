package main

import (
	"context"
	"errors"
	"os"
	"time"

	"carteira/internal/cli"
	"carteira/internal/log"
	gsheet "carteira/internal/sheets/google"
	"carteira/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentWorker)
	logger.Info("Starting ledger-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	cli.RequireSQLite(logger, cfg)

	backend := cli.InitBackend(context.Background(), logger, cfg)
	amqpClient := cli.InitAMQP(logger, cfg, true)

	if cfg.GoogleSpreadsheetID == "" {
		logger.Error("GOOGLE_SPREADSHEET_ID is required for the export worker")
		os.Exit(1)
	}
	sheetsClient, err := gsheet.NewFromEnv(context.Background())
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)

	exporter := worker.NewExportWorker(backend.Backend, sheetsClient)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(context.Context) {
		_ = amqpClient.Close()
		if err := backend.Close(); err != nil {
			logger.Error("Backend cleanup error", log.FieldError, err)
		}
	})

	go func() {
		err := amqpClient.ConsumeTransactionEvents(ctx, exporter.HandleEvent)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Event consumption stopped", log.FieldError, err)
			os.Exit(1)
		}
	}()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Ledger-worker stopped")
}
