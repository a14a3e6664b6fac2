package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"carteira/internal/cli"
	apphttp "carteira/internal/http"
	"carteira/internal/log"
	"carteira/internal/prefs"
	"carteira/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	backend := cli.InitBackend(context.Background(), logger, cfg)

	store, err := prefs.Load(cfg.PreferencesFile)
	if err != nil {
		logger.Error("Failed to load preferences", log.FieldError, err, "path", cfg.PreferencesFile)
		os.Exit(1)
	}

	var events services.EventPublisher
	amqpClient := cli.InitAMQP(logger, cfg, false)
	if amqpClient != nil {
		events = amqpClient
	}

	srv := apphttp.NewServer(":"+cfg.Port, backend.Backend, apphttp.Options{
		Events:    events,
		Prefs:     store,
		Clock:     cli.Clock(cfg),
		Ready:     backend.Ready,
		Logger:    logger,
		CacheSize: cfg.CacheSize,
		CacheTTL:  cfg.CacheTTL,
	})

	// Configure server timeouts and limits
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		if amqpClient != nil {
			_ = amqpClient.Close()
		}
		if err := backend.Close(); err != nil {
			logger.Error("Backend cleanup error", log.FieldError, err)
		}
	})

	logger.Info("Starting carteira server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"amqp_enabled", amqpClient != nil,
		"timezone", cfg.Timezone)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
