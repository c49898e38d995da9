package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"feeledger/internal/backend"
	"feeledger/internal/cache"
	"feeledger/internal/cli"
	apphttp "feeledger/internal/http"
	"feeledger/internal/log"
	"feeledger/internal/services"
)

func main() {
	if err := cli.LoadEnvFile(); err != nil {
		cli.SetupLogger("info", log.ComponentApp).Warn("Ignoring malformed .env file", "error", err)
	}
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	factory := backend.NewFactory(logger.WithComponent(log.ComponentBackend).Slog())
	result, err := factory.CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	store := result.Backend

	dues := services.NewDuesService(store, cfg.SnapshotTTL)
	billing := services.NewBillingService(store, store)
	billing.OnWrite(dues.Invalidate)
	reference := services.NewReferenceService(store, store)
	reference.OnWrite(dues.Invalidate)

	caches := cache.NewManager()
	if c := dues.Cache(); c != nil {
		caches.Register(c)
		caches.StartCleanup(cfg.SnapshotTTL)
	}

	opts := apphttp.Options{Logger: logger}
	if p, ok := store.(backend.Pinger); ok {
		opts.Pinger = p
	}
	srv := apphttp.NewServer(":"+cfg.Port, billing, dues, reference, opts)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		caches.Stop()
		if result.Cleanup != nil {
			if err := result.Cleanup(); err != nil {
				logger.Error("Backend cleanup error", "error", err)
			}
		}
	})

	logger.Info("Starting feeledger server", "port", cfg.Port, "backend", cfg.DataBackend, "snapshot_ttl", cfg.SnapshotTTL)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
