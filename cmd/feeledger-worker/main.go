package main

import (
	"context"
	"errors"
	"os"
	"time"

	"feeledger/internal/amqp"
	"feeledger/internal/cli"
	"feeledger/internal/log"
	gsheet "feeledger/internal/sheets/google"
	"feeledger/internal/worker"
)

// Reference data changes rarely; the mirror is refreshed once a day.
const mirrorInterval = 24 * time.Hour

func main() {
	if err := cli.LoadEnvFile(); err != nil {
		cli.SetupLogger("info", log.ComponentWorker).Warn("Ignoring malformed .env file", "error", err)
	}
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), log.ComponentWorker)
	logger.Info("Starting feeledger-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)

	if cfg.GoogleSpreadsheetID == "" {
		logger.Error("GOOGLE_SPREADSHEET_ID is required by the worker")
		repo.Close()
		os.Exit(1)
	}
	sheetsClient, err := gsheet.NewFromEnv(context.Background())
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", "error", err)
		repo.Close()
		os.Exit(1)
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		repo.Close()
		os.Exit(1)
	}

	syncWorker := worker.NewSyncWorker(repo, sheetsClient, sheetsClient, cfg.SyncBatchSize)
	sweeper := worker.NewSweeper(syncWorker, cfg.SyncInterval)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := sweeper.Stop(shutdownCtx); err != nil {
			logger.Warn("Sweeper stop", "error", err)
		}
		if err := amqpClient.Close(); err != nil {
			logger.Warn("AMQP close", "error", err)
		}
		if err := repo.Close(); err != nil {
			logger.Warn("SQLite close", "error", err)
		}
	})

	logger.Info("Performing startup sync")
	if err := syncWorker.StartupSync(ctx); err != nil {
		logger.Error("Startup sync failed", "error", err)
	}

	go func() {
		err := amqpClient.ConsumeReceiptSync(ctx, syncWorker.HandleReceiptSync)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", "error", err)
		}
	}()

	if err := sweeper.Start(ctx); err != nil {
		logger.Error("Failed to start sweeper", "error", err)
	}

	go func() {
		ticker := time.NewTicker(mirrorInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := syncWorker.MirrorReferenceData(ctx); err != nil {
					logger.Error("Reference data refresh failed", "error", err)
				}
			}
		}
	}()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped")
}
