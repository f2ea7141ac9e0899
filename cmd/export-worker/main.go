package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"goalpost/internal/amqp"
	"goalpost/internal/cli"
	"goalpost/internal/export"
	gsheet "goalpost/internal/export/google"
	"goalpost/internal/export/memory"
	"goalpost/internal/services"
	"goalpost/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()

	logger.Info("Starting export-worker")

	cfg := cli.LoadAndValidateConfig(logger)

	sqliteRepo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer sqliteRepo.Close()

	// Pick the progress writer: Google Sheets when configured, the
	// in-memory store otherwise so the worker still drains its queue
	// during local development.
	var writer export.ProgressWriter
	if cfg.GoogleSpreadsheetID != "" {
		sheetsClient, err := gsheet.New(context.Background(),
			cfg.GoogleSpreadsheetID, cfg.GoogleSheetName,
			cfg.GoogleCredentialsFile, cfg.GoogleCredentialsJSON)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", "error", err)
			os.Exit(1)
		}
		writer = sheetsClient
		logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		writer = memory.New()
		logger.Info("Google Sheets disabled - progress rows kept in memory")
	}

	amqpClient := cli.MustAMQP(logger, cfg)
	defer amqpClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eventWorker := worker.NewEventWorker(sqliteRepo)

	// On startup, queue exports for active goals that might have been
	// missed while the worker was down.
	logger.Info("Performing startup export check...")
	if err := eventWorker.StartupExportCheck(ctx); err != nil {
		logger.Error("Failed startup export check", "error", err)
		// Don't exit - continue with normal operation
	}

	locks := services.NewUserLocks()
	ledger := services.NewLedgerService(sqliteRepo, locks)
	progress := services.NewProgressService(sqliteRepo, ledger)

	processorConfig := services.DefaultExportProcessorConfig()
	processorConfig.PollInterval = cfg.ExportInterval
	processorConfig.BatchSize = cfg.ExportBatchSize

	processor := services.NewExportProcessor(sqliteRepo, progress, writer, processorConfig)
	if err := processor.Start(ctx); err != nil {
		logger.Error("Failed to start export processor", "error", err)
		os.Exit(1)
	}

	// Both consume loops run until shutdown; if one dies with a real
	// error the group context brings the whole worker down.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := amqpClient.ConsumeGoalEvents(gctx, func(msg *amqp.GoalEventMessage) error {
			return eventWorker.HandleGoalEvent(gctx, msg)
		})
		if err != nil && err != context.Canceled {
			return err
		}
		return nil
	})
	g.Go(func() error {
		err := amqpClient.ConsumeTransactions(gctx, func(msg *amqp.TransactionRecordedMessage) error {
			return eventWorker.HandleTransactionRecorded(gctx, msg)
		})
		if err != nil && err != context.Canceled {
			return err
		}
		return nil
	})

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-gctx.Done():
		logger.Error("Consumer stopped unexpectedly")
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	logger.Info("Shutting down export-worker...")
	if err := processor.Stop(shutdownCtx); err != nil {
		logger.Warn("Export processor did not stop cleanly", "error", err)
	}
	cancel()

	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Error("Consumer terminated with error", "error", err)
	}

	logger.Info("Export-worker shutdown complete")
}
