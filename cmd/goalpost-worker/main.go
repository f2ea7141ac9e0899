package main

import (
	"context"
	"log/slog"
	"time"

	"goalpost/internal/cli"
	"goalpost/internal/core"
	"goalpost/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()

	logger.Info("Starting goalpost-worker")

	cfg := cli.LoadAndValidateConfig(logger)

	sqliteRepo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer sqliteRepo.Close()

	amqpClient := cli.OptionalAMQP(logger, cfg)
	if amqpClient != nil {
		defer amqpClient.Close()
	}

	locks := services.NewUserLocks()
	ledger := services.NewLedgerService(sqliteRepo, locks)
	progress := services.NewProgressService(sqliteRepo, ledger)
	goals := services.NewGoalService(sqliteRepo, locks, amqpClient)
	maintenance := services.NewMaintenanceService(goals, progress)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	logger.Info("Maintenance loop configured",
		"interval", cfg.MaintenanceInterval,
		"sqlite_db", cfg.SQLiteDBPath)

	ticker := time.NewTicker(cfg.MaintenanceInterval)
	defer ticker.Stop()

	// Run once on startup so a crashed or freshly deployed worker
	// catches up immediately instead of waiting a full interval.
	logger.Info("Running initial maintenance pass...")
	runMaintenance(ctx, maintenance)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logger.Info("Running scheduled maintenance pass...")
				runMaintenance(ctx, maintenance)
			}
		}
	}()

	cli.WaitForShutdown(ctx, done)
}

// runMaintenance executes one full pass: statuses first so rollover and
// freezing see up-to-date goals, then recurrence, then value freezing.
func runMaintenance(ctx context.Context, m *services.MaintenanceService) {
	today := core.Today()

	swept, err := m.SweepStatuses(ctx, today)
	if err != nil {
		slog.ErrorContext(ctx, "Status sweep failed", "error", err)
	} else {
		slog.InfoContext(ctx, "Status sweep complete", "updated", swept)
	}

	created, err := m.RolloverRecurring(ctx, today)
	if err != nil {
		slog.ErrorContext(ctx, "Recurrence rollover failed", "error", err)
	} else {
		slog.InfoContext(ctx, "Recurrence rollover complete", "goals_created", len(created))
	}

	frozen, err := m.FreezeElapsed(ctx, today)
	if err != nil {
		slog.ErrorContext(ctx, "Contribution freeze failed", "error", err)
	} else {
		slog.InfoContext(ctx, "Contribution freeze complete", "contributions_frozen", frozen)
	}
}
