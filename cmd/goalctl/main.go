package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"goalpost/internal/amqp"
	"goalpost/internal/cli"
	"goalpost/internal/services"
	"goalpost/internal/storage"
)

var rootCmd = &cobra.Command{
	Use:   "goalctl",
	Short: "Admin CLI for the goal engine",
	Long: "One-shot maintenance and inspection commands for goals, ranges and " +
		"contributions. Reads the same environment configuration as the workers, " +
		"so it can run from cron next to them.",
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app bundles what a subcommand needs. Every run opens the repository,
// does its one job and closes again; results print to stdout while the
// logger stays quiet on stderr.
type app struct {
	repo        *storage.SQLiteRepository
	amqp        *amqp.Client
	progress    *services.ProgressService
	ranges      *services.RangeService
	maintenance *services.MaintenanceService
}

func newApp() *app {
	cli.LoadEnvFile()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	slog.SetDefault(logger)

	cfg := cli.LoadAndValidateConfig(logger)
	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)

	amqpClient := cli.OptionalAMQP(logger, cfg)

	locks := services.NewUserLocks()
	ledger := services.NewLedgerService(repo, locks)
	progress := services.NewProgressService(repo, ledger)
	goals := services.NewGoalService(repo, locks, amqpClient)

	return &app{
		repo:        repo,
		amqp:        amqpClient,
		progress:    progress,
		ranges:      services.NewRangeService(repo, locks),
		maintenance: services.NewMaintenanceService(goals, progress),
	}
}

func (a *app) Close() {
	if a.amqp != nil {
		_ = a.amqp.Close()
	}
	_ = a.repo.Close()
}
