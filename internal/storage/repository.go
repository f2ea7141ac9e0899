// Package storage persists the goal engine's entities in SQLite: goals,
// date ranges, contributions, the transaction read model and the export
// outbox. Dates are stored as ISO-8601 text, money as decimal text, and
// transaction amounts as integer cents.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"goalpost/internal/core"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

// dsn enables WAL, foreign keys and a busy timeout on every connection;
// the worker daemons share one database file.
func dsn(dbPath string) string {
	return dbPath + "?_pragma=journal_mode(wal)&_pragma=synchronous(normal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)"
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// InTx runs fn with a Queries bound to one transaction. Everything fn
// does commits together or rolls back on the first error.
func (r *SQLiteRepository) InTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(r.queries.WithTx(tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ---- range partition store ----

// InsertRange creates a new range for the user, failing when the span is
// invalid or collides with an existing range. Adjacent ranges are never
// merged; contiguous cells stay distinct.
func (r *SQLiteRepository) InsertRange(ctx context.Context, userID string, span core.Interval) (core.DateRange, error) {
	if userID == "" {
		return core.DateRange{}, fmt.Errorf("insert range: %w", core.ErrEmptyUser)
	}
	if err := span.Validate(); err != nil {
		return core.DateRange{}, fmt.Errorf("insert range: %w", err)
	}

	var created core.DateRange
	err := r.InTx(ctx, func(q *Queries) error {
		overlapping, err := q.GetOverlappingRanges(ctx, GetOverlappingRangesParams{
			UserID:    userID,
			StartDate: span.Start,
			EndDate:   span.End,
		})
		if err != nil {
			return fmt.Errorf("check overlapping ranges: %w", err)
		}
		if len(overlapping) > 0 {
			return fmt.Errorf("insert range %s for user %s: %w", span, userID, core.ErrRangeOverlap)
		}
		created, err = q.CreateDateRange(ctx, CreateDateRangeParams{
			UserID:    userID,
			StartDate: span.Start,
			EndDate:   span.End,
		})
		if err != nil {
			return fmt.Errorf("create range: %w", err)
		}
		return nil
	})
	if err != nil {
		return core.DateRange{}, err
	}

	slog.InfoContext(ctx, "Range inserted",
		"id", created.ID,
		"user_id", created.UserID,
		"start", created.StartDate.String(),
		"end", created.EndDate.String())

	return created, nil
}

// OverlappingRanges returns the user's ranges intersecting the span,
// ordered by start date.
func (r *SQLiteRepository) OverlappingRanges(ctx context.Context, userID string, span core.Interval) ([]core.DateRange, error) {
	ranges, err := r.queries.GetOverlappingRanges(ctx, GetOverlappingRangesParams{
		UserID:    userID,
		StartDate: span.Start,
		EndDate:   span.End,
	})
	if err != nil {
		return nil, fmt.Errorf("get overlapping ranges: %w", err)
	}
	return ranges, nil
}

func (r *SQLiteRepository) GetRange(ctx context.Context, id int64) (core.DateRange, error) {
	rng, err := r.queries.GetDateRange(ctx, id)
	if err != nil {
		return core.DateRange{}, fmt.Errorf("get range %d: %w", id, err)
	}
	return rng, nil
}

func (r *SQLiteRepository) UserRanges(ctx context.Context, userID string) ([]core.DateRange, error) {
	ranges, err := r.queries.GetRangesByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get ranges for user %s: %w", userID, err)
	}
	return ranges, nil
}

// ---- contributions ----

func (r *SQLiteRepository) ContributionsByRange(ctx context.Context, rangeID int64) ([]core.Contribution, error) {
	contributions, err := r.queries.GetContributionsByRange(ctx, rangeID)
	if err != nil {
		return nil, fmt.Errorf("get contributions for range %d: %w", rangeID, err)
	}
	return contributions, nil
}

func (r *SQLiteRepository) ContributionsByGoal(ctx context.Context, goalID int64) ([]core.Contribution, error) {
	contributions, err := r.queries.GetContributionsByGoal(ctx, goalID)
	if err != nil {
		return nil, fmt.Errorf("get contributions for goal %d: %w", goalID, err)
	}
	return contributions, nil
}

func (r *SQLiteRepository) SumPercentage(ctx context.Context, rangeID int64) (int64, error) {
	sum, err := r.queries.SumPercentageByRange(ctx, rangeID)
	if err != nil {
		return 0, fmt.Errorf("sum percentage for range %d: %w", rangeID, err)
	}
	return sum, nil
}

// FreezeCandidates returns live contributions whose range ended before
// the cutoff day.
func (r *SQLiteRepository) FreezeCandidates(ctx context.Context, before core.Date) ([]GetFreezeCandidatesRow, error) {
	candidates, err := r.queries.GetFreezeCandidates(ctx, before)
	if err != nil {
		return nil, fmt.Errorf("get freeze candidates: %w", err)
	}
	return candidates, nil
}

func (r *SQLiteRepository) FreezeContribution(ctx context.Context, id int64, amount decimal.Decimal) error {
	err := r.queries.FreezeContributionAmount(ctx, FreezeContributionAmountParams{ID: id, Amount: amount})
	if err != nil {
		return fmt.Errorf("freeze contribution %d: %w", id, err)
	}
	return nil
}

// ---- goals ----

func (r *SQLiteRepository) CreateGoal(ctx context.Context, g core.Goal) (core.Goal, error) {
	created, err := r.queries.CreateGoal(ctx, CreateGoalParams{
		UserID:                 g.UserID,
		Name:                   g.Name,
		Amount:                 g.Amount,
		Type:                   g.Type,
		Status:                 g.Status,
		StartDate:              g.StartDate,
		ExpectedCompletionDate: g.ExpectedCompletionDate,
		ActualCompletionDate:   g.ActualCompletionDate,
		Recurrence:             g.Recurrence,
		FrequencyMonths:        g.FrequencyMonths,
		PreviousGoalID:         g.PreviousGoalID,
	})
	if err != nil {
		return core.Goal{}, fmt.Errorf("create goal: %w", err)
	}

	slog.InfoContext(ctx, "Goal saved",
		"id", created.ID,
		"user_id", created.UserID,
		"name", created.Name,
		"start", created.StartDate.String(),
		"expected_completion", created.ExpectedCompletionDate.String())

	return created, nil
}

func (r *SQLiteRepository) UpdateGoal(ctx context.Context, g core.Goal) error {
	err := r.queries.UpdateGoal(ctx, UpdateGoalParams{
		ID:                     g.ID,
		Name:                   g.Name,
		Amount:                 g.Amount,
		Type:                   g.Type,
		Status:                 g.Status,
		StartDate:              g.StartDate,
		ExpectedCompletionDate: g.ExpectedCompletionDate,
		ActualCompletionDate:   g.ActualCompletionDate,
		Recurrence:             g.Recurrence,
		FrequencyMonths:        g.FrequencyMonths,
	})
	if err != nil {
		return fmt.Errorf("update goal %d: %w", g.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) GetGoal(ctx context.Context, id int64) (core.Goal, error) {
	g, err := r.queries.GetGoal(ctx, id)
	if err != nil {
		return core.Goal{}, fmt.Errorf("get goal %d: %w", id, err)
	}
	return g, nil
}

func (r *SQLiteRepository) GoalsByUser(ctx context.Context, userID string) ([]core.Goal, error) {
	goals, err := r.queries.GetGoalsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get goals for user %s: %w", userID, err)
	}
	return goals, nil
}

func (r *SQLiteRepository) ActiveGoals(ctx context.Context) ([]core.Goal, error) {
	goals, err := r.queries.GetActiveGoals(ctx)
	if err != nil {
		return nil, fmt.Errorf("get active goals: %w", err)
	}
	return goals, nil
}

func (r *SQLiteRepository) RecurringLeafGoals(ctx context.Context) ([]core.Goal, error) {
	goals, err := r.queries.GetRecurringLeafGoals(ctx)
	if err != nil {
		return nil, fmt.Errorf("get recurring goals: %w", err)
	}
	return goals, nil
}

// ---- transaction read model ----

func (r *SQLiteRepository) RecordTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if err := t.Validate(); err != nil {
		return core.Transaction{}, fmt.Errorf("record transaction: %w", err)
	}
	created, err := r.queries.CreateTransaction(ctx, CreateTransactionParams{
		UserID:      t.UserID,
		AmountCents: t.AmountCents,
		Income:      t.Income,
		OccurredOn:  t.OccurredOn,
	})
	if err != nil {
		return core.Transaction{}, fmt.Errorf("record transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction recorded",
		"id", created.ID,
		"user_id", created.UserID,
		"amount_cents", created.AmountCents,
		"income", created.Income,
		"occurred_on", created.OccurredOn.String())

	return created, nil
}

// NetSavings aggregates income minus expenses for the user over the span.
// The sum runs over integer cents and is converted to a decimal at the
// boundary, so no precision is lost.
func (r *SQLiteRepository) NetSavings(ctx context.Context, userID string, span core.Interval) (decimal.Decimal, error) {
	cents, err := r.queries.GetNetSavingsCents(ctx, GetNetSavingsCentsParams{
		UserID:    userID,
		StartDate: span.Start,
		EndDate:   span.End,
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("net savings for user %s over %s: %w", userID, span, err)
	}
	return core.CentsToAmount(cents), nil
}

// ---- export outbox ----

func (r *SQLiteRepository) EnqueueExport(ctx context.Context, goalID int64, operation string) (ExportItem, error) {
	item, err := r.queries.EnqueueExport(ctx, EnqueueExportParams{GoalID: goalID, Operation: operation})
	if err != nil {
		return ExportItem{}, fmt.Errorf("enqueue export for goal %d: %w", goalID, err)
	}

	slog.InfoContext(ctx, "Export queued",
		"id", item.ID,
		"goal_id", item.GoalID,
		"operation", item.Operation)

	return item, nil
}

func (r *SQLiteRepository) DequeueExportBatch(ctx context.Context, limit int64) ([]ExportItem, error) {
	items, err := r.queries.DequeueExportBatch(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("dequeue export batch: %w", err)
	}
	return items, nil
}

func (r *SQLiteRepository) MarkExportProcessing(ctx context.Context, id int64) error {
	if err := r.queries.MarkExportProcessing(ctx, id); err != nil {
		return fmt.Errorf("mark export %d processing: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) MarkExportCompleted(ctx context.Context, id int64) error {
	if err := r.queries.MarkExportCompleted(ctx, id); err != nil {
		return fmt.Errorf("mark export %d completed: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) MarkExportFailed(ctx context.Context, id int64, lastError string) error {
	if err := r.queries.MarkExportFailed(ctx, MarkExportFailedParams{ID: id, LastError: lastError}); err != nil {
		return fmt.Errorf("mark export %d failed: %w", id, err)
	}
	slog.WarnContext(ctx, "Export marked failed", "id", id, "error", lastError)
	return nil
}

func (r *SQLiteRepository) IncrementExportAttempt(ctx context.Context, id int64, lastError string) error {
	if err := r.queries.IncrementExportAttempt(ctx, IncrementExportAttemptParams{ID: id, LastError: lastError}); err != nil {
		return fmt.Errorf("increment export %d attempt: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) ResetStaleExports(ctx context.Context) error {
	if err := r.queries.ResetStaleExports(ctx); err != nil {
		return fmt.Errorf("reset stale exports: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) CleanupCompletedExports(ctx context.Context, before time.Time) error {
	if err := r.queries.CleanupCompletedExports(ctx, before); err != nil {
		return fmt.Errorf("cleanup completed exports: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) RetryFailedExports(ctx context.Context) error {
	if err := r.queries.RetryFailedExports(ctx); err != nil {
		return fmt.Errorf("retry failed exports: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ExportQueueStats(ctx context.Context) (GetExportQueueStatsRow, error) {
	stats, err := r.queries.GetExportQueueStats(ctx)
	if err != nil {
		return GetExportQueueStatsRow{}, fmt.Errorf("get export queue stats: %w", err)
	}
	return stats, nil
}
