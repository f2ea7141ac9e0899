package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"

	"goalpost/internal/core"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx so every query can run
// standalone or inside a transaction.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// Queries bundles the SQL statements of the store. Use New for a
// db-backed instance and WithTx to rebind it to an open transaction.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// ---- goals ----

const goalColumns = `id, user_id, name, amount, goal_type, status, start_date,
	expected_completion_date, actual_completion_date, recurrence,
	frequency_months, previous_goal_id`

type scanner interface {
	Scan(dest ...any) error
}

func scanGoal(row scanner) (core.Goal, error) {
	var g core.Goal
	var freq, prev sql.NullInt64
	err := row.Scan(
		&g.ID, &g.UserID, &g.Name, &g.Amount, &g.Type, &g.Status,
		&g.StartDate, &g.ExpectedCompletionDate, &g.ActualCompletionDate,
		&g.Recurrence, &freq, &prev,
	)
	if err != nil {
		return core.Goal{}, err
	}
	g.FrequencyMonths = int(freq.Int64)
	g.PreviousGoalID = prev.Int64
	return g, nil
}

func nullInt(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: v != 0}
}

type CreateGoalParams struct {
	UserID                 string
	Name                   string
	Amount                 decimal.Decimal
	Type                   core.GoalType
	Status                 core.GoalStatus
	StartDate              core.Date
	ExpectedCompletionDate core.Date
	ActualCompletionDate   core.Date
	Recurrence             core.Recurrence
	FrequencyMonths        int
	PreviousGoalID         int64
}

const createGoal = `INSERT INTO goals (
	user_id, name, amount, goal_type, status, start_date,
	expected_completion_date, actual_completion_date, recurrence,
	frequency_months, previous_goal_id
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING ` + goalColumns

func (q *Queries) CreateGoal(ctx context.Context, arg CreateGoalParams) (core.Goal, error) {
	row := q.db.QueryRowContext(ctx, createGoal,
		arg.UserID, arg.Name, arg.Amount.String(), arg.Type, arg.Status,
		arg.StartDate, arg.ExpectedCompletionDate, arg.ActualCompletionDate,
		arg.Recurrence, nullInt(int64(arg.FrequencyMonths)), nullInt(arg.PreviousGoalID),
	)
	return scanGoal(row)
}

type UpdateGoalParams struct {
	ID                     int64
	Name                   string
	Amount                 decimal.Decimal
	Type                   core.GoalType
	Status                 core.GoalStatus
	StartDate              core.Date
	ExpectedCompletionDate core.Date
	ActualCompletionDate   core.Date
	Recurrence             core.Recurrence
	FrequencyMonths        int
}

const updateGoal = `UPDATE goals SET
	name = ?, amount = ?, goal_type = ?, status = ?, start_date = ?,
	expected_completion_date = ?, actual_completion_date = ?,
	recurrence = ?, frequency_months = ?, updated_at = datetime('now')
WHERE id = ?`

func (q *Queries) UpdateGoal(ctx context.Context, arg UpdateGoalParams) error {
	_, err := q.db.ExecContext(ctx, updateGoal,
		arg.Name, arg.Amount.String(), arg.Type, arg.Status, arg.StartDate,
		arg.ExpectedCompletionDate, arg.ActualCompletionDate,
		arg.Recurrence, nullInt(int64(arg.FrequencyMonths)), arg.ID,
	)
	return err
}

const getGoal = `SELECT ` + goalColumns + ` FROM goals WHERE id = ?`

func (q *Queries) GetGoal(ctx context.Context, id int64) (core.Goal, error) {
	return scanGoal(q.db.QueryRowContext(ctx, getGoal, id))
}

const deleteGoal = `DELETE FROM goals WHERE id = ?`

func (q *Queries) DeleteGoal(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, deleteGoal, id)
	return err
}

const getGoalsByUser = `SELECT ` + goalColumns + ` FROM goals
WHERE user_id = ? ORDER BY start_date, id`

func (q *Queries) GetGoalsByUser(ctx context.Context, userID string) ([]core.Goal, error) {
	rows, err := q.db.QueryContext(ctx, getGoalsByUser, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectGoals(rows)
}

const getActiveGoals = `SELECT ` + goalColumns + ` FROM goals
WHERE status IN ('pending', 'in_progress') ORDER BY id`

// GetActiveGoals returns goals whose status still admits transitions.
func (q *Queries) GetActiveGoals(ctx context.Context) ([]core.Goal, error) {
	rows, err := q.db.QueryContext(ctx, getActiveGoals)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectGoals(rows)
}

const getRecurringLeafGoals = `SELECT ` + goalColumns + ` FROM goals
WHERE recurrence != 'none'
  AND id NOT IN (SELECT previous_goal_id FROM goals WHERE previous_goal_id IS NOT NULL)
ORDER BY id`

// GetRecurringLeafGoals returns recurring goals that no successor points
// back to yet, the candidates for the next rollover.
func (q *Queries) GetRecurringLeafGoals(ctx context.Context) ([]core.Goal, error) {
	rows, err := q.db.QueryContext(ctx, getRecurringLeafGoals)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectGoals(rows)
}

func collectGoals(rows *sql.Rows) ([]core.Goal, error) {
	var goals []core.Goal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		goals = append(goals, g)
	}
	return goals, rows.Err()
}

// ---- date ranges ----

const rangeColumns = `id, user_id, start_date, end_date`

func scanRange(row scanner) (core.DateRange, error) {
	var r core.DateRange
	err := row.Scan(&r.ID, &r.UserID, &r.StartDate, &r.EndDate)
	if err != nil {
		return core.DateRange{}, err
	}
	return r, nil
}

type CreateDateRangeParams struct {
	UserID    string
	StartDate core.Date
	EndDate   core.Date
}

const createDateRange = `INSERT INTO date_ranges (user_id, start_date, end_date)
VALUES (?, ?, ?)
RETURNING ` + rangeColumns

func (q *Queries) CreateDateRange(ctx context.Context, arg CreateDateRangeParams) (core.DateRange, error) {
	row := q.db.QueryRowContext(ctx, createDateRange, arg.UserID, arg.StartDate, arg.EndDate)
	return scanRange(row)
}

const getDateRange = `SELECT ` + rangeColumns + ` FROM date_ranges WHERE id = ?`

func (q *Queries) GetDateRange(ctx context.Context, id int64) (core.DateRange, error) {
	return scanRange(q.db.QueryRowContext(ctx, getDateRange, id))
}

type GetOverlappingRangesParams struct {
	UserID    string
	StartDate core.Date
	EndDate   core.Date
}

// Overlap predicate: the existing range starts inside the span, ends
// inside it, or contains it. ISO-8601 TEXT dates compare correctly as
// strings.
const getOverlappingRanges = `SELECT ` + rangeColumns + ` FROM date_ranges
WHERE user_id = ?
  AND ((start_date <= ? AND end_date >= ?)
    OR (start_date <= ? AND end_date >= ?)
    OR (start_date >= ? AND end_date <= ?))
ORDER BY start_date`

func (q *Queries) GetOverlappingRanges(ctx context.Context, arg GetOverlappingRangesParams) ([]core.DateRange, error) {
	rows, err := q.db.QueryContext(ctx, getOverlappingRanges,
		arg.UserID,
		arg.StartDate, arg.StartDate,
		arg.EndDate, arg.EndDate,
		arg.StartDate, arg.EndDate,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRanges(rows)
}

const getRangesByUser = `SELECT ` + rangeColumns + ` FROM date_ranges
WHERE user_id = ? ORDER BY start_date`

func (q *Queries) GetRangesByUser(ctx context.Context, userID string) ([]core.DateRange, error) {
	rows, err := q.db.QueryContext(ctx, getRangesByUser, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRanges(rows)
}

const getRangesWithoutContributions = `SELECT ` + rangeColumns + ` FROM date_ranges r
WHERE r.user_id = ?
  AND NOT EXISTS (SELECT 1 FROM contributions c WHERE c.date_range_id = r.id)
ORDER BY r.start_date`

func (q *Queries) GetRangesWithoutContributions(ctx context.Context, userID string) ([]core.DateRange, error) {
	rows, err := q.db.QueryContext(ctx, getRangesWithoutContributions, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRanges(rows)
}

const deleteDateRange = `DELETE FROM date_ranges WHERE id = ?`

func (q *Queries) DeleteDateRange(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, deleteDateRange, id)
	return err
}

func collectRanges(rows *sql.Rows) ([]core.DateRange, error) {
	var ranges []core.DateRange
	for rows.Next() {
		r, err := scanRange(rows)
		if err != nil {
			return nil, err
		}
		ranges = append(ranges, r)
	}
	return ranges, rows.Err()
}

// ---- contributions ----

const contributionColumns = `id, goal_id, date_range_id, percentage, amount`

func scanContribution(row scanner) (core.Contribution, error) {
	var c core.Contribution
	err := row.Scan(&c.ID, &c.GoalID, &c.DateRangeID, &c.Percentage, &c.Amount)
	if err != nil {
		return core.Contribution{}, err
	}
	return c, nil
}

type CreateContributionParams struct {
	GoalID      int64
	DateRangeID int64
	Percentage  int64
	Amount      decimal.NullDecimal
}

const createContribution = `INSERT INTO contributions (goal_id, date_range_id, percentage, amount)
VALUES (?, ?, ?, ?)
RETURNING ` + contributionColumns

func (q *Queries) CreateContribution(ctx context.Context, arg CreateContributionParams) (core.Contribution, error) {
	row := q.db.QueryRowContext(ctx, createContribution,
		arg.GoalID, arg.DateRangeID, arg.Percentage, arg.Amount)
	return scanContribution(row)
}

const getContributionsByRange = `SELECT ` + contributionColumns + ` FROM contributions
WHERE date_range_id = ? ORDER BY id`

func (q *Queries) GetContributionsByRange(ctx context.Context, rangeID int64) ([]core.Contribution, error) {
	rows, err := q.db.QueryContext(ctx, getContributionsByRange, rangeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectContributions(rows)
}

const getContributionsByGoal = `SELECT ` + contributionColumns + ` FROM contributions
WHERE goal_id = ? ORDER BY id`

func (q *Queries) GetContributionsByGoal(ctx context.Context, goalID int64) ([]core.Contribution, error) {
	rows, err := q.db.QueryContext(ctx, getContributionsByGoal, goalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectContributions(rows)
}

const deleteContributionsByRange = `DELETE FROM contributions WHERE date_range_id = ?`

func (q *Queries) DeleteContributionsByRange(ctx context.Context, rangeID int64) error {
	_, err := q.db.ExecContext(ctx, deleteContributionsByRange, rangeID)
	return err
}

const sumPercentageByRange = `SELECT COALESCE(SUM(percentage), 0) FROM contributions
WHERE date_range_id = ?`

func (q *Queries) SumPercentageByRange(ctx context.Context, rangeID int64) (int64, error) {
	var sum int64
	err := q.db.QueryRowContext(ctx, sumPercentageByRange, rangeID).Scan(&sum)
	return sum, err
}

type GetFreezeCandidatesRow struct {
	ID         int64
	GoalID     int64
	Percentage int64
	UserID     string
	StartDate  core.Date
	EndDate    core.Date
}

const getFreezeCandidates = `SELECT c.id, c.goal_id, c.percentage, g.user_id, r.start_date, r.end_date
FROM contributions c
JOIN date_ranges r ON r.id = c.date_range_id
JOIN goals g ON g.id = c.goal_id
WHERE c.amount IS NULL AND r.end_date < ?
ORDER BY c.id`

// GetFreezeCandidates returns live contributions whose range ended before
// the cutoff, ready to have their amount frozen.
func (q *Queries) GetFreezeCandidates(ctx context.Context, before core.Date) ([]GetFreezeCandidatesRow, error) {
	rows, err := q.db.QueryContext(ctx, getFreezeCandidates, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []GetFreezeCandidatesRow
	for rows.Next() {
		var it GetFreezeCandidatesRow
		if err := rows.Scan(&it.ID, &it.GoalID, &it.Percentage, &it.UserID, &it.StartDate, &it.EndDate); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

type FreezeContributionAmountParams struct {
	ID     int64
	Amount decimal.Decimal
}

const freezeContributionAmount = `UPDATE contributions SET amount = ? WHERE id = ?`

func (q *Queries) FreezeContributionAmount(ctx context.Context, arg FreezeContributionAmountParams) error {
	_, err := q.db.ExecContext(ctx, freezeContributionAmount, arg.Amount.StringFixed(2), arg.ID)
	return err
}

func collectContributions(rows *sql.Rows) ([]core.Contribution, error) {
	var contributions []core.Contribution
	for rows.Next() {
		c, err := scanContribution(rows)
		if err != nil {
			return nil, err
		}
		contributions = append(contributions, c)
	}
	return contributions, rows.Err()
}

// ---- transactions ----

type CreateTransactionParams struct {
	UserID      string
	AmountCents int64
	Income      bool
	OccurredOn  core.Date
}

const createTransaction = `INSERT INTO transactions (user_id, amount_cents, income, occurred_on)
VALUES (?, ?, ?, ?)
RETURNING id, user_id, amount_cents, income, occurred_on`

func (q *Queries) CreateTransaction(ctx context.Context, arg CreateTransactionParams) (core.Transaction, error) {
	var t core.Transaction
	err := q.db.QueryRowContext(ctx, createTransaction,
		arg.UserID, arg.AmountCents, arg.Income, arg.OccurredOn).
		Scan(&t.ID, &t.UserID, &t.AmountCents, &t.Income, &t.OccurredOn)
	if err != nil {
		return core.Transaction{}, err
	}
	return t, nil
}

type GetNetSavingsCentsParams struct {
	UserID    string
	StartDate core.Date
	EndDate   core.Date
}

const getNetSavingsCents = `SELECT COALESCE(SUM(CASE WHEN income = 1 THEN amount_cents ELSE -amount_cents END), 0)
FROM transactions
WHERE user_id = ? AND occurred_on >= ? AND occurred_on <= ?`

// GetNetSavingsCents aggregates income minus expenses over an inclusive
// date span, in cents.
func (q *Queries) GetNetSavingsCents(ctx context.Context, arg GetNetSavingsCentsParams) (int64, error) {
	var cents int64
	err := q.db.QueryRowContext(ctx, getNetSavingsCents,
		arg.UserID, arg.StartDate, arg.EndDate).Scan(&cents)
	return cents, err
}

// ---- export queue ----

// ExportItem is one outbox row for the progress export pipeline.
type ExportItem struct {
	ID          int64
	GoalID      int64
	Operation   string
	Status      string
	Attempts    int64
	LastError   sql.NullString
	CreatedAt   time.Time
	ProcessedAt sql.NullTime
}

const exportColumns = `id, goal_id, operation, status, attempts, last_error, created_at, processed_at`

func scanExportItem(row scanner) (ExportItem, error) {
	var it ExportItem
	err := row.Scan(&it.ID, &it.GoalID, &it.Operation, &it.Status,
		&it.Attempts, &it.LastError, &it.CreatedAt, &it.ProcessedAt)
	if err != nil {
		return ExportItem{}, err
	}
	return it, nil
}

type EnqueueExportParams struct {
	GoalID    int64
	Operation string
}

const enqueueExport = `INSERT INTO export_queue (goal_id, operation)
VALUES (?, ?)
RETURNING ` + exportColumns

func (q *Queries) EnqueueExport(ctx context.Context, arg EnqueueExportParams) (ExportItem, error) {
	return scanExportItem(q.db.QueryRowContext(ctx, enqueueExport, arg.GoalID, arg.Operation))
}

const dequeueExportBatch = `SELECT ` + exportColumns + ` FROM export_queue
WHERE status = 'pending' ORDER BY created_at, id LIMIT ?`

func (q *Queries) DequeueExportBatch(ctx context.Context, limit int64) ([]ExportItem, error) {
	rows, err := q.db.QueryContext(ctx, dequeueExportBatch, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []ExportItem
	for rows.Next() {
		it, err := scanExportItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

const markExportProcessing = `UPDATE export_queue SET status = 'processing' WHERE id = ?`

func (q *Queries) MarkExportProcessing(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, markExportProcessing, id)
	return err
}

const markExportCompleted = `UPDATE export_queue
SET status = 'completed', processed_at = datetime('now') WHERE id = ?`

func (q *Queries) MarkExportCompleted(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, markExportCompleted, id)
	return err
}

type MarkExportFailedParams struct {
	ID        int64
	LastError string
}

const markExportFailed = `UPDATE export_queue
SET status = 'failed', last_error = ?, processed_at = datetime('now') WHERE id = ?`

func (q *Queries) MarkExportFailed(ctx context.Context, arg MarkExportFailedParams) error {
	_, err := q.db.ExecContext(ctx, markExportFailed, arg.LastError, arg.ID)
	return err
}

type IncrementExportAttemptParams struct {
	ID        int64
	LastError string
}

const incrementExportAttempt = `UPDATE export_queue
SET status = 'pending', attempts = attempts + 1, last_error = ? WHERE id = ?`

func (q *Queries) IncrementExportAttempt(ctx context.Context, arg IncrementExportAttemptParams) error {
	_, err := q.db.ExecContext(ctx, incrementExportAttempt, arg.LastError, arg.ID)
	return err
}

const resetStaleExports = `UPDATE export_queue SET status = 'pending' WHERE status = 'processing'`

// ResetStaleExports requeues items stuck in processing after a crash.
func (q *Queries) ResetStaleExports(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, resetStaleExports)
	return err
}

const cleanupCompletedExports = `DELETE FROM export_queue
WHERE status = 'completed' AND processed_at < ?`

func (q *Queries) CleanupCompletedExports(ctx context.Context, before time.Time) error {
	_, err := q.db.ExecContext(ctx, cleanupCompletedExports, before.UTC().Format("2006-01-02 15:04:05"))
	return err
}

const retryFailedExports = `UPDATE export_queue
SET status = 'pending', attempts = 0 WHERE status = 'failed'`

func (q *Queries) RetryFailedExports(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, retryFailedExports)
	return err
}

type GetExportQueueStatsRow struct {
	Pending    int64
	Processing int64
	Completed  int64
	Failed     int64
}

const getExportQueueStats = `SELECT
	COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN status = 'processing' THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0)
FROM export_queue`

func (q *Queries) GetExportQueueStats(ctx context.Context) (GetExportQueueStatsRow, error) {
	var s GetExportQueueStatsRow
	err := q.db.QueryRowContext(ctx, getExportQueueStats).
		Scan(&s.Pending, &s.Processing, &s.Completed, &s.Failed)
	return s, err
}
