package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"goalpost/internal/core"
	"goalpost/internal/storage"
)

// LedgerService manages contributions: the pledges binding a percentage
// of one range's net savings to one goal.
type LedgerService struct {
	storage *storage.SQLiteRepository
	locks   *UserLocks
}

func NewLedgerService(storage *storage.SQLiteRepository, locks *UserLocks) *LedgerService {
	return &LedgerService{
		storage: storage,
		locks:   locks,
	}
}

// Add pledges a percentage of the range's net savings to the goal. The
// range must lie inside the goal's horizon, the range's pledges must not
// exceed 100 percent in total, and completed goals accept no new
// pledges.
func (s *LedgerService) Add(ctx context.Context, goalID, rangeID, percentage int64) (core.Contribution, error) {
	contribution := core.Contribution{GoalID: goalID, DateRangeID: rangeID, Percentage: percentage}
	if err := contribution.Validate(); err != nil {
		return core.Contribution{}, fmt.Errorf("add contribution: %w", err)
	}

	goal, err := s.storage.GetGoal(ctx, goalID)
	if err != nil {
		return core.Contribution{}, fmt.Errorf("add contribution: %w", err)
	}
	if goal.Status == core.StatusCompleted {
		return core.Contribution{}, fmt.Errorf("add contribution to goal %d: %w", goalID, core.ErrGoalCompleted)
	}

	unlock := s.locks.Lock(goal.UserID)
	defer unlock()

	var created core.Contribution
	err = s.storage.InTx(ctx, func(q *storage.Queries) error {
		created, err = addContribution(ctx, q, goal, rangeID, percentage)
		return err
	})
	if err != nil {
		return core.Contribution{}, fmt.Errorf("add contribution: %w", err)
	}

	slog.InfoContext(ctx, "Contribution added",
		"id", created.ID,
		"goal_id", goalID,
		"range_id", rangeID,
		"percentage", percentage)

	return created, nil
}

// addContribution creates one pledge inside the caller's transaction,
// enforcing the horizon and headroom invariants against current state.
func addContribution(ctx context.Context, q *storage.Queries, goal core.Goal, rangeID, percentage int64) (core.Contribution, error) {
	rng, err := q.GetDateRange(ctx, rangeID)
	if err != nil {
		return core.Contribution{}, fmt.Errorf("get range %d: %w", rangeID, err)
	}
	if !goal.Horizon().Contains(rng.Interval()) {
		return core.Contribution{}, fmt.Errorf("range %s outside goal horizon %s: %w",
			rng.Interval(), goal.Horizon(), core.ErrOutsideHorizon)
	}

	allocated, err := q.SumPercentageByRange(ctx, rangeID)
	if err != nil {
		return core.Contribution{}, fmt.Errorf("sum percentages for range %d: %w", rangeID, err)
	}
	if allocated+percentage > 100 {
		return core.Contribution{}, fmt.Errorf("range %d already pledges %d%%: %w",
			rangeID, allocated, core.ErrPercentOverflow)
	}

	created, err := q.CreateContribution(ctx, storage.CreateContributionParams{
		GoalID:      goal.ID,
		DateRangeID: rangeID,
		Percentage:  percentage,
	})
	if err != nil {
		return core.Contribution{}, fmt.Errorf("create contribution: %w", err)
	}
	return created, nil
}

// Amount returns what the contribution is worth: the frozen amount once
// the period has closed, otherwise the pledged percentage of the user's
// net savings over the range's span. Live values move with every
// recorded transaction and may be negative.
func (s *LedgerService) Amount(ctx context.Context, c core.Contribution) (decimal.Decimal, error) {
	if c.Amount.Valid {
		return c.Amount.Decimal, nil
	}

	rng, err := s.storage.GetRange(ctx, c.DateRangeID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("contribution amount: %w", err)
	}
	goal, err := s.storage.GetGoal(ctx, c.GoalID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("contribution amount: %w", err)
	}

	net, err := s.storage.NetSavings(ctx, goal.UserID, rng.Interval())
	if err != nil {
		return decimal.Zero, fmt.Errorf("contribution amount: %w", err)
	}
	return core.PercentOf(net, c.Percentage), nil
}
