package services

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"goalpost/internal/core"
	"goalpost/internal/storage"
)

var oneHundred = decimal.NewFromInt(100)

// ProgressService reports how far along a goal is. Progress is always
// recomputed from the goal's contributions; the frozen amount column is
// the only stored figure, everything else moves with the transaction
// ledger.
type ProgressService struct {
	storage *storage.SQLiteRepository
	ledger  *LedgerService
}

func NewProgressService(storage *storage.SQLiteRepository, ledger *LedgerService) *ProgressService {
	return &ProgressService{
		storage: storage,
		ledger:  ledger,
	}
}

// Progress sums the value of every contribution pledged to the goal.
// The result may be negative when the user spent more than they earned
// over the pledged ranges.
func (s *ProgressService) Progress(ctx context.Context, goal core.Goal) (decimal.Decimal, error) {
	contributions, err := s.storage.ContributionsByGoal(ctx, goal.ID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("progress for goal %d: %w", goal.ID, err)
	}

	total := decimal.Zero
	for _, c := range contributions {
		amount, err := s.ledger.Amount(ctx, c)
		if err != nil {
			return decimal.Zero, fmt.Errorf("progress for goal %d: %w", goal.ID, err)
		}
		total = total.Add(amount)
	}
	return total, nil
}

// ProgressPercent scales progress by the goal's target amount. Not
// clamped: an overfunded goal reads above 100.
func (s *ProgressService) ProgressPercent(ctx context.Context, goal core.Goal) (decimal.Decimal, error) {
	total, err := s.Progress(ctx, goal)
	if err != nil {
		return decimal.Zero, err
	}
	return total.Div(goal.Amount).Mul(oneHundred), nil
}

// Report assembles the export row for one goal.
func (s *ProgressService) Report(ctx context.Context, goal core.Goal, asOf core.Date) (core.ProgressReport, error) {
	total, err := s.Progress(ctx, goal)
	if err != nil {
		return core.ProgressReport{}, err
	}
	return core.ProgressReport{
		GoalID:      goal.ID,
		UserID:      goal.UserID,
		Name:        goal.Name,
		Status:      goal.Status,
		Target:      goal.Amount,
		Contributed: total,
		Percent:     total.Div(goal.Amount).Mul(oneHundred),
		AsOf:        asOf,
	}, nil
}
