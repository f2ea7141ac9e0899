package services

import (
	"context"
	"fmt"
	"log/slog"

	"goalpost/internal/amqp"
	"goalpost/internal/core"
	"goalpost/internal/storage"
)

// MaintenanceService runs the periodic jobs that keep goals honest:
// status sweeps, recurring rollovers and amount freezes. Every job takes
// the reference day as a parameter so runs are reproducible.
type MaintenanceService struct {
	storage  *storage.SQLiteRepository
	goals    *GoalService
	progress *ProgressService
}

func NewMaintenanceService(goals *GoalService, progress *ProgressService) *MaintenanceService {
	return &MaintenanceService{
		storage:  goals.storage,
		goals:    goals,
		progress: progress,
	}
}

// SweepStatuses walks every pending or in-progress goal and moves it to
// where the calendar says it belongs: past its horizon it either
// completed (progress reached 100 percent) or failed, inside its horizon
// it is in progress, before it it is pending. Terminal goals are never
// revisited. Returns the number of goals that changed status.
func (s *MaintenanceService) SweepStatuses(ctx context.Context, today core.Date) (int, error) {
	active, err := s.storage.ActiveGoals(ctx)
	if err != nil {
		return 0, fmt.Errorf("sweep statuses: %w", err)
	}

	changed := 0
	for _, g := range active {
		next := g.Status
		var actual core.Date

		switch {
		case g.ExpectedCompletionDate.Before(today):
			pct, err := s.progress.ProgressPercent(ctx, g)
			if err != nil {
				return changed, fmt.Errorf("sweep statuses: %w", err)
			}
			if pct.GreaterThanOrEqual(oneHundred) {
				next = core.StatusCompleted
				actual = today
			} else {
				next = core.StatusFailed
			}
		case !g.StartDate.After(today):
			next = core.StatusInProgress
		default:
			next = core.StatusPending
		}

		if next == g.Status {
			continue
		}

		g.Status = next
		g.ActualCompletionDate = actual
		if err := s.storage.UpdateGoal(ctx, g); err != nil {
			return changed, fmt.Errorf("sweep statuses: %w", err)
		}
		changed++

		slog.InfoContext(ctx, "Goal status updated",
			"id", g.ID,
			"user_id", g.UserID,
			"status", string(next))

		switch next {
		case core.StatusCompleted:
			s.goals.publishEvent(ctx, amqp.EventGoalCompleted, g)
		case core.StatusFailed:
			s.goals.publishEvent(ctx, amqp.EventGoalFailed, g)
		}
	}

	return changed, nil
}

// RolloverRecurring creates the successor for every recurring goal whose
// latest occurrence has lapsed by at least its frequency in months. Only
// leaf goals roll over (a goal already linked as someone's previous goal
// is done spawning). The successor starts the day after the old expected
// completion, keeps the old duration, and goes through the full create
// path, so it claims its span and pledges whatever headroom is left.
// Successors are normalized against their own start day rather than
// today: after downtime the chain still advances, one period per run,
// and the status sweep settles periods that lapsed in the meantime. A
// goal whose successor cannot be created is logged and skipped; one bad
// goal must not block the rest.
func (s *MaintenanceService) RolloverRecurring(ctx context.Context, today core.Date) ([]core.Goal, error) {
	leaves, err := s.storage.RecurringLeafGoals(ctx)
	if err != nil {
		return nil, fmt.Errorf("rollover recurring: %w", err)
	}

	var created []core.Goal
	for _, g := range leaves {
		if core.MonthsBetween(today, g.ExpectedCompletionDate) <= g.FrequencyMonths-1 {
			continue
		}

		start := g.ExpectedCompletionDate.AddDays(1)
		months := core.MonthsBetween(g.ExpectedCompletionDate, g.StartDate)
		successor := core.Goal{
			UserID:                 g.UserID,
			Name:                   g.Name,
			Amount:                 g.Amount,
			Type:                   g.Type,
			Status:                 core.StatusInProgress,
			StartDate:              start,
			ExpectedCompletionDate: start.AddMonths(months),
			Recurrence:             g.Recurrence,
			FrequencyMonths:        g.FrequencyMonths,
			PreviousGoalID:         g.ID,
		}

		if _, err := s.goals.createGoal(ctx, &successor, start); err != nil {
			slog.ErrorContext(ctx, "Failed to roll over recurring goal",
				"id", g.ID,
				"user_id", g.UserID,
				"error", err)
			continue
		}

		slog.InfoContext(ctx, "Recurring goal rolled over",
			"id", g.ID,
			"successor_id", successor.ID,
			"user_id", g.UserID,
			"horizon", successor.Horizon().String())
		created = append(created, successor)
	}

	return created, nil
}

// FreezeElapsed pins the amount of every live contribution whose range
// has fully elapsed. Once frozen, late-arriving backdated transactions
// no longer move the figure; progress over closed periods stays put.
// Amounts are rounded to cents. Returns the number frozen.
func (s *MaintenanceService) FreezeElapsed(ctx context.Context, today core.Date) (int, error) {
	candidates, err := s.storage.FreezeCandidates(ctx, today)
	if err != nil {
		return 0, fmt.Errorf("freeze elapsed: %w", err)
	}

	frozen := 0
	for _, c := range candidates {
		net, err := s.storage.NetSavings(ctx, c.UserID, core.Interval{Start: c.StartDate, End: c.EndDate})
		if err != nil {
			return frozen, fmt.Errorf("freeze elapsed: %w", err)
		}
		amount := core.PercentOf(net, c.Percentage).Round(2)

		if err := s.storage.FreezeContribution(ctx, c.ID, amount); err != nil {
			return frozen, fmt.Errorf("freeze elapsed: %w", err)
		}
		frozen++

		slog.DebugContext(ctx, "Contribution amount frozen",
			"id", c.ID,
			"goal_id", c.GoalID,
			"amount", amount.StringFixed(2))
	}

	if frozen > 0 {
		slog.InfoContext(ctx, "Elapsed contributions frozen", "count", frozen, "as_of", today.String())
	}
	return frozen, nil
}
