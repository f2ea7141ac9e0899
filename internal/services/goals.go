package services

import (
	"context"
	"fmt"
	"log/slog"

	"goalpost/internal/amqp"
	"goalpost/internal/core"
	"goalpost/internal/storage"
)

// GoalService orchestrates goal lifecycle across SQLite and AMQP.
type GoalService struct {
	storage    *storage.SQLiteRepository
	locks      *UserLocks
	amqpClient *amqp.Client

	today func() core.Date
}

func NewGoalService(storage *storage.SQLiteRepository, locks *UserLocks, amqpClient *amqp.Client) *GoalService {
	return &GoalService{
		storage:    storage,
		locks:      locks,
		amqpClient: amqpClient,
		today:      core.Today,
	}
}

// CreateGoal saves a new goal and claims its horizon: the span from
// start to expected completion is carved into ranges, and every range
// inside the horizon gets a contribution for whatever percentage is
// still unpledged on it. Goal row, ranges and pledges commit together.
// The passed goal is normalized in place and gets its assigned ID.
func (s *GoalService) CreateGoal(ctx context.Context, g *core.Goal) ([]core.DateRange, error) {
	return s.createGoal(ctx, g, s.today())
}

// createGoal is CreateGoal with an explicit reference day for date
// normalization. Rollovers pass the successor's own start so a goal
// whose period already lapsed can still be created.
func (s *GoalService) createGoal(ctx context.Context, g *core.Goal, asOf core.Date) ([]core.DateRange, error) {
	if err := g.NormalizeForSave(asOf); err != nil {
		return nil, fmt.Errorf("create goal: %w", err)
	}

	unlock := s.locks.Lock(g.UserID)
	defer unlock()

	var claimed []core.DateRange
	err := s.storage.InTx(ctx, func(q *storage.Queries) error {
		created, err := q.CreateGoal(ctx, storage.CreateGoalParams{
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
			return fmt.Errorf("create goal: %w", err)
		}
		*g = created

		claimed, err = claimSpan(ctx, q, created.UserID, created.Horizon())
		if err != nil {
			return err
		}

		// Goals born completed claim their span but pledge nothing.
		if created.Status == core.StatusCompleted {
			return nil
		}

		horizon := created.Horizon()
		for _, rng := range claimed {
			if !horizon.Contains(rng.Interval()) {
				continue
			}
			allocated, err := q.SumPercentageByRange(ctx, rng.ID)
			if err != nil {
				return fmt.Errorf("sum percentages for range %d: %w", rng.ID, err)
			}
			if _, err := addContribution(ctx, q, created, rng.ID, 100-allocated); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Goal created",
		"id", g.ID,
		"user_id", g.UserID,
		"name", g.Name,
		"horizon", g.Horizon().String(),
		"ranges", len(claimed))

	s.publishEvent(ctx, amqp.EventGoalCreated, *g)
	return claimed, nil
}

// SaveGoal normalizes and updates an existing goal. A transition into a
// terminal status publishes the matching lifecycle event.
func (s *GoalService) SaveGoal(ctx context.Context, g *core.Goal) error {
	if g.ID == 0 {
		return fmt.Errorf("save goal: %w: missing id", core.ErrValidation)
	}
	if err := g.NormalizeForSave(s.today()); err != nil {
		return fmt.Errorf("save goal: %w", err)
	}

	previous, err := s.storage.GetGoal(ctx, g.ID)
	if err != nil {
		return fmt.Errorf("save goal: %w", err)
	}
	if err := s.storage.UpdateGoal(ctx, *g); err != nil {
		return fmt.Errorf("save goal: %w", err)
	}

	slog.InfoContext(ctx, "Goal updated",
		"id", g.ID,
		"user_id", g.UserID,
		"status", string(g.Status))

	if previous.Status != g.Status {
		switch g.Status {
		case core.StatusCompleted:
			s.publishEvent(ctx, amqp.EventGoalCompleted, *g)
		case core.StatusFailed:
			s.publishEvent(ctx, amqp.EventGoalFailed, *g)
		}
	}
	return nil
}

// DeleteGoal removes a goal with its contributions, then sweeps away
// the user's ranges left with no contributions at all, so abandoned
// calendar cells don't pile up.
func (s *GoalService) DeleteGoal(ctx context.Context, goalID int64) error {
	goal, err := s.storage.GetGoal(ctx, goalID)
	if err != nil {
		return fmt.Errorf("delete goal: %w", err)
	}

	unlock := s.locks.Lock(goal.UserID)
	defer unlock()

	var swept int
	err = s.storage.InTx(ctx, func(q *storage.Queries) error {
		if err := q.DeleteGoal(ctx, goalID); err != nil {
			return fmt.Errorf("delete goal %d: %w", goalID, err)
		}

		orphans, err := q.GetRangesWithoutContributions(ctx, goal.UserID)
		if err != nil {
			return fmt.Errorf("find orphaned ranges: %w", err)
		}
		for _, rng := range orphans {
			if err := q.DeleteDateRange(ctx, rng.ID); err != nil {
				return fmt.Errorf("delete orphaned range %d: %w", rng.ID, err)
			}
		}
		swept = len(orphans)
		return nil
	})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "Goal deleted",
		"id", goalID,
		"user_id", goal.UserID,
		"orphaned_ranges", swept)

	s.publishEvent(ctx, amqp.EventGoalDeleted, goal)
	return nil
}

func (s *GoalService) publishEvent(ctx context.Context, event string, goal core.Goal) {
	if s.amqpClient == nil {
		slog.WarnContext(ctx, "AMQP client not available, skipping goal event",
			"event", event, "goal_id", goal.ID)
		return
	}

	if err := s.amqpClient.PublishGoalEvent(ctx, event, goal.ID, goal.UserID); err != nil {
		slog.ErrorContext(ctx, "Failed to publish goal event",
			"event", event,
			"goal_id", goal.ID,
			"error", err)
		// Don't fail the operation - the goal change is already committed
	}
}
