package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"goalpost/internal/amqp"
	"goalpost/internal/core"
	"goalpost/internal/storage"
)

// EventWorker reacts to AMQP messages: goal lifecycle events become
// export queue entries, recorded transactions land in the local ledger
// read model.
type EventWorker struct {
	storage *storage.SQLiteRepository
}

func NewEventWorker(storage *storage.SQLiteRepository) *EventWorker {
	return &EventWorker{storage: storage}
}

// HandleGoalEvent processes a single goal event message from AMQP
func (w *EventWorker) HandleGoalEvent(ctx context.Context, msg *amqp.GoalEventMessage) error {
	slog.InfoContext(ctx, "Processing goal event",
		"event", msg.Event,
		"goal_id", msg.GoalID,
		"user_id", msg.UserID)

	switch msg.Event {
	case amqp.EventGoalCreated, amqp.EventGoalCompleted, amqp.EventGoalFailed:
		if _, err := w.storage.EnqueueExport(ctx, msg.GoalID, "progress"); err != nil {
			return fmt.Errorf("enqueue export for goal %d: %w", msg.GoalID, err)
		}
	case amqp.EventGoalDeleted:
		// A deleted goal has no progress left to export.
		slog.InfoContext(ctx, "Goal deleted, no export queued", "goal_id", msg.GoalID)
	default:
		// Unknown event types are dropped rather than requeued forever.
		slog.WarnContext(ctx, "Unknown goal event, dropping",
			"event", msg.Event, "goal_id", msg.GoalID)
	}

	return nil
}

// HandleTransactionRecorded inserts one transaction into the read model.
func (w *EventWorker) HandleTransactionRecorded(ctx context.Context, msg *amqp.TransactionRecordedMessage) error {
	occurredOn, err := core.ParseDate(msg.OccurredOn)
	if err != nil {
		// Malformed dates never parse on retry; drop the message.
		slog.ErrorContext(ctx, "Transaction message has invalid date, dropping",
			"event_id", msg.EventID,
			"occurred_on", msg.OccurredOn,
			"error", err)
		return nil
	}

	tx := core.Transaction{
		UserID:      msg.UserID,
		AmountCents: msg.AmountCents,
		Income:      msg.Income,
		OccurredOn:  occurredOn,
	}

	recorded, err := w.storage.RecordTransaction(ctx, tx)
	if err != nil {
		if errors.Is(err, core.ErrValidation) {
			slog.ErrorContext(ctx, "Transaction message failed validation, dropping",
				"event_id", msg.EventID,
				"user_id", msg.UserID,
				"error", err)
			return nil
		}
		return fmt.Errorf("record transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction recorded",
		"id", recorded.ID,
		"user_id", recorded.UserID,
		"amount_cents", recorded.AmountCents,
		"income", recorded.Income,
		"occurred_on", recorded.OccurredOn.String())

	return nil
}

// StartupExportCheck queues a fresh progress export for every active
// goal. Run once when the worker boots to recover from missed events
// or worker downtime.
func (w *EventWorker) StartupExportCheck(ctx context.Context) error {
	goals, err := w.storage.ActiveGoals(ctx)
	if err != nil {
		return fmt.Errorf("get active goals for startup check: %w", err)
	}

	if len(goals) == 0 {
		slog.InfoContext(ctx, "No active goals found on startup")
		return nil
	}

	queued := 0
	for _, g := range goals {
		if _, err := w.storage.EnqueueExport(ctx, g.ID, "progress"); err != nil {
			slog.ErrorContext(ctx, "Failed to queue startup export",
				"goal_id", g.ID, "error", err)
			continue
		}
		queued++
	}

	slog.InfoContext(ctx, "Startup export check completed",
		"total", len(goals),
		"queued", queued)

	return nil
}
