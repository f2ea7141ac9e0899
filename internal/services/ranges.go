package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"goalpost/internal/core"
	"goalpost/internal/storage"
)

// RangeService owns the partition of each user's calendar into
// non-overlapping date ranges.
type RangeService struct {
	storage *storage.SQLiteRepository
	locks   *UserLocks
}

func NewRangeService(storage *storage.SQLiteRepository, locks *UserLocks) *RangeService {
	return &RangeService{
		storage: storage,
		locks:   locks,
	}
}

// ClaimSpan makes the span fully covered by ranges for the user and
// returns the ranges lying inside it, ordered by start date. Existing
// ranges sticking out past the span edges are split in place; their
// contributions follow every part, so no pledged percentage is lost.
// Stretches no range covers are filled with fresh empty ranges. The
// whole reshape happens under the user's lock in one transaction.
func (s *RangeService) ClaimSpan(ctx context.Context, userID string, span core.Interval) ([]core.DateRange, error) {
	if userID == "" {
		return nil, fmt.Errorf("claim span: %w", core.ErrEmptyUser)
	}
	if err := span.Validate(); err != nil {
		return nil, fmt.Errorf("claim span: %w", err)
	}

	unlock := s.locks.Lock(userID)
	defer unlock()

	var claimed []core.DateRange
	err := s.storage.InTx(ctx, func(q *storage.Queries) error {
		var err error
		claimed, err = claimSpan(ctx, q, userID, span)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("claim span %s for user %s: %w", span, userID, err)
	}

	slog.InfoContext(ctx, "Span claimed",
		"user_id", userID,
		"span", span.String(),
		"ranges", len(claimed))

	return claimed, nil
}

func claimSpan(ctx context.Context, q *storage.Queries, userID string, span core.Interval) ([]core.DateRange, error) {
	overlapping, err := q.GetOverlappingRanges(ctx, storage.GetOverlappingRangesParams{
		UserID:    userID,
		StartDate: span.Start,
		EndDate:   span.End,
	})
	if err != nil {
		return nil, fmt.Errorf("get overlapping ranges: %w", err)
	}

	if len(overlapping) == 0 {
		created, err := q.CreateDateRange(ctx, storage.CreateDateRangeParams{
			UserID:    userID,
			StartDate: span.Start,
			EndDate:   span.End,
		})
		if err != nil {
			return nil, fmt.Errorf("create range: %w", err)
		}
		return []core.DateRange{created}, nil
	}

	claimed := make([]core.DateRange, 0, len(overlapping)+1)
	covered := make([]core.Interval, 0, len(overlapping))
	for _, old := range overlapping {
		middle, err := splitRange(ctx, q, old, span)
		if err != nil {
			return nil, err
		}
		claimed = append(claimed, middle)
		covered = append(covered, middle.Interval())
	}

	for _, gap := range core.FindGaps(covered, span) {
		filled, err := q.CreateDateRange(ctx, storage.CreateDateRangeParams{
			UserID:    userID,
			StartDate: gap.Start,
			EndDate:   gap.End,
		})
		if err != nil {
			return nil, fmt.Errorf("fill gap %s: %w", gap, err)
		}
		claimed = append(claimed, filled)
	}

	sort.Slice(claimed, func(i, j int) bool {
		return claimed[i].StartDate.Before(claimed[j].StartDate)
	})
	return claimed, nil
}

// splitRange replaces one range intersecting the claim with up to three
// parts: the stretch before the claim, the middle inside it, and the
// stretch after. The range's contributions are snapshotted first and
// re-created on every part, keeping each goal's pledge intact across
// the cut. Frozen amounts are not carried over; a reshaped span covers
// different days, so its value computes live until the next freeze.
// Returns the middle part.
func splitRange(ctx context.Context, q *storage.Queries, old core.DateRange, claim core.Interval) (core.DateRange, error) {
	snapshot, err := q.GetContributionsByRange(ctx, old.ID)
	if err != nil {
		return core.DateRange{}, fmt.Errorf("snapshot contributions for range %d: %w", old.ID, err)
	}

	if err := q.DeleteContributionsByRange(ctx, old.ID); err != nil {
		return core.DateRange{}, fmt.Errorf("delete contributions for range %d: %w", old.ID, err)
	}
	if err := q.DeleteDateRange(ctx, old.ID); err != nil {
		return core.DateRange{}, fmt.Errorf("delete range %d: %w", old.ID, err)
	}

	recreate := func(part core.Interval) (core.DateRange, error) {
		created, err := q.CreateDateRange(ctx, storage.CreateDateRangeParams{
			UserID:    old.UserID,
			StartDate: part.Start,
			EndDate:   part.End,
		})
		if err != nil {
			return core.DateRange{}, fmt.Errorf("recreate range %s: %w", part, err)
		}
		for _, c := range snapshot {
			_, err := q.CreateContribution(ctx, storage.CreateContributionParams{
				GoalID:      c.GoalID,
				DateRangeID: created.ID,
				Percentage:  c.Percentage,
			})
			if err != nil {
				return core.DateRange{}, fmt.Errorf("recreate contribution for goal %d on range %d: %w", c.GoalID, created.ID, err)
			}
		}
		return created, nil
	}

	span := old.Interval()
	if left, ok := span.LeftOf(claim); ok {
		if _, err := recreate(left); err != nil {
			return core.DateRange{}, err
		}
	}

	middle, ok := span.Intersect(claim)
	if !ok {
		// cannot happen: old came from the overlap query
		return core.DateRange{}, fmt.Errorf("range %d does not intersect claim %s", old.ID, claim)
	}
	created, err := recreate(middle)
	if err != nil {
		return core.DateRange{}, err
	}

	if right, ok := span.RightOf(claim); ok {
		if _, err := recreate(right); err != nil {
			return core.DateRange{}, err
		}
	}

	return created, nil
}
