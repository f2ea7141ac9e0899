package services

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"goalpost/internal/core"
	"goalpost/internal/storage"
)

// newGoalService builds a goal service pinned to a fixed day so date
// normalization is deterministic.
func newGoalService(repo *storage.SQLiteRepository, locks *UserLocks, today core.Date) *GoalService {
	svc := NewGoalService(repo, locks, nil)
	svc.today = func() core.Date { return today }
	return svc
}

func TestCreateGoal_ClaimsHorizonAndPledgesFull(t *testing.T) {
	repo := newTestRepo(t)
	svc := newGoalService(repo, NewUserLocks(), date(2025, 1, 1))
	ctx := context.Background()

	goal := &core.Goal{
		UserID:                 "u1",
		Name:                   "emergency fund",
		Amount:                 decimal.NewFromInt(1000),
		ExpectedCompletionDate: date(2025, 3, 15),
	}
	claimed, err := svc.CreateGoal(ctx, goal)
	if err != nil {
		t.Fatalf("CreateGoal: %v", err)
	}

	if goal.ID == 0 {
		t.Error("goal did not get an id")
	}
	if !goal.StartDate.Equal(date(2025, 1, 1)) {
		t.Errorf("start date = %s, want snapped to 2025-01-01", goal.StartDate)
	}
	if !goal.ExpectedCompletionDate.Equal(date(2025, 3, 31)) {
		t.Errorf("completion date = %s, want snapped to 2025-03-31", goal.ExpectedCompletionDate)
	}
	if goal.Status != core.StatusInProgress {
		t.Errorf("status = %s, want defaulted to in_progress", goal.Status)
	}

	if len(claimed) != 1 {
		t.Fatalf("claimed %d ranges, want 1", len(claimed))
	}
	assertRangeBounds(t, claimed[0], date(2025, 1, 1), date(2025, 3, 31))

	contributions, err := repo.ContributionsByRange(ctx, claimed[0].ID)
	if err != nil {
		t.Fatalf("ContributionsByRange: %v", err)
	}
	if len(contributions) != 1 || contributions[0].GoalID != goal.ID || contributions[0].Percentage != 100 {
		t.Errorf("pledges = %+v, want one at 100%% for the new goal", contributions)
	}
}

// A new goal only pledges whatever headroom each range still has.
func TestCreateGoal_PledgesOnlyHeadroom(t *testing.T) {
	repo := newTestRepo(t)
	locks := NewUserLocks()
	ranges := NewRangeService(repo, locks)
	ledger := NewLedgerService(repo, locks)
	svc := newGoalService(repo, locks, date(2025, 1, 1))
	ctx := context.Background()

	g1 := seedGoal(t, repo, "u1", date(2025, 1, 1), date(2025, 3, 31))
	existing, err := ranges.ClaimSpan(ctx, "u1", span(date(2025, 1, 1), date(2025, 3, 31)))
	if err != nil {
		t.Fatalf("ClaimSpan: %v", err)
	}
	if _, err := ledger.Add(ctx, g1.ID, existing[0].ID, 60); err != nil {
		t.Fatalf("Add: %v", err)
	}

	g2 := &core.Goal{
		UserID:                 "u1",
		Name:                   "car repair",
		Amount:                 decimal.NewFromInt(500),
		ExpectedCompletionDate: date(2025, 3, 31),
	}
	claimed, err := svc.CreateGoal(ctx, g2)
	if err != nil {
		t.Fatalf("CreateGoal: %v", err)
	}
	if len(claimed) != 1 {
		t.Fatalf("claimed %d ranges, want 1", len(claimed))
	}

	byGoal := map[int64]int64{}
	contributions, err := repo.ContributionsByRange(ctx, claimed[0].ID)
	if err != nil {
		t.Fatalf("ContributionsByRange: %v", err)
	}
	for _, c := range contributions {
		byGoal[c.GoalID] = c.Percentage
	}
	if byGoal[g1.ID] != 60 || byGoal[g2.ID] != 40 {
		t.Errorf("pledges = %v, want g1:60 g2:40", byGoal)
	}
}

// With no headroom left the new goal still gets a pledge row, at zero
// percent, so the binding between goal and range exists.
func TestCreateGoal_ZeroHeadroomStillPledges(t *testing.T) {
	repo := newTestRepo(t)
	locks := NewUserLocks()
	ranges := NewRangeService(repo, locks)
	ledger := NewLedgerService(repo, locks)
	svc := newGoalService(repo, locks, date(2025, 1, 1))
	ctx := context.Background()

	g1 := seedGoal(t, repo, "u1", date(2025, 1, 1), date(2025, 1, 31))
	existing, err := ranges.ClaimSpan(ctx, "u1", span(date(2025, 1, 1), date(2025, 1, 31)))
	if err != nil {
		t.Fatalf("ClaimSpan: %v", err)
	}
	if _, err := ledger.Add(ctx, g1.ID, existing[0].ID, 100); err != nil {
		t.Fatalf("Add: %v", err)
	}

	g2 := &core.Goal{
		UserID:                 "u1",
		Name:                   "stretch goal",
		Amount:                 decimal.NewFromInt(200),
		ExpectedCompletionDate: date(2025, 1, 31),
	}
	claimed, err := svc.CreateGoal(ctx, g2)
	if err != nil {
		t.Fatalf("CreateGoal: %v", err)
	}

	contributions, err := repo.ContributionsByRange(ctx, claimed[0].ID)
	if err != nil {
		t.Fatalf("ContributionsByRange: %v", err)
	}
	var found bool
	for _, c := range contributions {
		if c.GoalID == g2.ID {
			found = true
			if c.Percentage != 0 {
				t.Errorf("g2 pledge = %d%%, want 0%%", c.Percentage)
			}
		}
	}
	if !found {
		t.Error("g2 got no pledge row at all")
	}
}

// A goal whose horizon reaches past the existing partition reshapes the
// covered part and claims fresh ranges for the rest.
func TestCreateGoal_ExtendsPartition(t *testing.T) {
	repo := newTestRepo(t)
	locks := NewUserLocks()
	ranges := NewRangeService(repo, locks)
	ledger := NewLedgerService(repo, locks)
	svc := newGoalService(repo, locks, date(2025, 1, 1))
	ctx := context.Background()

	g1 := seedGoal(t, repo, "u1", date(2025, 1, 1), date(2025, 1, 31))
	existing, err := ranges.ClaimSpan(ctx, "u1", span(date(2025, 1, 1), date(2025, 1, 31)))
	if err != nil {
		t.Fatalf("ClaimSpan: %v", err)
	}
	if _, err := ledger.Add(ctx, g1.ID, existing[0].ID, 100); err != nil {
		t.Fatalf("Add: %v", err)
	}

	g2 := &core.Goal{
		UserID:                 "u1",
		Name:                   "spring trip",
		Amount:                 decimal.NewFromInt(800),
		ExpectedCompletionDate: date(2025, 2, 28),
	}
	claimed, err := svc.CreateGoal(ctx, g2)
	if err != nil {
		t.Fatalf("CreateGoal: %v", err)
	}
	if len(claimed) != 2 {
		t.Fatalf("claimed %d ranges, want 2", len(claimed))
	}
	assertRangeBounds(t, claimed[0], date(2025, 1, 1), date(2025, 1, 31))
	assertRangeBounds(t, claimed[1], date(2025, 2, 1), date(2025, 2, 28))

	january, err := repo.SumPercentage(ctx, claimed[0].ID)
	if err != nil {
		t.Fatalf("SumPercentage: %v", err)
	}
	if january != 100 {
		t.Errorf("january pledges sum to %d%%, want 100%% (g1 migrated, g2 at zero)", january)
	}
	february, err := repo.ContributionsByRange(ctx, claimed[1].ID)
	if err != nil {
		t.Fatalf("ContributionsByRange: %v", err)
	}
	if len(february) != 1 || february[0].GoalID != g2.ID || february[0].Percentage != 100 {
		t.Errorf("february pledges = %+v, want g2 at 100%%", february)
	}
}

// Goals born completed still claim their span but pledge nothing.
func TestCreateGoal_CompletedPledgesNothing(t *testing.T) {
	repo := newTestRepo(t)
	svc := newGoalService(repo, NewUserLocks(), date(2025, 1, 10))
	ctx := context.Background()

	goal := &core.Goal{
		UserID:                 "u1",
		Name:                   "already saved",
		Amount:                 decimal.NewFromInt(100),
		Status:                 core.StatusCompleted,
		ExpectedCompletionDate: date(2025, 1, 31),
	}
	claimed, err := svc.CreateGoal(ctx, goal)
	if err != nil {
		t.Fatalf("CreateGoal: %v", err)
	}
	if !goal.ActualCompletionDate.Equal(date(2025, 1, 10)) {
		t.Errorf("actual completion = %s, want stamped today", goal.ActualCompletionDate)
	}
	if len(claimed) != 1 {
		t.Fatalf("claimed %d ranges, want 1", len(claimed))
	}

	contributions, err := repo.ContributionsByRange(ctx, claimed[0].ID)
	if err != nil {
		t.Fatalf("ContributionsByRange: %v", err)
	}
	if len(contributions) != 0 {
		t.Errorf("completed goal pledged %d contributions, want none", len(contributions))
	}
}

func TestCreateGoal_Validation(t *testing.T) {
	repo := newTestRepo(t)
	svc := newGoalService(repo, NewUserLocks(), date(2025, 6, 15))
	ctx := context.Background()

	tests := []struct {
		name    string
		goal    core.Goal
		wantErr error
	}{
		{
			"missing completion date",
			core.Goal{UserID: "u1", Name: "x", Amount: decimal.NewFromInt(10)},
			core.ErrInvalidDate,
		},
		{
			"completion in the past",
			core.Goal{UserID: "u1", Name: "x", Amount: decimal.NewFromInt(10), ExpectedCompletionDate: date(2025, 5, 31)},
			core.ErrPastCompletion,
		},
		{
			"recurring without frequency",
			core.Goal{UserID: "u1", Name: "x", Amount: decimal.NewFromInt(10), Recurrence: core.RecurrenceFixed, ExpectedCompletionDate: date(2025, 6, 30)},
			core.ErrMissingFrequency,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := tt.goal
			if _, err := svc.CreateGoal(ctx, &g); !errors.Is(err, tt.wantErr) {
				t.Errorf("CreateGoal error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSaveGoal_RequiresID(t *testing.T) {
	repo := newTestRepo(t)
	svc := newGoalService(repo, NewUserLocks(), date(2025, 1, 1))

	g := core.Goal{UserID: "u1", Name: "x", Amount: decimal.NewFromInt(10), ExpectedCompletionDate: date(2025, 1, 31)}
	if err := svc.SaveGoal(context.Background(), &g); !errors.Is(err, core.ErrValidation) {
		t.Errorf("SaveGoal error = %v, want a validation error", err)
	}
}

func TestSaveGoal_UpdatesRow(t *testing.T) {
	repo := newTestRepo(t)
	svc := newGoalService(repo, NewUserLocks(), date(2025, 1, 1))
	ctx := context.Background()

	goal := &core.Goal{
		UserID:                 "u1",
		Name:                   "emergency fund",
		Amount:                 decimal.NewFromInt(1000),
		ExpectedCompletionDate: date(2025, 3, 31),
	}
	if _, err := svc.CreateGoal(ctx, goal); err != nil {
		t.Fatalf("CreateGoal: %v", err)
	}

	goal.Name = "bigger emergency fund"
	goal.Amount = decimal.NewFromInt(2000)
	goal.Status = core.StatusCompleted
	if err := svc.SaveGoal(ctx, goal); err != nil {
		t.Fatalf("SaveGoal: %v", err)
	}

	stored, err := repo.GetGoal(ctx, goal.ID)
	if err != nil {
		t.Fatalf("GetGoal: %v", err)
	}
	if stored.Name != "bigger emergency fund" {
		t.Errorf("name = %q, want updated", stored.Name)
	}
	if !stored.Amount.Equal(decimal.NewFromInt(2000)) {
		t.Errorf("amount = %s, want 2000", stored.Amount)
	}
	if stored.Status != core.StatusCompleted {
		t.Errorf("status = %s, want completed", stored.Status)
	}
	if !stored.ActualCompletionDate.Equal(date(2025, 1, 1)) {
		t.Errorf("actual completion = %s, want stamped today", stored.ActualCompletionDate)
	}
}

// Deleting a goal cascades to its pledges and sweeps ranges that end up
// with no pledges from anyone.
func TestDeleteGoal_SweepsOrphanedRanges(t *testing.T) {
	repo := newTestRepo(t)
	svc := newGoalService(repo, NewUserLocks(), date(2025, 1, 1))
	ctx := context.Background()

	goal := &core.Goal{
		UserID:                 "u1",
		Name:                   "short lived",
		Amount:                 decimal.NewFromInt(100),
		ExpectedCompletionDate: date(2025, 1, 31),
	}
	if _, err := svc.CreateGoal(ctx, goal); err != nil {
		t.Fatalf("CreateGoal: %v", err)
	}

	if err := svc.DeleteGoal(ctx, goal.ID); err != nil {
		t.Fatalf("DeleteGoal: %v", err)
	}

	remaining, err := repo.UserRanges(ctx, "u1")
	if err != nil {
		t.Fatalf("UserRanges: %v", err)
	}
	if len(remaining) != 0 {
		t.Errorf("%d ranges survive the sweep, want 0", len(remaining))
	}
}

// Ranges still pledged to another goal survive the sweep.
func TestDeleteGoal_KeepsSharedRanges(t *testing.T) {
	repo := newTestRepo(t)
	locks := NewUserLocks()
	svc := newGoalService(repo, locks, date(2025, 1, 1))
	ctx := context.Background()

	g1 := &core.Goal{UserID: "u1", Name: "first", Amount: decimal.NewFromInt(100), ExpectedCompletionDate: date(2025, 1, 31)}
	if _, err := svc.CreateGoal(ctx, g1); err != nil {
		t.Fatalf("CreateGoal g1: %v", err)
	}
	g2 := &core.Goal{UserID: "u1", Name: "second", Amount: decimal.NewFromInt(100), ExpectedCompletionDate: date(2025, 1, 31)}
	if _, err := svc.CreateGoal(ctx, g2); err != nil {
		t.Fatalf("CreateGoal g2: %v", err)
	}

	if err := svc.DeleteGoal(ctx, g1.ID); err != nil {
		t.Fatalf("DeleteGoal g1: %v", err)
	}
	remaining, err := repo.UserRanges(ctx, "u1")
	if err != nil {
		t.Fatalf("UserRanges: %v", err)
	}
	if len(remaining) != 1 {
		t.Fatalf("%d ranges after first delete, want g2's range kept", len(remaining))
	}

	if err := svc.DeleteGoal(ctx, g2.ID); err != nil {
		t.Fatalf("DeleteGoal g2: %v", err)
	}
	remaining, err = repo.UserRanges(ctx, "u1")
	if err != nil {
		t.Fatalf("UserRanges: %v", err)
	}
	if len(remaining) != 0 {
		t.Errorf("%d ranges after second delete, want 0", len(remaining))
	}
}

func TestDeleteGoal_Missing(t *testing.T) {
	repo := newTestRepo(t)
	svc := newGoalService(repo, NewUserLocks(), date(2025, 1, 1))

	err := svc.DeleteGoal(context.Background(), 9999)
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("DeleteGoal error = %v, want wrapped sql.ErrNoRows", err)
	}
}
