package services

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"goalpost/internal/core"
	"goalpost/internal/storage"
)

func newProgress(repo *storage.SQLiteRepository, locks *UserLocks) *ProgressService {
	return NewProgressService(repo, NewLedgerService(repo, locks))
}

// Progress sums every pledge of the goal, live values and frozen
// amounts alike.
func TestProgress_SumsAllContributions(t *testing.T) {
	repo := newTestRepo(t)
	locks := NewUserLocks()
	ledger := NewLedgerService(repo, locks)
	progress := newProgress(repo, locks)
	ctx := context.Background()

	goal := seedGoal(t, repo, "u1", date(2025, 1, 1), date(2025, 2, 28))
	jan, err := repo.InsertRange(ctx, "u1", span(date(2025, 1, 1), date(2025, 1, 31)))
	if err != nil {
		t.Fatalf("InsertRange: %v", err)
	}
	feb, err := repo.InsertRange(ctx, "u1", span(date(2025, 2, 1), date(2025, 2, 28)))
	if err != nil {
		t.Fatalf("InsertRange: %v", err)
	}
	frozen, err := ledger.Add(ctx, goal.ID, jan.ID, 50)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := ledger.Add(ctx, goal.ID, feb.ID, 25); err != nil {
		t.Fatalf("Add: %v", err)
	}

	// January is frozen at 100.00; February computes live from net 200.00.
	if err := repo.FreezeContribution(ctx, frozen.ID, decimal.RequireFromString("100.00")); err != nil {
		t.Fatalf("FreezeContribution: %v", err)
	}
	seedTransaction(t, repo, "u1", 30000, true, date(2025, 2, 10))
	seedTransaction(t, repo, "u1", 10000, false, date(2025, 2, 20))

	got, err := progress.Progress(ctx, goal)
	if err != nil {
		t.Fatalf("Progress: %v", err)
	}
	if want := decimal.RequireFromString("150"); !got.Equal(want) {
		t.Errorf("Progress = %s, want %s", got, want)
	}
}

func TestProgress_NoContributions(t *testing.T) {
	repo := newTestRepo(t)
	progress := newProgress(repo, NewUserLocks())
	ctx := context.Background()

	goal := seedGoal(t, repo, "u1", date(2025, 1, 1), date(2025, 1, 31))
	got, err := progress.Progress(ctx, goal)
	if err != nil {
		t.Fatalf("Progress: %v", err)
	}
	if !got.IsZero() {
		t.Errorf("Progress = %s, want 0", got)
	}
}

// Overspent ranges drag the total below zero; nothing clamps it.
func TestProgress_Negative(t *testing.T) {
	repo := newTestRepo(t)
	locks := NewUserLocks()
	ledger := NewLedgerService(repo, locks)
	progress := newProgress(repo, locks)
	ctx := context.Background()

	goal := seedGoal(t, repo, "u1", date(2025, 1, 1), date(2025, 1, 31))
	rng, err := repo.InsertRange(ctx, "u1", span(date(2025, 1, 1), date(2025, 1, 31)))
	if err != nil {
		t.Fatalf("InsertRange: %v", err)
	}
	if _, err := ledger.Add(ctx, goal.ID, rng.ID, 100); err != nil {
		t.Fatalf("Add: %v", err)
	}
	seedTransaction(t, repo, "u1", 25000, false, date(2025, 1, 15))

	got, err := progress.Progress(ctx, goal)
	if err != nil {
		t.Fatalf("Progress: %v", err)
	}
	if want := decimal.RequireFromString("-250"); !got.Equal(want) {
		t.Errorf("Progress = %s, want %s", got, want)
	}
}

func TestProgressPercent(t *testing.T) {
	repo := newTestRepo(t)
	locks := NewUserLocks()
	ledger := NewLedgerService(repo, locks)
	progress := newProgress(repo, locks)
	ctx := context.Background()

	goal := seedGoal(t, repo, "u1", date(2025, 1, 1), date(2025, 1, 31))
	rng, err := repo.InsertRange(ctx, "u1", span(date(2025, 1, 1), date(2025, 1, 31)))
	if err != nil {
		t.Fatalf("InsertRange: %v", err)
	}
	if _, err := ledger.Add(ctx, goal.ID, rng.ID, 50); err != nil {
		t.Fatalf("Add: %v", err)
	}

	tests := []struct {
		name     string
		netCents int64
		income   bool
		want     string
	}{
		{"half way", 100000, true, "50"},     // 500 of 1000
		{"over target", 120000, true, "110"}, // another 1200 net on top
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seedTransaction(t, repo, "u1", tt.netCents, tt.income, date(2025, 1, 15))
			got, err := progress.ProgressPercent(ctx, goal)
			if err != nil {
				t.Fatalf("ProgressPercent: %v", err)
			}
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("ProgressPercent = %s, want %s", got, tt.want)
			}
		})
	}
}

// Progress is recomputed on every call: new transactions move it with
// no cross-call caching in between.
func TestProgress_AlwaysRecomputed(t *testing.T) {
	repo := newTestRepo(t)
	locks := NewUserLocks()
	ledger := NewLedgerService(repo, locks)
	progress := newProgress(repo, locks)
	ctx := context.Background()

	goal := seedGoal(t, repo, "u1", date(2025, 1, 1), date(2025, 1, 31))
	rng, err := repo.InsertRange(ctx, "u1", span(date(2025, 1, 1), date(2025, 1, 31)))
	if err != nil {
		t.Fatalf("InsertRange: %v", err)
	}
	if _, err := ledger.Add(ctx, goal.ID, rng.ID, 100); err != nil {
		t.Fatalf("Add: %v", err)
	}

	before, err := progress.Progress(ctx, goal)
	if err != nil {
		t.Fatalf("Progress: %v", err)
	}
	if !before.IsZero() {
		t.Fatalf("Progress before transactions = %s, want 0", before)
	}

	seedTransaction(t, repo, "u1", 12345, true, date(2025, 1, 10))

	after, err := progress.Progress(ctx, goal)
	if err != nil {
		t.Fatalf("Progress: %v", err)
	}
	if want := decimal.RequireFromString("123.45"); !after.Equal(want) {
		t.Errorf("Progress after transaction = %s, want %s", after, want)
	}
}

func TestReport(t *testing.T) {
	repo := newTestRepo(t)
	locks := NewUserLocks()
	ledger := NewLedgerService(repo, locks)
	progress := newProgress(repo, locks)
	ctx := context.Background()

	goal := seedGoal(t, repo, "u1", date(2025, 1, 1), date(2025, 1, 31))
	rng, err := repo.InsertRange(ctx, "u1", span(date(2025, 1, 1), date(2025, 1, 31)))
	if err != nil {
		t.Fatalf("InsertRange: %v", err)
	}
	if _, err := ledger.Add(ctx, goal.ID, rng.ID, 50); err != nil {
		t.Fatalf("Add: %v", err)
	}
	seedTransaction(t, repo, "u1", 100000, true, date(2025, 1, 15))

	asOf := date(2025, 2, 1)
	report, err := progress.Report(ctx, goal, asOf)
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if report.GoalID != goal.ID || report.UserID != "u1" || report.Name != goal.Name {
		t.Errorf("report identity = %+v", report)
	}
	if report.Status != core.StatusInProgress {
		t.Errorf("report status = %s", report.Status)
	}
	if !report.Target.Equal(goal.Amount) {
		t.Errorf("report target = %s, want %s", report.Target, goal.Amount)
	}
	if !report.Contributed.Equal(decimal.RequireFromString("500")) {
		t.Errorf("report contributed = %s, want 500", report.Contributed)
	}
	if !report.Percent.Equal(decimal.NewFromInt(50)) {
		t.Errorf("report percent = %s, want 50", report.Percent)
	}
	if !report.AsOf.Equal(asOf) {
		t.Errorf("report as-of = %s, want %s", report.AsOf, asOf)
	}
}
