package core

import (
	"testing"
)

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2025-02-28")
	if err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if d.Year() != 2025 || d.Month() != 2 || d.Day() != 28 {
		t.Fatalf("parsed wrong date: %s", d)
	}
	if d.String() != "2025-02-28" {
		t.Fatalf("round trip mismatch: %s", d)
	}

	for _, bad := range []string{"", "2025-13-01", "28/02/2025", "2025-02-30"} {
		if _, err := ParseDate(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestAddMonthsClampsDay(t *testing.T) {
	cases := []struct {
		d    Date
		n    int
		want Date
	}{
		{NewDate(2025, 1, 31), 1, NewDate(2025, 2, 28)},
		{NewDate(2024, 1, 31), 1, NewDate(2024, 2, 29)}, // leap year
		{NewDate(2025, 3, 31), -1, NewDate(2025, 2, 28)},
		{NewDate(2025, 12, 15), 1, NewDate(2026, 1, 15)},
		{NewDate(2025, 1, 15), -1, NewDate(2024, 12, 15)},
		{NewDate(2025, 1, 31), 13, NewDate(2026, 2, 28)},
		{NewDate(2025, 5, 31), -3, NewDate(2025, 2, 28)},
		{NewDate(2025, 6, 10), 0, NewDate(2025, 6, 10)},
		{NewDate(2025, 1, 1), -13, NewDate(2023, 12, 1)},
	}
	for i, tc := range cases {
		got := tc.d.AddMonths(tc.n)
		if !got.Equal(tc.want) {
			t.Fatalf("case %d: %s + %d months = %s, want %s", i, tc.d, tc.n, got, tc.want)
		}
	}
}

func TestMonthsBetween(t *testing.T) {
	cases := []struct {
		a, b Date
		want int
	}{
		{NewDate(2025, 6, 1), NewDate(2025, 6, 30), 0},  // days ignored
		{NewDate(2025, 1, 1), NewDate(2024, 12, 31), 1}, // year boundary
		{NewDate(2025, 3, 5), NewDate(2025, 1, 20), 2},
		{NewDate(2024, 11, 1), NewDate(2025, 2, 1), -3},
		{NewDate(2026, 1, 15), NewDate(2025, 1, 15), 12},
	}
	for i, tc := range cases {
		if got := MonthsBetween(tc.a, tc.b); got != tc.want {
			t.Fatalf("case %d: MonthsBetween(%s, %s) = %d, want %d", i, tc.a, tc.b, got, tc.want)
		}
	}
}

func TestMonthSnapping(t *testing.T) {
	cases := []struct {
		d         Date
		wantFirst Date
		wantLast  Date
	}{
		{NewDate(2025, 6, 15), NewDate(2025, 6, 1), NewDate(2025, 6, 30)},
		{NewDate(2024, 2, 10), NewDate(2024, 2, 1), NewDate(2024, 2, 29)},
		{NewDate(2025, 2, 1), NewDate(2025, 2, 1), NewDate(2025, 2, 28)},
		{NewDate(2025, 12, 31), NewDate(2025, 12, 1), NewDate(2025, 12, 31)},
	}
	for i, tc := range cases {
		if got := tc.d.FirstOfMonth(); !got.Equal(tc.wantFirst) {
			t.Fatalf("case %d: first of month = %s, want %s", i, got, tc.wantFirst)
		}
		if got := tc.d.LastOfMonth(); !got.Equal(tc.wantLast) {
			t.Fatalf("case %d: last of month = %s, want %s", i, got, tc.wantLast)
		}
	}
}

func TestAddDays(t *testing.T) {
	d := NewDate(2025, 2, 28)
	if got := d.AddDays(1); !got.Equal(NewDate(2025, 3, 1)) {
		t.Fatalf("expected 2025-03-01, got %s", got)
	}
	if got := d.AddDays(-28); !got.Equal(NewDate(2025, 1, 31)) {
		t.Fatalf("expected 2025-01-31, got %s", got)
	}
}
