package core

import (
	"errors"
	"testing"
)

func span(y1, m1, d1, y2, m2, d2 int) Interval {
	return NewInterval(NewDate(y1, m1, d1), NewDate(y2, m2, d2))
}

func TestIntervalValidate(t *testing.T) {
	if err := span(2025, 1, 1, 2025, 1, 31).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	// single-day spans are legal
	if err := span(2025, 1, 1, 2025, 1, 1).Validate(); err != nil {
		t.Fatalf("expected ok for single day, got %v", err)
	}
	err := span(2025, 2, 1, 2025, 1, 1).Validate()
	if !errors.Is(err, ErrInvalidSpan) {
		t.Fatalf("expected ErrInvalidSpan, got %v", err)
	}
	if err := (Interval{}).Validate(); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
}

func TestOverlaps(t *testing.T) {
	base := span(2025, 2, 1, 2025, 2, 28)
	cases := []struct {
		name string
		o    Interval
		want bool
	}{
		{"starts inside", span(2025, 2, 15, 2025, 3, 15), true},
		{"ends inside", span(2025, 1, 15, 2025, 2, 15), true},
		{"contains", span(2025, 1, 1, 2025, 3, 31), true},
		{"contained", span(2025, 2, 10, 2025, 2, 20), true},
		{"identical", span(2025, 2, 1, 2025, 2, 28), true},
		{"shares single day", span(2025, 2, 28, 2025, 3, 31), true},
		{"adjacent before", span(2025, 1, 1, 2025, 1, 31), false},
		{"adjacent after", span(2025, 3, 1, 2025, 3, 31), false},
		{"disjoint", span(2025, 6, 1, 2025, 6, 30), false},
	}
	for _, tc := range cases {
		if got := base.Overlaps(tc.o); got != tc.want {
			t.Fatalf("%s: Overlaps = %v, want %v", tc.name, got, tc.want)
		}
		// symmetry
		if got := tc.o.Overlaps(base); got != tc.want {
			t.Fatalf("%s: reverse Overlaps = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestIntersect(t *testing.T) {
	r := span(2025, 1, 1, 2025, 3, 31)
	claim := span(2025, 2, 1, 2025, 2, 28)

	got, ok := r.Intersect(claim)
	if !ok {
		t.Fatalf("expected intersection")
	}
	if !got.Start.Equal(NewDate(2025, 2, 1)) || !got.End.Equal(NewDate(2025, 2, 28)) {
		t.Fatalf("wrong intersection: %s", got)
	}

	if _, ok := span(2025, 1, 1, 2025, 1, 31).Intersect(span(2025, 2, 1, 2025, 2, 28)); ok {
		t.Fatalf("expected no intersection for adjacent spans")
	}
}

func TestLeftOfRightOf(t *testing.T) {
	claim := span(2025, 2, 1, 2025, 2, 28)

	r := span(2025, 1, 1, 2025, 3, 31)
	left, ok := r.LeftOf(claim)
	if !ok || !left.Start.Equal(NewDate(2025, 1, 1)) || !left.End.Equal(NewDate(2025, 1, 31)) {
		t.Fatalf("wrong left part: %v %v", left, ok)
	}
	right, ok := r.RightOf(claim)
	if !ok || !right.Start.Equal(NewDate(2025, 3, 1)) || !right.End.Equal(NewDate(2025, 3, 31)) {
		t.Fatalf("wrong right part: %v %v", right, ok)
	}

	// exact cover leaves no leftovers
	same := span(2025, 2, 1, 2025, 2, 28)
	if _, ok := same.LeftOf(claim); ok {
		t.Fatalf("expected no left part")
	}
	if _, ok := same.RightOf(claim); ok {
		t.Fatalf("expected no right part")
	}

	// contained range has neither side
	inner := span(2025, 2, 10, 2025, 2, 20)
	if _, ok := inner.LeftOf(claim); ok {
		t.Fatalf("expected no left part for contained range")
	}
	if _, ok := inner.RightOf(claim); ok {
		t.Fatalf("expected no right part for contained range")
	}
}

func TestFindGaps(t *testing.T) {
	full := span(2025, 1, 1, 2025, 3, 31)
	cases := []struct {
		name  string
		given []Interval
		span  Interval
		want  []Interval
	}{
		{
			name:  "nothing covered",
			given: nil,
			span:  full,
			want:  []Interval{full},
		},
		{
			name:  "gap in the middle",
			given: []Interval{span(2025, 1, 1, 2025, 1, 31), span(2025, 3, 1, 2025, 3, 31)},
			span:  full,
			want:  []Interval{span(2025, 2, 1, 2025, 2, 28)},
		},
		{
			name:  "leading and trailing gaps",
			given: []Interval{span(2025, 2, 1, 2025, 2, 28)},
			span:  full,
			want:  []Interval{span(2025, 1, 1, 2025, 1, 31), span(2025, 3, 1, 2025, 3, 31)},
		},
		{
			name:  "fully covered",
			given: []Interval{full},
			span:  full,
			want:  nil,
		},
		{
			name:  "unsorted input",
			given: []Interval{span(2025, 3, 1, 2025, 3, 31), span(2025, 1, 1, 2025, 1, 31)},
			span:  full,
			want:  []Interval{span(2025, 2, 1, 2025, 2, 28)},
		},
		{
			name:  "single day gap",
			given: []Interval{span(2025, 1, 1, 2025, 1, 30)},
			span:  span(2025, 1, 1, 2025, 1, 31),
			want:  []Interval{span(2025, 1, 31, 2025, 1, 31)},
		},
	}
	for _, tc := range cases {
		got := FindGaps(tc.given, tc.span)
		if len(got) != len(tc.want) {
			t.Fatalf("%s: got %d gaps, want %d (%v)", tc.name, len(got), len(tc.want), got)
		}
		for i := range got {
			if !got[i].Start.Equal(tc.want[i].Start) || !got[i].End.Equal(tc.want[i].End) {
				t.Fatalf("%s: gap %d = %s, want %s", tc.name, i, got[i], tc.want[i])
			}
		}
	}
}

func TestIntervalDays(t *testing.T) {
	cases := []struct {
		iv   Interval
		want int
	}{
		{span(2025, 1, 1, 2025, 1, 1), 1},
		{span(2025, 1, 1, 2025, 1, 31), 31},
		{span(2024, 2, 1, 2024, 2, 29), 29},
		{span(2025, 1, 1, 2025, 12, 31), 365},
	}
	for i, tc := range cases {
		if got := tc.iv.Days(); got != tc.want {
			t.Fatalf("case %d: Days = %d, want %d", i, got, tc.want)
		}
	}
}
