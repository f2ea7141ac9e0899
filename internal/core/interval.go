package core

import "sort"

// Interval is a contiguous span of days with both bounds inclusive.
// A single-day span (Start == End) is valid.
type Interval struct {
	Start Date
	End   Date
}

func NewInterval(start, end Date) Interval {
	return Interval{Start: start, End: end}
}

func (iv Interval) Validate() error {
	if iv.Start.IsZero() || iv.End.IsZero() {
		return ErrInvalidDate
	}
	if iv.Start.After(iv.End) {
		return ErrInvalidSpan
	}
	return nil
}

func (iv Interval) Equal(o Interval) bool {
	return iv.Start.Equal(o.Start) && iv.End.Equal(o.End)
}

func (iv Interval) String() string {
	return iv.Start.String() + ".." + iv.End.String()
}

// Days returns the span length in days, counting both ends.
func (iv Interval) Days() int {
	return int(iv.End.Sub(iv.Start.Time).Hours()/24) + 1
}

// Overlaps reports whether the two spans share at least one day.
func (iv Interval) Overlaps(o Interval) bool {
	return !iv.Start.After(o.End) && !o.Start.After(iv.End)
}

// Contains reports whether o lies entirely inside iv.
func (iv Interval) Contains(o Interval) bool {
	return !o.Start.Before(iv.Start) && !o.End.After(iv.End)
}

// Intersect returns the days shared by the two spans, if any.
func (iv Interval) Intersect(o Interval) (Interval, bool) {
	if !iv.Overlaps(o) {
		return Interval{}, false
	}
	return Interval{Start: maxDate(iv.Start, o.Start), End: minDate(iv.End, o.End)}, true
}

// LeftOf returns the part of iv that ends before span starts, if any.
func (iv Interval) LeftOf(span Interval) (Interval, bool) {
	if !iv.Start.Before(span.Start) {
		return Interval{}, false
	}
	return Interval{Start: iv.Start, End: minDate(iv.End, span.Start.AddDays(-1))}, true
}

// RightOf returns the part of iv that starts after span ends, if any.
func (iv Interval) RightOf(span Interval) (Interval, bool) {
	if !iv.End.After(span.End) {
		return Interval{}, false
	}
	return Interval{Start: maxDate(iv.Start, span.End.AddDays(1)), End: iv.End}, true
}

// FindGaps returns the sub-spans of span not covered by any of the given
// intervals, ordered by start date. The intervals must be pairwise
// disjoint; they may extend beyond span on either side.
func FindGaps(intervals []Interval, span Interval) []Interval {
	sorted := make([]Interval, len(intervals))
	copy(sorted, intervals)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Start.Before(sorted[j].Start)
	})

	var gaps []Interval
	cursor := span.Start
	for _, iv := range sorted {
		if iv.Start.After(cursor) {
			gaps = append(gaps, Interval{Start: cursor, End: iv.Start.AddDays(-1)})
		}
		cursor = iv.End.AddDays(1)
	}
	if !span.End.Before(cursor) {
		gaps = append(gaps, Interval{Start: cursor, End: span.End})
	}
	return gaps
}

func minDate(a, b Date) Date {
	if a.Before(b) {
		return a
	}
	return b
}

func maxDate(a, b Date) Date {
	if a.After(b) {
		return a
	}
	return b
}
