// Package core defines the goal domain: calendar dates, inclusive day
// intervals, goals, date ranges and the contributions that tie them together.
package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	TypeSavings    GoalType = "savings"
	TypeDebt       GoalType = "debt"
	TypeInvestment GoalType = "investment"
)

const (
	StatusPending    GoalStatus = "pending"
	StatusInProgress GoalStatus = "in_progress"
	StatusCompleted  GoalStatus = "completed"
	StatusFailed     GoalStatus = "failed"
)

const (
	RecurrenceNone       Recurrence = "none"
	RecurrenceFixed      Recurrence = "fixed"
	RecurrenceIndefinite Recurrence = "indefinite"
)

type (
	GoalType   string
	GoalStatus string
	Recurrence string

	// Goal is a savings, debt or investment target over a date horizon.
	// PreviousGoalID links a recurrence successor back to its source; zero
	// means the goal is not a rollover.
	Goal struct {
		ID                     int64
		UserID                 string
		Name                   string
		Amount                 decimal.Decimal
		Type                   GoalType
		Status                 GoalStatus
		StartDate              Date
		ExpectedCompletionDate Date
		ActualCompletionDate   Date // zero unless Status is completed
		Recurrence             Recurrence
		FrequencyMonths        int // months between rollovers, 0 when none
		PreviousGoalID         int64
	}

	// DateRange is one cell of a user's partition of calendar time.
	// Bounds are inclusive; ranges of the same user never overlap.
	DateRange struct {
		ID        int64
		UserID    string
		StartDate Date
		EndDate   Date
	}

	// Contribution pledges a percentage of net savings over one range to
	// one goal. Amount is the frozen value once the range's period has
	// closed; while invalid, the amount is computed live.
	Contribution struct {
		ID          int64
		GoalID      int64
		DateRangeID int64
		Percentage  int64
		Amount      decimal.NullDecimal
	}

	// Transaction is one row of the locally maintained read model of the
	// external transaction source. Amounts are positive magnitudes; the
	// Income flag gives the sign.
	Transaction struct {
		ID          int64
		UserID      string
		AmountCents int64
		Income      bool
		OccurredOn  Date
	}
)

// ErrValidation is the root of the validation taxonomy. Every sentinel
// below wraps it, so errors.Is(err, ErrValidation) holds for all of them.
var ErrValidation = errors.New("validation error")

var (
	ErrInvalidDate       = fmt.Errorf("%w: date not set", ErrValidation)
	ErrInvalidSpan       = fmt.Errorf("%w: span start after end", ErrValidation)
	ErrRangeOverlap      = fmt.Errorf("%w: span overlaps an existing range", ErrValidation)
	ErrInvalidPercent    = fmt.Errorf("%w: percentage outside 0-100", ErrValidation)
	ErrPercentOverflow   = fmt.Errorf("%w: percentages cannot sum to more than 100", ErrValidation)
	ErrOutsideHorizon    = fmt.Errorf("%w: range outside goal horizon", ErrValidation)
	ErrGoalCompleted     = fmt.Errorf("%w: goal already completed", ErrValidation)
	ErrEmptyUser         = fmt.Errorf("%w: user is required", ErrValidation)
	ErrEmptyName         = fmt.Errorf("%w: name is required", ErrValidation)
	ErrInvalidAmount     = fmt.Errorf("%w: invalid amount", ErrValidation)
	ErrInvalidGoalType   = fmt.Errorf("%w: invalid goal type", ErrValidation)
	ErrInvalidStatus     = fmt.Errorf("%w: invalid goal status", ErrValidation)
	ErrInvalidRecurrence = fmt.Errorf("%w: invalid recurrence", ErrValidation)
	ErrMissingFrequency  = fmt.Errorf("%w: recurring goals must have a frequency", ErrValidation)
	ErrPastCompletion    = fmt.Errorf("%w: completion date must not be in the past", ErrValidation)
	ErrCompletionOrder   = fmt.Errorf("%w: completion date must be after start date", ErrValidation)
	ErrStrayCompletion   = fmt.Errorf("%w: actual completion date requires completed status", ErrValidation)
)

func (t GoalType) Valid() bool {
	switch t {
	case TypeSavings, TypeDebt, TypeInvestment:
		return true
	default:
		return false
	}
}

func (s GoalStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status admits no further transitions.
func (s GoalStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func (r Recurrence) Valid() bool {
	switch r {
	case RecurrenceNone, RecurrenceFixed, RecurrenceIndefinite:
		return true
	default:
		return false
	}
}

// Horizon is the span a goal's contributions must stay inside.
func (g Goal) Horizon() Interval {
	return Interval{Start: g.StartDate, End: g.ExpectedCompletionDate}
}

// Validate checks the stored invariants of a goal. Save-time rules that
// depend on the current day live in NormalizeForSave.
func (g Goal) Validate() error {
	if strings.TrimSpace(g.UserID) == "" {
		return ErrEmptyUser
	}
	if strings.TrimSpace(g.Name) == "" {
		return ErrEmptyName
	}
	if len(g.Name) > 255 {
		return fmt.Errorf("%w: name too long (max 255 characters)", ErrValidation)
	}
	if !g.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !g.Type.Valid() {
		return ErrInvalidGoalType
	}
	if !g.Status.Valid() {
		return ErrInvalidStatus
	}
	if !g.Recurrence.Valid() {
		return ErrInvalidRecurrence
	}
	if g.Recurrence != RecurrenceNone && g.FrequencyMonths < 1 {
		return ErrMissingFrequency
	}
	if err := g.StartDate.Validate(); err != nil {
		return fmt.Errorf("start date: %w", err)
	}
	if err := g.ExpectedCompletionDate.Validate(); err != nil {
		return fmt.Errorf("completion date: %w", err)
	}
	if g.ExpectedCompletionDate.Before(g.StartDate) {
		return ErrCompletionOrder
	}
	if !g.ActualCompletionDate.IsZero() {
		if g.Status != StatusCompleted {
			return ErrStrayCompletion
		}
		if g.ActualCompletionDate.Before(g.StartDate) {
			return fmt.Errorf("%w: actual completion date before start date", ErrValidation)
		}
	}
	return nil
}

// NormalizeForSave applies the save-time adjustments and checks:
// defaults for type, status and recurrence; start date defaulted to today
// and snapped to the first of its month; completion date required, not in
// the past, not before start, snapped to the last of its month; the actual
// completion date stamped to today on completion. It mutates the goal and
// finishes with Validate.
func (g *Goal) NormalizeForSave(today Date) error {
	if g.Type == "" {
		g.Type = TypeSavings
	}
	if g.Status == "" {
		g.Status = StatusInProgress
	}
	if g.Recurrence == "" {
		g.Recurrence = RecurrenceNone
	}
	if g.Recurrence != RecurrenceNone && g.FrequencyMonths < 1 {
		return ErrMissingFrequency
	}
	if g.StartDate.IsZero() {
		g.StartDate = today
	}
	g.StartDate = g.StartDate.FirstOfMonth()
	if g.ExpectedCompletionDate.IsZero() {
		return fmt.Errorf("completion date: %w", ErrInvalidDate)
	}
	if g.ExpectedCompletionDate.Before(today) {
		return ErrPastCompletion
	}
	if g.ExpectedCompletionDate.Before(g.StartDate) {
		return ErrCompletionOrder
	}
	g.ExpectedCompletionDate = g.ExpectedCompletionDate.LastOfMonth()
	if g.Status == StatusCompleted && g.ActualCompletionDate.IsZero() {
		g.ActualCompletionDate = today
	}
	if g.Status != StatusCompleted && !g.ActualCompletionDate.IsZero() {
		return ErrStrayCompletion
	}
	return g.Validate()
}

// Interval returns the range's span.
func (r DateRange) Interval() Interval {
	return Interval{Start: r.StartDate, End: r.EndDate}
}

func (r DateRange) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return ErrEmptyUser
	}
	return r.Interval().Validate()
}

func (c Contribution) Validate() error {
	if c.Percentage < 0 || c.Percentage > 100 {
		return ErrInvalidPercent
	}
	return nil
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.UserID) == "" {
		return ErrEmptyUser
	}
	if t.AmountCents <= 0 {
		return ErrInvalidAmount
	}
	return t.OccurredOn.Validate()
}
