package core

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// DateLayout is the wire and storage format for calendar dates.
const DateLayout = "2006-01-02"

// Date is a calendar day pinned to midnight UTC. The zero value means
// "not set".
type Date struct {
	time.Time
}

// NewDate creates a new Date from year, month, day.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// Today returns the current UTC calendar day.
func Today() Date {
	now := time.Now().UTC()
	return NewDate(now.Year(), int(now.Month()), now.Day())
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	return d.Format(DateLayout)
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// Day returns the day of the month.
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month as an int.
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year.
func (d Date) Year() int {
	return d.Time.Year()
}

func (d Date) Before(o Date) bool {
	return d.Time.Before(o.Time)
}

func (d Date) After(o Date) bool {
	return d.Time.After(o.Time)
}

func (d Date) Equal(o Date) bool {
	return d.Time.Equal(o.Time)
}

// AddDays returns the date n days later; n may be negative.
func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

// AddMonths moves the date n months forward (backward when n is
// negative), clamping the day to the target month's length, so
// Jan 31 + 1 month = Feb 28 rather than Mar 3.
func (d Date) AddMonths(n int) Date {
	year, month, day := d.Time.Date()
	total := int(month) - 1 + n
	year += total / 12
	m := total%12 + 1
	if m <= 0 {
		m += 12
		year--
	}
	if last := daysInMonth(year, m); day > last {
		day = last
	}
	return NewDate(year, m, day)
}

// FirstOfMonth returns the first day of the date's month.
func (d Date) FirstOfMonth() Date {
	return NewDate(d.Year(), d.Month(), 1)
}

// LastOfMonth returns the last day of the date's month.
func (d Date) LastOfMonth() Date {
	return NewDate(d.Year(), d.Month(), daysInMonth(d.Year(), d.Month()))
}

// Scan implements sql.Scanner. TEXT columns scan through ParseDate;
// NULL becomes the zero date.
func (d *Date) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*d = Date{}
		return nil
	case string:
		if v == "" {
			*d = Date{}
			return nil
		}
		parsed, err := ParseDate(v)
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	case []byte:
		return d.Scan(string(v))
	case time.Time:
		*d = NewDate(v.Year(), int(v.Month()), v.Day())
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Date", value)
	}
}

// Value implements driver.Valuer. The zero date stores as NULL.
func (d Date) Value() (driver.Value, error) {
	if d.IsZero() {
		return nil, nil
	}
	return d.String(), nil
}

// MonthsBetween counts calendar months from b to a using only the year
// and month components: (a.year-b.year)*12 + a.month-b.month.
func MonthsBetween(a, b Date) int {
	return (a.Year()-b.Year())*12 + a.Month() - b.Month()
}

// daysInMonth uses the day-zero-of-next-month trick to get the month length.
func daysInMonth(year, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
