package core

// Transaction rows store integer cents; everything above the storage
// layer works in decimals so percentage math stays exact.

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount parses a user-entered monetary amount. Both dot (12.34) and
// comma (12,34) decimal separators are accepted; the value must be
// positive and is rounded half-up to cents.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: amount must be positive", ErrInvalidAmount)
	}
	return d.Round(2), nil
}

// CentsToAmount converts integer cents to a decimal amount.
func CentsToAmount(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// PercentOf returns pct percent of amount, exactly.
func PercentOf(amount decimal.Decimal, pct int64) decimal.Decimal {
	return amount.Mul(decimal.New(pct, -2))
}
