package core

import "github.com/shopspring/decimal"

// ProgressReport is a point-in-time progress snapshot for one goal, the
// row shape exported to spreadsheets and printed by the CLI.
type ProgressReport struct {
	GoalID      int64
	UserID      string
	Name        string
	Status      GoalStatus
	Target      decimal.Decimal
	Contributed decimal.Decimal
	Percent     decimal.Decimal
	AsOf        Date
}
