package types

import "time"

// Day is the UTC calendar day of t at midnight. Effective dates are stored
// as DATE, so every date compared in Go goes through Day first.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
