package models

import "time"

// StartOfDay truncates t to 00:00:00 UTC of its calendar day.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// EndOfDay returns 23:59:59 UTC of t's calendar day.
func EndOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 23, 59, 59, 0, time.UTC)
}

// SameOrAfterDay reports whether a falls on or after b's calendar day.
func SameOrAfterDay(a, b time.Time) bool {
	return !StartOfDay(a).Before(StartOfDay(b))
}

// DateRange is an optional window over calendar days. A zero bound is open.
// Both bounds are inclusive of their whole day.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// IsZero reports whether both bounds are open.
func (r DateRange) IsZero() bool {
	return r.Start.IsZero() && r.End.IsZero()
}
