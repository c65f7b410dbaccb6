package models

import "time"

// Season is the bounded competition period. At most one season is current.
type Season struct {
	ID int64

	// Slug is the URL-friendly identifier (e.g., "2024").
	Slug string

	Start time.Time
	End   time.Time

	Closed  bool
	Current bool

	// MaxPointsPerRider caps how many points a single drafted rider can
	// contribute to a team's draft score. Nil means unbounded.
	MaxPointsPerRider *int

	// MaxTransfers is the season-wide transfer quota, applied when no Period
	// covers the transfer date. Nil means unlimited.
	MaxTransfers *int
}

// DraftCap returns the per-rider draft cap and whether one is set.
func (s *Season) DraftCap() (int, bool) {
	if s == nil || s.MaxPointsPerRider == nil {
		return 0, false
	}
	return *s.MaxPointsPerRider, true
}

// Period is a date sub-range of a season carrying its own transfer quota.
type Period struct {
	ID       int64
	SeasonID int64

	// Start and End are calendar days; End is inclusive.
	Start time.Time
	End   time.Time

	// MaxTransfers is the number of USER/ADMIN transfers a team may make
	// within the period.
	MaxTransfers int
}

// Contains reports whether t falls within the period's calendar days.
func (p *Period) Contains(t time.Time) bool {
	return !t.Before(StartOfDay(p.Start)) && !t.After(EndOfDay(p.End))
}

// Team is a season-scoped fantasy roster.
type Team struct {
	ID       int64
	SeasonID int64

	// Abbreviation is the short code used as the leaderboard tie-breaker.
	Abbreviation string

	Name string

	// Memo is free text kept by the team owner.
	Memo string
}

// Rider is a competitor eligible to be rostered by a Team.
type Rider struct {
	ID   int64
	Name string

	// ExternalID is the ranking-site identifier used by ingestion.
	ExternalID string
}
