package models

import "time"

// Race is a scored event on a date.
type Race struct {
	ID       int64
	SeasonID int64
	Name     string
	Date     time.Time

	GeneralClassification bool

	// ExternalID is the ingestion idempotency key.
	ExternalID string

	FullyProcessed bool
}

// RaceResult is a rider's placement and point yield in one race.
// Results are write-once; TeamID is the team attributed at ingestion time.
type RaceResult struct {
	ID     int64
	RaceID int64

	// RiderID is nil when ingestion could not match the external rider.
	RiderID *int64

	// TeamID is nil when no team could be credited.
	TeamID *int64

	RiderPoints int
	TeamPoints  int
	Position    int
}
