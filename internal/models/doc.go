// Package models defines the core domain models for the Cyclear scoring engine.
//
// # Catalog
//
//   - Season: the bounded competition period, optionally capping points per rider
//   - Period: a date window inside a season with its own transfer quota
//   - Team: a season-scoped fantasy roster
//   - Rider: a competitor, identified externally by a ranking id
//
// # Timeline
//
//   - Contract: time-bounded rider-team membership
//   - Transfer: write-once event moving a rider (DRAFT, USER or ADMIN)
//
// # Results
//
//   - Race: a scored event on a date, keyed by an external identifier
//   - RaceResult: one rider's placement and points in a race, with the team
//     attributed at ingestion time
//
// # Design Principles
//
// 1. Roster membership is derived from contracts and transfers, never stored on Rider
// 2. Relationships are plain IDs; there is no lazy association loading
// 3. All timestamps are UTC; day arithmetic goes through the helpers in date.go
package models
