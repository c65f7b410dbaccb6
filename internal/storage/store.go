// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/mmynk/cyclear/internal/models"
)

var (
	// ErrNotFound is returned by point lookups when the entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write violates a uniqueness constraint,
	// such as a second active contract for a rider in one season.
	ErrConflict = errors.New("conflict")
)

// Store aggregates every storage concern used by the engine.
// This abstraction allows swapping storage backends (SQLite, PostgreSQL, etc.)
// without changing the service layer.
type Store interface {
	CatalogStore
	TimelineStore
	ResultStore
	ProjectionStore

	// Close releases any resources held by the store.
	Close() error
}

// CatalogStore manages seasons, periods, teams and riders.
type CatalogStore interface {
	// CreateSeason persists a season. When season.Current is set, every other
	// season loses its current flag in the same transaction.
	CreateSeason(ctx context.Context, season *models.Season) error
	GetSeason(ctx context.Context, id int64) (*models.Season, error)
	GetSeasonBySlug(ctx context.Context, slug string) (*models.Season, error)
	// CurrentSeason returns ErrNotFound when no season is flagged current.
	CurrentSeason(ctx context.Context) (*models.Season, error)
	SetCurrentSeason(ctx context.Context, id int64) error

	CreatePeriod(ctx context.Context, period *models.Period) error
	ListPeriods(ctx context.Context, seasonID int64) ([]models.Period, error)

	CreateTeam(ctx context.Context, team *models.Team) error
	GetTeam(ctx context.Context, id int64) (*models.Team, error)
	GetTeamByAbbreviation(ctx context.Context, seasonID int64, abbreviation string) (*models.Team, error)
	ListTeams(ctx context.Context, seasonID int64) ([]models.Team, error)

	CreateRider(ctx context.Context, rider *models.Rider) error
	GetRider(ctx context.Context, id int64) (*models.Rider, error)
	// GetRiderByExternalID returns nil and no error when the rider is unknown.
	GetRiderByExternalID(ctx context.Context, externalID string) (*models.Rider, error)
}

// TransferQuery narrows LatestTransfers. Nil/empty fields do not filter.
type TransferQuery struct {
	SeasonID int64
	TeamID   *int64
	RiderID  *int64
	Types    []models.TransferType
	Limit    int
}

// TimelineReader serves point and range reads of contracts and transfers.
type TimelineReader interface {
	// LastTransferUntil returns the latest transfer for the rider dated at or
	// before until, ties broken by insertion order. Nil when none exists.
	LastTransferUntil(ctx context.Context, riderID int64, until time.Time) (*models.Transfer, error)

	// CountTransfers counts transfers into teamID dated within [start, end]
	// whose type is in types. An empty types slice counts every type.
	CountTransfers(ctx context.Context, teamID int64, start, end time.Time, types []models.TransferType) (int, error)

	// InverseRider returns the rider on the other row sharing the transfer's
	// pair key, or nil.
	InverseRider(ctx context.Context, transfer *models.Transfer) (*models.Rider, error)

	// ActiveContract returns the rider's open contract in the season, or nil.
	ActiveContract(ctx context.Context, riderID, seasonID int64) (*models.Contract, error)

	// ActiveContractsForTeam lists open contracts on a team in insertion order.
	ActiveContractsForTeam(ctx context.Context, teamID int64) ([]models.Contract, error)

	// PeriodAt returns the season's period containing at, or nil.
	PeriodAt(ctx context.Context, seasonID int64, at time.Time) (*models.Period, error)

	// LatestTransfers lists transfers with a destination team, newest first.
	LatestTransfers(ctx context.Context, q TransferQuery) ([]models.TransferWithInverse, error)
}

// TimelineTx is the unit of work for roster-changing writes.
type TimelineTx interface {
	TimelineReader

	InsertTransfer(ctx context.Context, transfer *models.Transfer) error
	InsertContract(ctx context.Context, contract *models.Contract) error
	// CloseContract sets the end date of an active contract.
	CloseContract(ctx context.Context, contractID int64, end time.Time) error
}

// TimelineStore is the source of truth for roster history.
type TimelineStore interface {
	TimelineReader

	// RunInTx executes fn in a single transaction. Any error returned by fn
	// rolls back every write fn made.
	RunInTx(ctx context.Context, fn func(tx TimelineTx) error) error
}

// ResultStore persists races and their results.
type ResultStore interface {
	RaceExists(ctx context.Context, externalID string) (bool, error)

	// CreateRace persists a race together with its results atomically.
	CreateRace(ctx context.Context, race *models.Race, results []models.RaceResult) error

	ListRaces(ctx context.Context, seasonID int64) ([]models.Race, error)
	ListRaceResults(ctx context.Context, raceID int64) ([]models.RaceResult, error)
}

// Window bounds race dates as [From, Before). Zero bounds are open.
type Window struct {
	From   time.Time
	Before time.Time
}

// DayWindow converts an inclusive day range into a Window.
func DayWindow(r models.DateRange) Window {
	var w Window
	if !r.Start.IsZero() {
		w.From = models.StartOfDay(r.Start)
	}
	if !r.End.IsZero() {
		w.Before = models.StartOfDay(r.End).AddDate(0, 0, 1)
	}
	return w
}

// ResultRow is the subset of a race result the aggregator works with.
type ResultRow struct {
	RiderID     int64
	TeamID      *int64
	RiderPoints int
	TeamPoints  int
}

// DraftSnapshot is a consistent view of a season's draft picks and the
// results of drafted riders.
type DraftSnapshot struct {
	Teams []models.Team

	// Drafted maps team ID to the riders it drafted, in draft order.
	Drafted map[int64][]int64

	// RiderTotals holds each drafted rider's season rider-points.
	RiderTotals map[int64]int

	// Results are the drafted riders' results with positive rider-points,
	// restricted to the requested window.
	Results []ResultRow
}

// TransferSnapshot is a consistent view of a season's non-draft acquisitions
// and the team-credited results of the acquired riders.
type TransferSnapshot struct {
	Teams  []models.Team
	Riders map[int64]models.Rider

	// Acquired maps team ID to riders it brought in with USER/ADMIN transfers.
	Acquired map[int64][]int64

	// Drafted maps team ID to the set of riders it drafted.
	Drafted map[int64]map[int64]bool

	// Results are acquired riders' results with a team and positive
	// team-points, restricted to the requested window.
	Results []ResultRow
}

// ProjectionStore serves the grouped reads behind the points aggregator.
type ProjectionStore interface {
	// TeamPoints sums stored team-points per team of the season. A non-nil
	// teamID narrows the output to that team.
	TeamPoints(ctx context.Context, seasonID int64, teamID *int64, w Window) ([]models.TeamPoints, error)

	// PositionCounts counts, per team, results at the given position that
	// earned team-points.
	PositionCounts(ctx context.Context, seasonID int64, position int, w Window) ([]models.TeamPoints, error)

	RiderSeasonPoints(ctx context.Context, riderID, seasonID int64) (int, error)

	DraftSnapshot(ctx context.Context, seasonID int64, w Window) (*DraftSnapshot, error)
	TransferSnapshot(ctx context.Context, seasonID int64, w Window) (*TransferSnapshot, error)

	// DataVersion returns a counter bumped by every committed write to the
	// catalog, the timeline or results, including writes from other
	// processes sharing the database.
	DataVersion(ctx context.Context) (int64, error)
}
