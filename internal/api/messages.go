package api

import (
	"fmt"
	"time"

	"github.com/mmynk/cyclear/internal/ledger"
	"github.com/mmynk/cyclear/internal/models"
	"github.com/mmynk/cyclear/internal/service"
)

// dayLayout is the wire format of every date in requests and responses.
const dayLayout = "2006-01-02"

// Team is the wire form of models.Team.
type Team struct {
	ID           int64  `json:"id"`
	Abbreviation string `json:"abbreviation"`
	Name         string `json:"name"`
}

// Rider is the wire form of models.Rider.
type Rider struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	ExternalID string `json:"external_id,omitempty"`
}

// Standing is one leaderboard row.
type Standing struct {
	Team   Team `json:"team"`
	Points int  `json:"points"`
	// RawPoints is set on draft standings only.
	RawPoints *int `json:"raw_points,omitempty"`
}

// RiderStanding credits a rider's points to a team.
type RiderStanding struct {
	Rider  Rider `json:"rider"`
	Team   Team  `json:"team"`
	Points int   `json:"points"`
}

// StandingsRequest selects a projection of a season. SeasonID zero means the
// current season. Start and End bound race dates inclusively.
type StandingsRequest struct {
	SeasonID int64  `json:"season_id"`
	TeamID   *int64 `json:"team_id,omitempty"`
	// MaxDate excludes races on or after that day from team totals.
	MaxDate  string `json:"max_date,omitempty"`
	PeriodID int64  `json:"period_id,omitempty"`
	Position int    `json:"position,omitempty"`
	Start    string `json:"start,omitempty"`
	End      string `json:"end,omitempty"`
	Offset   int    `json:"offset,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// StandingsResponse is a page of a team projection. Total counts every row
// before pagination.
type StandingsResponse struct {
	SeasonID int64      `json:"season_id"`
	Rows     []Standing `json:"rows"`
	Total    int        `json:"total"`
}

// RiderStandingsResponse is a page of a rider projection.
type RiderStandingsResponse struct {
	SeasonID int64           `json:"season_id"`
	Rows     []RiderStanding `json:"rows"`
	Total    int             `json:"total"`
}

type RiderTotalRequest struct {
	SeasonID int64 `json:"season_id"`
	RiderID  int64 `json:"rider_id"`
}

type RiderTotalResponse struct {
	SeasonID int64 `json:"season_id"`
	RiderID  int64 `json:"rider_id"`
	Points   int   `json:"points"`
}

// SwapRequest moves RiderOut off a team and RiderIn onto it. Date is only
// read by AdminTransfer.
type SwapRequest struct {
	TeamID   int64  `json:"team_id"`
	RiderOut int64  `json:"rider_out"`
	RiderIn  int64  `json:"rider_in"`
	Date     string `json:"date,omitempty"`
}

type SwapResponse struct{}

type DraftRequest struct {
	TeamID  int64  `json:"team_id"`
	RiderID int64  `json:"rider_id"`
	Date    string `json:"date,omitempty"`
}

type DraftResponse struct {
	Transfer Transfer `json:"transfer"`
}

type TeamRequest struct {
	TeamID int64 `json:"team_id"`
	// At is the day a quota is evaluated for. Empty means today.
	At string `json:"at,omitempty"`
}

type QuotaResponse struct {
	Used    int    `json:"used"`
	Max     int    `json:"max"`
	Limited bool   `json:"limited"`
	Left    int    `json:"left"`
	Start   string `json:"start,omitempty"`
	End     string `json:"end,omitempty"`
}

type RosterResponse struct {
	Riders []Rider `json:"riders"`
}

type LatestTransfersRequest struct {
	SeasonID int64    `json:"season_id"`
	TeamID   *int64   `json:"team_id,omitempty"`
	RiderID  *int64   `json:"rider_id,omitempty"`
	Types    []string `json:"types,omitempty"`
	Limit    int      `json:"limit,omitempty"`
}

// Transfer is a transfer into a team, with the rider it replaced.
type Transfer struct {
	ID      int64  `json:"id"`
	Type    string `json:"type"`
	Date    string `json:"date"`
	TeamID  *int64 `json:"team_id,omitempty"`
	Rider   Rider  `json:"rider"`
	Inverse *Rider `json:"inverse,omitempty"`
}

type LatestTransfersResponse struct {
	SeasonID  int64      `json:"season_id"`
	Transfers []Transfer `json:"transfers"`
}

func parseDay(field, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dayLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s %q is not a %s date: %w", field, s, dayLayout, service.ErrInvalidArgument)
	}
	return t, nil
}

func parseRange(start, end string) (models.DateRange, error) {
	var r models.DateRange
	var err error
	if r.Start, err = parseDay("start", start); err != nil {
		return r, err
	}
	if r.End, err = parseDay("end", end); err != nil {
		return r, err
	}
	if !r.Start.IsZero() && !r.End.IsZero() && r.End.Before(r.Start) {
		return r, fmt.Errorf("range ends before it starts: %w", service.ErrInvalidArgument)
	}
	return r, nil
}

func formatDay(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dayLayout)
}

func toTeam(t models.Team) Team {
	return Team{ID: t.ID, Abbreviation: t.Abbreviation, Name: t.Name}
}

func toRider(r models.Rider) Rider {
	return Rider{ID: r.ID, Name: r.Name, ExternalID: r.ExternalID}
}

func toStandings(rows []models.TeamPoints) []Standing {
	out := make([]Standing, len(rows))
	for i, r := range rows {
		out[i] = Standing{Team: toTeam(r.Team), Points: r.Points}
	}
	return out
}

func toDraftStandings(rows []models.DraftTeamPoints) []Standing {
	out := make([]Standing, len(rows))
	for i, r := range rows {
		raw := r.RawPoints
		out[i] = Standing{Team: toTeam(r.Team), Points: r.Points, RawPoints: &raw}
	}
	return out
}

func toRiderStandings(rows []models.RiderTeamPoints) []RiderStanding {
	out := make([]RiderStanding, len(rows))
	for i, r := range rows {
		out[i] = RiderStanding{Rider: toRider(r.Rider), Team: toTeam(r.Team), Points: r.Points}
	}
	return out
}

func toTransfer(t models.Transfer, rider models.Rider, inverse *models.Rider) Transfer {
	out := Transfer{
		ID:     t.ID,
		Type:   string(t.Type),
		Date:   formatDay(t.Date),
		TeamID: t.ToTeamID,
		Rider:  toRider(rider),
	}
	if inverse != nil {
		inv := toRider(*inverse)
		out.Inverse = &inv
	}
	return out
}

func toQuota(q ledger.QuotaStatus) *QuotaResponse {
	return &QuotaResponse{
		Used:    q.Used,
		Max:     q.Max,
		Limited: q.Limited,
		Left:    q.Left(),
		Start:   formatDay(q.Start),
		End:     formatDay(q.End),
	}
}
