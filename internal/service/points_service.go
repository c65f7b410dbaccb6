package service

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/mmynk/cyclear/internal/cache"
	"github.com/mmynk/cyclear/internal/calculator"
	"github.com/mmynk/cyclear/internal/models"
	"github.com/mmynk/cyclear/internal/storage"
)

// PointsService computes the read-only leaderboards. Every projection is
// memoized until the next write to results or the transfer timeline.
//
// Reads never take rider locks and may run with unlimited concurrency.
type PointsService struct {
	store storage.Store
	memo  *cache.Memo
}

// NewPointsService creates a new PointsService with the given storage backend.
func NewPointsService(store storage.Store, memo *cache.Memo) *PointsService {
	return &PointsService{store: store, memo: memo}
}

// TeamTotals sums the team-points stored on results for every team of the
// season, counting only races dated before maxDate's day when maxDate is set.
// A non-nil teamID narrows the output to that team.
func (s *PointsService) TeamTotals(ctx context.Context, seasonID int64, teamID *int64, maxDate time.Time) ([]models.TeamPoints, error) {
	var w storage.Window
	if !maxDate.IsZero() {
		w.Before = models.StartOfDay(maxDate)
	}
	key := cache.NewKey("TeamTotals", seasonID, teamID, time.Time{}, w.Before)

	rows, err := cache.Do(ctx, s.memo, key, func(ctx context.Context) ([]models.TeamPoints, error) {
		return s.store.TeamPoints(ctx, seasonID, teamID, w)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to compute team totals: %w", err)
	}
	return slices.Clone(rows), nil
}

// PeriodTotals sums team-points per team for races inside a period.
func (s *PointsService) PeriodTotals(ctx context.Context, seasonID, periodID int64) ([]models.TeamPoints, error) {
	period, err := s.findPeriod(ctx, seasonID, periodID)
	if err != nil {
		return nil, err
	}

	w := storage.DayWindow(models.DateRange{Start: period.Start, End: period.End})
	key := cache.NewKey("PeriodTotals", seasonID, nil, w.From, w.Before)
	key.Extra = period.ID

	rows, err := cache.Do(ctx, s.memo, key, func(ctx context.Context) ([]models.TeamPoints, error) {
		return s.store.TeamPoints(ctx, seasonID, nil, w)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to compute period totals: %w", err)
	}
	return slices.Clone(rows), nil
}

func (s *PointsService) findPeriod(ctx context.Context, seasonID, periodID int64) (*models.Period, error) {
	periods, err := s.store.ListPeriods(ctx, seasonID)
	if err != nil {
		return nil, err
	}
	for i := range periods {
		if periods[i].ID == periodID {
			return &periods[i], nil
		}
	}
	return nil, fmt.Errorf("period %d in season %d: %w", periodID, seasonID, storage.ErrNotFound)
}

// PositionFrequency counts, per team, results at a finishing position that
// earned team-points.
func (s *PointsService) PositionFrequency(ctx context.Context, seasonID int64, position int, r models.DateRange) ([]models.TeamPoints, error) {
	if position < 1 {
		return nil, fmt.Errorf("position %d: %w", position, ErrInvalidArgument)
	}
	w := storage.DayWindow(r)
	key := cache.NewKey("PositionFrequency", seasonID, nil, w.From, w.Before)
	key.Extra = int64(position)

	rows, err := cache.Do(ctx, s.memo, key, func(ctx context.Context) ([]models.TeamPoints, error) {
		return s.store.PositionCounts(ctx, seasonID, position, w)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to compute position frequency: %w", err)
	}
	return slices.Clone(rows), nil
}

// RiderSeasonTotal sums a rider's rider-points in a season regardless of the
// team credited.
func (s *PointsService) RiderSeasonTotal(ctx context.Context, riderID, seasonID int64) (int, error) {
	key := cache.Key{Method: "RiderSeasonTotal", SeasonID: seasonID, Extra: riderID}
	total, err := cache.Do(ctx, s.memo, key, func(ctx context.Context) (int, error) {
		return s.store.RiderSeasonPoints(ctx, riderID, seasonID)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to compute rider total: %w", err)
	}
	return total, nil
}

// DraftTotals scores each team's draft picks, each rider contributing at most
// the season's per-rider cap.
func (s *PointsService) DraftTotals(ctx context.Context, seasonID int64, teamID *int64) ([]models.DraftTeamPoints, error) {
	key := cache.NewKey("DraftTotals", seasonID, teamID, time.Time{}, time.Time{})

	rows, err := cache.Do(ctx, s.memo, key, func(ctx context.Context) ([]models.DraftTeamPoints, error) {
		season, err := s.store.GetSeason(ctx, seasonID)
		if err != nil {
			return nil, err
		}
		snap, err := s.store.DraftSnapshot(ctx, seasonID, storage.Window{})
		if err != nil {
			return nil, err
		}

		rows := calculator.DraftTotals(draftPicks(snap, season))
		if teamID != nil {
			rows = slices.DeleteFunc(rows, func(r models.DraftTeamPoints) bool { return r.Team.ID != *teamID })
		}
		return rows, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to compute draft totals: %w", err)
	}
	return slices.Clone(rows), nil
}

// LostDraftPoints sums, per team, the points its uncapped draft picks earned
// without crediting it, within the optional day range.
func (s *PointsService) LostDraftPoints(ctx context.Context, seasonID int64, r models.DateRange) ([]models.TeamPoints, error) {
	w := storage.DayWindow(r)
	key := cache.NewKey("LostDraftPoints", seasonID, nil, w.From, w.Before)

	rows, err := cache.Do(ctx, s.memo, key, func(ctx context.Context) ([]models.TeamPoints, error) {
		season, err := s.store.GetSeason(ctx, seasonID)
		if err != nil {
			return nil, err
		}
		snap, err := s.store.DraftSnapshot(ctx, seasonID, w)
		if err != nil {
			return nil, err
		}
		return calculator.LostDraftPoints(draftPicks(snap, season), resultsForScore(snap.Results)), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to compute lost draft points: %w", err)
	}
	return slices.Clone(rows), nil
}

// BestTransfers ranks mid-season acquisitions by the team-points they earned
// for the team that acquired them.
func (s *PointsService) BestTransfers(ctx context.Context, seasonID int64, r models.DateRange) ([]models.RiderTeamPoints, error) {
	w := storage.DayWindow(r)
	key := cache.NewKey("BestTransfers", seasonID, nil, w.From, w.Before)

	rows, err := cache.Do(ctx, s.memo, key, func(ctx context.Context) ([]models.RiderTeamPoints, error) {
		snap, err := s.store.TransferSnapshot(ctx, seasonID, w)
		if err != nil {
			return nil, err
		}
		return calculator.BestTransfers(acquisitions(snap), resultsForScore(snap.Results)), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to compute best transfers: %w", err)
	}
	return slices.Clone(rows), nil
}

// TransferTotals sums, per team, team-points from riders it acquired by
// transfer and did not draft.
func (s *PointsService) TransferTotals(ctx context.Context, seasonID int64, r models.DateRange) ([]models.TeamPoints, error) {
	w := storage.DayWindow(r)
	key := cache.NewKey("TransferTotals", seasonID, nil, w.From, w.Before)

	rows, err := cache.Do(ctx, s.memo, key, func(ctx context.Context) ([]models.TeamPoints, error) {
		snap, err := s.store.TransferSnapshot(ctx, seasonID, w)
		if err != nil {
			return nil, err
		}
		return calculator.TransferTotals(acquisitions(snap), resultsForScore(snap.Results)), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to compute transfer totals: %w", err)
	}
	return slices.Clone(rows), nil
}

func draftPicks(snap *storage.DraftSnapshot, season *models.Season) calculator.DraftPicks {
	return calculator.DraftPicks{
		Teams:       snap.Teams,
		Drafted:     snap.Drafted,
		RiderTotals: snap.RiderTotals,
		Cap:         season.MaxPointsPerRider,
	}
}

func acquisitions(snap *storage.TransferSnapshot) calculator.Acquisitions {
	return calculator.Acquisitions{
		Teams:    snap.Teams,
		Riders:   snap.Riders,
		Acquired: snap.Acquired,
		Drafted:  snap.Drafted,
	}
}

func resultsForScore(rows []storage.ResultRow) []calculator.ResultForScore {
	out := make([]calculator.ResultForScore, len(rows))
	for i, r := range rows {
		out[i] = calculator.ResultForScore{
			RiderID:     r.RiderID,
			TeamID:      r.TeamID,
			RiderPoints: r.RiderPoints,
			TeamPoints:  r.TeamPoints,
		}
	}
	return out
}
