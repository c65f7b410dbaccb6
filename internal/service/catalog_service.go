package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mmynk/cyclear/internal/ledger"
	"github.com/mmynk/cyclear/internal/models"
	"github.com/mmynk/cyclear/internal/storage"
)

// CatalogService resolves seasons at the system boundary and loads catalog
// seeds. Draft picks in a seed go through the transfer workflow.
type CatalogService struct {
	store     storage.CatalogStore
	transfers *TransferService
}

// NewCatalogService creates a new CatalogService.
func NewCatalogService(store storage.CatalogStore, transfers *TransferService) *CatalogService {
	return &CatalogService{store: store, transfers: transfers}
}

// ResolveSeason returns the season with the given ID, or the current season
// when id is zero.
func (s *CatalogService) ResolveSeason(ctx context.Context, id int64) (*models.Season, error) {
	if id == 0 {
		return s.store.CurrentSeason(ctx)
	}
	return s.store.GetSeason(ctx, id)
}

// Seed describes a season with its riders, teams and draft picks.
type Seed struct {
	Season SeasonSeed  `yaml:"season"`
	Riders []RiderSeed `yaml:"riders"`
	Teams  []TeamSeed  `yaml:"teams"`
}

// SeasonSeed describes a season and its quota periods.
type SeasonSeed struct {
	Slug              string       `yaml:"slug"`
	Start             time.Time    `yaml:"start"`
	End               time.Time    `yaml:"end"`
	Current           bool         `yaml:"current"`
	MaxPointsPerRider *int         `yaml:"max_points_per_rider"`
	MaxTransfers      *int         `yaml:"max_transfers"`
	Periods           []PeriodSeed `yaml:"periods"`
}

// PeriodSeed describes a quota window.
type PeriodSeed struct {
	Start        time.Time `yaml:"start"`
	End          time.Time `yaml:"end"`
	MaxTransfers int       `yaml:"max_transfers"`
}

// RiderSeed describes a rider known to the ranking site.
type RiderSeed struct {
	ExternalID string `yaml:"external_id"`
	Name       string `yaml:"name"`
}

// TeamSeed describes a team and the riders it drafts.
type TeamSeed struct {
	Abbreviation string    `yaml:"abbreviation"`
	Name         string    `yaml:"name"`
	Memo         string    `yaml:"memo"`
	DraftDate    time.Time `yaml:"draft_date"`
	Draft        []string  `yaml:"draft"`
}

// Seed creates whatever part of the seed is missing. Running the same seed
// twice changes nothing.
func (s *CatalogService) Seed(ctx context.Context, seed Seed) (*models.Season, error) {
	season, err := s.seedSeason(ctx, seed.Season)
	if err != nil {
		return nil, err
	}

	riders := make(map[string]int64, len(seed.Riders))
	for _, rs := range seed.Riders {
		rider, err := s.store.GetRiderByExternalID(ctx, rs.ExternalID)
		if err != nil {
			return nil, err
		}
		if rider == nil {
			rider = &models.Rider{Name: rs.Name, ExternalID: rs.ExternalID}
			if err := s.store.CreateRider(ctx, rider); err != nil {
				return nil, err
			}
		}
		riders[rs.ExternalID] = rider.ID
	}

	for _, ts := range seed.Teams {
		team, err := s.store.GetTeamByAbbreviation(ctx, season.ID, ts.Abbreviation)
		if errors.Is(err, storage.ErrNotFound) {
			team = &models.Team{SeasonID: season.ID, Abbreviation: ts.Abbreviation, Name: ts.Name, Memo: ts.Memo}
			err = s.store.CreateTeam(ctx, team)
		}
		if err != nil {
			return nil, err
		}

		date := ts.DraftDate
		if date.IsZero() {
			date = season.Start
		}
		for _, ext := range ts.Draft {
			riderID, ok := riders[ext]
			if !ok {
				return nil, fmt.Errorf("draft of %s names unknown rider %q: %w", ts.Abbreviation, ext, ErrInvalidArgument)
			}
			_, err := s.transfers.Draft(ctx, team.ID, riderID, date)
			if errors.Is(err, ledger.ErrInvalidTimelineState) {
				slog.Debug("Draft pick already placed", "team", ts.Abbreviation, "rider", ext)
				continue
			}
			if err != nil {
				return nil, err
			}
		}
	}

	slog.Info("Seed applied", "season", season.Slug, "riders", len(seed.Riders), "teams", len(seed.Teams))
	return season, nil
}

func (s *CatalogService) seedSeason(ctx context.Context, ss SeasonSeed) (*models.Season, error) {
	season, err := s.store.GetSeasonBySlug(ctx, ss.Slug)
	if err == nil {
		return season, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	if ss.Slug == "" || ss.End.Before(ss.Start) {
		return nil, fmt.Errorf("season %q has no slug or ends before it starts: %w", ss.Slug, ErrInvalidArgument)
	}

	season = &models.Season{
		Slug:              ss.Slug,
		Start:             ss.Start,
		End:               ss.End,
		Current:           ss.Current,
		MaxPointsPerRider: ss.MaxPointsPerRider,
		MaxTransfers:      ss.MaxTransfers,
	}
	if err := s.store.CreateSeason(ctx, season); err != nil {
		return nil, err
	}
	for _, ps := range ss.Periods {
		p := &models.Period{SeasonID: season.ID, Start: ps.Start, End: ps.End, MaxTransfers: ps.MaxTransfers}
		if err := s.store.CreatePeriod(ctx, p); err != nil {
			return nil, err
		}
	}
	return season, nil
}
