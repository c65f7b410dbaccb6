package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/mmynk/cyclear/internal/cache"
	"github.com/mmynk/cyclear/internal/eligibility"
	"github.com/mmynk/cyclear/internal/models"
	"github.com/mmynk/cyclear/internal/storage"
	"github.com/mmynk/cyclear/pkg/metrics"
)

// FeedRace is one race of an ingestion batch together with its results.
type FeedRace struct {
	ExternalID            string    `yaml:"external_id" json:"external_id"`
	Name                  string    `yaml:"name" json:"name"`
	Date                  time.Time `yaml:"date" json:"date"`
	GeneralClassification bool      `yaml:"general_classification" json:"general_classification"`

	// ReferenceDate anchors eligibility for a multi-day event. When unset on
	// a general classification, the date of the event's first stage is used.
	ReferenceDate *time.Time `yaml:"reference_date" json:"reference_date,omitempty"`

	// ExpectedResults is the number of scored places the race category
	// awards. A race with fewer rows is left for a later batch.
	ExpectedResults int `yaml:"expected_results" json:"expected_results"`

	Results []FeedResult `yaml:"results" json:"results"`
}

// FeedResult is one scored placing from the ingestion feed.
type FeedResult struct {
	RiderExternalID string `yaml:"rider" json:"rider"`
	RiderPoints     int    `yaml:"rider_points" json:"rider_points"`
	TeamPoints      int    `yaml:"team_points" json:"team_points"`
	Position        int    `yaml:"position" json:"position"`
}

// IngestReport summarizes one batch.
type IngestReport struct {
	Stored     int
	Skipped    int
	Unresolved int
}

// IngestService writes races and their results, snapshotting the team each
// result is credited to at write time.
type IngestService struct {
	store    storage.Store
	resolver *eligibility.Resolver
	memo     *cache.Memo
	metrics  *metrics.Manager
	maxRaces int
}

// NewIngestService creates an IngestService. maxRaces bounds how many races
// one batch stores; zero means no bound.
func NewIngestService(store storage.Store, resolver *eligibility.Resolver, memo *cache.Memo, m *metrics.Manager, maxRaces int) *IngestService {
	return &IngestService{
		store:    store,
		resolver: resolver,
		memo:     memo,
		metrics:  m,
		maxRaces: maxRaces,
	}
}

// Ingest stores each race of the batch in its own transaction, skipping races
// already present. An interrupted batch leaves a consistent prefix and can be
// resumed by running it again.
func (s *IngestService) Ingest(ctx context.Context, seasonID int64, races []FeedRace) (IngestReport, error) {
	var report IngestReport

	season, err := s.store.GetSeason(ctx, seasonID)
	if err != nil {
		return report, err
	}
	slog.Info("Ingest batch started", "season", season.Slug, "races", len(races))

	for _, fr := range races {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if s.maxRaces > 0 && report.Stored >= s.maxRaces {
			slog.Info("Ingest batch limit reached", "max_races", s.maxRaces)
			break
		}

		stored, unresolved, err := s.ingestRace(ctx, season, fr)
		if err != nil {
			return report, fmt.Errorf("failed to ingest race %s: %w", fr.ExternalID, err)
		}
		report.Unresolved += unresolved
		if stored {
			report.Stored++
		} else {
			report.Skipped++
		}
	}

	slog.Info("Ingest batch finished",
		"season", season.Slug,
		"stored", report.Stored,
		"skipped", report.Skipped,
		"unresolved", report.Unresolved,
	)
	return report, nil
}

func (s *IngestService) ingestRace(ctx context.Context, season *models.Season, fr FeedRace) (bool, int, error) {
	if fr.ExternalID == "" {
		s.skip(fr, "invalid")
		return false, 0, nil
	}

	exists, err := s.store.RaceExists(ctx, fr.ExternalID)
	if err != nil {
		return false, 0, err
	}
	if exists {
		s.skip(fr, "duplicate")
		return false, 0, nil
	}

	date := fr.Date.UTC()
	if date.Before(models.StartOfDay(season.Start)) || date.After(models.EndOfDay(season.End)) {
		s.skip(fr, "out_of_season")
		return false, 0, nil
	}
	if fr.ExpectedResults > 0 && len(fr.Results) < fr.ExpectedResults {
		s.skip(fr, "incomplete")
		return false, 0, nil
	}

	ref, err := s.referenceDate(ctx, season.ID, fr)
	if err != nil {
		return false, 0, err
	}

	race := &models.Race{
		SeasonID:              season.ID,
		Name:                  fr.Name,
		Date:                  date,
		GeneralClassification: fr.GeneralClassification,
		ExternalID:            fr.ExternalID,
		FullyProcessed:        true,
	}

	results := make([]models.RaceResult, 0, len(fr.Results))
	unresolved := 0
	for _, res := range fr.Results {
		rr, err := s.attribute(ctx, date, ref, res)
		if errors.Is(err, ErrUnresolvableRider) {
			unresolved++
			s.metrics.RecordUnresolvedResult()
			slog.Warn("Result stored without rider",
				"race", fr.ExternalID,
				"rider_external_id", res.RiderExternalID,
				"position", res.Position,
			)
		} else if err != nil {
			return false, 0, err
		}
		results = append(results, rr)
	}

	if err := s.store.CreateRace(ctx, race, results); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			s.skip(fr, "duplicate")
			return false, unresolved, nil
		}
		return false, 0, err
	}

	s.memo.Invalidate()
	s.metrics.RecordRaceStored()
	slog.Info("Race stored", "race", fr.ExternalID, "name", fr.Name, "results", len(results))
	return true, unresolved, nil
}

// attribute builds the stored result, crediting a team only when the
// resolver allows it. Unknown riders yield ErrUnresolvableRider alongside a
// result with no rider and no team.
func (s *IngestService) attribute(ctx context.Context, date time.Time, ref *time.Time, res FeedResult) (models.RaceResult, error) {
	rr := models.RaceResult{
		RiderPoints: res.RiderPoints,
		Position:    res.Position,
	}

	rider, err := s.store.GetRiderByExternalID(ctx, res.RiderExternalID)
	if err != nil {
		return rr, err
	}
	if rider == nil {
		return rr, fmt.Errorf("rider %q: %w", res.RiderExternalID, ErrUnresolvableRider)
	}
	rr.RiderID = &rider.ID

	team, err := s.resolver.TeamAsOf(ctx, rider.ID, date, ref)
	if err != nil {
		return rr, err
	}
	if team != nil {
		rr.TeamID = team
		rr.TeamPoints = res.TeamPoints
	}
	return rr, nil
}

func (s *IngestService) referenceDate(ctx context.Context, seasonID int64, fr FeedRace) (*time.Time, error) {
	if fr.ReferenceDate != nil {
		ref := fr.ReferenceDate.UTC()
		return &ref, nil
	}
	if !fr.GeneralClassification {
		return nil, nil
	}

	races, err := s.store.ListRaces(ctx, seasonID)
	if err != nil {
		return nil, err
	}
	if first := findFirstStage(fr.Name, races); first != nil {
		ref := first.Date
		return &ref, nil
	}
	return nil, nil
}

func (s *IngestService) skip(fr FeedRace, reason string) {
	s.metrics.RecordRaceSkipped(reason)
	slog.Info("Race skipped", "race", fr.ExternalID, "name", fr.Name, "reason", reason)
}

// findFirstStage finds the opening stage of the event a general
// classification belongs to: "<event>, Stage 1" or "<event>, Prologue", else
// "<event>, Stage 2". Names compare without case or diacritics.
func findFirstStage(gcName string, races []models.Race) *models.Race {
	event, _, _ := strings.Cut(gcName, ",")
	event = foldName(strings.TrimSpace(event))

	if r := earliestWithPrefix(races, event+", stage 1", event+", prologue"); r != nil {
		return r
	}
	return earliestWithPrefix(races, event+", stage 2")
}

func earliestWithPrefix(races []models.Race, prefixes ...string) *models.Race {
	var best *models.Race
	for i := range races {
		name := foldName(races[i].Name)
		for _, p := range prefixes {
			if hasNamePrefix(name, p) && (best == nil || races[i].Date.Before(best.Date)) {
				best = &races[i]
			}
		}
	}
	return best
}

// hasNamePrefix reports whether name starts with prefix and the prefix is not
// cut mid-number, so "stage 1" does not match "stage 12".
func hasNamePrefix(name, prefix string) bool {
	rest, ok := strings.CutPrefix(name, prefix)
	if !ok {
		return false
	}
	return rest == "" || rest[0] < '0' || rest[0] > '9'
}

// foldName lowercases s and strips combining marks, so "Volta a Catalunya"
// matches "Vólta a Cataluña".
func foldName(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		return strings.ToLower(s)
	}
	return strings.ToLower(folded)
}
