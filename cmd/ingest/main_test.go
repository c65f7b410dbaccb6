package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/mmynk/cyclear/internal/config"
	"github.com/mmynk/cyclear/internal/storage/sqlite"
)

const testFeed = `
seed:
  season:
    slug: "2024"
    start: 2024-01-01
    end: 2024-12-31
    current: true
    max_points_per_rider: 300
    periods:
      - start: 2024-01-01
        end: 2024-06-30
        max_transfers: 5
  riders:
    - external_id: tadej-pogacar
      name: Tadej Pogačar
    - external_id: remco-evenepoel
      name: Remco Evenepoel
  teams:
    - abbreviation: AAA
      name: Alpha
      draft: [tadej-pogacar]
races:
  - external_id: strade-bianche-2024
    name: Strade Bianche
    date: 2024-03-02
    expected_results: 2
    results:
      - rider: tadej-pogacar
        rider_points: 125
        team_points: 125
        position: 1
      - rider: toms-skujins
        rider_points: 85
        team_points: 85
        position: 2
  - external_id: gp-future
    name: Late race
    date: 2025-01-10
`

func writeFeed(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "feed.yaml")
	if err := os.WriteFile(path, []byte(testFeed), 0o600); err != nil {
		t.Fatalf("failed to write feed: %v", err)
	}
	return path
}

func TestLoadFeed(t *testing.T) {
	feed, err := loadFeed(writeFeed(t, t.TempDir()))
	if err != nil {
		t.Fatalf("loadFeed failed: %v", err)
	}

	if feed.Seed == nil || feed.Seed.Season.Slug != "2024" || len(feed.Seed.Season.Periods) != 1 {
		t.Fatalf("seed = %+v", feed.Seed)
	}
	if got := *feed.Seed.Season.MaxPointsPerRider; got != 300 {
		t.Errorf("max_points_per_rider = %d, want 300", got)
	}
	if len(feed.Races) != 2 || feed.Races[0].Date.Format("2006-01-02") != "2024-03-02" {
		t.Fatalf("races = %+v", feed.Races)
	}
	if r := feed.Races[0].Results[1]; r.RiderExternalID != "toms-skujins" || r.Position != 2 {
		t.Errorf("second result = %+v", r)
	}

	if _, err := loadFeed(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for a missing feed")
	}
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	cfg := config.New()
	cfg.DBPath = filepath.Join(dir, "cyclear.db")
	path := writeFeed(t, dir)

	// Running twice stores nothing new.
	for range 2 {
		if err := run(context.Background(), cfg, path); err != nil {
			t.Fatalf("run failed: %v", err)
		}
	}

	store, err := sqlite.New(cfg.DBPath, cfg.BusyTimeout())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	season, err := store.CurrentSeason(ctx)
	if err != nil {
		t.Fatalf("CurrentSeason failed: %v", err)
	}
	races, err := store.ListRaces(ctx, season.ID)
	if err != nil {
		t.Fatalf("ListRaces failed: %v", err)
	}
	if len(races) != 1 || races[0].ExternalID != "strade-bianche-2024" {
		t.Fatalf("races = %+v, want only strade-bianche-2024", races)
	}

	results, err := store.ListRaceResults(ctx, races[0].ID)
	if err != nil {
		t.Fatalf("ListRaceResults failed: %v", err)
	}
	if len(results) != 2 || results[0].TeamID == nil || results[0].TeamPoints != 125 {
		t.Errorf("winner = %+v, want credited to AAA", results[0])
	}
	if results[1].RiderID != nil {
		t.Errorf("unknown rider resolved to %d", *results[1].RiderID)
	}
}
