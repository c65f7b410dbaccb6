// Command ingest loads a feed file into the store: an optional catalog seed
// followed by a batch of races with their results. Feeds are YAML; JSON
// feeds parse too.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/mmynk/cyclear/internal/cache"
	"github.com/mmynk/cyclear/internal/config"
	"github.com/mmynk/cyclear/internal/eligibility"
	"github.com/mmynk/cyclear/internal/ledger"
	"github.com/mmynk/cyclear/internal/service"
	"github.com/mmynk/cyclear/internal/storage/sqlite"
	"github.com/mmynk/cyclear/pkg/logging"
	"github.com/mmynk/cyclear/pkg/metrics"
)

// Feed is the on-disk ingestion format.
type Feed struct {
	// Seed is applied before the races when present.
	Seed *service.Seed `yaml:"seed"`

	// SeasonID selects the season races are ingested into. Zero means the
	// seeded season, else the current one.
	SeasonID int64 `yaml:"season_id"`

	Races []service.FeedRace `yaml:"races"`
}

func loadFeed(path string) (*Feed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var feed Feed
	if err := yaml.Unmarshal(data, &feed); err != nil {
		return nil, fmt.Errorf("failed to parse feed %s: %w", path, err)
	}
	return &feed, nil
}

func main() {
	_ = godotenv.Load()

	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] feed.yaml\n", os.Args[0])
		flag.PrintDefaults()
	}
	maxRaces := flag.Int("max-races", -1, "cap on races stored in this run (overrides ingest_max_races)")
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}
	logging.Setup(os.Stderr, cfg.Level(), cfg.LogFormat)
	if *maxRaces >= 0 {
		cfg.IngestMaxRaces = *maxRaces
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, flag.Arg(0)); err != nil {
		slog.Error("Ingest failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, path string) error {
	feed, err := loadFeed(path)
	if err != nil {
		return err
	}

	store, err := sqlite.New(cfg.DBPath, cfg.BusyTimeout())
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	m := metrics.NewManager()
	memo := cache.New(cfg.CacheSize, m, cache.WithVersionSource(store))
	transfers := service.NewTransferService(store, ledger.New(store), ledger.NewRiderLocks(), memo, m)
	catalog := service.NewCatalogService(store, transfers)
	ingest := service.NewIngestService(store, eligibility.NewResolver(store), memo, m, cfg.IngestMaxRaces)

	seasonID := feed.SeasonID
	if feed.Seed != nil {
		season, err := catalog.Seed(ctx, *feed.Seed)
		if err != nil {
			return fmt.Errorf("failed to apply seed: %w", err)
		}
		if seasonID == 0 {
			seasonID = season.ID
		}
	}

	season, err := catalog.ResolveSeason(ctx, seasonID)
	if err != nil {
		return fmt.Errorf("failed to resolve season %d: %w", seasonID, err)
	}

	report, err := ingest.Ingest(ctx, season.ID, feed.Races)
	if err != nil {
		return err
	}
	slog.Info("Feed ingested",
		"file", path,
		"season", season.Slug,
		"stored", report.Stored,
		"skipped", report.Skipped,
		"unresolved", report.Unresolved,
	)
	return nil
}
