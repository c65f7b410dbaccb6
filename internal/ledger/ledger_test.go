package ledger

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mmynk/cyclear/internal/models"
	"github.com/mmynk/cyclear/internal/storage"
	"github.com/mmynk/cyclear/internal/storage/sqlite"
)

func setupTestStore(t *testing.T) *sqlite.SQLiteStore {
	t.Helper()

	tempDir, err := os.MkdirTemp("", "ledger-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	store, err := sqlite.New(filepath.Join(tempDir, "test.db"), 5*time.Second)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

type world struct {
	store  *sqlite.SQLiteStore
	season *models.Season
	teamA  *models.Team
	teamB  *models.Team
	riders map[string]int64
}

func newWorld(t *testing.T, maxTransfers *int) *world {
	t.Helper()
	ctx := context.Background()
	store := setupTestStore(t)

	season := &models.Season{Slug: "2024", Start: day("2024-01-01"), End: day("2024-12-31"), Current: true, MaxTransfers: maxTransfers}
	if err := store.CreateSeason(ctx, season); err != nil {
		t.Fatalf("CreateSeason failed: %v", err)
	}
	w := &world{store: store, season: season, riders: map[string]int64{}}
	w.teamA = &models.Team{SeasonID: season.ID, Abbreviation: "AAA", Name: "Alpha"}
	w.teamB = &models.Team{SeasonID: season.ID, Abbreviation: "BBB", Name: "Bravo"}
	for _, team := range []*models.Team{w.teamA, w.teamB} {
		if err := store.CreateTeam(ctx, team); err != nil {
			t.Fatalf("CreateTeam failed: %v", err)
		}
	}
	for _, name := range []string{"x", "y", "z", "w"} {
		r := &models.Rider{Name: name}
		if err := store.CreateRider(ctx, r); err != nil {
			t.Fatalf("CreateRider failed: %v", err)
		}
		w.riders[name] = r.ID
	}
	return w
}

func fixedClock(s string) Option {
	return WithClock(func() time.Time { return day(s).Add(9 * time.Hour) })
}

func TestAssignDraft(t *testing.T) {
	w := newWorld(t, nil)
	ctx := context.Background()
	l := New(w.store)

	tr, err := l.AssignDraft(ctx, w.teamA, w.riders["x"], day("2024-01-01"))
	if err != nil {
		t.Fatalf("AssignDraft failed: %v", err)
	}
	if tr.Type != models.TransferDraft || tr.PairKey != "" {
		t.Errorf("draft transfer = %+v, want DRAFT without pair key", tr)
	}

	t.Run("rejects a rider already under contract", func(t *testing.T) {
		_, err := l.AssignDraft(ctx, w.teamB, w.riders["x"], day("2024-01-02"))
		if !errors.Is(err, ErrInvalidTimelineState) {
			t.Errorf("AssignDraft error = %v, want ErrInvalidTimelineState", err)
		}
	})

	t.Run("roster lists drafted riders", func(t *testing.T) {
		roster, err := l.Roster(ctx, w.teamA.ID)
		if err != nil {
			t.Fatalf("Roster failed: %v", err)
		}
		if len(roster) != 1 || roster[0].RiderID != w.riders["x"] {
			t.Errorf("Roster = %+v, want rider x", roster)
		}
	})
}

func TestExecuteUserTransfer(t *testing.T) {
	w := newWorld(t, nil)
	ctx := context.Background()
	l := New(w.store, fixedClock("2024-03-10"))

	if _, err := l.AssignDraft(ctx, w.teamA, w.riders["x"], day("2024-01-01")); err != nil {
		t.Fatalf("AssignDraft failed: %v", err)
	}

	if err := l.ExecuteUserTransfer(ctx, Swap{Team: w.teamA, Season: w.season, RiderOut: w.riders["x"], RiderIn: w.riders["y"]}); err != nil {
		t.Fatalf("ExecuteUserTransfer failed: %v", err)
	}

	t.Run("contracts move", func(t *testing.T) {
		out, err := w.store.ActiveContract(ctx, w.riders["x"], w.season.ID)
		if err != nil || out != nil {
			t.Errorf("ActiveContract(x) = %v, %v, want nil", out, err)
		}
		in, err := w.store.ActiveContract(ctx, w.riders["y"], w.season.ID)
		if err != nil || in == nil || in.TeamID != w.teamA.ID {
			t.Errorf("ActiveContract(y) = %+v, %v, want team A", in, err)
		}
	})

	t.Run("swap is paired", func(t *testing.T) {
		last, err := l.FindLastTransferAsOf(ctx, w.riders["y"], day("2024-03-10"))
		if err != nil || last == nil {
			t.Fatalf("FindLastTransferAsOf = %v, %v", last, err)
		}
		if last.Type != models.TransferUser || last.ToTeamID == nil || *last.ToTeamID != w.teamA.ID {
			t.Errorf("last transfer = %+v, want USER into team A", last)
		}

		inv, err := l.FindInversePair(ctx, last)
		if err != nil || inv == nil || inv.ID != w.riders["x"] {
			t.Errorf("FindInversePair = %v, %v, want rider x", inv, err)
		}

		vacated, err := l.FindLastTransferAsOf(ctx, w.riders["x"], day("2024-03-10"))
		if err != nil || vacated == nil || vacated.ToTeamID != nil {
			t.Errorf("x last transfer = %+v, %v, want vacating row", vacated, err)
		}

		count, err := l.CountTransfers(ctx, w.teamA.ID, day("2024-03-10"), day("2024-03-10"), models.QuotaTransferTypes)
		if err != nil || count != 1 {
			t.Errorf("CountTransfers = %d, %v, want 1", count, err)
		}
	})

	t.Run("latest transfers show who left", func(t *testing.T) {
		list, err := l.LatestTransfers(ctx, storage.TransferQuery{SeasonID: w.season.ID, TeamID: &w.teamA.ID})
		if err != nil {
			t.Fatalf("LatestTransfers failed: %v", err)
		}
		if len(list) != 2 || list[0].RiderID != w.riders["y"] || list[0].Inverse == nil || list[0].Inverse.ID != w.riders["x"] {
			t.Errorf("LatestTransfers = %+v, want y in for x, then draft", list)
		}
	})

	tests := []struct {
		name string
		swap Swap
	}{
		{"rider out not on team", Swap{Team: w.teamB, Season: w.season, RiderOut: w.riders["y"], RiderIn: w.riders["z"]}},
		{"same rider in and out", Swap{Team: w.teamA, Season: w.season, RiderOut: w.riders["y"], RiderIn: w.riders["y"]}},
		{"rider out never drafted", Swap{Team: w.teamA, Season: w.season, RiderOut: w.riders["w"], RiderIn: w.riders["z"]}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := l.ExecuteUserTransfer(ctx, tt.swap)
			if !errors.Is(err, ErrInvalidTimelineState) {
				t.Errorf("ExecuteUserTransfer error = %v, want ErrInvalidTimelineState", err)
			}
		})
	}

	t.Run("rejected swap leaves no trace", func(t *testing.T) {
		if _, err := l.AssignDraft(ctx, w.teamB, w.riders["z"], day("2024-01-01")); err != nil {
			t.Fatalf("AssignDraft failed: %v", err)
		}
		err := l.ExecuteUserTransfer(ctx, Swap{Team: w.teamA, Season: w.season, RiderOut: w.riders["y"], RiderIn: w.riders["z"]})
		if !errors.Is(err, ErrInvalidTimelineState) {
			t.Fatalf("error = %v, want ErrInvalidTimelineState", err)
		}
		c, _ := w.store.ActiveContract(ctx, w.riders["y"], w.season.ID)
		if c == nil || c.TeamID != w.teamA.ID {
			t.Errorf("y contract = %+v, want still on team A", c)
		}
		count, _ := l.CountTransfers(ctx, w.teamA.ID, day("2024-01-01"), day("2024-12-31"), models.QuotaTransferTypes)
		if count != 1 {
			t.Errorf("CountTransfers = %d, want 1", count)
		}
	})
}

func TestQuota(t *testing.T) {
	w := newWorld(t, nil)
	ctx := context.Background()
	l := New(w.store, fixedClock("2024-03-10"))

	period := &models.Period{SeasonID: w.season.ID, Start: day("2024-03-01"), End: day("2024-03-31"), MaxTransfers: 1}
	if err := w.store.CreatePeriod(ctx, period); err != nil {
		t.Fatalf("CreatePeriod failed: %v", err)
	}
	for _, name := range []string{"x", "z"} {
		if _, err := l.AssignDraft(ctx, w.teamA, w.riders[name], day("2024-01-01")); err != nil {
			t.Fatalf("AssignDraft failed: %v", err)
		}
	}

	status, err := l.Quota(ctx, w.teamA, w.season, day("2024-03-10"))
	if err != nil {
		t.Fatalf("Quota failed: %v", err)
	}
	if !status.Limited || status.Used != 0 || status.Left() != 1 {
		t.Errorf("Quota = %+v, want 0 of 1 used", status)
	}

	if err := l.ExecuteUserTransfer(ctx, Swap{Team: w.teamA, Season: w.season, RiderOut: w.riders["x"], RiderIn: w.riders["y"]}); err != nil {
		t.Fatalf("first transfer failed: %v", err)
	}

	err = l.ExecuteUserTransfer(ctx, Swap{Team: w.teamA, Season: w.season, RiderOut: w.riders["z"], RiderIn: w.riders["w"]})
	if !errors.Is(err, ErrTransferQuotaExceeded) {
		t.Fatalf("second transfer error = %v, want ErrTransferQuotaExceeded", err)
	}
	c, _ := w.store.ActiveContract(ctx, w.riders["z"], w.season.ID)
	if c == nil || c.TeamID != w.teamA.ID {
		t.Errorf("z contract = %+v, want untouched", c)
	}

	t.Run("admin transfers share the quota", func(t *testing.T) {
		err := l.ExecuteAdminTransfer(ctx, Swap{Team: w.teamA, Season: w.season, RiderOut: w.riders["z"], RiderIn: w.riders["w"]}, day("2024-03-20"))
		if !errors.Is(err, ErrTransferQuotaExceeded) {
			t.Errorf("admin transfer error = %v, want ErrTransferQuotaExceeded", err)
		}
	})

	t.Run("outside any period is unlimited", func(t *testing.T) {
		err := l.ExecuteAdminTransfer(ctx, Swap{Team: w.teamA, Season: w.season, RiderOut: w.riders["z"], RiderIn: w.riders["w"]}, day("2024-04-02"))
		if err != nil {
			t.Fatalf("admin transfer failed: %v", err)
		}
		status, err := l.Quota(ctx, w.teamA, w.season, day("2024-04-02"))
		if err != nil {
			t.Fatalf("Quota failed: %v", err)
		}
		if status.Limited || status.Left() != -1 {
			t.Errorf("Quota = %+v, want unlimited", status)
		}
	})
}

func TestSeasonQuotaFallback(t *testing.T) {
	limit := 1
	w := newWorld(t, &limit)
	ctx := context.Background()
	l := New(w.store, fixedClock("2024-06-01"))

	for _, name := range []string{"x", "z"} {
		if _, err := l.AssignDraft(ctx, w.teamA, w.riders[name], day("2024-01-01")); err != nil {
			t.Fatalf("AssignDraft failed: %v", err)
		}
	}
	if err := l.ExecuteUserTransfer(ctx, Swap{Team: w.teamA, Season: w.season, RiderOut: w.riders["x"], RiderIn: w.riders["y"]}); err != nil {
		t.Fatalf("first transfer failed: %v", err)
	}
	err := l.ExecuteAdminTransfer(ctx, Swap{Team: w.teamA, Season: w.season, RiderOut: w.riders["z"], RiderIn: w.riders["w"]}, day("2024-11-01"))
	if !errors.Is(err, ErrTransferQuotaExceeded) {
		t.Errorf("error = %v, want ErrTransferQuotaExceeded", err)
	}
}

func TestTransfersFollowHistory(t *testing.T) {
	w := newWorld(t, nil)
	ctx := context.Background()
	l := New(w.store)

	if _, err := l.AssignDraft(ctx, w.teamA, w.riders["x"], day("2024-03-01")); err != nil {
		t.Fatalf("AssignDraft(x) failed: %v", err)
	}
	if _, err := l.AssignDraft(ctx, w.teamB, w.riders["y"], day("2024-01-01")); err != nil {
		t.Fatalf("AssignDraft(y) failed: %v", err)
	}
	if err := l.ExecuteAdminTransfer(ctx, Swap{Team: w.teamB, Season: w.season, RiderOut: w.riders["y"], RiderIn: w.riders["w"]}, day("2024-04-01")); err != nil {
		t.Fatalf("ExecuteAdminTransfer(y->w) failed: %v", err)
	}

	t.Run("swap before the outgoing contract started", func(t *testing.T) {
		err := l.ExecuteAdminTransfer(ctx, Swap{Team: w.teamA, Season: w.season, RiderOut: w.riders["x"], RiderIn: w.riders["z"]}, day("2024-02-01"))
		if !errors.Is(err, ErrInvalidTimelineState) {
			t.Fatalf("ExecuteAdminTransfer error = %v, want ErrInvalidTimelineState", err)
		}
		c, err := w.store.ActiveContract(ctx, w.riders["x"], w.season.ID)
		if err != nil || c == nil {
			t.Fatalf("ActiveContract(x) = %v, %v", c, err)
		}
		if c.TeamID != w.teamA.ID || !c.Start.Equal(day("2024-03-01")) || c.End != nil {
			t.Errorf("contract of x = %+v, want open on team A since 2024-03-01", c)
		}
		in, err := w.store.ActiveContract(ctx, w.riders["z"], w.season.ID)
		if err != nil || in != nil {
			t.Errorf("ActiveContract(z) = %+v, %v, want nil", in, err)
		}
	})

	t.Run("swap before the incoming rider last moved", func(t *testing.T) {
		err := l.ExecuteAdminTransfer(ctx, Swap{Team: w.teamA, Season: w.season, RiderOut: w.riders["x"], RiderIn: w.riders["y"]}, day("2024-03-15"))
		if !errors.Is(err, ErrInvalidTimelineState) {
			t.Errorf("ExecuteAdminTransfer error = %v, want ErrInvalidTimelineState", err)
		}
	})

	t.Run("draft before the rider last moved", func(t *testing.T) {
		_, err := l.AssignDraft(ctx, w.teamA, w.riders["y"], day("2024-03-20"))
		if !errors.Is(err, ErrInvalidTimelineState) {
			t.Errorf("AssignDraft error = %v, want ErrInvalidTimelineState", err)
		}
	})

	t.Run("swap on the day the rider last moved", func(t *testing.T) {
		if err := l.ExecuteAdminTransfer(ctx, Swap{Team: w.teamA, Season: w.season, RiderOut: w.riders["x"], RiderIn: w.riders["y"]}, day("2024-04-01")); err != nil {
			t.Fatalf("ExecuteAdminTransfer failed: %v", err)
		}
		last, err := l.FindLastTransferAsOf(ctx, w.riders["y"], day("2024-04-01"))
		if err != nil || last == nil || last.ToTeamID == nil || *last.ToTeamID != w.teamA.ID {
			t.Errorf("FindLastTransferAsOf(y) = %+v, %v, want move to team A", last, err)
		}
	})
}
