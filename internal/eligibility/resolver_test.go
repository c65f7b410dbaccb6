package eligibility

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/mmynk/cyclear/internal/models"
)

// fakeTimeline answers LastTransferUntil from an in-memory list.
type fakeTimeline struct {
	transfers []models.Transfer
	err       error
}

func (f *fakeTimeline) LastTransferUntil(_ context.Context, riderID int64, until time.Time) (*models.Transfer, error) {
	if f.err != nil {
		return nil, f.err
	}
	var matches []models.Transfer
	for _, t := range f.transfers {
		if t.RiderID == riderID && !t.Date.After(until) {
			matches = append(matches, t)
		}
	}
	if len(matches) == 0 {
		return nil, nil
	}
	sort.Slice(matches, func(i, j int) bool {
		if !matches[i].Date.Equal(matches[j].Date) {
			return matches[i].Date.After(matches[j].Date)
		}
		return matches[i].ID > matches[j].ID
	})
	return &matches[0], nil
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestCanAttributePoints(t *testing.T) {
	teamA, teamB := int64(1), int64(2)
	timeline := &fakeTimeline{transfers: []models.Transfer{
		{ID: 1, RiderID: 10, ToTeamID: &teamA, Type: models.TransferDraft, Date: day("2024-01-01")},
		{ID: 2, RiderID: 10, Type: models.TransferUser, Date: day("2024-03-10"), PairKey: "p"},
		{ID: 3, RiderID: 10, ToTeamID: &teamB, Type: models.TransferUser, Date: day("2024-03-10"), PairKey: "q"},
		{ID: 4, RiderID: 20, ToTeamID: &teamA, Type: models.TransferDraft, Date: day("2024-02-01")},
	}}
	r := NewResolver(timeline)
	ctx := context.Background()
	ref := func(s string) *time.Time { d := day(s); return &d }

	tests := []struct {
		name     string
		rider    int64
		raceDate time.Time
		refDate  *time.Time
		want     bool
		wantTeam *int64
	}{
		{"no transfer yet", 20, day("2024-01-15"), nil, false, nil},
		{"unknown rider", 99, day("2024-06-01"), nil, false, nil},
		{"joined before race day", 10, day("2024-02-01"), nil, true, &teamA},
		{"same-day draft does not count", 20, day("2024-02-01"), nil, false, nil},
		{"transfer later that day still blocks", 10, day("2024-03-10").Add(8 * time.Hour), nil, false, nil},
		{"day after transfer credits new team", 10, day("2024-03-11"), nil, true, &teamB},
		{"reference on same transfer", 10, day("2024-03-20"), ref("2024-03-12"), true, &teamB},
		{"intervening transfer withholds", 10, day("2024-03-20"), ref("2024-03-01"), false, nil},
		{"reference before any transfer", 20, day("2024-02-10"), ref("2024-01-10"), false, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.CanAttributePoints(ctx, tt.rider, tt.raceDate, tt.refDate)
			if err != nil {
				t.Fatalf("CanAttributePoints failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("CanAttributePoints = %v, want %v", got, tt.want)
			}

			team, err := r.TeamAsOf(ctx, tt.rider, tt.raceDate, tt.refDate)
			if err != nil {
				t.Fatalf("TeamAsOf failed: %v", err)
			}
			switch {
			case tt.wantTeam == nil && team != nil:
				t.Errorf("TeamAsOf = %d, want nil", *team)
			case tt.wantTeam != nil && (team == nil || *team != *tt.wantTeam):
				t.Errorf("TeamAsOf = %v, want %d", team, *tt.wantTeam)
			}
		})
	}
}

func TestCanAttributePointsPropagatesErrors(t *testing.T) {
	boom := errors.New("db down")
	r := NewResolver(&fakeTimeline{err: boom})

	_, err := r.CanAttributePoints(context.Background(), 1, day("2024-01-01"), nil)
	if !errors.Is(err, boom) {
		t.Errorf("error = %v, want %v", err, boom)
	}
}
