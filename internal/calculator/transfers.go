package calculator

import (
	"cmp"
	"slices"

	"github.com/mmynk/cyclear/internal/models"
)

// Acquisitions describes which riders each team brought in after the draft.
type Acquisitions struct {
	Teams  []models.Team
	Riders map[int64]models.Rider

	// Acquired maps team ID to riders it gained through USER or ADMIN transfers.
	Acquired map[int64][]int64

	// Drafted maps team ID to the set of riders it drafted.
	Drafted map[int64]map[int64]bool
}

// BestTransfers ranks (rider, team) pairs by the team-points the rider earned
// for a team that acquired them mid-season. Pairs that earned nothing are omitted.
func BestTransfers(a Acquisitions, results []ResultForScore) []models.RiderTeamPoints {
	type key struct{ rider, team int64 }
	sums := make(map[key]int)
	for _, r := range results {
		if r.TeamID == nil || r.TeamPoints <= 0 {
			continue
		}
		sums[key{r.RiderID, *r.TeamID}] += r.TeamPoints
	}

	var out []models.RiderTeamPoints
	for _, team := range a.Teams {
		for _, riderID := range a.Acquired[team.ID] {
			points := sums[key{riderID, team.ID}]
			if points == 0 {
				continue
			}
			rider, ok := a.Riders[riderID]
			if !ok {
				rider = models.Rider{ID: riderID}
			}
			out = append(out, models.RiderTeamPoints{Rider: rider, Team: team, Points: points})
		}
	}

	slices.SortStableFunc(out, func(x, y models.RiderTeamPoints) int {
		return cmp.Or(
			cmp.Compare(y.Points, x.Points),
			cmp.Compare(x.Rider.Name, y.Rider.Name),
			cmp.Compare(x.Team.Abbreviation, y.Team.Abbreviation),
		)
	})
	return out
}

// TransferTotals sums, per team, team-points earned by riders it acquired
// through transfers and did not draft itself.
func TransferTotals(a Acquisitions, results []ResultForScore) []models.TeamPoints {
	acquired := make(map[int64]map[int64]bool, len(a.Acquired))
	for teamID, riders := range a.Acquired {
		set := make(map[int64]bool, len(riders))
		for _, riderID := range riders {
			if !a.Drafted[teamID][riderID] {
				set[riderID] = true
			}
		}
		acquired[teamID] = set
	}

	sums := make(map[int64]int)
	for _, r := range results {
		if r.TeamID == nil || r.TeamPoints <= 0 {
			continue
		}
		if acquired[*r.TeamID][r.RiderID] {
			sums[*r.TeamID] += r.TeamPoints
		}
	}

	out := make([]models.TeamPoints, 0, len(a.Teams))
	for _, team := range a.Teams {
		out = append(out, models.TeamPoints{Team: team, Points: sums[team.ID]})
	}
	SortStandings(out)
	return out
}
