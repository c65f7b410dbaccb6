package calculator

import (
	"github.com/mmynk/cyclear/internal/models"
)

// ResultForScore is a race result with the minimal information needed for scoring.
type ResultForScore struct {
	RiderID     int64
	TeamID      *int64
	RiderPoints int
	TeamPoints  int
}

// DraftPicks is the draft roster of every team with each pick's season total.
type DraftPicks struct {
	Teams []models.Team

	// Drafted maps team ID to the riders it drafted.
	Drafted map[int64][]int64

	// RiderTotals holds each drafted rider's season rider-points.
	RiderTotals map[int64]int

	// Cap is the per-rider draft cap. Nil means unbounded.
	Cap *int
}

// Clamp limits points to cap. A nil cap leaves points unchanged.
func Clamp(points int, cap *int) int {
	if cap == nil {
		return points
	}
	return min(points, *cap)
}

// DraftTotals sums each team's draft picks, contributing at most Cap per rider.
// RawPoints carries the unclamped sum of the same riders.
//
// Algorithm:
// - For each team, for each drafted rider: clamped += min(total, cap), raw += total
// - Sort by clamped points descending, then abbreviation
func DraftTotals(p DraftPicks) []models.DraftTeamPoints {
	out := make([]models.DraftTeamPoints, 0, len(p.Teams))
	for _, team := range p.Teams {
		row := models.DraftTeamPoints{Team: team}
		for _, riderID := range p.Drafted[team.ID] {
			total := p.RiderTotals[riderID]
			row.Points += Clamp(total, p.Cap)
			row.RawPoints += total
		}
		out = append(out, row)
	}

	sortByPoints(out, func(r models.DraftTeamPoints) (int, string) {
		return r.Points, r.Team.Abbreviation
	})
	return out
}

// LostDraftPoints sums, per team, the points its draft picks scored without
// crediting that team: results for another team, for no team, or for this
// team with zero team-points. Riders whose season total already reaches the
// cap are skipped, since the team got its full entitlement from them.
func LostDraftPoints(p DraftPicks, results []ResultForScore) []models.TeamPoints {
	byRider := make(map[int64][]ResultForScore)
	for _, r := range results {
		if r.RiderPoints > 0 {
			byRider[r.RiderID] = append(byRider[r.RiderID], r)
		}
	}

	out := make([]models.TeamPoints, 0, len(p.Teams))
	for _, team := range p.Teams {
		row := models.TeamPoints{Team: team}
		for _, riderID := range p.Drafted[team.ID] {
			if p.Cap != nil && p.RiderTotals[riderID] >= *p.Cap {
				continue
			}
			for _, r := range byRider[riderID] {
				if creditedTo(r, team.ID) {
					continue
				}
				row.Points += r.RiderPoints
			}
		}
		out = append(out, row)
	}

	SortStandings(out)
	return out
}

// creditedTo reports whether the result earned team-points for teamID.
func creditedTo(r ResultForScore, teamID int64) bool {
	return r.TeamID != nil && *r.TeamID == teamID && r.TeamPoints != 0
}
