package models

// TeamPoints is one leaderboard row: a team and its score under some regime.
type TeamPoints struct {
	Team   Team
	Points int
}

// DraftTeamPoints is a draft leaderboard row. Points is the capped total,
// RawPoints the uncapped sum of the same riders.
type DraftTeamPoints struct {
	Team      Team
	Points    int
	RawPoints int
}

// RiderTeamPoints credits a rider's points to one team.
type RiderTeamPoints struct {
	Rider  Rider
	Team   Team
	Points int
}
