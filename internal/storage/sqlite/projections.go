package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mmynk/cyclear/internal/models"
	"github.com/mmynk/cyclear/internal/storage"
)

// TeamPoints sums team-points per team in a single grouped pass. Every team
// of the season appears, with zero when it has no results in the window.
func (q *queries) TeamPoints(ctx context.Context, seasonID int64, teamID *int64, w storage.Window) ([]models.TeamPoints, error) {
	args := []any{seasonID}
	window, args := windowClause("w.race_at", w, args)

	query := `
		SELECT p.id, p.season_id, p.abbreviation, p.name, p.memo, IFNULL(SUM(x.team_points), 0) AS points
		FROM teams p
		LEFT JOIN (
			SELECT u.team_id, u.team_points
			FROM race_results u
			JOIN races w ON w.id = u.race_id
			WHERE w.season_id = ?` + window + `
		) x ON x.team_id = p.id
		WHERE p.season_id = ?`
	args = append(args, seasonID)
	if teamID != nil {
		query += " AND p.id = ?"
		args = append(args, *teamID)
	}
	query += `
		GROUP BY p.id
		ORDER BY points DESC, p.abbreviation ASC`

	return q.teamAggregate(ctx, "team points", query, args)
}

// PositionCounts counts point-earning results at a position per team.
func (q *queries) PositionCounts(ctx context.Context, seasonID int64, position int, w storage.Window) ([]models.TeamPoints, error) {
	args := []any{seasonID, position}
	window, args := windowClause("w.race_at", w, args)

	query := `
		SELECT p.id, p.season_id, p.abbreviation, p.name, p.memo, COUNT(x.team_id) AS points
		FROM teams p
		LEFT JOIN (
			SELECT u.team_id
			FROM race_results u
			JOIN races w ON w.id = u.race_id
			WHERE w.season_id = ? AND u.position = ? AND u.team_points > 0` + window + `
		) x ON x.team_id = p.id
		WHERE p.season_id = ?
		GROUP BY p.id
		ORDER BY points DESC, p.abbreviation ASC`
	args = append(args, seasonID)

	return q.teamAggregate(ctx, "position counts", query, args)
}

func (q *queries) teamAggregate(ctx context.Context, what, query string, args []any) ([]models.TeamPoints, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", what, err)
	}
	defer rows.Close()

	var out []models.TeamPoints
	for rows.Next() {
		var tp models.TeamPoints
		if err := rows.Scan(&tp.Team.ID, &tp.Team.SeasonID, &tp.Team.Abbreviation, &tp.Team.Name, &tp.Team.Memo, &tp.Points); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", what, err)
		}
		out = append(out, tp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s: %w", what, err)
	}
	return out, nil
}

// RiderSeasonPoints sums a rider's rider-points over a season.
func (q *queries) RiderSeasonPoints(ctx context.Context, riderID, seasonID int64) (int, error) {
	var total int
	err := q.db.QueryRowContext(ctx, `
		SELECT IFNULL(SUM(u.rider_points), 0)
		FROM race_results u
		JOIN races w ON w.id = u.race_id
		WHERE u.rider_id = ? AND w.season_id = ?`,
		riderID, seasonID,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum rider points: %w", err)
	}
	return total, nil
}

const draftedRiders = `SELECT rider_id FROM transfers WHERE type = 'DRAFT' AND season_id = ? AND to_team_id IS NOT NULL`

const acquiredRiders = `SELECT rider_id FROM transfers WHERE type <> 'DRAFT' AND season_id = ? AND to_team_id IS NOT NULL`

// DraftSnapshot reads draft picks, rider totals and windowed results inside
// one transaction so every figure derives from the same state.
func (s *SQLiteStore) DraftSnapshot(ctx context.Context, seasonID int64, w storage.Window) (*storage.DraftSnapshot, error) {
	snap := &storage.DraftSnapshot{
		Drafted:     make(map[int64][]int64),
		RiderTotals: make(map[int64]int),
	}

	err := s.withReadTx(ctx, func(q *queries) error {
		var err error
		if snap.Teams, err = q.ListTeams(ctx, seasonID); err != nil {
			return err
		}

		if err := q.eachPair(ctx, `
			SELECT to_team_id, rider_id
			FROM transfers
			WHERE type = 'DRAFT' AND season_id = ? AND to_team_id IS NOT NULL
			GROUP BY to_team_id, rider_id
			ORDER BY MIN(id)`,
			[]any{seasonID},
			func(team, rider int64) { snap.Drafted[team] = append(snap.Drafted[team], rider) },
		); err != nil {
			return fmt.Errorf("failed to read draft picks: %w", err)
		}

		if err := q.eachPair(ctx, `
			SELECT u.rider_id, SUM(u.rider_points)
			FROM race_results u
			JOIN races w ON w.id = u.race_id
			WHERE w.season_id = ? AND u.rider_id IN (`+draftedRiders+`)
			GROUP BY u.rider_id`,
			[]any{seasonID, seasonID},
			func(rider, total int64) { snap.RiderTotals[rider] = int(total) },
		); err != nil {
			return fmt.Errorf("failed to read rider totals: %w", err)
		}

		args := []any{seasonID, seasonID}
		window, args := windowClause("w.race_at", w, args)
		snap.Results, err = q.resultRows(ctx, `
			SELECT u.rider_id, u.team_id, u.rider_points, u.team_points
			FROM race_results u
			JOIN races w ON w.id = u.race_id
			WHERE w.season_id = ? AND u.rider_points > 0
			  AND u.rider_id IN (`+draftedRiders+`)`+window+`
			ORDER BY u.id`,
			args,
		)
		return err
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// TransferSnapshot reads non-draft acquisitions and the acquired riders'
// team-credited results inside one transaction.
func (s *SQLiteStore) TransferSnapshot(ctx context.Context, seasonID int64, w storage.Window) (*storage.TransferSnapshot, error) {
	snap := &storage.TransferSnapshot{
		Riders:   make(map[int64]models.Rider),
		Acquired: make(map[int64][]int64),
		Drafted:  make(map[int64]map[int64]bool),
	}

	err := s.withReadTx(ctx, func(q *queries) error {
		var err error
		if snap.Teams, err = q.ListTeams(ctx, seasonID); err != nil {
			return err
		}

		if err := q.eachPair(ctx, `
			SELECT to_team_id, rider_id
			FROM transfers
			WHERE type <> 'DRAFT' AND season_id = ? AND to_team_id IS NOT NULL
			GROUP BY to_team_id, rider_id
			ORDER BY MIN(id)`,
			[]any{seasonID},
			func(team, rider int64) { snap.Acquired[team] = append(snap.Acquired[team], rider) },
		); err != nil {
			return fmt.Errorf("failed to read acquisitions: %w", err)
		}

		if err := q.eachPair(ctx, `
			SELECT DISTINCT to_team_id, rider_id
			FROM transfers
			WHERE type = 'DRAFT' AND season_id = ? AND to_team_id IS NOT NULL`,
			[]any{seasonID},
			func(team, rider int64) {
				if snap.Drafted[team] == nil {
					snap.Drafted[team] = make(map[int64]bool)
				}
				snap.Drafted[team][rider] = true
			},
		); err != nil {
			return fmt.Errorf("failed to read draft picks: %w", err)
		}

		rows, err := q.db.QueryContext(ctx,
			"SELECT id, name, external_id FROM riders WHERE id IN ("+acquiredRiders+")", seasonID)
		if err != nil {
			return fmt.Errorf("failed to read riders: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			r, err := scanRider(rows)
			if err != nil {
				return fmt.Errorf("failed to scan rider: %w", err)
			}
			snap.Riders[r.ID] = *r
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("error iterating riders: %w", err)
		}

		args := []any{seasonID, seasonID}
		window, args := windowClause("w.race_at", w, args)
		snap.Results, err = q.resultRows(ctx, `
			SELECT u.rider_id, u.team_id, u.rider_points, u.team_points
			FROM race_results u
			JOIN races w ON w.id = u.race_id
			WHERE w.season_id = ? AND u.team_id IS NOT NULL AND u.team_points > 0
			  AND u.rider_id IN (`+acquiredRiders+`)`+window+`
			ORDER BY u.id`,
			args,
		)
		return err
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// eachPair runs a two-integer-column query and calls fn for every row.
func (q *queries) eachPair(ctx context.Context, query string, args []any, fn func(a, b int64)) error {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var a, b int64
		if err := rows.Scan(&a, &b); err != nil {
			return err
		}
		fn(a, b)
	}
	return rows.Err()
}

func (q *queries) resultRows(ctx context.Context, query string, args []any) ([]storage.ResultRow, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to read results: %w", err)
	}
	defer rows.Close()

	var out []storage.ResultRow
	for rows.Next() {
		var (
			r    storage.ResultRow
			team sql.NullInt64
		)
		if err := rows.Scan(&r.RiderID, &team, &r.RiderPoints, &r.TeamPoints); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		r.TeamID = ptrInt64(team)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating results: %w", err)
	}
	return out, nil
}
