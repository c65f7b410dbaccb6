package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mmynk/cyclear/internal/models"
	"github.com/mmynk/cyclear/internal/storage"
)

// RaceExists reports whether a race with the external ID was already stored.
func (q *queries) RaceExists(ctx context.Context, externalID string) (bool, error) {
	var exists bool
	err := q.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM races WHERE external_id = ?)", externalID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check race: %w", err)
	}
	return exists, nil
}

// CreateRace persists a race and all its results in one transaction.
func (s *SQLiteStore) CreateRace(ctx context.Context, race *models.Race, results []models.RaceResult) error {
	return s.withTx(ctx, func(q *queries) error {
		res, err := q.db.ExecContext(ctx, `
			INSERT INTO races (season_id, name, race_at, general_classification, external_id, fully_processed)
			VALUES (?, ?, ?, ?, ?, ?)`,
			race.SeasonID, race.Name, unix(race.Date), race.GeneralClassification, race.ExternalID, race.FullyProcessed,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("race %q: %w", race.ExternalID, storage.ErrConflict)
			}
			return fmt.Errorf("failed to insert race: %w", err)
		}
		if race.ID, err = res.LastInsertId(); err != nil {
			return err
		}

		for i := range results {
			r := &results[i]
			r.RaceID = race.ID
			res, err := q.db.ExecContext(ctx, `
				INSERT INTO race_results (race_id, rider_id, team_id, rider_points, team_points, position)
				VALUES (?, ?, ?, ?, ?, ?)`,
				r.RaceID, nullInt64(r.RiderID), nullInt64(r.TeamID), r.RiderPoints, r.TeamPoints, r.Position,
			)
			if err != nil {
				return fmt.Errorf("failed to insert result: %w", err)
			}
			if r.ID, err = res.LastInsertId(); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListRaces returns a season's races in date order.
func (q *queries) ListRaces(ctx context.Context, seasonID int64) ([]models.Race, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, season_id, name, race_at, general_classification, external_id, fully_processed
		FROM races
		WHERE season_id = ?
		ORDER BY race_at, id`,
		seasonID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list races: %w", err)
	}
	defer rows.Close()

	var races []models.Race
	for rows.Next() {
		var (
			r  models.Race
			at int64
		)
		if err := rows.Scan(&r.ID, &r.SeasonID, &r.Name, &at, &r.GeneralClassification, &r.ExternalID, &r.FullyProcessed); err != nil {
			return nil, fmt.Errorf("failed to scan race: %w", err)
		}
		r.Date = fromUnix(at)
		races = append(races, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating races: %w", err)
	}
	return races, nil
}

// ListRaceResults returns a race's results ordered by position.
func (q *queries) ListRaceResults(ctx context.Context, raceID int64) ([]models.RaceResult, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, race_id, rider_id, team_id, rider_points, team_points, position
		FROM race_results
		WHERE race_id = ?
		ORDER BY position, id`,
		raceID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	defer rows.Close()

	var results []models.RaceResult
	for rows.Next() {
		var (
			r           models.RaceResult
			rider, team sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &r.RaceID, &rider, &team, &r.RiderPoints, &r.TeamPoints, &r.Position); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		r.RiderID = ptrInt64(rider)
		r.TeamID = ptrInt64(team)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating results: %w", err)
	}
	return results, nil
}
