package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mmynk/cyclear/internal/models"
	"github.com/mmynk/cyclear/internal/storage"
)

const seasonColumns = `id, slug, start_at, end_at, is_closed, is_current, max_points_per_rider, max_transfers`

type scanner interface {
	Scan(dest ...any) error
}

func scanSeason(row scanner) (*models.Season, error) {
	var (
		season     models.Season
		start, end int64
		maxPoints  sql.NullInt64
		maxTrans   sql.NullInt64
	)
	if err := row.Scan(&season.ID, &season.Slug, &start, &end, &season.Closed, &season.Current, &maxPoints, &maxTrans); err != nil {
		return nil, err
	}
	season.Start = fromUnix(start)
	season.End = fromUnix(end)
	season.MaxPointsPerRider = ptrInt(maxPoints)
	season.MaxTransfers = ptrInt(maxTrans)
	return &season, nil
}

// CreateSeason inserts a season, taking the current flag from any other season
// when the new one is current.
func (s *SQLiteStore) CreateSeason(ctx context.Context, season *models.Season) error {
	return s.withTx(ctx, func(q *queries) error {
		if season.Current {
			if _, err := q.db.ExecContext(ctx, "UPDATE seasons SET is_current = 0 WHERE is_current = 1"); err != nil {
				return fmt.Errorf("failed to clear current season: %w", err)
			}
		}

		res, err := q.db.ExecContext(ctx, `
			INSERT INTO seasons (slug, start_at, end_at, is_closed, is_current, max_points_per_rider, max_transfers)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			season.Slug, unix(season.Start), unix(season.End), season.Closed, season.Current,
			nullInt(season.MaxPointsPerRider), nullInt(season.MaxTransfers),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("season %q: %w", season.Slug, storage.ErrConflict)
			}
			return fmt.Errorf("failed to insert season: %w", err)
		}
		season.ID, err = res.LastInsertId()
		return err
	})
}

// SetCurrentSeason moves the current flag to the given season.
func (s *SQLiteStore) SetCurrentSeason(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(q *queries) error {
		if _, err := q.db.ExecContext(ctx, "UPDATE seasons SET is_current = 0 WHERE is_current = 1"); err != nil {
			return fmt.Errorf("failed to clear current season: %w", err)
		}
		res, err := q.db.ExecContext(ctx, "UPDATE seasons SET is_current = 1 WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("failed to set current season: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("season %d: %w", id, storage.ErrNotFound)
		}
		return nil
	})
}

// GetSeason retrieves a season by ID.
func (q *queries) GetSeason(ctx context.Context, id int64) (*models.Season, error) {
	season, err := scanSeason(q.db.QueryRowContext(ctx,
		"SELECT "+seasonColumns+" FROM seasons WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("season %d: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get season: %w", err)
	}
	return season, nil
}

// GetSeasonBySlug retrieves a season by slug.
func (q *queries) GetSeasonBySlug(ctx context.Context, slug string) (*models.Season, error) {
	season, err := scanSeason(q.db.QueryRowContext(ctx,
		"SELECT "+seasonColumns+" FROM seasons WHERE slug = ?", slug))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("season %q: %w", slug, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get season: %w", err)
	}
	return season, nil
}

// CurrentSeason retrieves the season flagged current.
func (q *queries) CurrentSeason(ctx context.Context) (*models.Season, error) {
	season, err := scanSeason(q.db.QueryRowContext(ctx,
		"SELECT "+seasonColumns+" FROM seasons WHERE is_current = 1 ORDER BY id DESC LIMIT 1"))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("current season: %w", storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get current season: %w", err)
	}
	return season, nil
}

// CreatePeriod inserts a period. Bounds are stored as whole days.
func (q *queries) CreatePeriod(ctx context.Context, period *models.Period) error {
	period.Start = models.StartOfDay(period.Start)
	period.End = models.EndOfDay(period.End)

	res, err := q.db.ExecContext(ctx,
		"INSERT INTO periods (season_id, start_at, end_at, max_transfers) VALUES (?, ?, ?, ?)",
		period.SeasonID, unix(period.Start), unix(period.End), period.MaxTransfers,
	)
	if err != nil {
		return fmt.Errorf("failed to insert period: %w", err)
	}
	period.ID, err = res.LastInsertId()
	return err
}

// ListPeriods returns a season's periods ordered by start date.
func (q *queries) ListPeriods(ctx context.Context, seasonID int64) ([]models.Period, error) {
	rows, err := q.db.QueryContext(ctx,
		"SELECT id, season_id, start_at, end_at, max_transfers FROM periods WHERE season_id = ? ORDER BY start_at, id",
		seasonID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list periods: %w", err)
	}
	defer rows.Close()

	var periods []models.Period
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan period: %w", err)
		}
		periods = append(periods, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating periods: %w", err)
	}
	return periods, nil
}

func scanPeriod(row scanner) (*models.Period, error) {
	var (
		p          models.Period
		start, end int64
	)
	if err := row.Scan(&p.ID, &p.SeasonID, &start, &end, &p.MaxTransfers); err != nil {
		return nil, err
	}
	p.Start = fromUnix(start)
	p.End = fromUnix(end)
	return &p, nil
}

// CreateTeam inserts a team. Abbreviations are unique within a season.
func (q *queries) CreateTeam(ctx context.Context, team *models.Team) error {
	res, err := q.db.ExecContext(ctx,
		"INSERT INTO teams (season_id, abbreviation, name, memo) VALUES (?, ?, ?, ?)",
		team.SeasonID, team.Abbreviation, team.Name, team.Memo,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("team %q: %w", team.Abbreviation, storage.ErrConflict)
		}
		return fmt.Errorf("failed to insert team: %w", err)
	}
	team.ID, err = res.LastInsertId()
	return err
}

// GetTeam retrieves a team by ID.
func (q *queries) GetTeam(ctx context.Context, id int64) (*models.Team, error) {
	team := &models.Team{}
	err := q.db.QueryRowContext(ctx,
		"SELECT id, season_id, abbreviation, name, memo FROM teams WHERE id = ?", id,
	).Scan(&team.ID, &team.SeasonID, &team.Abbreviation, &team.Name, &team.Memo)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("team %d: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get team: %w", err)
	}
	return team, nil
}

// GetTeamByAbbreviation retrieves a season's team by its short code.
func (q *queries) GetTeamByAbbreviation(ctx context.Context, seasonID int64, abbreviation string) (*models.Team, error) {
	team := &models.Team{}
	err := q.db.QueryRowContext(ctx,
		"SELECT id, season_id, abbreviation, name, memo FROM teams WHERE season_id = ? AND abbreviation = ?",
		seasonID, abbreviation,
	).Scan(&team.ID, &team.SeasonID, &team.Abbreviation, &team.Name, &team.Memo)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("team %q: %w", abbreviation, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get team: %w", err)
	}
	return team, nil
}

// ListTeams returns a season's teams ordered by abbreviation.
func (q *queries) ListTeams(ctx context.Context, seasonID int64) ([]models.Team, error) {
	rows, err := q.db.QueryContext(ctx,
		"SELECT id, season_id, abbreviation, name, memo FROM teams WHERE season_id = ? ORDER BY abbreviation",
		seasonID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}
	defer rows.Close()

	var teams []models.Team
	for rows.Next() {
		var t models.Team
		if err := rows.Scan(&t.ID, &t.SeasonID, &t.Abbreviation, &t.Name, &t.Memo); err != nil {
			return nil, fmt.Errorf("failed to scan team: %w", err)
		}
		teams = append(teams, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating teams: %w", err)
	}
	return teams, nil
}

// CreateRider inserts a rider. An empty ExternalID is stored as NULL.
func (q *queries) CreateRider(ctx context.Context, rider *models.Rider) error {
	res, err := q.db.ExecContext(ctx,
		"INSERT INTO riders (name, external_id) VALUES (?, ?)",
		rider.Name, nullString(rider.ExternalID),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("rider %q: %w", rider.ExternalID, storage.ErrConflict)
		}
		return fmt.Errorf("failed to insert rider: %w", err)
	}
	rider.ID, err = res.LastInsertId()
	return err
}

// GetRider retrieves a rider by ID.
func (q *queries) GetRider(ctx context.Context, id int64) (*models.Rider, error) {
	rider, err := scanRider(q.db.QueryRowContext(ctx,
		"SELECT id, name, external_id FROM riders WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("rider %d: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rider: %w", err)
	}
	return rider, nil
}

// GetRiderByExternalID retrieves a rider by their ranking-site identifier.
func (q *queries) GetRiderByExternalID(ctx context.Context, externalID string) (*models.Rider, error) {
	rider, err := scanRider(q.db.QueryRowContext(ctx,
		"SELECT id, name, external_id FROM riders WHERE external_id = ?", externalID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Rider not found
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rider by external ID: %w", err)
	}
	return rider, nil
}

func scanRider(row scanner) (*models.Rider, error) {
	var (
		r   models.Rider
		ext sql.NullString
	)
	if err := row.Scan(&r.ID, &r.Name, &ext); err != nil {
		return nil, err
	}
	r.ExternalID = ext.String
	return &r, nil
}
