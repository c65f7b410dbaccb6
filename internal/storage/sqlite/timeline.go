package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mmynk/cyclear/internal/models"
	"github.com/mmynk/cyclear/internal/storage"
)

const transferColumns = `id, rider_id, season_id, to_team_id, type, transfer_at, pair_key`

func scanTransfer(row scanner) (*models.Transfer, error) {
	var (
		t       models.Transfer
		toTeam  sql.NullInt64
		at      int64
		pairKey sql.NullString
	)
	if err := row.Scan(&t.ID, &t.RiderID, &t.SeasonID, &toTeam, &t.Type, &at, &pairKey); err != nil {
		return nil, err
	}
	t.ToTeamID = ptrInt64(toTeam)
	t.Date = fromUnix(at)
	t.PairKey = pairKey.String
	return &t, nil
}

// LastTransferUntil returns the rider's latest transfer dated at or before until.
func (q *queries) LastTransferUntil(ctx context.Context, riderID int64, until time.Time) (*models.Transfer, error) {
	t, err := scanTransfer(q.db.QueryRowContext(ctx, `
		SELECT `+transferColumns+`
		FROM transfers
		WHERE rider_id = ? AND transfer_at <= ?
		ORDER BY transfer_at DESC, id DESC
		LIMIT 1`,
		riderID, unix(until),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find last transfer: %w", err)
	}
	return t, nil
}

// CountTransfers counts transfers into a team within [start, end].
func (q *queries) CountTransfers(ctx context.Context, teamID int64, start, end time.Time, types []models.TransferType) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM transfers
		WHERE to_team_id = ? AND transfer_at >= ? AND transfer_at <= ?`
	args := []any{teamID, unix(start), unix(end)}
	if len(types) > 0 {
		query += " AND type IN (" + placeholders(len(types)) + ")"
		for _, t := range types {
			args = append(args, string(t))
		}
	}

	var n int
	if err := q.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count transfers: %w", err)
	}
	return n, nil
}

// InverseRider returns the rider on the other half of a swap.
func (q *queries) InverseRider(ctx context.Context, transfer *models.Transfer) (*models.Rider, error) {
	if transfer == nil || transfer.PairKey == "" {
		return nil, nil
	}
	rider, err := scanRider(q.db.QueryRowContext(ctx, `
		SELECT r.id, r.name, r.external_id
		FROM transfers t
		JOIN riders r ON r.id = t.rider_id
		WHERE t.pair_key = ? AND t.id <> ?
		ORDER BY t.id
		LIMIT 1`,
		transfer.PairKey, transfer.ID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find inverse transfer: %w", err)
	}
	return rider, nil
}

const contractColumns = `id, rider_id, team_id, season_id, start_at, end_at`

func scanContract(row scanner) (*models.Contract, error) {
	var (
		c     models.Contract
		start int64
		end   sql.NullInt64
	)
	if err := row.Scan(&c.ID, &c.RiderID, &c.TeamID, &c.SeasonID, &start, &end); err != nil {
		return nil, err
	}
	c.Start = fromUnix(start)
	if end.Valid {
		e := fromUnix(end.Int64)
		c.End = &e
	}
	return &c, nil
}

// ActiveContract returns the rider's open contract in a season, or nil.
func (q *queries) ActiveContract(ctx context.Context, riderID, seasonID int64) (*models.Contract, error) {
	c, err := scanContract(q.db.QueryRowContext(ctx, `
		SELECT `+contractColumns+`
		FROM contracts
		WHERE rider_id = ? AND season_id = ? AND end_at IS NULL
		ORDER BY id DESC
		LIMIT 1`,
		riderID, seasonID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active contract: %w", err)
	}
	return c, nil
}

// ActiveContractsForTeam lists a team's open contracts.
func (q *queries) ActiveContractsForTeam(ctx context.Context, teamID int64) ([]models.Contract, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+contractColumns+`
		FROM contracts
		WHERE team_id = ? AND end_at IS NULL
		ORDER BY id`,
		teamID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list contracts: %w", err)
	}
	defer rows.Close()

	var contracts []models.Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contract: %w", err)
		}
		contracts = append(contracts, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating contracts: %w", err)
	}
	return contracts, nil
}

// PeriodAt returns the period of a season containing at.
func (q *queries) PeriodAt(ctx context.Context, seasonID int64, at time.Time) (*models.Period, error) {
	p, err := scanPeriod(q.db.QueryRowContext(ctx, `
		SELECT id, season_id, start_at, end_at, max_transfers
		FROM periods
		WHERE season_id = ? AND start_at <= ? AND end_at >= ?
		ORDER BY start_at DESC, id DESC
		LIMIT 1`,
		seasonID, unix(at), unix(at),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find period: %w", err)
	}
	return p, nil
}

// LatestTransfers lists transfers into teams, newest first, each joined with
// the rider that left in the same swap.
func (q *queries) LatestTransfers(ctx context.Context, tq storage.TransferQuery) ([]models.TransferWithInverse, error) {
	query := `
		SELECT t.id, t.rider_id, t.season_id, t.to_team_id, t.type, t.transfer_at, t.pair_key,
		       r.name, r.external_id,
		       inv.id, inv.name, inv.external_id
		FROM transfers t
		JOIN riders r ON r.id = t.rider_id
		LEFT JOIN transfers ti ON ti.pair_key = t.pair_key AND ti.id <> t.id
		LEFT JOIN riders inv ON inv.id = ti.rider_id
		WHERE t.to_team_id IS NOT NULL AND t.season_id = ?`
	args := []any{tq.SeasonID}

	if tq.TeamID != nil {
		query += " AND t.to_team_id = ?"
		args = append(args, *tq.TeamID)
	}
	if tq.RiderID != nil {
		query += " AND t.rider_id = ?"
		args = append(args, *tq.RiderID)
	}
	if len(tq.Types) > 0 {
		query += " AND t.type IN (" + placeholders(len(tq.Types)) + ")"
		for _, typ := range tq.Types {
			args = append(args, string(typ))
		}
	}
	query += " ORDER BY t.transfer_at DESC, t.id DESC"
	if tq.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, tq.Limit)
	}

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transfers: %w", err)
	}
	defer rows.Close()

	var out []models.TransferWithInverse
	for rows.Next() {
		var (
			tw       models.TransferWithInverse
			toTeam   sql.NullInt64
			at       int64
			pairKey  sql.NullString
			riderExt sql.NullString
			invID    sql.NullInt64
			invName  sql.NullString
			invExt   sql.NullString
		)
		if err := rows.Scan(
			&tw.ID, &tw.RiderID, &tw.SeasonID, &toTeam, &tw.Type, &at, &pairKey,
			&tw.Rider.Name, &riderExt,
			&invID, &invName, &invExt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan transfer: %w", err)
		}
		tw.ToTeamID = ptrInt64(toTeam)
		tw.Date = fromUnix(at)
		tw.PairKey = pairKey.String
		tw.Rider.ID = tw.RiderID
		tw.Rider.ExternalID = riderExt.String
		if invID.Valid {
			tw.Inverse = &models.Rider{ID: invID.Int64, Name: invName.String, ExternalID: invExt.String}
		}
		out = append(out, tw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transfers: %w", err)
	}
	return out, nil
}

// InsertTransfer appends a transfer. Transfers are never updated.
func (q *queries) InsertTransfer(ctx context.Context, t *models.Transfer) error {
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO transfers (rider_id, season_id, to_team_id, type, transfer_at, pair_key)
		VALUES (?, ?, ?, ?, ?, ?)`,
		t.RiderID, t.SeasonID, nullInt64(t.ToTeamID), string(t.Type), unix(t.Date), nullString(t.PairKey),
	)
	if err != nil {
		return fmt.Errorf("failed to insert transfer: %w", err)
	}
	t.ID, err = res.LastInsertId()
	return err
}

// InsertContract opens a contract. A second active contract for the same
// rider and season is rejected with storage.ErrConflict.
func (q *queries) InsertContract(ctx context.Context, c *models.Contract) error {
	var end sql.NullInt64
	if c.End != nil {
		end = sql.NullInt64{Int64: unix(*c.End), Valid: true}
	}
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO contracts (rider_id, team_id, season_id, start_at, end_at)
		VALUES (?, ?, ?, ?, ?)`,
		c.RiderID, c.TeamID, c.SeasonID, unix(c.Start), end,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("rider %d already contracted: %w", c.RiderID, storage.ErrConflict)
		}
		return fmt.Errorf("failed to insert contract: %w", err)
	}
	c.ID, err = res.LastInsertId()
	return err
}

// CloseContract ends an active contract.
func (q *queries) CloseContract(ctx context.Context, contractID int64, end time.Time) error {
	res, err := q.db.ExecContext(ctx,
		"UPDATE contracts SET end_at = ? WHERE id = ? AND end_at IS NULL",
		unix(end), contractID,
	)
	if err != nil {
		return fmt.Errorf("failed to close contract: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to close contract: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("active contract %d: %w", contractID, storage.ErrNotFound)
	}
	return nil
}
