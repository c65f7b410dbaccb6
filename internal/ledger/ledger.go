// Package ledger records roster-changing events and enforces the timeline
// invariants: one active contract per rider and season, and period quotas.
//
// The ledger does not lock. Callers must hold RiderLocks for every rider a
// swap or draft touches for the duration of the call.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/cyclear/internal/models"
	"github.com/mmynk/cyclear/internal/storage"
)

// Ledger appends and queries transfers and contracts.
type Ledger struct {
	store storage.TimelineStore
	now   func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the clock used to date user transfers.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// New creates a Ledger over the given timeline store.
func New(store storage.TimelineStore, opts ...Option) *Ledger {
	l := &Ledger{store: store, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Swap is a request to replace RiderOut with RiderIn on Team.
type Swap struct {
	Team     *models.Team
	Season   *models.Season
	RiderOut int64
	RiderIn  int64
}

// FindLastTransferAsOf returns the rider's latest transfer dated on or before
// the end of date's day. Later insertions win ties.
func (l *Ledger) FindLastTransferAsOf(ctx context.Context, riderID int64, date time.Time) (*models.Transfer, error) {
	return l.store.LastTransferUntil(ctx, riderID, models.EndOfDay(date))
}

// CountTransfers counts transfers into a team dated within the given days.
func (l *Ledger) CountTransfers(ctx context.Context, teamID int64, start, end time.Time, types []models.TransferType) (int, error) {
	return l.store.CountTransfers(ctx, teamID, models.StartOfDay(start), models.EndOfDay(end), types)
}

// FindInversePair returns the rider given up in the swap that produced t.
func (l *Ledger) FindInversePair(ctx context.Context, t *models.Transfer) (*models.Rider, error) {
	return l.store.InverseRider(ctx, t)
}

// LatestTransfers lists transfers into teams, newest first.
func (l *Ledger) LatestTransfers(ctx context.Context, q storage.TransferQuery) ([]models.TransferWithInverse, error) {
	return l.store.LatestTransfers(ctx, q)
}

// Roster returns the active contracts of a team in the order they opened.
func (l *Ledger) Roster(ctx context.Context, teamID int64) ([]models.Contract, error) {
	return l.store.ActiveContractsForTeam(ctx, teamID)
}

// Quota reports a team's quota usage for transfers dated at.
func (l *Ledger) Quota(ctx context.Context, team *models.Team, season *models.Season, at time.Time) (QuotaStatus, error) {
	return quotaStatus(ctx, l.store, team.ID, season, at)
}

// ExecuteUserTransfer swaps two riders on a team, dated today.
func (l *Ledger) ExecuteUserTransfer(ctx context.Context, s Swap) error {
	return l.execute(ctx, s, models.TransferUser, l.now())
}

// ExecuteAdminTransfer swaps two riders on a team at an explicit date. A zero
// date means today.
func (l *Ledger) ExecuteAdminTransfer(ctx context.Context, s Swap, date time.Time) error {
	if date.IsZero() {
		date = l.now()
	}
	return l.execute(ctx, s, models.TransferAdmin, date)
}

// execute closes RiderOut's contract, opens one for RiderIn and records both
// halves of the swap under one pairing key, all in one transaction.
func (l *Ledger) execute(ctx context.Context, s Swap, typ models.TransferType, date time.Time) error {
	if s.Team == nil || s.Season == nil {
		return fmt.Errorf("swap requires team and season: %w", ErrInvalidTimelineState)
	}
	if s.RiderOut == s.RiderIn {
		return fmt.Errorf("rider %d cannot replace itself: %w", s.RiderIn, ErrInvalidTimelineState)
	}
	if s.Team.SeasonID != s.Season.ID {
		return fmt.Errorf("team %d is not in season %d: %w", s.Team.ID, s.Season.ID, ErrInvalidTimelineState)
	}
	date = date.UTC()

	return l.store.RunInTx(ctx, func(tx storage.TimelineTx) error {
		quota, err := quotaStatus(ctx, tx, s.Team.ID, s.Season, date)
		if err != nil {
			return err
		}
		if quota.Exhausted() {
			return fmt.Errorf("team %d used %d of %d transfers: %w", s.Team.ID, quota.Used, quota.Max, ErrTransferQuotaExceeded)
		}

		out, err := tx.ActiveContract(ctx, s.RiderOut, s.Season.ID)
		if err != nil {
			return err
		}
		if out == nil || out.TeamID != s.Team.ID {
			return fmt.Errorf("rider %d is not on team %d: %w", s.RiderOut, s.Team.ID, ErrInvalidTimelineState)
		}

		in, err := tx.ActiveContract(ctx, s.RiderIn, s.Season.ID)
		if err != nil {
			return err
		}
		if in != nil {
			return fmt.Errorf("rider %d already contracted to team %d: %w", s.RiderIn, in.TeamID, ErrInvalidTimelineState)
		}
		if date.Before(out.Start) {
			return fmt.Errorf("swap dated %s precedes contract of rider %d starting %s: %w",
				date.Format(time.DateOnly), s.RiderOut, out.Start.Format(time.DateOnly), ErrInvalidTimelineState)
		}
		if err := notBeforeLatest(ctx, tx, date, s.RiderOut, s.RiderIn); err != nil {
			return err
		}

		if err := tx.CloseContract(ctx, out.ID, date); err != nil {
			return err
		}

		key := uuid.NewString()
		if err := tx.InsertTransfer(ctx, &models.Transfer{
			RiderID:  s.RiderOut,
			SeasonID: s.Season.ID,
			Type:     typ,
			Date:     date,
			PairKey:  key,
		}); err != nil {
			return err
		}
		teamID := s.Team.ID
		if err := tx.InsertTransfer(ctx, &models.Transfer{
			RiderID:  s.RiderIn,
			SeasonID: s.Season.ID,
			ToTeamID: &teamID,
			Type:     typ,
			Date:     date,
			PairKey:  key,
		}); err != nil {
			return err
		}

		return openContract(ctx, tx, &models.Contract{
			RiderID:  s.RiderIn,
			TeamID:   s.Team.ID,
			SeasonID: s.Season.ID,
			Start:    date,
		})
	})
}

// AssignDraft places an uncontracted rider on a team with a DRAFT transfer.
func (l *Ledger) AssignDraft(ctx context.Context, team *models.Team, riderID int64, date time.Time) (*models.Transfer, error) {
	if date.IsZero() {
		date = l.now()
	}
	date = date.UTC()

	t := &models.Transfer{
		RiderID:  riderID,
		SeasonID: team.SeasonID,
		ToTeamID: &team.ID,
		Type:     models.TransferDraft,
		Date:     date,
	}
	err := l.store.RunInTx(ctx, func(tx storage.TimelineTx) error {
		active, err := tx.ActiveContract(ctx, riderID, team.SeasonID)
		if err != nil {
			return err
		}
		if active != nil {
			return fmt.Errorf("rider %d already contracted to team %d: %w", riderID, active.TeamID, ErrInvalidTimelineState)
		}
		if err := notBeforeLatest(ctx, tx, date, riderID); err != nil {
			return err
		}
		if err := tx.InsertTransfer(ctx, t); err != nil {
			return err
		}
		return openContract(ctx, tx, &models.Contract{
			RiderID:  riderID,
			TeamID:   team.ID,
			SeasonID: team.SeasonID,
			Start:    date,
		})
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// openContract inserts c, reporting a concurrent overlap as a timeline error.
func openContract(ctx context.Context, tx storage.TimelineTx, c *models.Contract) error {
	if err := tx.InsertContract(ctx, c); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return fmt.Errorf("%w: %w", ErrInvalidTimelineState, err)
		}
		return err
	}
	return nil
}

// endOfTime bounds "latest transfer ever recorded" lookups.
var endOfTime = time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)

// notBeforeLatest rejects a write dated before any of the riders' most recent
// transfer. Equal timestamps are allowed.
func notBeforeLatest(ctx context.Context, tx storage.TimelineTx, date time.Time, riders ...int64) error {
	for _, riderID := range riders {
		last, err := tx.LastTransferUntil(ctx, riderID, endOfTime)
		if err != nil {
			return err
		}
		if last != nil && date.Before(last.Date) {
			return fmt.Errorf("rider %d moved on %s, cannot record a transfer dated %s: %w",
				riderID, last.Date.Format(time.DateOnly), date.Format(time.DateOnly), ErrInvalidTimelineState)
		}
	}
	return nil
}
