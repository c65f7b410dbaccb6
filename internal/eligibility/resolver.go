// Package eligibility decides whether a race result may be credited to the
// team holding a rider on race day.
package eligibility

import (
	"context"
	"fmt"
	"time"

	"github.com/mmynk/cyclear/internal/models"
)

// TransferFinder is the single timeline read the resolver needs.
type TransferFinder interface {
	LastTransferUntil(ctx context.Context, riderID int64, until time.Time) (*models.Transfer, error)
}

// Resolver applies the temporal attribution rule. It holds no state beyond
// the timeline it reads and is safe for concurrent use.
type Resolver struct {
	transfers TransferFinder
}

// NewResolver creates a Resolver over the given timeline.
func NewResolver(transfers TransferFinder) *Resolver {
	return &Resolver{transfers: transfers}
}

// CanAttributePoints reports whether a result dated raceDate may be credited.
//
// refDate anchors a multi-day event: when the transfer in force on refDate
// differs from the one in force on raceDate, attribution is withheld for the
// whole event. A rider must have moved strictly before race day.
func (r *Resolver) CanAttributePoints(ctx context.Context, riderID int64, raceDate time.Time, refDate *time.Time) (bool, error) {
	t, err := r.resolve(ctx, riderID, raceDate, refDate)
	if err != nil {
		return false, err
	}
	return t != nil, nil
}

// TeamAsOf returns the team a result dated raceDate is credited to, or nil
// when no team may be credited.
func (r *Resolver) TeamAsOf(ctx context.Context, riderID int64, raceDate time.Time, refDate *time.Time) (*int64, error) {
	t, err := r.resolve(ctx, riderID, raceDate, refDate)
	if err != nil || t == nil {
		return nil, err
	}
	return t.ToTeamID, nil
}

// resolve returns the transfer that grants attribution, or nil.
func (r *Resolver) resolve(ctx context.Context, riderID int64, raceDate time.Time, refDate *time.Time) (*models.Transfer, error) {
	last, err := r.transfers.LastTransferUntil(ctx, riderID, models.EndOfDay(raceDate))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve transfer for rider %d: %w", riderID, err)
	}
	if last == nil {
		return nil, nil
	}

	if refDate != nil {
		ref, err := r.transfers.LastTransferUntil(ctx, riderID, models.EndOfDay(*refDate))
		if err != nil {
			return nil, fmt.Errorf("failed to resolve reference transfer for rider %d: %w", riderID, err)
		}
		// An intervening transfer makes the span ambiguous.
		if ref == nil || ref.ID != last.ID {
			return nil, nil
		}
	}

	if models.SameOrAfterDay(last.Date, raceDate) {
		return nil, nil
	}
	return last, nil
}
