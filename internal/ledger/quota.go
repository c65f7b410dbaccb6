package ledger

import (
	"context"
	"time"

	"github.com/mmynk/cyclear/internal/models"
	"github.com/mmynk/cyclear/internal/storage"
)

// QuotaStatus is a team's transfer usage within the window covering a date.
type QuotaStatus struct {
	Used int
	Max  int

	// Limited is false when neither a period nor the season sets a quota.
	Limited bool

	Start time.Time
	End   time.Time
}

// Left returns how many transfers remain, or -1 when unlimited.
func (q QuotaStatus) Left() int {
	if !q.Limited {
		return -1
	}
	return max(q.Max-q.Used, 0)
}

// Exhausted reports whether another transfer would exceed the quota.
func (q QuotaStatus) Exhausted() bool {
	return q.Limited && q.Used >= q.Max
}

// quotaStatus resolves the window for at: the season's period containing at,
// else the whole season when it carries its own limit.
func quotaStatus(ctx context.Context, r storage.TimelineReader, teamID int64, season *models.Season, at time.Time) (QuotaStatus, error) {
	var q QuotaStatus

	period, err := r.PeriodAt(ctx, season.ID, at)
	if err != nil {
		return q, err
	}
	switch {
	case period != nil:
		q = QuotaStatus{Max: period.MaxTransfers, Limited: true, Start: period.Start, End: period.End}
	case season.MaxTransfers != nil:
		q = QuotaStatus{Max: *season.MaxTransfers, Limited: true, Start: season.Start, End: season.End}
	default:
		return q, nil
	}

	q.Used, err = r.CountTransfers(ctx, teamID, models.StartOfDay(q.Start), models.EndOfDay(q.End), models.QuotaTransferTypes)
	if err != nil {
		return q, err
	}
	return q, nil
}
