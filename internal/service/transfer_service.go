package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mmynk/cyclear/internal/cache"
	"github.com/mmynk/cyclear/internal/ledger"
	"github.com/mmynk/cyclear/internal/models"
	"github.com/mmynk/cyclear/internal/storage"
	"github.com/mmynk/cyclear/pkg/metrics"
)

// TransferService is the transfer-submission workflow. It serializes writes
// per rider, routes them through the ledger and drops cached projections
// after every successful write.
type TransferService struct {
	catalog storage.CatalogStore
	ledger  *ledger.Ledger
	locks   *ledger.RiderLocks
	memo    *cache.Memo
	metrics *metrics.Manager
}

// NewTransferService creates a new TransferService.
func NewTransferService(catalog storage.CatalogStore, l *ledger.Ledger, locks *ledger.RiderLocks, memo *cache.Memo, m *metrics.Manager) *TransferService {
	return &TransferService{
		catalog: catalog,
		ledger:  l,
		locks:   locks,
		memo:    memo,
		metrics: m,
	}
}

// SwapRequest names the riders of a swap on a team.
type SwapRequest struct {
	TeamID   int64
	RiderOut int64
	RiderIn  int64

	// Date is only honored for admin transfers. Zero means today.
	Date time.Time
}

// SubmitTransfer executes a USER swap dated today.
func (s *TransferService) SubmitTransfer(ctx context.Context, req SwapRequest) error {
	return s.swap(ctx, req, models.TransferUser)
}

// AdminTransfer executes an ADMIN swap at the requested date.
func (s *TransferService) AdminTransfer(ctx context.Context, req SwapRequest) error {
	return s.swap(ctx, req, models.TransferAdmin)
}

func (s *TransferService) swap(ctx context.Context, req SwapRequest, typ models.TransferType) error {
	slog.Info("Transfer request received",
		"type", typ,
		"team_id", req.TeamID,
		"rider_out", req.RiderOut,
		"rider_in", req.RiderIn,
	)

	team, season, err := s.teamSeason(ctx, req.TeamID)
	if err != nil {
		return err
	}
	if season.Closed {
		s.reject("season_closed", req, nil)
		return fmt.Errorf("season %s is closed: %w", season.Slug, ErrInvalidArgument)
	}

	unlock := s.locks.Lock(req.RiderOut, req.RiderIn)
	defer unlock()

	sw := ledger.Swap{Team: team, Season: season, RiderOut: req.RiderOut, RiderIn: req.RiderIn}
	if typ == models.TransferAdmin {
		err = s.ledger.ExecuteAdminTransfer(ctx, sw, req.Date)
	} else {
		err = s.ledger.ExecuteUserTransfer(ctx, sw)
	}
	if err != nil {
		s.reject(rejectReason(err), req, err)
		return err
	}

	s.written(typ)
	slog.Info("Transfer executed", "type", typ, "team", team.Abbreviation, "rider_out", req.RiderOut, "rider_in", req.RiderIn)
	return nil
}

// Draft assigns an uncontracted rider to a team.
func (s *TransferService) Draft(ctx context.Context, teamID, riderID int64, date time.Time) (*models.Transfer, error) {
	team, _, err := s.teamSeason(ctx, teamID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(riderID)
	defer unlock()

	t, err := s.ledger.AssignDraft(ctx, team, riderID, date)
	if err != nil {
		s.reject(rejectReason(err), SwapRequest{TeamID: teamID, RiderIn: riderID}, err)
		return nil, err
	}

	s.written(models.TransferDraft)
	slog.Info("Rider drafted", "team", team.Abbreviation, "rider_id", riderID)
	return t, nil
}

// Quota reports a team's transfer usage for transfers dated at. A zero at
// means today.
func (s *TransferService) Quota(ctx context.Context, teamID int64, at time.Time) (ledger.QuotaStatus, error) {
	team, season, err := s.teamSeason(ctx, teamID)
	if err != nil {
		return ledger.QuotaStatus{}, err
	}
	if at.IsZero() {
		at = time.Now()
	}
	return s.ledger.Quota(ctx, team, season, at.UTC())
}

// Roster returns the riders currently contracted to a team.
func (s *TransferService) Roster(ctx context.Context, teamID int64) ([]models.Rider, error) {
	contracts, err := s.ledger.Roster(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to load roster: %w", err)
	}

	riders := make([]models.Rider, 0, len(contracts))
	for _, c := range contracts {
		r, err := s.catalog.GetRider(ctx, c.RiderID)
		if err != nil {
			return nil, err
		}
		riders = append(riders, *r)
	}
	return riders, nil
}

// LatestTransfers lists transfers into teams, newest first, with the rider
// each swap gave up.
func (s *TransferService) LatestTransfers(ctx context.Context, q storage.TransferQuery) ([]models.TransferWithInverse, error) {
	return s.ledger.LatestTransfers(ctx, q)
}

func (s *TransferService) teamSeason(ctx context.Context, teamID int64) (*models.Team, *models.Season, error) {
	team, err := s.catalog.GetTeam(ctx, teamID)
	if err != nil {
		return nil, nil, err
	}
	season, err := s.catalog.GetSeason(ctx, team.SeasonID)
	if err != nil {
		return nil, nil, err
	}
	return team, season, nil
}

func (s *TransferService) written(typ models.TransferType) {
	s.memo.Invalidate()
	s.metrics.RecordTransfer(string(typ))
	slog.Debug("Projection cache invalidated", "cause", "transfer")
}

func (s *TransferService) reject(reason string, req SwapRequest, err error) {
	s.metrics.RecordTransferRejected(reason)
	slog.Warn("Transfer rejected",
		"reason", reason,
		"team_id", req.TeamID,
		"rider_out", req.RiderOut,
		"rider_in", req.RiderIn,
		"error", err,
	)
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ledger.ErrTransferQuotaExceeded):
		return "quota"
	case errors.Is(err, ledger.ErrInvalidTimelineState):
		return "timeline"
	default:
		return "error"
	}
}
