// Package api exposes the scoring engine over Connect with a JSON codec.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"connectrpc.com/connect"

	"github.com/mmynk/cyclear/internal/calculator"
	"github.com/mmynk/cyclear/internal/models"
	"github.com/mmynk/cyclear/internal/service"
)

const (
	// ScoringServiceName is the fully-qualified name of the scoring service.
	ScoringServiceName = "cyclear.v1.ScoringService"

	ScoringServiceTeamTotalsProcedure        = "/cyclear.v1.ScoringService/TeamTotals"
	ScoringServicePeriodTotalsProcedure      = "/cyclear.v1.ScoringService/PeriodTotals"
	ScoringServicePositionFrequencyProcedure = "/cyclear.v1.ScoringService/PositionFrequency"
	ScoringServiceRiderTotalProcedure        = "/cyclear.v1.ScoringService/RiderTotal"
	ScoringServiceDraftTotalsProcedure       = "/cyclear.v1.ScoringService/DraftTotals"
	ScoringServiceLostDraftPointsProcedure   = "/cyclear.v1.ScoringService/LostDraftPoints"
	ScoringServiceBestTransfersProcedure     = "/cyclear.v1.ScoringService/BestTransfers"
	ScoringServiceTransferTotalsProcedure    = "/cyclear.v1.ScoringService/TransferTotals"
)

// ScoringHandler serves the read-only points projections.
type ScoringHandler struct {
	catalog *service.CatalogService
	points  *service.PointsService
}

// NewScoringHandler creates a new ScoringHandler.
func NewScoringHandler(catalog *service.CatalogService, points *service.PointsService) *ScoringHandler {
	return &ScoringHandler{catalog: catalog, points: points}
}

// NewScoringServiceHandler builds an HTTP handler serving every scoring
// procedure. It returns the path prefix to mount the handler on.
func NewScoringServiceHandler(h *ScoringHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)

	mux := http.NewServeMux()
	mux.Handle(ScoringServiceTeamTotalsProcedure, connect.NewUnaryHandler(ScoringServiceTeamTotalsProcedure, h.TeamTotals, opts...))
	mux.Handle(ScoringServicePeriodTotalsProcedure, connect.NewUnaryHandler(ScoringServicePeriodTotalsProcedure, h.PeriodTotals, opts...))
	mux.Handle(ScoringServicePositionFrequencyProcedure, connect.NewUnaryHandler(ScoringServicePositionFrequencyProcedure, h.PositionFrequency, opts...))
	mux.Handle(ScoringServiceRiderTotalProcedure, connect.NewUnaryHandler(ScoringServiceRiderTotalProcedure, h.RiderTotal, opts...))
	mux.Handle(ScoringServiceDraftTotalsProcedure, connect.NewUnaryHandler(ScoringServiceDraftTotalsProcedure, h.DraftTotals, opts...))
	mux.Handle(ScoringServiceLostDraftPointsProcedure, connect.NewUnaryHandler(ScoringServiceLostDraftPointsProcedure, h.LostDraftPoints, opts...))
	mux.Handle(ScoringServiceBestTransfersProcedure, connect.NewUnaryHandler(ScoringServiceBestTransfersProcedure, h.BestTransfers, opts...))
	mux.Handle(ScoringServiceTransferTotalsProcedure, connect.NewUnaryHandler(ScoringServiceTransferTotalsProcedure, h.TransferTotals, opts...))
	return "/" + ScoringServiceName + "/", mux
}

// TeamTotals returns live-roster standings.
func (h *ScoringHandler) TeamTotals(ctx context.Context, req *connect.Request[StandingsRequest]) (*connect.Response[StandingsResponse], error) {
	msg := req.Msg
	slog.Debug("TeamTotals request received", "season_id", msg.SeasonID, "team_id", msg.TeamID, "max_date", msg.MaxDate)

	season, err := h.catalog.ResolveSeason(ctx, msg.SeasonID)
	if err != nil {
		return nil, connectError(err)
	}
	maxDate, err := parseDay("max_date", msg.MaxDate)
	if err != nil {
		return nil, connectError(err)
	}

	rows, err := h.points.TeamTotals(ctx, season.ID, msg.TeamID, maxDate)
	if err != nil {
		return nil, connectError(err)
	}
	return standingsPage(season.ID, toStandings(rows), msg), nil
}

// PeriodTotals returns standings over one quota period.
func (h *ScoringHandler) PeriodTotals(ctx context.Context, req *connect.Request[StandingsRequest]) (*connect.Response[StandingsResponse], error) {
	msg := req.Msg
	if msg.PeriodID == 0 {
		return nil, connectError(fmt.Errorf("period_id is required: %w", service.ErrInvalidArgument))
	}

	season, err := h.catalog.ResolveSeason(ctx, msg.SeasonID)
	if err != nil {
		return nil, connectError(err)
	}
	rows, err := h.points.PeriodTotals(ctx, season.ID, msg.PeriodID)
	if err != nil {
		return nil, connectError(err)
	}
	return standingsPage(season.ID, toStandings(rows), msg), nil
}

// PositionFrequency counts, per team, the scoring results at a position.
func (h *ScoringHandler) PositionFrequency(ctx context.Context, req *connect.Request[StandingsRequest]) (*connect.Response[StandingsResponse], error) {
	msg := req.Msg
	season, r, err := h.seasonRange(ctx, msg)
	if err != nil {
		return nil, connectError(err)
	}

	rows, err := h.points.PositionFrequency(ctx, season.ID, msg.Position, r)
	if err != nil {
		return nil, connectError(err)
	}
	return standingsPage(season.ID, toStandings(rows), msg), nil
}

// RiderTotal returns a rider's season rider-points.
func (h *ScoringHandler) RiderTotal(ctx context.Context, req *connect.Request[RiderTotalRequest]) (*connect.Response[RiderTotalResponse], error) {
	msg := req.Msg
	season, err := h.catalog.ResolveSeason(ctx, msg.SeasonID)
	if err != nil {
		return nil, connectError(err)
	}

	points, err := h.points.RiderSeasonTotal(ctx, msg.RiderID, season.ID)
	if err != nil {
		return nil, connectError(err)
	}
	return connect.NewResponse(&RiderTotalResponse{SeasonID: season.ID, RiderID: msg.RiderID, Points: points}), nil
}

// DraftTotals returns draft standings with per-rider caps applied.
func (h *ScoringHandler) DraftTotals(ctx context.Context, req *connect.Request[StandingsRequest]) (*connect.Response[StandingsResponse], error) {
	msg := req.Msg
	season, err := h.catalog.ResolveSeason(ctx, msg.SeasonID)
	if err != nil {
		return nil, connectError(err)
	}

	rows, err := h.points.DraftTotals(ctx, season.ID, msg.TeamID)
	if err != nil {
		return nil, connectError(err)
	}
	return standingsPage(season.ID, toDraftStandings(rows), msg), nil
}

// LostDraftPoints returns the points drafted riders scored for other teams.
func (h *ScoringHandler) LostDraftPoints(ctx context.Context, req *connect.Request[StandingsRequest]) (*connect.Response[StandingsResponse], error) {
	msg := req.Msg
	season, r, err := h.seasonRange(ctx, msg)
	if err != nil {
		return nil, connectError(err)
	}

	rows, err := h.points.LostDraftPoints(ctx, season.ID, r)
	if err != nil {
		return nil, connectError(err)
	}
	return standingsPage(season.ID, toStandings(rows), msg), nil
}

// BestTransfers ranks acquired riders by the points they brought in.
func (h *ScoringHandler) BestTransfers(ctx context.Context, req *connect.Request[StandingsRequest]) (*connect.Response[RiderStandingsResponse], error) {
	msg := req.Msg
	season, r, err := h.seasonRange(ctx, msg)
	if err != nil {
		return nil, connectError(err)
	}

	rows, err := h.points.BestTransfers(ctx, season.ID, r)
	if err != nil {
		return nil, connectError(err)
	}
	all := toRiderStandings(rows)
	return connect.NewResponse(&RiderStandingsResponse{
		SeasonID: season.ID,
		Rows:     calculator.Paginate(all, page(msg)),
		Total:    len(all),
	}), nil
}

// TransferTotals sums, per team, the points of riders acquired by transfer.
func (h *ScoringHandler) TransferTotals(ctx context.Context, req *connect.Request[StandingsRequest]) (*connect.Response[StandingsResponse], error) {
	msg := req.Msg
	season, r, err := h.seasonRange(ctx, msg)
	if err != nil {
		return nil, connectError(err)
	}

	rows, err := h.points.TransferTotals(ctx, season.ID, r)
	if err != nil {
		return nil, connectError(err)
	}
	return standingsPage(season.ID, toStandings(rows), msg), nil
}

func (h *ScoringHandler) seasonRange(ctx context.Context, msg *StandingsRequest) (*models.Season, models.DateRange, error) {
	r, err := parseRange(msg.Start, msg.End)
	if err != nil {
		return nil, r, err
	}
	season, err := h.catalog.ResolveSeason(ctx, msg.SeasonID)
	if err != nil {
		return nil, r, err
	}
	return season, r, nil
}

func page(msg *StandingsRequest) calculator.Page {
	return calculator.Page{Offset: msg.Offset, Limit: msg.Limit}
}

func standingsPage(seasonID int64, all []Standing, msg *StandingsRequest) *connect.Response[StandingsResponse] {
	return connect.NewResponse(&StandingsResponse{
		SeasonID: seasonID,
		Rows:     calculator.Paginate(all, page(msg)),
		Total:    len(all),
	})
}
