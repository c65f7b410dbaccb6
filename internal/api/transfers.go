package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"connectrpc.com/connect"

	"github.com/mmynk/cyclear/internal/models"
	"github.com/mmynk/cyclear/internal/service"
	"github.com/mmynk/cyclear/internal/storage"
)

const (
	// TransferServiceName is the fully-qualified name of the transfer service.
	TransferServiceName = "cyclear.v1.TransferService"

	TransferServiceSubmitTransferProcedure  = "/cyclear.v1.TransferService/SubmitTransfer"
	TransferServiceAdminTransferProcedure   = "/cyclear.v1.TransferService/AdminTransfer"
	TransferServiceDraftProcedure           = "/cyclear.v1.TransferService/Draft"
	TransferServiceQuotaProcedure           = "/cyclear.v1.TransferService/Quota"
	TransferServiceRosterProcedure          = "/cyclear.v1.TransferService/Roster"
	TransferServiceLatestTransfersProcedure = "/cyclear.v1.TransferService/LatestTransfers"
)

// TransferHandler serves the roster-changing workflow and its reads.
type TransferHandler struct {
	catalog   *service.CatalogService
	transfers *service.TransferService
}

// NewTransferHandler creates a new TransferHandler.
func NewTransferHandler(catalog *service.CatalogService, transfers *service.TransferService) *TransferHandler {
	return &TransferHandler{catalog: catalog, transfers: transfers}
}

// NewTransferServiceHandler builds an HTTP handler serving every transfer
// procedure. It returns the path prefix to mount the handler on.
func NewTransferServiceHandler(h *TransferHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)

	mux := http.NewServeMux()
	mux.Handle(TransferServiceSubmitTransferProcedure, connect.NewUnaryHandler(TransferServiceSubmitTransferProcedure, h.SubmitTransfer, opts...))
	mux.Handle(TransferServiceAdminTransferProcedure, connect.NewUnaryHandler(TransferServiceAdminTransferProcedure, h.AdminTransfer, opts...))
	mux.Handle(TransferServiceDraftProcedure, connect.NewUnaryHandler(TransferServiceDraftProcedure, h.Draft, opts...))
	mux.Handle(TransferServiceQuotaProcedure, connect.NewUnaryHandler(TransferServiceQuotaProcedure, h.Quota, opts...))
	mux.Handle(TransferServiceRosterProcedure, connect.NewUnaryHandler(TransferServiceRosterProcedure, h.Roster, opts...))
	mux.Handle(TransferServiceLatestTransfersProcedure, connect.NewUnaryHandler(TransferServiceLatestTransfersProcedure, h.LatestTransfers, opts...))
	return "/" + TransferServiceName + "/", mux
}

// SubmitTransfer executes a user swap dated today.
func (h *TransferHandler) SubmitTransfer(ctx context.Context, req *connect.Request[SwapRequest]) (*connect.Response[SwapResponse], error) {
	msg := req.Msg
	err := h.transfers.SubmitTransfer(ctx, service.SwapRequest{
		TeamID:   msg.TeamID,
		RiderOut: msg.RiderOut,
		RiderIn:  msg.RiderIn,
	})
	if err != nil {
		return nil, connectError(err)
	}
	return connect.NewResponse(&SwapResponse{}), nil
}

// AdminTransfer executes a swap at the requested date.
func (h *TransferHandler) AdminTransfer(ctx context.Context, req *connect.Request[SwapRequest]) (*connect.Response[SwapResponse], error) {
	msg := req.Msg
	date, err := parseDay("date", msg.Date)
	if err != nil {
		return nil, connectError(err)
	}

	err = h.transfers.AdminTransfer(ctx, service.SwapRequest{
		TeamID:   msg.TeamID,
		RiderOut: msg.RiderOut,
		RiderIn:  msg.RiderIn,
		Date:     date,
	})
	if err != nil {
		return nil, connectError(err)
	}
	return connect.NewResponse(&SwapResponse{}), nil
}

// Draft assigns an uncontracted rider to a team.
func (h *TransferHandler) Draft(ctx context.Context, req *connect.Request[DraftRequest]) (*connect.Response[DraftResponse], error) {
	msg := req.Msg
	date, err := parseDay("date", msg.Date)
	if err != nil {
		return nil, connectError(err)
	}

	t, err := h.transfers.Draft(ctx, msg.TeamID, msg.RiderID, date)
	if err != nil {
		return nil, connectError(err)
	}
	return connect.NewResponse(&DraftResponse{
		Transfer: toTransfer(*t, models.Rider{ID: t.RiderID}, nil),
	}), nil
}

// Quota reports a team's transfer usage.
func (h *TransferHandler) Quota(ctx context.Context, req *connect.Request[TeamRequest]) (*connect.Response[QuotaResponse], error) {
	at, err := parseDay("at", req.Msg.At)
	if err != nil {
		return nil, connectError(err)
	}

	q, err := h.transfers.Quota(ctx, req.Msg.TeamID, at)
	if err != nil {
		return nil, connectError(err)
	}
	return connect.NewResponse(toQuota(q)), nil
}

// Roster lists the riders currently on a team.
func (h *TransferHandler) Roster(ctx context.Context, req *connect.Request[TeamRequest]) (*connect.Response[RosterResponse], error) {
	riders, err := h.transfers.Roster(ctx, req.Msg.TeamID)
	if err != nil {
		return nil, connectError(err)
	}

	out := make([]Rider, len(riders))
	for i, r := range riders {
		out[i] = toRider(r)
	}
	return connect.NewResponse(&RosterResponse{Riders: out}), nil
}

// LatestTransfers lists transfers into teams, newest first.
func (h *TransferHandler) LatestTransfers(ctx context.Context, req *connect.Request[LatestTransfersRequest]) (*connect.Response[LatestTransfersResponse], error) {
	msg := req.Msg
	season, err := h.catalog.ResolveSeason(ctx, msg.SeasonID)
	if err != nil {
		return nil, connectError(err)
	}

	q := storage.TransferQuery{SeasonID: season.ID, TeamID: msg.TeamID, RiderID: msg.RiderID, Limit: msg.Limit}
	for _, s := range msg.Types {
		typ := models.TransferType(s)
		if !typ.Valid() {
			return nil, connectError(fmt.Errorf("unknown transfer type %q: %w", s, service.ErrInvalidArgument))
		}
		q.Types = append(q.Types, typ)
	}

	transfers, err := h.transfers.LatestTransfers(ctx, q)
	if err != nil {
		return nil, connectError(err)
	}
	slog.Debug("LatestTransfers served", "season", season.Slug, "count", len(transfers))

	out := make([]Transfer, len(transfers))
	for i, t := range transfers {
		out[i] = toTransfer(t.Transfer, t.Rider, t.Inverse)
	}
	return connect.NewResponse(&LatestTransfersResponse{SeasonID: season.ID, Transfers: out}), nil
}
