package api

import (
	"context"
	"errors"

	"connectrpc.com/connect"

	"github.com/mmynk/cyclear/internal/ledger"
	"github.com/mmynk/cyclear/internal/service"
	"github.com/mmynk/cyclear/internal/storage"
)

// connectError maps engine errors onto Connect codes.
func connectError(err error) *connect.Error {
	var ce *connect.Error
	if errors.As(err, &ce) {
		return ce
	}

	code := connect.CodeInternal
	switch {
	case errors.Is(err, ledger.ErrTransferQuotaExceeded):
		code = connect.CodeResourceExhausted
	case errors.Is(err, ledger.ErrInvalidTimelineState):
		code = connect.CodeFailedPrecondition
	case errors.Is(err, storage.ErrNotFound):
		code = connect.CodeNotFound
	case errors.Is(err, service.ErrInvalidArgument):
		code = connect.CodeInvalidArgument
	case errors.Is(err, context.Canceled):
		code = connect.CodeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		code = connect.CodeDeadlineExceeded
	}
	return connect.NewError(code, err)
}
