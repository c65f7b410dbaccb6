package ledger

import "errors"

var (
	// ErrInvalidTimelineState is returned when a write would leave a rider
	// with overlapping active contracts, or moves a rider the team does not hold.
	ErrInvalidTimelineState = errors.New("invalid timeline state")

	// ErrTransferQuotaExceeded is returned when the team already used every
	// transfer its period allows.
	ErrTransferQuotaExceeded = errors.New("transfer quota exceeded")
)
