package models

import "time"

// TransferType classifies how a rider moved.
type TransferType string

const (
	// TransferDraft is the initial, cap-eligible roster assignment.
	TransferDraft TransferType = "DRAFT"
	// TransferUser is a swap submitted by a team owner.
	TransferUser TransferType = "USER"
	// TransferAdmin is a swap recorded by an administrator.
	TransferAdmin TransferType = "ADMIN"
)

// QuotaTransferTypes are the transfer types counted against a period quota.
var QuotaTransferTypes = []TransferType{TransferUser, TransferAdmin}

// Valid reports whether t is a known transfer type.
func (t TransferType) Valid() bool {
	switch t {
	case TransferDraft, TransferUser, TransferAdmin:
		return true
	}
	return false
}

// Transfer is a dated, immutable event moving a rider.
//
// DRAFT transfers have only a destination team. USER and ADMIN transfers come
// in pairs sharing PairKey: the incoming rider's row carries the destination
// team, the outgoing rider's row has no destination.
type Transfer struct {
	// ID doubles as insertion order: higher IDs were recorded later.
	ID       int64
	RiderID  int64
	SeasonID int64

	// ToTeamID is the destination team, nil for the vacating half of a swap.
	ToTeamID *int64

	Type TransferType
	Date time.Time

	// PairKey links the two rows of a swap. Empty for DRAFT transfers.
	PairKey string
}

// Contract binds a rider to a team within a season. A nil End means active.
type Contract struct {
	ID       int64
	RiderID  int64
	TeamID   int64
	SeasonID int64
	Start    time.Time
	End      *time.Time
}

// Active reports whether the contract has not been closed.
func (c *Contract) Active() bool {
	return c.End == nil
}

// TransferWithInverse is a transfer into a team together with the rider that
// left the team in the same swap, if any.
type TransferWithInverse struct {
	Transfer
	Rider   Rider
	Inverse *Rider
}
