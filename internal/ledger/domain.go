package ledger

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MovementKind enumerates the sources of a ledger mutation.
type MovementKind string

const (
	// KindRequestDelivery debits the servicing location when a material request is delivered.
	KindRequestDelivery MovementKind = "REQUEST_DELIVERY"
	// KindTransferOut debits the origin when a transfer ships.
	KindTransferOut MovementKind = "TRANSFER_OUT"
	// KindTransferIn credits the destination when a transfer is received.
	KindTransferIn MovementKind = "TRANSFER_IN"
	// KindAdjustment is an administrative correction or opening balance.
	KindAdjustment MovementKind = "ADJUSTMENT"
)

// Valid reports whether the kind is known.
func (k MovementKind) Valid() bool {
	switch k {
	case KindRequestDelivery, KindTransferOut, KindTransferIn, KindAdjustment:
		return true
	}
	return false
}

// Balance is the on-hand quantity of one material at one location.
type Balance struct {
	LocationID int64           `json:"locationId"`
	MaterialID int64           `json:"materialId"`
	Quantity   decimal.Decimal `json:"quantity"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// Movement is the persisted lineage of a single balance change.
type Movement struct {
	ID         uuid.UUID       `json:"id"`
	LocationID int64           `json:"locationId"`
	MaterialID int64           `json:"materialId"`
	Delta      decimal.Decimal `json:"delta"`
	Resulting  decimal.Decimal `json:"resulting"`
	Kind       MovementKind    `json:"kind"`
	RefType    string          `json:"refType,omitempty"`
	RefID      int64           `json:"refId,omitempty"`
	RefCode    string          `json:"refCode,omitempty"`
	ActorID    int64           `json:"actorId"`
	Reason     string          `json:"reason,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// Line is one signed adjustment inside a Group. ItemID is carried for error detail.
type Line struct {
	LocationID int64
	MaterialID int64
	ItemID     int64
	Delta      decimal.Decimal
}

// Group is the set of adjustments produced by one workflow transition. It is
// applied entirely or not at all.
type Group struct {
	Kind    MovementKind
	RefType string
	RefID   int64
	RefCode string
	ActorID int64
	Reason  string
	Lines   []Line
}

// StockCardFilter narrows movement listings.
type StockCardFilter struct {
	LocationID int64
	MaterialID int64
	From       time.Time
	To         time.Time
	Limit      int
}

// AdjustInput is an administrative adjustment request.
type AdjustInput struct {
	LocationID int64           `json:"locationId" validate:"required,gt=0"`
	MaterialID int64           `json:"materialId" validate:"required,gt=0"`
	Delta      decimal.Decimal `json:"delta"`
	Reason     string          `json:"reason" validate:"required,max=500"`
}

// ErrBalanceNotFound indicates missing balance row. Callers treat it as zero.
var ErrBalanceNotFound = errors.New("ledger: balance not found")
