package transfers

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/enterprise-stock/internal/shared"
)

// Status enumerates stock transfer lifecycle states.
type Status string

const (
	StatusDraft    Status = "DRAFT"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
	StatusShipped  Status = "SHIPPED"
	StatusReceived Status = "RECEIVED"
	StatusCanceled Status = "CANCELED"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusReceived || s == StatusRejected || s == StatusCanceled
}

// Operation names a workflow command.
type Operation string

const (
	OpApprove Operation = "approve"
	OpReject  Operation = "reject"
	OpShip    Operation = "ship"
	OpReceive Operation = "receive"
	OpCancel  Operation = "cancel"
)

type rule struct {
	from       []Status
	to         Status
	permission string
}

// Once SHIPPED the stock has left the origin, so cancel is not offered there.
var transitions = map[Operation]rule{
	OpApprove: {from: []Status{StatusDraft}, to: StatusApproved, permission: shared.PermTransferApprove},
	OpReject:  {from: []Status{StatusDraft}, to: StatusRejected, permission: shared.PermTransferApprove},
	OpShip:    {from: []Status{StatusApproved}, to: StatusShipped, permission: shared.PermTransferShip},
	OpReceive: {from: []Status{StatusShipped}, to: StatusReceived, permission: shared.PermTransferReceive},
	OpCancel:  {from: []Status{StatusDraft, StatusApproved}, to: StatusCanceled, permission: shared.PermTransferCancel},
}

func (r rule) allows(s Status) bool {
	for _, f := range r.from {
		if f == s {
			return true
		}
	}
	return false
}

// Transfer moves materials from an origin location to a destination location.
type Transfer struct {
	ID                    int64           `json:"id"`
	Code                  string          `json:"code"`
	OriginLocationID      int64           `json:"originLocationId"`
	DestinationLocationID int64           `json:"destinationLocationId"`
	RequesterID           int64           `json:"requesterId"`
	Status                Status          `json:"status"`
	Notes                 string          `json:"notes,omitempty"`
	ApproverID            *int64          `json:"approverId,omitempty"`
	ApprovedAt            *time.Time      `json:"approvedAt,omitempty"`
	ShipperID             *int64          `json:"shipperId,omitempty"`
	ShippedAt             *time.Time      `json:"shippedAt,omitempty"`
	ReceiverID            *int64          `json:"receiverId,omitempty"`
	ReceivedAt            *time.Time      `json:"receivedAt,omitempty"`
	RejectionReason       string          `json:"rejectionReason,omitempty"`
	TotalItems            int             `json:"totalItems"`
	TotalQuantity         decimal.Decimal `json:"totalQuantity"`
	Version               int64           `json:"version"`
	CreatedAt             time.Time       `json:"createdAt"`
	UpdatedAt             time.Time       `json:"updatedAt"`
	Items                 []Item          `json:"items"`
}

// Item is one material line of a transfer.
type Item struct {
	ID           int64           `json:"id"`
	TransferID   int64           `json:"transferId"`
	LineNo       int             `json:"lineNo"`
	MaterialID   int64           `json:"materialId"`
	RequestedQty decimal.Decimal `json:"requestedQty"`
	ShippedQty   decimal.Decimal `json:"shippedQty"`
	ReceivedQty  decimal.Decimal `json:"receivedQty"`
	Notes        string          `json:"notes,omitempty"`
}

// InTransit is the quantity that has left the origin without reaching the destination.
func (it Item) InTransit() decimal.Decimal {
	return it.ShippedQty.Sub(it.ReceivedQty)
}

func (t *Transfer) item(id int64) (*Item, bool) {
	for i := range t.Items {
		if t.Items[i].ID == id {
			return &t.Items[i], true
		}
	}
	return nil, false
}

func (t *Transfer) knows(id int64) bool {
	_, ok := t.item(id)
	return ok
}

func (t *Transfer) recomputeTotals() {
	t.TotalItems = len(t.Items)
	total := decimal.Zero
	for _, it := range t.Items {
		total = total.Add(it.RequestedQty)
	}
	t.TotalQuantity = total
}

// ItemInput describes a new item.
type ItemInput struct {
	MaterialID   int64           `json:"materialId" validate:"required,gt=0"`
	RequestedQty decimal.Decimal `json:"requestedQty"`
	Notes        string          `json:"notes" validate:"max=500"`
}

// CreateInput describes a new transfer.
type CreateInput struct {
	OriginLocationID      int64       `json:"originLocationId" validate:"required,gt=0"`
	DestinationLocationID int64       `json:"destinationLocationId" validate:"required,gt=0"`
	Notes                 string      `json:"notes" validate:"max=1000"`
	Items                 []ItemInput `json:"items" validate:"dive"`
}

// QuantitiesInput carries per-item quantities for ship and receive.
type QuantitiesInput struct {
	Items           []shared.ItemQty `json:"items" validate:"dive"`
	Notes           string           `json:"notes" validate:"max=1000"`
	ExpectedVersion *int64           `json:"expectedVersion"`
}

// ReasonInput carries the reason for reject and cancel.
type ReasonInput struct {
	Reason          string `json:"reason" validate:"max=1000"`
	ExpectedVersion *int64 `json:"expectedVersion"`
}

// VersionInput carries only the optimistic token.
type VersionInput struct {
	ExpectedVersion *int64 `json:"expectedVersion"`
}

// ListFilters narrows transfer listings.
type ListFilters struct {
	Status                Status
	OriginLocationID      int64
	DestinationLocationID int64
	// Code matches a transfer code exactly, ignoring case.
	Code   string
	Search string
	Page   int
	Limit  int
}
