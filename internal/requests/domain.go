package requests

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/enterprise-stock/internal/shared"
)

// Status enumerates material request lifecycle states.
type Status string

const (
	StatusDraft      Status = "DRAFT"
	StatusSubmitted  Status = "SUBMITTED"
	StatusApproved   Status = "APPROVED"
	StatusRejected   Status = "REJECTED"
	StatusSeparating Status = "SEPARATING"
	StatusDelivered  Status = "DELIVERED"
	StatusCanceled   Status = "CANCELED"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusRejected || s == StatusCanceled
}

// CanEditItems reports whether items may be added, changed or removed.
func (s Status) CanEditItems() bool {
	return s == StatusDraft
}

// Priority ranks a request for the warehouse.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityNormal Priority = "NORMAL"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

// Valid reports whether the priority is known.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Operation names a workflow command.
type Operation string

const (
	OpSubmit             Operation = "submit"
	OpApprove            Operation = "approve"
	OpReject             Operation = "reject"
	OpStartSeparation    Operation = "start_separation"
	OpCompleteSeparation Operation = "complete_separation"
	OpDeliver            Operation = "deliver"
	OpCancel             Operation = "cancel"
)

type rule struct {
	from       []Status
	to         Status
	permission string
}

// transitions is the complete request state machine.
var transitions = map[Operation]rule{
	OpSubmit:             {from: []Status{StatusDraft}, to: StatusSubmitted, permission: shared.PermRequestCreate},
	OpApprove:            {from: []Status{StatusSubmitted}, to: StatusApproved, permission: shared.PermRequestApprove},
	OpReject:             {from: []Status{StatusSubmitted}, to: StatusRejected, permission: shared.PermRequestApprove},
	OpStartSeparation:    {from: []Status{StatusApproved}, to: StatusSeparating, permission: shared.PermRequestSeparate},
	OpCompleteSeparation: {from: []Status{StatusSeparating}, to: StatusSeparating, permission: shared.PermRequestSeparate},
	OpDeliver:            {from: []Status{StatusSeparating}, to: StatusDelivered, permission: shared.PermRequestDeliver},
	// cancel is restricted to the requester rather than a permission
	OpCancel: {from: []Status{StatusDraft, StatusSubmitted}, to: StatusCanceled},
}

func (r rule) allows(s Status) bool {
	for _, f := range r.from {
		if f == s {
			return true
		}
	}
	return false
}

// Request is a demand for materials raised against a contract.
type Request struct {
	ID                    int64           `json:"id"`
	Code                  string          `json:"code"`
	ContractID            int64           `json:"contractId"`
	WorkFrontID           *int64          `json:"workFrontId,omitempty"`
	ActivityID            *int64          `json:"activityId,omitempty"`
	RequesterID           int64           `json:"requesterId"`
	Status                Status          `json:"status"`
	Priority              Priority        `json:"priority"`
	SourceLocationID      *int64          `json:"sourceLocationId,omitempty"`
	DestinationLocationID *int64          `json:"destinationLocationId,omitempty"`
	NeededDate            *time.Time      `json:"neededDate,omitempty"`
	Notes                 string          `json:"notes,omitempty"`
	ApproverID            *int64          `json:"approverId,omitempty"`
	ApprovedAt            *time.Time      `json:"approvedAt,omitempty"`
	SeparatorID           *int64          `json:"separatorId,omitempty"`
	SeparatedAt           *time.Time      `json:"separatedAt,omitempty"`
	DeliveredBy           *int64          `json:"deliveredBy,omitempty"`
	DeliveredAt           *time.Time      `json:"deliveredAt,omitempty"`
	RejectionReason       string          `json:"rejectionReason,omitempty"`
	TotalItems            int             `json:"totalItems"`
	TotalValue            decimal.Decimal `json:"totalValue"`
	Version               int64           `json:"version"`
	CreatedAt             time.Time       `json:"createdAt"`
	UpdatedAt             time.Time       `json:"updatedAt"`
	Items                 []Item          `json:"items"`
}

// Item is one material line. Quantities only grow and each is bounded by the previous stage.
type Item struct {
	ID           int64           `json:"id"`
	RequestID    int64           `json:"requestId"`
	LineNo       int             `json:"lineNo"`
	MaterialID   int64           `json:"materialId"`
	RequestedQty decimal.Decimal `json:"requestedQty"`
	ApprovedQty  decimal.Decimal `json:"approvedQty"`
	SeparatedQty decimal.Decimal `json:"separatedQty"`
	DeliveredQty decimal.Decimal `json:"deliveredQty"`
	UnitPrice    decimal.Decimal `json:"unitPrice"`
	Notes        string          `json:"notes,omitempty"`
}

func (r *Request) item(id int64) (*Item, bool) {
	for i := range r.Items {
		if r.Items[i].ID == id {
			return &r.Items[i], true
		}
	}
	return nil, false
}

func (r *Request) recomputeTotals() {
	r.TotalItems = len(r.Items)
	total := decimal.Zero
	for _, it := range r.Items {
		total = total.Add(it.RequestedQty.Mul(it.UnitPrice))
	}
	r.TotalValue = total
}

func (r *Request) approvedValue() decimal.Decimal {
	total := decimal.Zero
	for _, it := range r.Items {
		total = total.Add(it.ApprovedQty.Mul(it.UnitPrice))
	}
	return total
}

// ItemInput describes a new item.
type ItemInput struct {
	MaterialID   int64           `json:"materialId" validate:"required,gt=0"`
	RequestedQty decimal.Decimal `json:"requestedQty"`
	UnitPrice    decimal.Decimal `json:"unitPrice"`
	Notes        string          `json:"notes" validate:"max=500"`
}

// ItemUpdate edits a DRAFT item. Nil leaves a field untouched.
type ItemUpdate struct {
	RequestedQty    *decimal.Decimal `json:"requestedQty"`
	UnitPrice       *decimal.Decimal `json:"unitPrice"`
	Notes           *string          `json:"notes" validate:"omitempty,max=500"`
	ExpectedVersion *int64           `json:"expectedVersion"`
}

// CreateInput describes a new request.
type CreateInput struct {
	ContractID            int64       `json:"contractId" validate:"required,gt=0"`
	WorkFrontID           *int64      `json:"workFrontId" validate:"omitempty,gt=0"`
	ActivityID            *int64      `json:"activityId" validate:"omitempty,gt=0"`
	SourceLocationID      *int64      `json:"sourceLocationId" validate:"omitempty,gt=0"`
	DestinationLocationID *int64      `json:"destinationLocationId" validate:"omitempty,gt=0"`
	Priority              Priority    `json:"priority"`
	NeededDate            *time.Time  `json:"neededDate"`
	Notes                 string      `json:"notes" validate:"max=1000"`
	Items                 []ItemInput `json:"items" validate:"dive"`
}

// QuantitiesInput carries per-item quantities for approve and completeSeparation.
type QuantitiesInput struct {
	Items           []shared.ItemQty `json:"items" validate:"dive"`
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

// ListFilters narrows request listings.
type ListFilters struct {
	Status      Status
	ContractID  int64
	RequesterID int64
	Search      string
	Page        int
	Limit       int
}
