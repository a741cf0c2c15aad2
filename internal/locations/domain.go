package locations

import (
	"strings"
	"time"
)

// Type classifies a stock location.
type Type string

const (
	TypeCentral     Type = "CENTRAL"
	TypeWarehouse   Type = "WAREHOUSE"
	TypeProjectSite Type = "PROJECT_SITE"
	TypeWorkFront   Type = "WORK_FRONT"
	TypeTransit     Type = "TRANSIT"
)

// Valid reports whether the type is known.
func (t Type) Valid() bool {
	switch t {
	case TypeCentral, TypeWarehouse, TypeProjectSite, TypeWorkFront, TypeTransit:
		return true
	}
	return false
}

// Location is a named place holding stock. Locations are soft-deactivated, never deleted.
type Location struct {
	ID            int64     `json:"id"`
	Code          string    `json:"code"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	Type          Type      `json:"type"`
	ContractID    *int64    `json:"contractId,omitempty"`
	WorkFrontID   *int64    `json:"workFrontId,omitempty"`
	Address       string    `json:"address,omitempty"`
	ResponsibleID *int64    `json:"responsibleId,omitempty"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// CreateInput describes a new location.
type CreateInput struct {
	Code          string `json:"code" validate:"required,max=40"`
	Name          string `json:"name" validate:"required,max=120"`
	Description   string `json:"description" validate:"max=500"`
	Type          Type   `json:"type" validate:"required"`
	ContractID    *int64 `json:"contractId" validate:"omitempty,gt=0"`
	WorkFrontID   *int64 `json:"workFrontId" validate:"omitempty,gt=0"`
	Address       string `json:"address" validate:"max=300"`
	ResponsibleID *int64 `json:"responsibleId" validate:"omitempty,gt=0"`
}

// UpdateInput carries the editable fields. Nil leaves a field untouched.
type UpdateInput struct {
	Name          *string `json:"name" validate:"omitempty,min=1,max=120"`
	Description   *string `json:"description" validate:"omitempty,max=500"`
	Type          *Type   `json:"type"`
	Address       *string `json:"address" validate:"omitempty,max=300"`
	ResponsibleID *int64  `json:"responsibleId" validate:"omitempty,gt=0"`
}

// ListFilters narrows location listings.
type ListFilters struct {
	Type       Type
	ContractID *int64
	Active     *bool
	Search     string
	Page       int
	Limit      int
}

func (f *ListFilters) normalize() {
	f.Search = strings.TrimSpace(f.Search)
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 || f.Limit > 200 {
		f.Limit = 20
	}
}
