// Package history is the append-only audit trail of workflow transitions.
package history

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ParentType identifies the aggregate an entry belongs to.
type ParentType string

const (
	ParentRequest  ParentType = "request"
	ParentTransfer ParentType = "transfer"
)

// Entry is one recorded transition. FromStatus is empty for creation.
type Entry struct {
	ID         uuid.UUID  `json:"id"`
	ParentType ParentType `json:"parentType"`
	ParentID   int64      `json:"parentId"`
	FromStatus string     `json:"fromStatus,omitempty"`
	ToStatus   string     `json:"toStatus"`
	ActorID    int64      `json:"actorId"`
	Reason     string     `json:"reason,omitempty"`
	At         time.Time  `json:"at"`
}

// Writer appends entries. There is no update or delete.
type Writer interface {
	Append(ctx context.Context, entry Entry) error
}

// Reader lists entries of one aggregate in insertion order.
type Reader interface {
	List(ctx context.Context, parentType ParentType, parentID int64) ([]Entry, error)
}

// Validate checks the required fields and fills ID and timestamp.
func (e *Entry) Validate(now time.Time) error {
	if e.ParentType != ParentRequest && e.ParentType != ParentTransfer {
		return errors.New("history: parent type required")
	}
	if e.ParentID <= 0 {
		return errors.New("history: parent id required")
	}
	if e.ToStatus == "" {
		return errors.New("history: to status required")
	}
	if e.ActorID <= 0 {
		return errors.New("history: actor required")
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.At.IsZero() {
		e.At = now
	}
	return nil
}
