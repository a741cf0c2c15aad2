package history

import (
	"context"
	"time"

	"github.com/odyssey-erp/enterprise-stock/internal/platform/db"
)

// Recorder persists history entries into history_entries.
type Recorder struct {
	q db.Querier
}

// NewRecorder binds a recorder to a pool or an open transaction.
func NewRecorder(q db.Querier) *Recorder {
	return &Recorder{q: q}
}

// Append implements Writer.
func (r *Recorder) Append(ctx context.Context, entry Entry) error {
	if err := entry.Validate(time.Now().UTC()); err != nil {
		return err
	}
	_, err := r.q.Exec(ctx, `INSERT INTO history_entries (id, parent_type, parent_id, from_status, to_status, actor_id, reason, at)
VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, NULLIF($7, ''), $8)`,
		entry.ID, string(entry.ParentType), entry.ParentID, entry.FromStatus, entry.ToStatus, entry.ActorID, entry.Reason, entry.At)
	return err
}

// List implements Reader.
func (r *Recorder) List(ctx context.Context, parentType ParentType, parentID int64) ([]Entry, error) {
	rows, err := r.q.Query(ctx, `SELECT id, parent_type, parent_id, COALESCE(from_status, ''), to_status, actor_id, COALESCE(reason, ''), at
FROM history_entries WHERE parent_type=$1 AND parent_id=$2 ORDER BY at ASC, seq ASC`, string(parentType), parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		var e Entry
		var pt string
		if err := rows.Scan(&e.ID, &pt, &e.ParentID, &e.FromStatus, &e.ToStatus, &e.ActorID, &e.Reason, &e.At); err != nil {
			return nil, err
		}
		e.ParentType = ParentType(pt)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
