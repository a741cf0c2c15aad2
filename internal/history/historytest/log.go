// Package historytest provides an in-memory history log for tests.
package historytest

import (
	"context"
	"sync"
	"time"

	"github.com/odyssey-erp/enterprise-stock/internal/history"
)

// Log implements history.Writer and history.Reader in memory.
type Log struct {
	mu      sync.Mutex
	entries []history.Entry
}

// New returns an empty log.
func New() *Log { return &Log{} }

// Append implements history.Writer.
func (l *Log) Append(_ context.Context, entry history.Entry) error {
	if err := entry.Validate(time.Now().UTC()); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	return nil
}

// List implements history.Reader.
func (l *Log) List(_ context.Context, parentType history.ParentType, parentID int64) ([]history.Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []history.Entry
	for _, e := range l.entries {
		if e.ParentType == parentType && e.ParentID == parentID {
			out = append(out, e)
		}
	}
	return out, nil
}

// Snapshot captures the log length and returns a function truncating back to it.
func (l *Log) Snapshot() (restore func()) {
	l.mu.Lock()
	n := len(l.entries)
	l.mu.Unlock()
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.entries = l.entries[:n]
	}
}
