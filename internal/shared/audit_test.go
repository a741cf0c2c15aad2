package shared

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

type captureExec struct {
	sql  string
	args []any
}

func (c *captureExec) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	c.sql, c.args = sql, args
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func TestAuditLoggerRecord(t *testing.T) {
	exec := &captureExec{}
	logger := NewAuditLogger(exec)

	err := logger.Record(context.Background(), AuditLog{
		ActorID: 4, Action: "location.deactivate", Entity: "stock_location", EntityID: "12",
		Meta: map[string]any{"code": "WH-1"},
	})
	require.NoError(t, err)
	require.Contains(t, exec.sql, "INSERT INTO audit_logs")
	require.Len(t, exec.args, 6)
	require.EqualValues(t, 4, exec.args[0])

	var meta map[string]any
	require.NoError(t, json.Unmarshal(exec.args[4].([]byte), &meta))
	require.Equal(t, "WH-1", meta["code"])
	require.WithinDuration(t, time.Now().UTC(), exec.args[5].(time.Time), time.Minute)
}

func TestAuditLoggerRejectsIncompleteEntry(t *testing.T) {
	err := NewAuditLogger(&captureExec{}).Record(context.Background(), AuditLog{Action: "x"})
	require.ErrorIs(t, err, ErrValidation)

	var nilLogger *AuditLogger
	require.Error(t, nilLogger.Record(context.Background(), AuditLog{}))
}
