package history_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/enterprise-stock/internal/history"
	"github.com/odyssey-erp/enterprise-stock/internal/history/historytest"
)

func TestEntryValidate(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	e := history.Entry{ParentType: history.ParentRequest, ParentID: 1, ToStatus: "DRAFT", ActorID: 9}
	require.NoError(t, e.Validate(now))
	require.NotEmpty(t, e.ID)
	require.Equal(t, now, e.At)

	bad := []history.Entry{
		{ParentType: "order", ParentID: 1, ToStatus: "DRAFT", ActorID: 1},
		{ParentType: history.ParentTransfer, ToStatus: "DRAFT", ActorID: 1},
		{ParentType: history.ParentTransfer, ParentID: 1, ActorID: 1},
		{ParentType: history.ParentTransfer, ParentID: 1, ToStatus: "DRAFT"},
	}
	for _, b := range bad {
		require.Error(t, b.Validate(now))
	}
}

func TestLogListsInInsertionOrderPerParent(t *testing.T) {
	ctx := context.Background()
	log := historytest.New()

	require.NoError(t, log.Append(ctx, history.Entry{ParentType: history.ParentRequest, ParentID: 1, ToStatus: "DRAFT", ActorID: 1}))
	require.NoError(t, log.Append(ctx, history.Entry{ParentType: history.ParentTransfer, ParentID: 1, ToStatus: "DRAFT", ActorID: 1}))
	require.NoError(t, log.Append(ctx, history.Entry{ParentType: history.ParentRequest, ParentID: 1, FromStatus: "DRAFT", ToStatus: "SUBMITTED", ActorID: 1}))

	entries, err := log.List(ctx, history.ParentRequest, 1)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "DRAFT", entries[0].ToStatus)
	require.Equal(t, "SUBMITTED", entries[1].ToStatus)

	restore := log.Snapshot()
	require.NoError(t, log.Append(ctx, history.Entry{ParentType: history.ParentRequest, ParentID: 1, FromStatus: "SUBMITTED", ToStatus: "APPROVED", ActorID: 2}))
	restore()
	entries, _ = log.List(ctx, history.ParentRequest, 1)
	require.Len(t, entries, 2)
}
