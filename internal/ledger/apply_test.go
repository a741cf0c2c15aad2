package ledger_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/enterprise-stock/internal/ledger"
	"github.com/odyssey-erp/enterprise-stock/internal/ledger/ledgertest"
	"github.com/odyssey-erp/enterprise-stock/internal/shared"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestApplyDebitsAndCredits(t *testing.T) {
	ctx := context.Background()
	store := ledgertest.New()
	store.Seed(1, 100, d(50))

	movements, err := ledger.Apply(ctx, store, ledger.Group{
		Kind:    ledger.KindTransferOut,
		RefType: "transfer",
		RefID:   7,
		RefCode: "TR-2026-0001",
		ActorID: 3,
		Lines: []ledger.Line{
			{LocationID: 1, MaterialID: 100, ItemID: 1, Delta: d(-20)},
			{LocationID: 2, MaterialID: 100, ItemID: 2, Delta: d(5)},
		},
	}, time.Now())
	require.NoError(t, err)
	require.Len(t, movements, 2)
	require.True(t, store.Quantity(1, 100).Equal(d(30)))
	require.True(t, store.Quantity(2, 100).Equal(d(5)))
	require.Equal(t, "TR-2026-0001", movements[0].RefCode)
	require.True(t, movements[0].Resulting.Equal(d(30)))
}

func TestApplyIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	store := ledgertest.New()
	store.Seed(1, 100, d(10))
	store.Seed(1, 200, d(3))

	err := store.WithTx(ctx, func(ctx context.Context, tx ledger.TxStore) error {
		_, err := ledger.Apply(ctx, tx, ledger.Group{
			Kind: ledger.KindRequestDelivery,
			Lines: []ledger.Line{
				{LocationID: 1, MaterialID: 100, ItemID: 11, Delta: d(-10)},
				{LocationID: 1, MaterialID: 200, ItemID: 12, Delta: d(-4)},
			},
		}, time.Now())
		return err
	})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	var stockErr *shared.InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	require.Equal(t, int64(12), stockErr.ItemID)
	require.True(t, stockErr.Available.Equal(d(3)))
	require.True(t, stockErr.Requested.Equal(d(4)))

	require.True(t, store.Quantity(1, 100).Equal(d(10)))
	require.True(t, store.Quantity(1, 200).Equal(d(3)))
	require.Empty(t, store.Movements())
}

func TestApplyDuplicateLinesShareRunningBalance(t *testing.T) {
	ctx := context.Background()
	store := ledgertest.New()
	store.Seed(1, 100, d(10))

	_, err := ledger.Apply(ctx, store, ledger.Group{
		Kind: ledger.KindRequestDelivery,
		Lines: []ledger.Line{
			{LocationID: 1, MaterialID: 100, ItemID: 1, Delta: d(-6)},
			{LocationID: 1, MaterialID: 100, ItemID: 2, Delta: d(-6)},
		},
	}, time.Now())
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.True(t, store.Quantity(1, 100).Equal(d(10)))
}

func TestApplyMissingBalanceIsZero(t *testing.T) {
	ctx := context.Background()
	store := ledgertest.New()

	_, err := ledger.Apply(ctx, store, ledger.Group{
		Kind:  ledger.KindAdjustment,
		Lines: []ledger.Line{{LocationID: 9, MaterialID: 9, Delta: d(-1)}},
	}, time.Now())
	var stockErr *shared.InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	require.True(t, stockErr.Available.IsZero())
}

func TestApplySkipsZeroLines(t *testing.T) {
	ctx := context.Background()
	store := ledgertest.New()

	movements, err := ledger.Apply(ctx, store, ledger.Group{
		Kind:  ledger.KindTransferIn,
		Lines: []ledger.Line{{LocationID: 1, MaterialID: 1, Delta: decimal.Zero}},
	}, time.Now())
	require.NoError(t, err)
	require.Empty(t, movements)
	require.Empty(t, store.Movements())
}

func TestApplyRejectsUnknownKind(t *testing.T) {
	_, err := ledger.Apply(context.Background(), ledgertest.New(), ledger.Group{Kind: "BOGUS"}, time.Now())
	require.Error(t, err)
}

func TestConcurrentDebitsNeverOverdraw(t *testing.T) {
	ctx := context.Background()
	store := ledgertest.New()
	store.Seed(1, 100, d(50))

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(item int64) {
			defer wg.Done()
			results <- store.WithTx(ctx, func(ctx context.Context, tx ledger.TxStore) error {
				_, err := ledger.Apply(ctx, tx, ledger.Group{
					Kind:  ledger.KindTransferOut,
					Lines: []ledger.Line{{LocationID: 1, MaterialID: 100, ItemID: item, Delta: d(-50)}},
				}, time.Now())
				return err
			})
		}(int64(i + 1))
	}
	wg.Wait()
	close(results)

	var ok, insufficient int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, shared.ErrInsufficientStock):
			insufficient++
		}
	}
	require.Equal(t, 1, ok)
	require.Equal(t, 1, insufficient)
	require.True(t, store.Quantity(1, 100).IsZero())
}

func TestApplyReportsFirstFailingLineInGroupOrder(t *testing.T) {
	ctx := context.Background()
	store := ledgertest.New()
	store.Seed(1, 100, d(1))
	store.Seed(2, 100, d(1))

	_, err := ledger.Apply(ctx, store, ledger.Group{
		Kind: ledger.KindTransferOut,
		Lines: []ledger.Line{
			{LocationID: 2, MaterialID: 100, ItemID: 21, Delta: d(-5)},
			{LocationID: 1, MaterialID: 100, ItemID: 11, Delta: d(-5)},
		},
	}, time.Now())

	var stockErr *shared.InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	require.Equal(t, int64(21), stockErr.ItemID)
	require.Equal(t, int64(2), stockErr.LocationID)
}
