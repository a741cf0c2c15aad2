package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/enterprise-stock/internal/shared"
)

// TxStore is the transactional surface the ledger needs. Implementations must
// lock the balance row returned by GetBalanceForUpdate until the enclosing
// transaction ends.
type TxStore interface {
	GetBalanceForUpdate(ctx context.Context, locationID, materialID int64) (Balance, error)
	UpsertBalance(ctx context.Context, balance Balance) error
	InsertMovement(ctx context.Context, movement Movement) error
}

type balanceKey struct {
	locationID int64
	materialID int64
}

// Apply validates and writes every line of group through store. Rows are locked
// in (location, material) order so concurrent groups touching the same
// balances cannot deadlock. No write happens unless every line keeps its
// balance non-negative; on failure the first offending line, in group line
// order, is reported as an *shared.InsufficientStockError.
func Apply(ctx context.Context, store TxStore, group Group, now time.Time) ([]Movement, error) {
	if !group.Kind.Valid() {
		return nil, fmt.Errorf("ledger: unknown movement kind %q", group.Kind)
	}

	keys := make([]balanceKey, 0, len(group.Lines))
	seen := make(map[balanceKey]bool, len(group.Lines))
	for _, line := range group.Lines {
		if line.LocationID <= 0 || line.MaterialID <= 0 {
			return nil, shared.Invalid("ledger line requires location and material")
		}
		k := balanceKey{line.LocationID, line.MaterialID}
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].locationID != keys[j].locationID {
			return keys[i].locationID < keys[j].locationID
		}
		return keys[i].materialID < keys[j].materialID
	})

	running := make(map[balanceKey]decimal.Decimal, len(keys))
	for _, k := range keys {
		bal, err := store.GetBalanceForUpdate(ctx, k.locationID, k.materialID)
		if err != nil && !errors.Is(err, ErrBalanceNotFound) {
			return nil, fmt.Errorf("ledger: lock balance %d/%d: %w", k.locationID, k.materialID, err)
		}
		if errors.Is(err, ErrBalanceNotFound) {
			bal.Quantity = decimal.Zero
		}
		running[k] = bal.Quantity
	}

	movements := make([]Movement, 0, len(group.Lines))
	for _, line := range group.Lines {
		if line.Delta.IsZero() {
			continue
		}
		k := balanceKey{line.LocationID, line.MaterialID}
		next := running[k].Add(line.Delta)
		if next.IsNegative() {
			return nil, &shared.InsufficientStockError{
				LocationID: line.LocationID,
				MaterialID: line.MaterialID,
				ItemID:     line.ItemID,
				Available:  running[k],
				Requested:  line.Delta.Neg(),
			}
		}
		running[k] = next
		movements = append(movements, Movement{
			ID:         uuid.New(),
			LocationID: line.LocationID,
			MaterialID: line.MaterialID,
			Delta:      line.Delta,
			Resulting:  next,
			Kind:       group.Kind,
			RefType:    group.RefType,
			RefID:      group.RefID,
			RefCode:    group.RefCode,
			ActorID:    group.ActorID,
			Reason:     group.Reason,
			CreatedAt:  now,
		})
	}
	if len(movements) == 0 {
		return nil, nil
	}

	for _, k := range keys {
		err := store.UpsertBalance(ctx, Balance{
			LocationID: k.locationID,
			MaterialID: k.materialID,
			Quantity:   running[k],
			UpdatedAt:  now,
		})
		if err != nil {
			return nil, fmt.Errorf("ledger: upsert balance %d/%d: %w", k.locationID, k.materialID, err)
		}
	}
	for _, m := range movements {
		if err := store.InsertMovement(ctx, m); err != nil {
			return nil, fmt.Errorf("ledger: insert movement: %w", err)
		}
	}
	return movements, nil
}
