// Package ledgertest provides an in-memory ledger store for tests.
package ledgertest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/enterprise-stock/internal/ledger"
)

// Store is a mutex-guarded in-memory implementation of ledger.TxStore and
// ledger.RepositoryPort. WithTx serialises callers and restores state when
// the callback fails.
type Store struct {
	txMu      sync.Mutex
	mu        sync.Mutex
	balances  map[string]ledger.Balance
	movements []ledger.Movement
}

// New returns an empty store.
func New() *Store {
	return &Store{balances: make(map[string]ledger.Balance)}
}

func key(locationID, materialID int64) string {
	return fmt.Sprintf("%d:%d", locationID, materialID)
}

// Seed sets a balance directly.
func (s *Store) Seed(locationID, materialID int64, qty decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[key(locationID, materialID)] = ledger.Balance{LocationID: locationID, MaterialID: materialID, Quantity: qty}
}

// Quantity returns the current balance, zero when absent.
func (s *Store) Quantity(locationID, materialID int64) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[key(locationID, materialID)].Quantity
}

// Movements returns a copy of every recorded movement.
func (s *Store) Movements() []ledger.Movement {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ledger.Movement, len(s.movements))
	copy(out, s.movements)
	return out
}

// Snapshot captures the current state and returns a function restoring it.
func (s *Store) Snapshot() (restore func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	balances := make(map[string]ledger.Balance, len(s.balances))
	for k, v := range s.balances {
		balances[k] = v
	}
	n := len(s.movements)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.balances = balances
		s.movements = s.movements[:n]
	}
}

// WithTx implements ledger.RepositoryPort.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, ledger.TxStore) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	restore := s.Snapshot()
	if err := fn(ctx, s); err != nil {
		restore()
		return err
	}
	return nil
}

// GetBalanceForUpdate implements ledger.TxStore.
func (s *Store) GetBalanceForUpdate(_ context.Context, locationID, materialID int64) (ledger.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if bal, ok := s.balances[key(locationID, materialID)]; ok {
		return bal, nil
	}
	return ledger.Balance{LocationID: locationID, MaterialID: materialID}, ledger.ErrBalanceNotFound
}

// UpsertBalance implements ledger.TxStore.
func (s *Store) UpsertBalance(_ context.Context, balance ledger.Balance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[key(balance.LocationID, balance.MaterialID)] = balance
	return nil
}

// InsertMovement implements ledger.TxStore.
func (s *Store) InsertMovement(_ context.Context, m ledger.Movement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.movements = append(s.movements, m)
	return nil
}

// GetBalance implements ledger.RepositoryPort.
func (s *Store) GetBalance(ctx context.Context, locationID, materialID int64) (ledger.Balance, error) {
	return s.GetBalanceForUpdate(ctx, locationID, materialID)
}

// ListBalances implements ledger.RepositoryPort.
func (s *Store) ListBalances(_ context.Context, locationID int64) ([]ledger.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ledger.Balance
	for _, b := range s.balances {
		if b.LocationID == locationID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MaterialID < out[j].MaterialID })
	return out, nil
}

// ListMovements implements ledger.RepositoryPort.
func (s *Store) ListMovements(_ context.Context, filter ledger.StockCardFilter) ([]ledger.Movement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ledger.Movement
	for _, m := range s.movements {
		if m.LocationID != filter.LocationID || m.MaterialID != filter.MaterialID {
			continue
		}
		if !filter.From.IsZero() && m.CreatedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && m.CreatedAt.After(filter.To) {
			continue
		}
		out = append(out, m)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}
