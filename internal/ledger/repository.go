package ledger

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/enterprise-stock/internal/platform/db"
)

// Repository persists ledger data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes the callback inside a read-committed transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxStore(tx))
	})
}

// GetBalance reads a balance without locking.
func (r *Repository) GetBalance(ctx context.Context, locationID, materialID int64) (Balance, error) {
	return scanBalance(r.pool.QueryRow(ctx, `SELECT location_id, material_id, quantity, updated_at
FROM stock_balances WHERE location_id=$1 AND material_id=$2`, locationID, materialID))
}

// ListBalances returns every balance row of a location ordered by material.
func (r *Repository) ListBalances(ctx context.Context, locationID int64) ([]Balance, error) {
	rows, err := r.pool.Query(ctx, `SELECT location_id, material_id, quantity, updated_at
FROM stock_balances WHERE location_id=$1 ORDER BY material_id`, locationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Balance
	for rows.Next() {
		var b Balance
		if err := rows.Scan(&b.LocationID, &b.MaterialID, &b.Quantity, &b.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// ListMovements returns the stock card of a (location, material) pair.
func (r *Repository) ListMovements(ctx context.Context, filter StockCardFilter) ([]Movement, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, location_id, material_id, delta, resulting, kind,
	COALESCE(ref_type, ''), COALESCE(ref_id, 0), COALESCE(ref_code, ''), actor_id, COALESCE(reason, ''), created_at
FROM stock_movements
WHERE location_id=$1 AND material_id=$2
  AND ($3::timestamptz IS NULL OR created_at >= $3)
  AND ($4::timestamptz IS NULL OR created_at <= $4)
ORDER BY created_at ASC, seq ASC
LIMIT $5`, filter.LocationID, filter.MaterialID, nullTime(filter.From), nullTime(filter.To), filter.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Movement
	for rows.Next() {
		var m Movement
		var kind string
		if err := rows.Scan(&m.ID, &m.LocationID, &m.MaterialID, &m.Delta, &m.Resulting, &kind,
			&m.RefType, &m.RefID, &m.RefCode, &m.ActorID, &m.Reason, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Kind = MovementKind(kind)
		out = append(out, m)
	}
	return out, rows.Err()
}

type txStore struct {
	q db.Querier
}

// NewTxStore adapts an open transaction to TxStore so workflow repositories can
// apply ledger groups in their own transaction.
func NewTxStore(q db.Querier) TxStore {
	return &txStore{q: q}
}

func (s *txStore) GetBalanceForUpdate(ctx context.Context, locationID, materialID int64) (Balance, error) {
	bal, err := scanBalance(s.q.QueryRow(ctx, `SELECT location_id, material_id, quantity, updated_at
FROM stock_balances WHERE location_id=$1 AND material_id=$2 FOR UPDATE`, locationID, materialID))
	if errors.Is(err, ErrBalanceNotFound) {
		// Lock the key itself so two first-writers serialise.
		if _, lockErr := s.q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, balanceLockKey(locationID, materialID)); lockErr != nil {
			return Balance{}, lockErr
		}
		bal, err = scanBalance(s.q.QueryRow(ctx, `SELECT location_id, material_id, quantity, updated_at
FROM stock_balances WHERE location_id=$1 AND material_id=$2 FOR UPDATE`, locationID, materialID))
		if errors.Is(err, ErrBalanceNotFound) {
			return Balance{LocationID: locationID, MaterialID: materialID}, ErrBalanceNotFound
		}
	}
	return bal, err
}

// balanceLockKey names the advisory lock of a balance that has no row yet.
func balanceLockKey(locationID, materialID int64) string {
	return "stock_balances:" + strconv.FormatInt(locationID, 10) + ":" + strconv.FormatInt(materialID, 10)
}

func (s *txStore) UpsertBalance(ctx context.Context, balance Balance) error {
	_, err := s.q.Exec(ctx, `INSERT INTO stock_balances (location_id, material_id, quantity, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (location_id, material_id) DO UPDATE SET quantity = EXCLUDED.quantity, updated_at = EXCLUDED.updated_at`,
		balance.LocationID, balance.MaterialID, balance.Quantity, balance.UpdatedAt)
	return err
}

func (s *txStore) InsertMovement(ctx context.Context, m Movement) error {
	_, err := s.q.Exec(ctx, `INSERT INTO stock_movements
	(id, location_id, material_id, delta, resulting, kind, ref_type, ref_id, ref_code, actor_id, reason, created_at)
VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, 0), NULLIF($9, ''), $10, NULLIF($11, ''), $12)`,
		m.ID, m.LocationID, m.MaterialID, m.Delta, m.Resulting, string(m.Kind),
		m.RefType, m.RefID, m.RefCode, m.ActorID, m.Reason, m.CreatedAt)
	return err
}

func scanBalance(row pgx.Row) (Balance, error) {
	var b Balance
	if err := row.Scan(&b.LocationID, &b.MaterialID, &b.Quantity, &b.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Balance{}, ErrBalanceNotFound
		}
		return Balance{}, err
	}
	return b, nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
