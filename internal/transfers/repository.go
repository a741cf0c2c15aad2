package transfers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/enterprise-stock/internal/history"
	"github.com/odyssey-erp/enterprise-stock/internal/ledger"
	"github.com/odyssey-erp/enterprise-stock/internal/platform/db"
	"github.com/odyssey-erp/enterprise-stock/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Transfer, error)
	List(ctx context.Context, filters ListFilters) ([]Transfer, int, error)
	// ListShipped returns SHIPPED transfers shipped before the cutoff, items included.
	ListShipped(ctx context.Context, shippedBefore time.Time) ([]Transfer, error)
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	GetTransfer(ctx context.Context, id int64) (Transfer, error)
	NextCode(ctx context.Context, year int) (string, error)
	InsertTransfer(ctx context.Context, tr *Transfer) error
	InsertItem(ctx context.Context, item *Item) error
	UpdateItem(ctx context.Context, item Item) error
	DeleteItem(ctx context.Context, transferID, itemID int64) error
	// UpdateTransfer writes the header guarded by expectedVersion.
	UpdateTransfer(ctx context.Context, tr Transfer, expectedVersion int64) error
	Ledger() ledger.TxStore
	History() history.Writer
}

// Repository persists stock transfers in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes the callback inside a read-committed transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
	if db.IsSerializationFailure(err) {
		return fmt.Errorf("%w: %v", shared.ErrConcurrentModification, err)
	}
	return err
}

const selectTransfer = `SELECT id, code, origin_location_id, destination_location_id, requester_id, status,
	COALESCE(notes, ''), approver_id, approved_at, shipper_id, shipped_at, receiver_id, received_at,
	COALESCE(rejection_reason, ''), total_items, total_quantity, version, created_at, updated_at
FROM stock_transfers`

func scanTransfer(row pgx.Row) (Transfer, error) {
	var tr Transfer
	var status string
	err := row.Scan(&tr.ID, &tr.Code, &tr.OriginLocationID, &tr.DestinationLocationID, &tr.RequesterID, &status,
		&tr.Notes, &tr.ApproverID, &tr.ApprovedAt, &tr.ShipperID, &tr.ShippedAt, &tr.ReceiverID, &tr.ReceivedAt,
		&tr.RejectionReason, &tr.TotalItems, &tr.TotalQuantity, &tr.Version, &tr.CreatedAt, &tr.UpdatedAt)
	if err != nil {
		return Transfer{}, err
	}
	tr.Status = Status(status)
	return tr, nil
}

func loadItems(ctx context.Context, q db.Querier, transferID int64) ([]Item, error) {
	rows, err := q.Query(ctx, `SELECT id, transfer_id, line_no, material_id, requested_qty, shipped_qty, received_qty, COALESCE(notes, '')
FROM stock_transfer_items WHERE transfer_id=$1 ORDER BY line_no ASC, id ASC`, transferID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Item{}
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.TransferID, &it.LineNo, &it.MaterialID, &it.RequestedQty, &it.ShippedQty,
			&it.ReceivedQty, &it.Notes); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func loadTransfer(ctx context.Context, q db.Querier, id int64, lock bool) (Transfer, error) {
	query := selectTransfer + ` WHERE id=$1`
	if lock {
		query += ` FOR UPDATE`
	}
	tr, err := scanTransfer(q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Transfer{}, fmt.Errorf("transfer %d: %w", id, shared.ErrNotFound)
	}
	if err != nil {
		return Transfer{}, err
	}
	if tr.Items, err = loadItems(ctx, q, id); err != nil {
		return Transfer{}, err
	}
	return tr, nil
}

// Get loads a transfer with its items.
func (r *Repository) Get(ctx context.Context, id int64) (Transfer, error) {
	return loadTransfer(ctx, r.pool, id, false)
}

// List uses a dynamic query because of the optional filters. Items are not loaded.
func (r *Repository) List(ctx context.Context, filters ListFilters) ([]Transfer, int, error) {
	where := []string{"1=1"}
	args := []any{}
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, strings.ReplaceAll(clause, "?", "$"+strconv.Itoa(len(args))))
	}
	if filters.Status != "" {
		add("status = ?", string(filters.Status))
	}
	if filters.OriginLocationID > 0 {
		add("origin_location_id = ?", filters.OriginLocationID)
	}
	if filters.DestinationLocationID > 0 {
		add("destination_location_id = ?", filters.DestinationLocationID)
	}
	if filters.Code != "" {
		add("upper(code) = upper(?)", filters.Code)
	}
	if filters.Search != "" {
		add("(code ILIKE ? OR notes ILIKE ?)", "%"+filters.Search+"%")
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stock_transfers WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, filters.Limit, (filters.Page-1)*filters.Limit)
	rows, err := r.pool.Query(ctx, selectTransfer+` WHERE `+cond+` ORDER BY created_at DESC, id DESC LIMIT $`+
		strconv.Itoa(len(args)-1)+` OFFSET $`+strconv.Itoa(len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Transfer
	for rows.Next() {
		tr, err := scanTransfer(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, tr)
	}
	return out, total, rows.Err()
}

// ListShipped implements RepositoryPort.
func (r *Repository) ListShipped(ctx context.Context, shippedBefore time.Time) ([]Transfer, error) {
	rows, err := r.pool.Query(ctx, selectTransfer+` WHERE status=$1 AND shipped_at <= $2 ORDER BY shipped_at ASC, id ASC`,
		string(StatusShipped), shippedBefore)
	if err != nil {
		return nil, err
	}
	var out []Transfer
	for rows.Next() {
		tr, err := scanTransfer(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, tr)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].Items, err = loadItems(ctx, r.pool, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

type txRepo struct {
	tx pgx.Tx
}

func (t *txRepo) GetTransfer(ctx context.Context, id int64) (Transfer, error) {
	return loadTransfer(ctx, t.tx, id, true)
}

func (t *txRepo) NextCode(ctx context.Context, year int) (string, error) {
	return db.NextCode(ctx, t.tx, "TR", year)
}

func (t *txRepo) InsertTransfer(ctx context.Context, tr *Transfer) error {
	err := t.tx.QueryRow(ctx, `INSERT INTO stock_transfers
	(code, origin_location_id, destination_location_id, requester_id, status, notes, total_items, total_quantity,
	 version, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9, $10, $10)
RETURNING id`,
		tr.Code, tr.OriginLocationID, tr.DestinationLocationID, tr.RequesterID, string(tr.Status), tr.Notes,
		tr.TotalItems, tr.TotalQuantity, tr.Version, tr.CreatedAt).Scan(&tr.ID)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("%w: transfer code %s already allocated", shared.ErrConcurrentModification, tr.Code)
		}
		return err
	}
	for i := range tr.Items {
		tr.Items[i].TransferID = tr.ID
		if err := t.InsertItem(ctx, &tr.Items[i]); err != nil {
			return err
		}
	}
	return nil
}

func (t *txRepo) InsertItem(ctx context.Context, item *Item) error {
	return t.tx.QueryRow(ctx, `INSERT INTO stock_transfer_items
	(transfer_id, line_no, material_id, requested_qty, shipped_qty, received_qty, notes)
VALUES ($1, $2, $3, $4, 0, 0, NULLIF($5, ''))
RETURNING id`, item.TransferID, item.LineNo, item.MaterialID, item.RequestedQty, item.Notes).Scan(&item.ID)
}

func (t *txRepo) UpdateItem(ctx context.Context, item Item) error {
	_, err := t.tx.Exec(ctx, `UPDATE stock_transfer_items SET shipped_qty=$3, received_qty=$4
WHERE id=$1 AND transfer_id=$2`, item.ID, item.TransferID, item.ShippedQty, item.ReceivedQty)
	return err
}

func (t *txRepo) DeleteItem(ctx context.Context, transferID, itemID int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM stock_transfer_items WHERE id=$1 AND transfer_id=$2`, itemID, transferID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("item %d: %w", itemID, shared.ErrNotFound)
	}
	return nil
}

func (t *txRepo) UpdateTransfer(ctx context.Context, tr Transfer, expectedVersion int64) error {
	tag, err := t.tx.Exec(ctx, `UPDATE stock_transfers
SET status=$3, notes=NULLIF($4, ''), approver_id=$5, approved_at=$6, shipper_id=$7, shipped_at=$8, receiver_id=$9,
	received_at=$10, rejection_reason=NULLIF($11, ''), total_items=$12, total_quantity=$13, version=$2 + 1, updated_at=$14
WHERE id=$1 AND version=$2`,
		tr.ID, expectedVersion, string(tr.Status), tr.Notes, tr.ApproverID, tr.ApprovedAt, tr.ShipperID, tr.ShippedAt,
		tr.ReceiverID, tr.ReceivedAt, tr.RejectionReason, tr.TotalItems, tr.TotalQuantity, tr.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transfer %d: %w", tr.ID, shared.ErrConcurrentModification)
	}
	return nil
}

func (t *txRepo) Ledger() ledger.TxStore {
	return ledger.NewTxStore(t.tx)
}

func (t *txRepo) History() history.Writer {
	return history.NewRecorder(t.tx)
}
