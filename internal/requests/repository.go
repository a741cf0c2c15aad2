package requests

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

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
	Get(ctx context.Context, id int64) (Request, error)
	List(ctx context.Context, filters ListFilters) ([]Request, int, error)
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	GetRequest(ctx context.Context, id int64) (Request, error)
	NextCode(ctx context.Context, year int) (string, error)
	InsertRequest(ctx context.Context, req *Request) error
	InsertItem(ctx context.Context, item *Item) error
	UpdateItem(ctx context.Context, item Item) error
	DeleteItem(ctx context.Context, requestID, itemID int64) error
	// UpdateRequest writes the header guarded by expectedVersion and stores
	// expectedVersion+1. It fails with shared.ErrConcurrentModification when
	// the stored version differs.
	UpdateRequest(ctx context.Context, req Request, expectedVersion int64) error
	Ledger() ledger.TxStore
	History() history.Writer
}

// Repository persists material requests in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes the callback inside a read-committed transaction. Serialization
// failures surface as shared.ErrConcurrentModification.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
	if db.IsSerializationFailure(err) {
		return fmt.Errorf("%w: %v", shared.ErrConcurrentModification, err)
	}
	return err
}

const selectRequest = `SELECT id, code, contract_id, work_front_id, activity_id, requester_id, status, priority,
	source_location_id, destination_location_id, needed_date, COALESCE(notes, ''), approver_id, approved_at,
	separator_id, separated_at, delivered_by, delivered_at, COALESCE(rejection_reason, ''), total_items, total_value,
	version, created_at, updated_at
FROM material_requests`

func scanRequest(row pgx.Row) (Request, error) {
	var req Request
	var status, priority string
	err := row.Scan(&req.ID, &req.Code, &req.ContractID, &req.WorkFrontID, &req.ActivityID, &req.RequesterID, &status, &priority,
		&req.SourceLocationID, &req.DestinationLocationID, &req.NeededDate, &req.Notes, &req.ApproverID, &req.ApprovedAt,
		&req.SeparatorID, &req.SeparatedAt, &req.DeliveredBy, &req.DeliveredAt, &req.RejectionReason, &req.TotalItems, &req.TotalValue,
		&req.Version, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return Request{}, err
	}
	req.Status = Status(status)
	req.Priority = Priority(priority)
	return req, nil
}

func loadRequest(ctx context.Context, q db.Querier, id int64, lock bool) (Request, error) {
	query := selectRequest + ` WHERE id=$1`
	if lock {
		query += ` FOR UPDATE`
	}
	req, err := scanRequest(q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Request{}, fmt.Errorf("request %d: %w", id, shared.ErrNotFound)
	}
	if err != nil {
		return Request{}, err
	}
	rows, err := q.Query(ctx, `SELECT id, request_id, line_no, material_id, requested_qty, approved_qty, separated_qty,
	delivered_qty, unit_price, COALESCE(notes, '')
FROM material_request_items WHERE request_id=$1 ORDER BY line_no ASC, id ASC`, id)
	if err != nil {
		return Request{}, err
	}
	defer rows.Close()
	req.Items = []Item{}
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.RequestID, &it.LineNo, &it.MaterialID, &it.RequestedQty, &it.ApprovedQty,
			&it.SeparatedQty, &it.DeliveredQty, &it.UnitPrice, &it.Notes); err != nil {
			return Request{}, err
		}
		req.Items = append(req.Items, it)
	}
	return req, rows.Err()
}

// Get loads a request with its items.
func (r *Repository) Get(ctx context.Context, id int64) (Request, error) {
	return loadRequest(ctx, r.pool, id, false)
}

// List uses a dynamic query because of the optional filters. Items are not loaded.
func (r *Repository) List(ctx context.Context, filters ListFilters) ([]Request, int, error) {
	where := []string{"1=1"}
	args := []any{}
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, strings.ReplaceAll(clause, "?", "$"+strconv.Itoa(len(args))))
	}
	if filters.Status != "" {
		add("status = ?", string(filters.Status))
	}
	if filters.ContractID > 0 {
		add("contract_id = ?", filters.ContractID)
	}
	if filters.RequesterID > 0 {
		add("requester_id = ?", filters.RequesterID)
	}
	if filters.Search != "" {
		add("(code ILIKE ? OR notes ILIKE ?)", "%"+filters.Search+"%")
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM material_requests WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, filters.Limit, (filters.Page-1)*filters.Limit)
	rows, err := r.pool.Query(ctx, selectRequest+` WHERE `+cond+` ORDER BY created_at DESC, id DESC LIMIT $`+
		strconv.Itoa(len(args)-1)+` OFFSET $`+strconv.Itoa(len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, req)
	}
	return out, total, rows.Err()
}

type txRepo struct {
	tx pgx.Tx
}

func (t *txRepo) GetRequest(ctx context.Context, id int64) (Request, error) {
	return loadRequest(ctx, t.tx, id, true)
}

func (t *txRepo) NextCode(ctx context.Context, year int) (string, error) {
	return db.NextCode(ctx, t.tx, "RM", year)
}

func (t *txRepo) InsertRequest(ctx context.Context, req *Request) error {
	err := t.tx.QueryRow(ctx, `INSERT INTO material_requests
	(code, contract_id, work_front_id, activity_id, requester_id, status, priority, source_location_id,
	 destination_location_id, needed_date, notes, total_items, total_value, version, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, ''), $12, $13, $14, $15, $15)
RETURNING id`,
		req.Code, req.ContractID, req.WorkFrontID, req.ActivityID, req.RequesterID, string(req.Status), string(req.Priority),
		req.SourceLocationID, req.DestinationLocationID, req.NeededDate, req.Notes, req.TotalItems, req.TotalValue,
		req.Version, req.CreatedAt).Scan(&req.ID)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("%w: request code %s already allocated", shared.ErrConcurrentModification, req.Code)
		}
		return err
	}
	for i := range req.Items {
		req.Items[i].RequestID = req.ID
		if err := t.InsertItem(ctx, &req.Items[i]); err != nil {
			return err
		}
	}
	return nil
}

func (t *txRepo) InsertItem(ctx context.Context, item *Item) error {
	return t.tx.QueryRow(ctx, `INSERT INTO material_request_items
	(request_id, line_no, material_id, requested_qty, approved_qty, separated_qty, delivered_qty, unit_price, notes)
VALUES ($1, $2, $3, $4, 0, 0, 0, $5, NULLIF($6, ''))
RETURNING id`, item.RequestID, item.LineNo, item.MaterialID, item.RequestedQty, item.UnitPrice, item.Notes).Scan(&item.ID)
}

func (t *txRepo) UpdateItem(ctx context.Context, item Item) error {
	_, err := t.tx.Exec(ctx, `UPDATE material_request_items
SET requested_qty=$3, approved_qty=$4, separated_qty=$5, delivered_qty=$6, unit_price=$7, notes=NULLIF($8, '')
WHERE id=$1 AND request_id=$2`,
		item.ID, item.RequestID, item.RequestedQty, item.ApprovedQty, item.SeparatedQty, item.DeliveredQty, item.UnitPrice, item.Notes)
	return err
}

func (t *txRepo) DeleteItem(ctx context.Context, requestID, itemID int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM material_request_items WHERE id=$1 AND request_id=$2`, itemID, requestID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("item %d: %w", itemID, shared.ErrNotFound)
	}
	return nil
}

func (t *txRepo) UpdateRequest(ctx context.Context, req Request, expectedVersion int64) error {
	tag, err := t.tx.Exec(ctx, `UPDATE material_requests
SET status=$3, priority=$4, notes=NULLIF($5, ''), approver_id=$6, approved_at=$7, separator_id=$8, separated_at=$9,
	delivered_by=$10, delivered_at=$11, rejection_reason=NULLIF($12, ''), total_items=$13, total_value=$14,
	version=$2 + 1, updated_at=$15
WHERE id=$1 AND version=$2`,
		req.ID, expectedVersion, string(req.Status), string(req.Priority), req.Notes, req.ApproverID, req.ApprovedAt,
		req.SeparatorID, req.SeparatedAt, req.DeliveredBy, req.DeliveredAt, req.RejectionReason, req.TotalItems,
		req.TotalValue, req.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("request %d: %w", req.ID, shared.ErrConcurrentModification)
	}
	return nil
}

func (t *txRepo) Ledger() ledger.TxStore {
	return ledger.NewTxStore(t.tx)
}

func (t *txRepo) History() history.Writer {
	return history.NewRecorder(t.tx)
}
