package locations

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/enterprise-stock/internal/platform/db"
	"github.com/odyssey-erp/enterprise-stock/internal/shared"
)

// Repository abstracts location persistence.
type Repository interface {
	Get(ctx context.Context, id int64) (Location, error)
	List(ctx context.Context, filters ListFilters) ([]Location, int, error)
	Create(ctx context.Context, loc Location) (Location, error)
	Update(ctx context.Context, loc Location) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds the PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const selectLocation = `SELECT id, code, name, COALESCE(description, ''), type, contract_id, work_front_id,
	COALESCE(address, ''), responsible_id, is_active, created_at, updated_at FROM stock_locations`

func scanLocation(row pgx.Row) (Location, error) {
	var l Location
	var typ string
	err := row.Scan(&l.ID, &l.Code, &l.Name, &l.Description, &typ, &l.ContractID, &l.WorkFrontID,
		&l.Address, &l.ResponsibleID, &l.Active, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return Location{}, err
	}
	l.Type = Type(typ)
	return l, nil
}

func (r *repository) Get(ctx context.Context, id int64) (Location, error) {
	loc, err := scanLocation(r.pool.QueryRow(ctx, selectLocation+` WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Location{}, fmt.Errorf("location %d: %w", id, shared.ErrNotFound)
	}
	return loc, err
}

// List uses a dynamic query because of the optional filters.
func (r *repository) List(ctx context.Context, filters ListFilters) ([]Location, int, error) {
	where := []string{"1=1"}
	args := []any{}
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, strings.ReplaceAll(clause, "?", "$"+strconv.Itoa(len(args))))
	}
	if filters.Type != "" {
		add("type = ?", string(filters.Type))
	}
	if filters.ContractID != nil {
		add("contract_id = ?", *filters.ContractID)
	}
	if filters.Active != nil {
		add("is_active = ?", *filters.Active)
	}
	if filters.Search != "" {
		add("(name ILIKE ? OR code ILIKE ?)", "%"+filters.Search+"%")
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stock_locations WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, filters.Limit, (filters.Page-1)*filters.Limit)
	query := selectLocation + ` WHERE ` + cond + ` ORDER BY code ASC LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Location
	for rows.Next() {
		loc, err := scanLocation(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, loc)
	}
	return out, total, rows.Err()
}

func (r *repository) Create(ctx context.Context, loc Location) (Location, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO stock_locations
	(code, name, description, type, contract_id, work_front_id, address, responsible_id, is_active, created_at, updated_at)
VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, NULLIF($7, ''), $8, TRUE, NOW(), NOW())
RETURNING id, created_at, updated_at`,
		loc.Code, loc.Name, loc.Description, string(loc.Type), loc.ContractID, loc.WorkFrontID, loc.Address, loc.ResponsibleID)
	if err := row.Scan(&loc.ID, &loc.CreatedAt, &loc.UpdatedAt); err != nil {
		if db.IsUniqueViolation(err) {
			return Location{}, shared.Invalid("location code %q already exists", loc.Code)
		}
		return Location{}, err
	}
	loc.Active = true
	return loc, nil
}

func (r *repository) Update(ctx context.Context, loc Location) error {
	tag, err := r.pool.Exec(ctx, `UPDATE stock_locations
SET name=$2, description=NULLIF($3, ''), type=$4, address=NULLIF($5, ''), responsible_id=$6, is_active=$7, updated_at=NOW()
WHERE id=$1`, loc.ID, loc.Name, loc.Description, string(loc.Type), loc.Address, loc.ResponsibleID, loc.Active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("location %d: %w", loc.ID, shared.ErrNotFound)
	}
	return nil
}
