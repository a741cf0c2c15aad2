package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// RowQuerier is satisfied by pools and transactions.
type RowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NextCode allocates the next human-readable code for prefix in year, e.g.
// RM-2026-0007. The counter row is locked by the upsert until the enclosing
// transaction ends, so codes are gap-free per committed transaction.
func NextCode(ctx context.Context, q RowQuerier, prefix string, year int) (string, error) {
	var seq int64
	err := q.QueryRow(ctx, `INSERT INTO code_sequences (prefix, year, last_value)
VALUES ($1, $2, 1)
ON CONFLICT (prefix, year) DO UPDATE SET last_value = code_sequences.last_value + 1
RETURNING last_value`, prefix, year).Scan(&seq)
	if err != nil {
		return "", fmt.Errorf("platform/db: next %s code: %w", prefix, err)
	}
	return FormatCode(prefix, year, seq), nil
}

// FormatCode renders PREFIX-YYYY-NNNN.
func FormatCode(prefix string, year int, seq int64) string {
	return fmt.Sprintf("%s-%04d-%04d", prefix, year, seq)
}
