package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/farmstand/internal/domain/order"
)

const (
	appendRefundSQL = `INSERT INTO refunds (order_id, amount, reason, created_at)
	VALUES ($1, $2, $3, $4)`

	listRefundsSQL = `SELECT order_id, amount, reason, created_at
	FROM refunds WHERE order_id = $1 ORDER BY id`
)

var _ order.RefundHistory = (*RefundRepository)(nil)

// RefundEntry is one row of an order's refund audit trail.
type RefundEntry struct {
	OrderID   string
	Amount    decimal.Decimal
	Reason    string
	CreatedAt time.Time
}

// RefundRepository implements order.RefundHistory backed by PostgreSQL. The
// refunds table is append-only.
type RefundRepository struct {
	pool *pgxpool.Pool
}

// NewRefundRepository returns a RefundRepository that uses the given pool.
func NewRefundRepository(pool *pgxpool.Pool) *RefundRepository {
	return &RefundRepository{pool: pool}
}

// Append records one refund against the order.
func (r *RefundRepository) Append(ctx context.Context, orderID string, amount decimal.Decimal, reason string, at time.Time) error {
	_, err := r.pool.Exec(ctx, appendRefundSQL, orderID, amount, reason, at)
	if err != nil {
		return fmt.Errorf("appending refund for order %q: %w", orderID, err)
	}
	return nil
}

// ListByOrder returns the order's refund entries in insertion order.
func (r *RefundRepository) ListByOrder(ctx context.Context, orderID string) ([]RefundEntry, error) {
	rows, err := r.pool.Query(ctx, listRefundsSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("listing refunds for order %q: %w", orderID, err)
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (RefundEntry, error) {
		var e RefundEntry
		err := row.Scan(&e.OrderID, &e.Amount, &e.Reason, &e.CreatedAt)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("listing refunds for order %q: %w", orderID, err)
	}
	return entries, nil
}
