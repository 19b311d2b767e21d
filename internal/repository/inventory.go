package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/farmstand/internal/domain/inventory"
)

const (
	getStockSQL = `SELECT id, track_inventory, allow_backorder, stock_quantity
	FROM products WHERE id = ANY($1)`

	decrementStockSQL = `UPDATE products SET stock_quantity = stock_quantity - $2
	WHERE id = $1 AND stock_quantity >= $2`
)

var _ inventory.Repository = (*InventoryRepository)(nil)

// InventoryRepository implements inventory.Repository backed by PostgreSQL.
type InventoryRepository struct {
	pool *pgxpool.Pool
}

// NewInventoryRepository returns an InventoryRepository that uses the given pool.
func NewInventoryRepository(pool *pgxpool.Pool) *InventoryRepository {
	return &InventoryRepository{pool: pool}
}

// GetStock returns stock rows for the given product IDs. Missing IDs are
// absent from the result.
func (r *InventoryRepository) GetStock(ctx context.Context, ids []string) ([]inventory.Stock, error) {
	rows, err := r.pool.Query(ctx, getStockSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting stock: %w", err)
	}

	stocks, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (inventory.Stock, error) {
		var s inventory.Stock
		err := row.Scan(&s.ProductID, &s.Tracked, &s.AllowBackorder, &s.Quantity)
		return s, err
	})
	if err != nil {
		return nil, fmt.Errorf("getting stock: %w", err)
	}
	return stocks, nil
}

// DecrementStock subtracts qty atomically. The WHERE clause guards against
// concurrent oversell: when no row matches, the remaining stock was below
// qty and ErrInsufficientStock is returned.
func (r *InventoryRepository) DecrementStock(ctx context.Context, productID string, qty int) error {
	tag, err := r.pool.Exec(ctx, decrementStockSQL, productID, qty)
	if err != nil {
		return fmt.Errorf("decrementing stock for product %q: %w", productID, err)
	}
	if tag.RowsAffected() == 0 {
		return inventory.ErrInsufficientStock
	}
	return nil
}
