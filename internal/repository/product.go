package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/farmstand/internal/domain/pricing"
	"github.com/xenking/farmstand/internal/domain/subscription"
)

const getProductsByIDsSQL = `SELECT id, name, sku, price, pricing_type, estimated_weight
	FROM products WHERE id = ANY($1)`

var _ subscription.Catalog = (*ProductRepository)(nil)

// ProductRepository serves current catalog data, used by the subscription
// runner to build carts at today's prices.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// GetByIDs returns the products that exist among the given IDs.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]subscription.CatalogProduct, error) {
	rows, err := r.pool.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products: %w", err)
	}

	products, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (subscription.CatalogProduct, error) {
		var (
			p           subscription.CatalogProduct
			pricingType string
		)
		err := row.Scan(&p.ID, &p.Name, &p.SKU, &p.Price, &pricingType, &p.EstimatedWeight)
		p.PricingType = pricing.PricingType(pricingType)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("getting products: %w", err)
	}
	return products, nil
}
