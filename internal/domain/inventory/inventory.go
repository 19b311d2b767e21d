// Package inventory guards stock levels for ordered items. Validation runs
// before a payment authorization is opened; the decrement runs only after the
// order row is durably created, so a failed order never leaves stock reduced.
package inventory

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
)

// ErrInsufficientStock is returned when a tracked, non-backorderable product
// cannot cover the requested quantity. Both Validate and Decrement can report
// it: the conditional decrement is the authoritative check under concurrency.
var ErrInsufficientStock = errors.New("insufficient stock")

// ProductNotFoundError indicates a requested product does not exist.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// InsufficientStockError carries the shortfall detail for a single product.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// Line is a product/quantity pair from the cart.
type Line struct {
	ProductID string
	Quantity  int
}

// Stock is the inventory view of a product.
type Stock struct {
	ProductID      string
	Tracked        bool
	AllowBackorder bool
	Quantity       int
}

// Repository provides stock reads and the atomic conditional decrement.
type Repository interface {
	// GetStock returns stock rows for the given product IDs. Missing IDs are
	// simply absent from the result.
	GetStock(ctx context.Context, ids []string) ([]Stock, error)
	// DecrementStock subtracts qty from the product's stock only when enough
	// stock remains (UPDATE ... WHERE quantity >= qty). It returns
	// ErrInsufficientStock when the condition fails, so two concurrent orders
	// for the last unit can never both succeed.
	DecrementStock(ctx context.Context, productID string, qty int) error
}

// Guard validates and decrements stock for ordered items.
type Guard struct {
	repo Repository
}

// NewGuard creates a Guard backed by the given repository.
func NewGuard(repo Repository) *Guard {
	return &Guard{repo: repo}
}

// Validate fails with ProductNotFoundError for unknown products and
// InsufficientStockError for tracked, non-backorderable products whose stock
// cannot cover the requested quantity. It is a pre-authorization check only;
// Decrement re-checks atomically.
func (g *Guard) Validate(ctx context.Context, lines []Line) error {
	ids := make([]string, len(lines))
	for i, line := range lines {
		ids[i] = line.ProductID
	}

	stocks, err := g.repo.GetStock(ctx, ids)
	if err != nil {
		return errors.Wrap(err, "get stock")
	}

	byID := make(map[string]Stock, len(stocks))
	for _, s := range stocks {
		byID[s.ProductID] = s
	}

	for _, line := range lines {
		s, ok := byID[line.ProductID]
		if !ok {
			return &ProductNotFoundError{ProductID: line.ProductID}
		}
		if !s.Tracked || s.AllowBackorder {
			continue
		}
		if line.Quantity > s.Quantity {
			return &InsufficientStockError{
				ProductID: line.ProductID,
				Requested: line.Quantity,
				Available: s.Quantity,
			}
		}
	}
	return nil
}

// Decrement applies the stock decrement for every tracked line. Untracked and
// backorderable products are skipped. The first failure stops the loop and is
// returned; callers treat it as a post-persistence conflict, not an order
// failure.
func (g *Guard) Decrement(ctx context.Context, lines []Line) error {
	ids := make([]string, len(lines))
	for i, line := range lines {
		ids[i] = line.ProductID
	}

	stocks, err := g.repo.GetStock(ctx, ids)
	if err != nil {
		return errors.Wrap(err, "get stock")
	}

	byID := make(map[string]Stock, len(stocks))
	for _, s := range stocks {
		byID[s.ProductID] = s
	}

	for _, line := range lines {
		s, ok := byID[line.ProductID]
		if !ok {
			return &ProductNotFoundError{ProductID: line.ProductID}
		}
		if !s.Tracked || s.AllowBackorder {
			continue
		}
		if err := g.repo.DecrementStock(ctx, line.ProductID, line.Quantity); err != nil {
			return errors.Wrapf(err, "decrement stock for product %s", line.ProductID)
		}
	}
	return nil
}
