package subscription

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/farmstand/internal/domain/order"
)

// OrderCreator is the slice of order.Service the runner needs.
type OrderCreator interface {
	CreateOrder(ctx context.Context, req order.CreateOrderRequest) (*order.Order, error)
}

// Runner processes due subscription templates in one batch pass. Templates
// are handled independently: one failure is logged and the template left
// untouched for the next run, the batch continues.
type Runner struct {
	subs    Repository
	catalog Catalog
	orders  OrderCreator
	lg      *zap.Logger
	now     func() time.Time
}

// NewRunner creates a Runner.
func NewRunner(subs Repository, catalog Catalog, orders OrderCreator, lg *zap.Logger) *Runner {
	return &Runner{
		subs:    subs,
		catalog: catalog,
		orders:  orders,
		lg:      lg,
		now:     time.Now,
	}
}

// RunOnce processes every currently due template sequentially and reports how
// many orders were created and how many templates failed.
func (r *Runner) RunOnce(ctx context.Context) (created, failed int, err error) {
	due, err := r.subs.ListDue(ctx, r.now().UTC())
	if err != nil {
		return 0, 0, errors.Wrap(err, "list due subscriptions")
	}

	for _, tpl := range due {
		if err := r.process(ctx, tpl); err != nil {
			failed++
			r.lg.Warn("subscription run failed, will retry next pass",
				zap.String("subscription_id", tpl.ID),
				zap.Time("due_date", tpl.NextOrderDate),
				zap.Error(err),
			)
			continue
		}
		created++
	}
	return created, failed, nil
}

func (r *Runner) process(ctx context.Context, tpl Template) error {
	items, err := r.buildCart(ctx, tpl)
	if err != nil {
		return err
	}

	_, err = r.orders.CreateOrder(ctx, order.CreateOrderRequest{
		CustomerID:      tpl.CustomerID,
		Items:           items,
		Fulfillment:     tpl.Fulfillment,
		ShippingAddress: tpl.ShippingAddress,
		MethodToken:     tpl.MethodToken,
		Source:          order.SourceRecurring,
	})
	if err != nil {
		return errors.Wrap(err, "create order")
	}

	// Advance from the previous scheduled date, not from now: a late batch
	// run must not shift the customer's delivery day.
	next, err := NextDate(tpl.NextOrderDate, tpl.Frequency)
	if err != nil {
		return err
	}
	if err := r.subs.AdvanceNextDate(ctx, tpl.ID, next); err != nil {
		return errors.Wrap(err, "advance next order date")
	}
	return nil
}

// buildCart resolves the template's items against the current catalog, so
// recurring orders always use today's prices rather than the prices at
// subscription-creation time.
func (r *Runner) buildCart(ctx context.Context, tpl Template) ([]order.CartItem, error) {
	ids := make([]string, len(tpl.Items))
	for i, item := range tpl.Items {
		ids[i] = item.ProductID
	}

	products, err := r.catalog.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := make(map[string]CatalogProduct, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	items := make([]order.CartItem, len(tpl.Items))
	for i, item := range tpl.Items {
		p, ok := byID[item.ProductID]
		if !ok {
			return nil, errors.Errorf("product %s no longer available", item.ProductID)
		}
		items[i] = order.CartItem{
			ProductID:       p.ID,
			Name:            p.Name,
			SKU:             p.SKU,
			Quantity:        item.Quantity,
			UnitPrice:       p.Price,
			PricingType:     p.PricingType,
			EstimatedWeight: p.EstimatedWeight,
		}
	}
	return items, nil
}
