package order

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/farmstand/internal/domain/pricing"
)

// RecordActualWeight replaces the estimated price of a weight-priced item
// with the measured one: it sets the actual weight, computes the final line
// price, marks the item packed, and recalculates the order total. The
// checkout-time fee, tax, and discount figures stay frozen — only the
// quantity-derived subtotal moves.
func (s *Service) RecordActualWeight(ctx context.Context, orderID, itemID string, weight decimal.Decimal) (*Order, error) {
	if !weight.IsPositive() {
		return nil, &ValidationError{Field: "actual_weight", Reason: "must be greater than 0"}
	}

	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}

	var item *Item
	for i := range o.Items {
		if o.Items[i].ID == itemID {
			item = &o.Items[i]
			break
		}
	}
	if item == nil {
		return nil, errors.Wrapf(ErrNotFound, "item %s", itemID)
	}
	if item.PricingType != pricing.PricingWeight {
		return nil, errors.Wrapf(ErrNotWeightPriced, "item %s", itemID)
	}
	// Once weighed, the line is fixed.
	if item.ActualWeight != nil {
		return nil, errors.Wrapf(ErrWeightAlreadyRecorded, "item %s", itemID)
	}

	final := item.UnitPrice.Mul(weight).Mul(decimal.NewFromInt(int64(item.Quantity))).Round(2)
	packedAt := s.now().UTC()

	if err := s.orders.UpdateItemReconciled(ctx, item.ID, weight, final, packedAt); err != nil {
		return nil, errors.Wrapf(err, "reconcile item %s", itemID)
	}

	item.ActualWeight = &weight
	item.FinalPrice = &final
	item.Packed = true
	item.PackedAt = &packedAt

	return s.recalculateTotal(ctx, o)
}

// RecalculateTotal recomputes the order's subtotal from the current line
// totals and reapplies the pricing invariant against the stored fee,
// discount, and tax fields. Idempotent: repeated calls with unchanged items
// produce the same totals.
func (s *Service) RecalculateTotal(ctx context.Context, orderID string) (*Order, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return s.recalculateTotal(ctx, o)
}

func (s *Service) recalculateTotal(ctx context.Context, o *Order) (*Order, error) {
	subtotal := decimal.Zero
	for _, item := range o.Items {
		subtotal = subtotal.Add(item.LineTotal())
	}

	o.applyQuote(pricing.Recompute(o.quote(), subtotal))

	if err := s.orders.UpdateTotals(ctx, o); err != nil {
		return nil, errors.Wrapf(err, "update totals for order %q", o.ID)
	}
	return o, nil
}
