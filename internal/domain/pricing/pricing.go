// Package pricing computes order totals from a cart snapshot and the
// resolved discount instruments. It is pure: no I/O, no clock, and all
// arithmetic is carried in decimal form so that weight-based lines
// (price × weight × quantity) never accumulate float drift.
package pricing

import (
	"github.com/shopspring/decimal"
)

// PricingType distinguishes items priced per unit from items priced by
// measured weight.
type PricingType string

const (
	// PricingFixed items have a deterministic line total at order time.
	PricingFixed PricingType = "fixed"
	// PricingWeight items are estimated at order time and finalized after
	// physical weighing.
	PricingWeight PricingType = "weight"
)

// Item is a single cart line as submitted at checkout. UnitPrice for weight
// items is the price per weight unit (e.g. per lb).
type Item struct {
	ProductID       string
	Quantity        int
	UnitPrice       decimal.Decimal
	PricingType     PricingType
	EstimatedWeight decimal.Decimal
}

// Charges holds the checkout-time fee and tax amounts. They are resolved by
// external collaborators (delivery zones, membership plans, tax rules) before
// the settlement pipeline runs.
type Charges struct {
	ShippingFee   decimal.Decimal
	MembershipFee decimal.Decimal
	TaxAmount     decimal.Decimal
}

// Instruments holds the resolved numeric effect of every discount instrument
// applied to the cart. Code validity and eligibility are validated upstream;
// this package only consumes the amounts.
type Instruments struct {
	CouponCode        string
	DiscountAmount    decimal.Decimal
	FreeShipping      bool
	GiftCardID        string
	GiftCardAmount    decimal.Decimal
	StoreCreditAmount decimal.Decimal
}

// Quote is the priced result of a cart. Total satisfies
//
//	total = subtotal + shipping + membership + tax − discount − giftCard − storeCredit
//
// clamped at zero. A zero Total means the order is fully pre-paid and no
// payment authorization should be opened.
type Quote struct {
	Subtotal        decimal.Decimal
	ShippingFee     decimal.Decimal
	MembershipFee   decimal.Decimal
	TaxAmount       decimal.Decimal
	DiscountAmount  decimal.Decimal
	GiftCardUsed    decimal.Decimal
	StoreCreditUsed decimal.Decimal
	Total           decimal.Decimal
}

// LineTotal returns the current line total for an item. Weight lines use the
// estimated weight; once an actual weight is recorded the reconciled final
// price supersedes this value (see the order package).
func LineTotal(item Item) decimal.Decimal {
	qty := decimal.NewFromInt(int64(item.Quantity))
	if item.PricingType == PricingWeight {
		return item.UnitPrice.Mul(item.EstimatedWeight).Mul(qty)
	}
	return item.UnitPrice.Mul(qty)
}

// Compute prices the cart. Rounding to 2 decimal places happens only here, at
// the quote boundary; intermediate line math keeps full precision.
func Compute(items []Item, charges Charges, instruments Instruments) Quote {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(LineTotal(item))
	}

	shipping := charges.ShippingFee
	if instruments.FreeShipping {
		shipping = decimal.Zero
	}

	total := subtotal.
		Add(shipping).
		Add(charges.MembershipFee).
		Add(charges.TaxAmount).
		Sub(instruments.DiscountAmount).
		Sub(instruments.GiftCardAmount).
		Sub(instruments.StoreCreditAmount)
	if total.IsNegative() {
		total = decimal.Zero
	}

	return Quote{
		Subtotal:        subtotal.Round(2),
		ShippingFee:     shipping.Round(2),
		MembershipFee:   charges.MembershipFee.Round(2),
		TaxAmount:       charges.TaxAmount.Round(2),
		DiscountAmount:  instruments.DiscountAmount.Round(2),
		GiftCardUsed:    instruments.GiftCardAmount.Round(2),
		StoreCreditUsed: instruments.StoreCreditAmount.Round(2),
		Total:           total.Round(2),
	}
}

// Recompute reapplies the quote invariant with a new subtotal while keeping
// the checkout-time fee, tax, and discount figures frozen. Weight
// reconciliation uses this so only quantity-derived amounts shift.
func Recompute(q Quote, subtotal decimal.Decimal) Quote {
	total := subtotal.
		Add(q.ShippingFee).
		Add(q.MembershipFee).
		Add(q.TaxAmount).
		Sub(q.DiscountAmount).
		Sub(q.GiftCardUsed).
		Sub(q.StoreCreditUsed)
	if total.IsNegative() {
		total = decimal.Zero
	}

	q.Subtotal = subtotal.Round(2)
	q.Total = total.Round(2)
	return q
}
