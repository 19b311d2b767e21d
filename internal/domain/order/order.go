// Package order owns the order aggregate: creation with compensating
// rollback, fulfillment status transitions, weight reconciliation, and the
// capture/refund settlement flow.
package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/farmstand/internal/domain/payment"
	"github.com/xenking/farmstand/internal/domain/pricing"
)

// Status is the fulfillment status of an order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusPacked     Status = "packed"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

// FulfillmentType selects how the customer receives the order.
type FulfillmentType string

const (
	FulfillmentPickup   FulfillmentType = "pickup"
	FulfillmentDelivery FulfillmentType = "delivery"
	FulfillmentShipping FulfillmentType = "shipping"
)

// Source records which caller drove the creation pipeline.
type Source string

const (
	SourceWeb       Source = "web"
	SourcePOS       Source = "pos"
	SourceRecurring Source = "recurring"
)

// Sentinel errors for order operations.
var (
	ErrEmptyItems            = errors.New("items required")
	ErrNotFound              = errors.New("order not found")
	ErrNotWeightPriced       = errors.New("item is not weight-priced")
	ErrWeightAlreadyRecorded = errors.New("actual weight already recorded")
)

// ValidationError reports malformed input, rejected before any side effect.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// InvalidTransitionError reports a disallowed fulfillment status change.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot transition order from %s to %s", e.From, e.To)
}

// Address is a shipping or billing address. Nil for pickup orders.
type Address struct {
	Name       string
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Phone      string
}

// Fulfillment describes the scheduled-fulfillment promise made at checkout.
type Fulfillment struct {
	Type          FulfillmentType
	LocationID    string
	ZoneID        string
	ScheduledDate time.Time
}

// Item is an order line. Name and SKU are snapshots taken at checkout,
// decoupled from the live catalog. For weight-priced items FinalPrice stays
// nil until the actual weight is recorded, at which point the line total is
// fixed.
type Item struct {
	ID              string
	OrderID         string
	ProductID       string
	Name            string
	SKU             string
	Quantity        int
	UnitPrice       decimal.Decimal
	PricingType     pricing.PricingType
	EstimatedWeight decimal.Decimal
	ActualWeight    *decimal.Decimal
	FinalPrice      *decimal.Decimal
	Packed          bool
	PackedAt        *time.Time
}

// LineTotal returns the item's current line total: fixed lines are always
// unit price × quantity; weight lines use the reconciled final price once
// set, otherwise the estimate.
func (it Item) LineTotal() decimal.Decimal {
	if it.PricingType == pricing.PricingWeight {
		if it.FinalPrice != nil {
			return *it.FinalPrice
		}
		return it.UnitPrice.Mul(it.EstimatedWeight).Mul(decimal.NewFromInt(int64(it.Quantity)))
	}
	return it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))
}

// Order is the aggregate root. Monetary fields satisfy
//
//	total = subtotal + shipping + membership + tax − discount − giftCard − storeCredit
//
// clamped at zero; fee, tax, and discount figures are frozen at checkout
// time and survive weight reconciliation unchanged.
type Order struct {
	ID     string
	Number int64

	CustomerID    string
	Status        Status
	PaymentStatus payment.Status
	Fulfillment   Fulfillment

	ShippingAddress *Address
	BillingAddress  *Address

	Subtotal        decimal.Decimal
	ShippingFee     decimal.Decimal
	MembershipFee   decimal.Decimal
	TaxAmount       decimal.Decimal
	DiscountAmount  decimal.Decimal
	GiftCardUsed    decimal.Decimal
	StoreCreditUsed decimal.Decimal
	Total           decimal.Decimal

	CouponCode string
	GiftCardID string

	AuthorizationID string

	Carrier        string
	TrackingNumber string

	CustomerNote string
	InternalNote string

	Source Source
	Items  []Item

	CreatedAt   time.Time
	ShippedAt   *time.Time
	DeliveredAt *time.Time
}

// quote reconstructs the pricing view from the stored monetary fields.
func (o *Order) quote() pricing.Quote {
	return pricing.Quote{
		Subtotal:        o.Subtotal,
		ShippingFee:     o.ShippingFee,
		MembershipFee:   o.MembershipFee,
		TaxAmount:       o.TaxAmount,
		DiscountAmount:  o.DiscountAmount,
		GiftCardUsed:    o.GiftCardUsed,
		StoreCreditUsed: o.StoreCreditUsed,
		Total:           o.Total,
	}
}

// applyQuote copies a pricing quote into the stored monetary fields.
func (o *Order) applyQuote(q pricing.Quote) {
	o.Subtotal = q.Subtotal
	o.ShippingFee = q.ShippingFee
	o.MembershipFee = q.MembershipFee
	o.TaxAmount = q.TaxAmount
	o.DiscountAmount = q.DiscountAmount
	o.GiftCardUsed = q.GiftCardUsed
	o.StoreCreditUsed = q.StoreCreditUsed
	o.Total = q.Total
}

// Repository defines persistence operations for orders. Header and item
// writes are separate calls on purpose: the creation pipeline deletes the
// header as a compensating rollback when the item write fails.
type Repository interface {
	// NextNumber returns the next sequential human-readable order number.
	NextNumber(ctx context.Context) (int64, error)
	CreateHeader(ctx context.Context, o *Order) error
	CreateItems(ctx context.Context, orderID string, items []Item) error
	// Delete removes an order header and any items. Used only as the
	// compensating rollback immediately after a failed creation.
	Delete(ctx context.Context, orderID string) error
	// Get loads an order with its items. Returns ErrNotFound when absent.
	Get(ctx context.Context, orderID string) (*Order, error)
	// UpdateTotals persists the monetary fields after recalculation.
	UpdateTotals(ctx context.Context, o *Order) error
	UpdatePaymentStatus(ctx context.Context, orderID string, status payment.Status) error
	UpdateStatus(ctx context.Context, orderID string, status Status, shippedAt, deliveredAt *time.Time) error
	// UpdateItemReconciled records the actual weight, final price, and
	// packed timestamp for a single item.
	UpdateItemReconciled(ctx context.Context, itemID string, actualWeight, finalPrice decimal.Decimal, packedAt time.Time) error
	SetTracking(ctx context.Context, orderID, carrier, trackingNumber string) error
}

// RefundHistory appends to the order's immutable refund audit trail.
type RefundHistory interface {
	Append(ctx context.Context, orderID string, amount decimal.Decimal, reason string, at time.Time) error
}
