package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/farmstand/internal/domain/discount"
	"github.com/xenking/farmstand/internal/domain/inventory"
	"github.com/xenking/farmstand/internal/domain/payment"
	"github.com/xenking/farmstand/internal/domain/pricing"
	"github.com/xenking/farmstand/internal/events"
)

// EventPublisher is the slice of events.Publisher the service needs.
type EventPublisher interface {
	Publish(ev events.Event)
}

// CartItem is a single cart line as submitted at checkout, with the catalog
// snapshot fields that get frozen onto the order.
type CartItem struct {
	ProductID       string
	Name            string
	SKU             string
	Quantity        int
	UnitPrice       decimal.Decimal
	PricingType     pricing.PricingType
	EstimatedWeight decimal.Decimal
}

// CreateOrderRequest holds the input for the settlement pipeline. Charges and
// Instruments arrive already resolved by external collaborators; this core
// only consumes their numeric effect.
type CreateOrderRequest struct {
	CustomerID      string
	Items           []CartItem
	Fulfillment     Fulfillment
	ShippingAddress *Address
	BillingAddress  *Address
	Charges         pricing.Charges
	Instruments     pricing.Instruments
	MethodToken     string
	CustomerNote    string
	Source          Source
}

// Service drives the settlement pipeline end to end.
type Service struct {
	orders    Repository
	inventory *inventory.Guard
	gateway   payment.Gateway
	ledger    *discount.Ledger
	refunds   RefundHistory
	events    EventPublisher
	locks     *payment.Locker
	currency  string
	now       func() time.Time
}

// NewService creates an order Service with the required dependencies.
func NewService(
	orders Repository,
	guard *inventory.Guard,
	gateway payment.Gateway,
	ledger *discount.Ledger,
	refunds RefundHistory,
	publisher EventPublisher,
	currency string,
) *Service {
	return &Service{
		orders:    orders,
		inventory: guard,
		gateway:   gateway,
		ledger:    ledger,
		refunds:   refunds,
		events:    publisher,
		locks:     payment.NewLocker(),
		currency:  currency,
		now:       time.Now,
	}
}

// CreateOrder runs the creation pipeline:
//
//  1. validate input shape and inventory
//  2. price the cart
//  3. open a payment authorization when the total is positive
//  4. persist the order header
//  5. persist the items — on failure the header is deleted (compensating
//     rollback; an order without items is not a valid order)
//  6. decrement inventory
//  7. redeem gift card / store credit / coupon usage
//  8. fire the order.created event
//
// Failures in steps 1–5 surface to the caller with no partial order left
// behind; failures in steps 6–8 are logged as warnings against the order
// because the payment is already secured.
func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	lines := make([]inventory.Line, len(req.Items))
	for i, item := range req.Items {
		lines[i] = inventory.Line{ProductID: item.ProductID, Quantity: item.Quantity}
	}
	// Inventory goes first: never hold funds for unavailable stock.
	if err := s.inventory.Validate(ctx, lines); err != nil {
		return nil, err
	}

	quote := pricing.Compute(pricingItems(req.Items), req.Charges, req.Instruments)

	// A zero total means the order is fully covered by discount instruments:
	// no gateway call, immediately paid.
	var authID string
	paymentStatus := payment.StatusPaid
	if quote.Total.IsPositive() {
		auth, err := s.gateway.Authorize(ctx, payment.AuthorizeRequest{
			Amount:      quote.Total,
			Currency:    s.currency,
			MethodToken: req.MethodToken,
			Description: "farmstand order",
		})
		if err != nil {
			if errors.Is(err, payment.ErrAuthorizationFailed) {
				return nil, err
			}
			return nil, errors.Wrap(payment.ErrAuthorizationFailed, err.Error())
		}
		authID = auth.ID
		paymentStatus = payment.StatusPending
		if auth.Status == payment.AuthRequiresCapture {
			paymentStatus = payment.StatusAuthorized
		}
	}

	number, err := s.orders.NextNumber(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "next order number")
	}

	source := req.Source
	if source == "" {
		source = SourceWeb
	}

	o := &Order{
		ID:              uuid.New().String(),
		Number:          number,
		CustomerID:      req.CustomerID,
		Status:          StatusPending,
		PaymentStatus:   paymentStatus,
		Fulfillment:     req.Fulfillment,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.BillingAddress,
		CouponCode:      req.Instruments.CouponCode,
		GiftCardID:      req.Instruments.GiftCardID,
		AuthorizationID: authID,
		CustomerNote:    req.CustomerNote,
		Source:          source,
		CreatedAt:       s.now().UTC(),
	}
	o.applyQuote(quote)

	o.Items = make([]Item, len(req.Items))
	for i, item := range req.Items {
		o.Items[i] = Item{
			ID:              uuid.New().String(),
			OrderID:         o.ID,
			ProductID:       item.ProductID,
			Name:            item.Name,
			SKU:             item.SKU,
			Quantity:        item.Quantity,
			UnitPrice:       item.UnitPrice,
			PricingType:     item.PricingType,
			EstimatedWeight: item.EstimatedWeight,
		}
	}

	if err := s.orders.CreateHeader(ctx, o); err != nil {
		return nil, errors.Wrapf(err, "create order %q", o.ID)
	}

	if err := s.orders.CreateItems(ctx, o.ID, o.Items); err != nil {
		// Compensating rollback: without items the header must not survive.
		if delErr := s.orders.Delete(ctx, o.ID); delErr != nil {
			zctx.From(ctx).Error("compensating order delete failed",
				zap.String("order_id", o.ID),
				zap.Error(delErr),
			)
		}
		return nil, errors.Wrapf(err, "create items for order %q", o.ID)
	}

	lg := zctx.From(ctx).With(zap.String("order_id", o.ID), zap.Int64("order_number", o.Number))

	if err := s.inventory.Decrement(ctx, lines); err != nil {
		lg.Warn("inventory decrement failed, needs manual follow-up", zap.Error(err))
	}

	if err := s.ledger.Redeem(ctx, discount.Redemption{
		OrderID:           o.ID,
		CustomerID:        o.CustomerID,
		CouponCode:        req.Instruments.CouponCode,
		GiftCardID:        req.Instruments.GiftCardID,
		GiftCardAmount:    quote.GiftCardUsed,
		StoreCreditAmount: quote.StoreCreditUsed,
	}); err != nil {
		lg.Warn("discount redemption failed, needs manual follow-up", zap.Error(err))
	}

	s.events.Publish(events.Event{
		Type:        events.TypeOrderCreated,
		OrderID:     o.ID,
		OrderNumber: o.Number,
		Status:      string(o.Status),
	})

	return o, nil
}

// Get loads an order with its items.
func (s *Service) Get(ctx context.Context, orderID string) (*Order, error) {
	return s.orders.Get(ctx, orderID)
}

func validateRequest(req CreateOrderRequest) error {
	if len(req.Items) == 0 {
		return ErrEmptyItems
	}
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return &InvalidQuantityError{ProductID: item.ProductID}
		}
		if item.UnitPrice.IsNegative() {
			return &ValidationError{Field: "unit_price", Reason: fmt.Sprintf("negative for product %s", item.ProductID)}
		}
		if item.PricingType == pricing.PricingWeight && !item.EstimatedWeight.IsPositive() {
			return &ValidationError{Field: "estimated_weight", Reason: fmt.Sprintf("required for weight-priced product %s", item.ProductID)}
		}
	}

	switch req.Fulfillment.Type {
	case FulfillmentPickup:
	case FulfillmentDelivery, FulfillmentShipping:
		if req.ShippingAddress == nil {
			return &ValidationError{Field: "shipping_address", Reason: fmt.Sprintf("required for %s orders", req.Fulfillment.Type)}
		}
	default:
		return &ValidationError{Field: "fulfillment_type", Reason: fmt.Sprintf("unknown type %q", req.Fulfillment.Type)}
	}
	if req.Fulfillment.ScheduledDate.IsZero() {
		return &ValidationError{Field: "scheduled_date", Reason: "required"}
	}

	if req.Charges.ShippingFee.IsNegative() || req.Charges.MembershipFee.IsNegative() || req.Charges.TaxAmount.IsNegative() {
		return &ValidationError{Field: "charges", Reason: "must be non-negative"}
	}
	if req.Instruments.DiscountAmount.IsNegative() || req.Instruments.GiftCardAmount.IsNegative() || req.Instruments.StoreCreditAmount.IsNegative() {
		return &ValidationError{Field: "instruments", Reason: "must be non-negative"}
	}

	return nil
}

func pricingItems(items []CartItem) []pricing.Item {
	out := make([]pricing.Item, len(items))
	for i, item := range items {
		out[i] = pricing.Item{
			ProductID:       item.ProductID,
			Quantity:        item.Quantity,
			UnitPrice:       item.UnitPrice,
			PricingType:     item.PricingType,
			EstimatedWeight: item.EstimatedWeight,
		}
	}
	return out
}
