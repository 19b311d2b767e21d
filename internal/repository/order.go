package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/farmstand/internal/domain/order"
	"github.com/xenking/farmstand/internal/domain/payment"
	"github.com/xenking/farmstand/internal/domain/pricing"
)

const (
	nextOrderNumberSQL = `SELECT nextval('order_number_seq')`

	createOrderHeaderSQL = `INSERT INTO orders (
		id, order_number, customer_id, status, payment_status,
		fulfillment_type, location_id, zone_id, scheduled_date,
		shipping_address, billing_address,
		subtotal, shipping_fee, membership_fee, tax_amount,
		discount_amount, gift_card_amount_used, store_credit_used, total,
		coupon_code, gift_card_id, authorization_id,
		customer_note, internal_note, source, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
		$14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26)`

	createOrderItemSQL = `INSERT INTO order_items (
		id, order_id, product_id, name, sku, quantity, unit_price,
		pricing_type, estimated_weight)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	deleteOrderSQL = `DELETE FROM orders WHERE id = $1`

	getOrderSQL = `SELECT id, order_number, customer_id, status, payment_status,
		fulfillment_type, location_id, zone_id, scheduled_date,
		shipping_address, billing_address,
		subtotal, shipping_fee, membership_fee, tax_amount,
		discount_amount, gift_card_amount_used, store_credit_used, total,
		coupon_code, gift_card_id, authorization_id,
		carrier, tracking_number, customer_note, internal_note, source,
		created_at, shipped_at, delivered_at
	FROM orders WHERE id = $1`

	getOrderItemsSQL = `SELECT id, order_id, product_id, name, sku, quantity,
		unit_price, pricing_type, estimated_weight, actual_weight,
		final_price, packed, packed_at
	FROM order_items WHERE order_id = $1 ORDER BY id`

	updateOrderTotalsSQL = `UPDATE orders SET
		subtotal = $2, shipping_fee = $3, membership_fee = $4, tax_amount = $5,
		discount_amount = $6, gift_card_amount_used = $7, store_credit_used = $8,
		total = $9
	WHERE id = $1`

	updatePaymentStatusSQL = `UPDATE orders SET payment_status = $2 WHERE id = $1`

	updateOrderStatusSQL = `UPDATE orders SET status = $2,
		shipped_at = COALESCE($3, shipped_at),
		delivered_at = COALESCE($4, delivered_at)
	WHERE id = $1`

	updateItemReconciledSQL = `UPDATE order_items SET
		actual_weight = $2, final_price = $3, packed = TRUE, packed_at = $4
	WHERE id = $1`

	setTrackingSQL = `UPDATE orders SET carrier = $2, tracking_number = $3 WHERE id = $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// NextNumber returns the next value of the order number sequence.
func (r *OrderRepository) NextNumber(ctx context.Context) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, nextOrderNumberSQL).Scan(&n); err != nil {
		return 0, fmt.Errorf("next order number: %w", err)
	}
	return n, nil
}

// CreateHeader persists the order row without its items. Addresses are
// serialized to JSONB.
func (r *OrderRepository) CreateHeader(ctx context.Context, o *order.Order) error {
	shipping, err := marshalAddress(o.ShippingAddress)
	if err != nil {
		return fmt.Errorf("marshaling shipping address: %w", err)
	}
	billing, err := marshalAddress(o.BillingAddress)
	if err != nil {
		return fmt.Errorf("marshaling billing address: %w", err)
	}

	_, err = r.pool.Exec(ctx, createOrderHeaderSQL,
		o.ID, o.Number, o.CustomerID, string(o.Status), string(o.PaymentStatus),
		string(o.Fulfillment.Type), o.Fulfillment.LocationID, o.Fulfillment.ZoneID,
		o.Fulfillment.ScheduledDate,
		shipping, billing,
		o.Subtotal, o.ShippingFee, o.MembershipFee, o.TaxAmount,
		o.DiscountAmount, o.GiftCardUsed, o.StoreCreditUsed, o.Total,
		o.CouponCode, o.GiftCardID, o.AuthorizationID,
		o.CustomerNote, o.InternalNote, string(o.Source), o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// CreateItems persists the order lines in a single batch.
func (r *OrderRepository) CreateItems(ctx context.Context, orderID string, items []order.Item) error {
	batch := &pgx.Batch{}
	for _, it := range items {
		batch.Queue(createOrderItemSQL,
			it.ID, orderID, it.ProductID, it.Name, it.SKU, it.Quantity,
			it.UnitPrice, string(it.PricingType), it.EstimatedWeight,
		)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range items {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("creating items for order %q: %w", orderID, err)
		}
	}
	return nil
}

// Delete removes the order header; items follow via ON DELETE CASCADE. Used
// only as the compensating rollback during creation.
func (r *OrderRepository) Delete(ctx context.Context, orderID string) error {
	_, err := r.pool.Exec(ctx, deleteOrderSQL, orderID)
	if err != nil {
		return fmt.Errorf("deleting order %q: %w", orderID, err)
	}
	return nil
}

// Get loads an order and its items.
func (r *OrderRepository) Get(ctx context.Context, orderID string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", orderID, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", orderID, err)
	}

	itemRows, err := r.pool.Query(ctx, getOrderItemsSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("getting items for order %q: %w", orderID, err)
	}
	items, err := pgx.CollectRows(itemRows, scanOrderItem)
	if err != nil {
		return nil, fmt.Errorf("getting items for order %q: %w", orderID, err)
	}
	o.Items = items
	return &o, nil
}

// UpdateTotals persists the monetary fields after a recalculation.
func (r *OrderRepository) UpdateTotals(ctx context.Context, o *order.Order) error {
	_, err := r.pool.Exec(ctx, updateOrderTotalsSQL,
		o.ID, o.Subtotal, o.ShippingFee, o.MembershipFee, o.TaxAmount,
		o.DiscountAmount, o.GiftCardUsed, o.StoreCreditUsed, o.Total,
	)
	if err != nil {
		return fmt.Errorf("updating totals for order %q: %w", o.ID, err)
	}
	return nil
}

// UpdatePaymentStatus sets the order payment status.
func (r *OrderRepository) UpdatePaymentStatus(ctx context.Context, orderID string, status payment.Status) error {
	_, err := r.pool.Exec(ctx, updatePaymentStatusSQL, orderID, string(status))
	if err != nil {
		return fmt.Errorf("updating payment status for order %q: %w", orderID, err)
	}
	return nil
}

// UpdateStatus sets the fulfillment status and stamps shipped/delivered
// timestamps when provided.
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID string, status order.Status, shippedAt, deliveredAt *time.Time) error {
	_, err := r.pool.Exec(ctx, updateOrderStatusSQL, orderID, string(status), shippedAt, deliveredAt)
	if err != nil {
		return fmt.Errorf("updating status for order %q: %w", orderID, err)
	}
	return nil
}

// UpdateItemReconciled records the measured weight and final price for one
// item and marks it packed.
func (r *OrderRepository) UpdateItemReconciled(ctx context.Context, itemID string, actualWeight, finalPrice decimal.Decimal, packedAt time.Time) error {
	_, err := r.pool.Exec(ctx, updateItemReconciledSQL, itemID, actualWeight, finalPrice, packedAt)
	if err != nil {
		return fmt.Errorf("reconciling item %q: %w", itemID, err)
	}
	return nil
}

// SetTracking stores carrier tracking info on the order.
func (r *OrderRepository) SetTracking(ctx context.Context, orderID, carrier, trackingNumber string) error {
	_, err := r.pool.Exec(ctx, setTrackingSQL, orderID, carrier, trackingNumber)
	if err != nil {
		return fmt.Errorf("setting tracking for order %q: %w", orderID, err)
	}
	return nil
}

func marshalAddress(a *order.Address) ([]byte, error) {
	if a == nil {
		return nil, nil
	}
	return json.Marshal(a)
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o                 order.Order
		status            string
		paymentStatus     string
		fulfillmentType   string
		source            string
		shipping, billing []byte
	)
	err := row.Scan(
		&o.ID, &o.Number, &o.CustomerID, &status, &paymentStatus,
		&fulfillmentType, &o.Fulfillment.LocationID, &o.Fulfillment.ZoneID,
		&o.Fulfillment.ScheduledDate,
		&shipping, &billing,
		&o.Subtotal, &o.ShippingFee, &o.MembershipFee, &o.TaxAmount,
		&o.DiscountAmount, &o.GiftCardUsed, &o.StoreCreditUsed, &o.Total,
		&o.CouponCode, &o.GiftCardID, &o.AuthorizationID,
		&o.Carrier, &o.TrackingNumber, &o.CustomerNote, &o.InternalNote, &source,
		&o.CreatedAt, &o.ShippedAt, &o.DeliveredAt,
	)
	if err != nil {
		return o, err
	}

	o.Status = order.Status(status)
	o.PaymentStatus = payment.Status(paymentStatus)
	o.Fulfillment.Type = order.FulfillmentType(fulfillmentType)
	o.Source = order.Source(source)

	if o.ShippingAddress, err = unmarshalAddress(shipping); err != nil {
		return o, err
	}
	if o.BillingAddress, err = unmarshalAddress(billing); err != nil {
		return o, err
	}
	return o, nil
}

func unmarshalAddress(raw []byte) (*order.Address, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var a order.Address
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("unmarshaling address: %w", err)
	}
	return &a, nil
}

func scanOrderItem(row pgx.CollectableRow) (order.Item, error) {
	var (
		it          order.Item
		pricingType string
	)
	err := row.Scan(
		&it.ID, &it.OrderID, &it.ProductID, &it.Name, &it.SKU, &it.Quantity,
		&it.UnitPrice, &pricingType, &it.EstimatedWeight, &it.ActualWeight,
		&it.FinalPrice, &it.Packed, &it.PackedAt,
	)
	it.PricingType = pricing.PricingType(pricingType)
	return it, err
}
