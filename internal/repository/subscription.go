package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/farmstand/internal/domain/order"
	"github.com/xenking/farmstand/internal/domain/subscription"
)

const (
	listDueSubscriptionsSQL = `SELECT id, customer_id, frequency, next_order_date,
		items, fulfillment_type, location_id, zone_id, shipping_address, method_token
	FROM subscriptions
	WHERE active AND next_order_date <= $1
	ORDER BY next_order_date`

	advanceNextDateSQL = `UPDATE subscriptions SET next_order_date = $2 WHERE id = $1`
)

var _ subscription.Repository = (*SubscriptionRepository)(nil)

// SubscriptionRepository implements subscription.Repository backed by
// PostgreSQL. Template items and addresses live in JSONB columns.
type SubscriptionRepository struct {
	pool *pgxpool.Pool
}

// NewSubscriptionRepository returns a SubscriptionRepository that uses the
// given pool.
func NewSubscriptionRepository(pool *pgxpool.Pool) *SubscriptionRepository {
	return &SubscriptionRepository{pool: pool}
}

// ListDue returns active templates due on or before now, oldest first.
func (r *SubscriptionRepository) ListDue(ctx context.Context, now time.Time) ([]subscription.Template, error) {
	rows, err := r.pool.Query(ctx, listDueSubscriptionsSQL, now)
	if err != nil {
		return nil, fmt.Errorf("listing due subscriptions: %w", err)
	}

	templates, err := pgx.CollectRows(rows, scanSubscription)
	if err != nil {
		return nil, fmt.Errorf("listing due subscriptions: %w", err)
	}
	return templates, nil
}

// AdvanceNextDate moves the template's next order date forward.
func (r *SubscriptionRepository) AdvanceNextDate(ctx context.Context, templateID string, next time.Time) error {
	_, err := r.pool.Exec(ctx, advanceNextDateSQL, templateID, next)
	if err != nil {
		return fmt.Errorf("advancing subscription %q: %w", templateID, err)
	}
	return nil
}

func scanSubscription(row pgx.CollectableRow) (subscription.Template, error) {
	var (
		t               subscription.Template
		frequency       string
		fulfillmentType string
		items           []byte
		shipping        []byte
	)
	err := row.Scan(
		&t.ID, &t.CustomerID, &frequency, &t.NextOrderDate,
		&items, &fulfillmentType, &t.Fulfillment.LocationID, &t.Fulfillment.ZoneID,
		&shipping, &t.MethodToken,
	)
	if err != nil {
		return t, err
	}

	t.Frequency = subscription.Frequency(frequency)
	t.Fulfillment.Type = order.FulfillmentType(fulfillmentType)
	t.Fulfillment.ScheduledDate = t.NextOrderDate

	if err := json.Unmarshal(items, &t.Items); err != nil {
		return t, fmt.Errorf("unmarshaling subscription items: %w", err)
	}
	if t.ShippingAddress, err = unmarshalAddress(shipping); err != nil {
		return t, err
	}
	return t, nil
}
