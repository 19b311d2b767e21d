package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/farmstand/internal/events"
)

// transitions is the allowed fulfillment status graph.
var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusPacked, StatusShipped, StatusCancelled},
	StatusPacked:     {StatusShipped, StatusDelivered, StatusCancelled},
	StatusShipped:    {StatusDelivered},
}

// notifiable is the subset of statuses that trigger a status-update
// notification to the customer.
var notifiable = map[Status]bool{
	StatusProcessing: true,
	StatusPacked:     true,
	StatusShipped:    true,
	StatusDelivered:  true,
}

func canTransition(from, to Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// UpdateStatus moves the order along the fulfillment status graph, stamping
// shipped/delivered timestamps and publishing notification events for the
// whitelisted statuses. Cancelling does not restore discount instruments:
// gift cards, store credit, and coupon uses are one-way by policy.
func (s *Service) UpdateStatus(ctx context.Context, orderID string, next Status) (*Order, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if !canTransition(o.Status, next) {
		return nil, &InvalidTransitionError{From: o.Status, To: next}
	}

	var shippedAt, deliveredAt *time.Time
	now := s.now().UTC()
	switch next {
	case StatusShipped:
		shippedAt = &now
	case StatusDelivered:
		deliveredAt = &now
	}

	if err := s.orders.UpdateStatus(ctx, o.ID, next, shippedAt, deliveredAt); err != nil {
		return nil, errors.Wrapf(err, "update status for order %q", o.ID)
	}

	o.Status = next
	if shippedAt != nil {
		o.ShippedAt = shippedAt
	}
	if deliveredAt != nil {
		o.DeliveredAt = deliveredAt
	}

	if notifiable[next] {
		s.events.Publish(events.Event{
			Type:        events.TypeOrderStatusChanged,
			OrderID:     o.ID,
			OrderNumber: o.Number,
			Status:      string(next),
		})
	}
	// Shipped additionally drives invoice generation downstream.
	if next == StatusShipped {
		s.events.Publish(events.Event{
			Type:        events.TypeOrderShipped,
			OrderID:     o.ID,
			OrderNumber: o.Number,
			Status:      string(next),
		})
	}

	return o, nil
}

// AddTracking attaches carrier tracking info to the order and notifies the
// customer.
func (s *Service) AddTracking(ctx context.Context, orderID, carrier, trackingNumber string) (*Order, error) {
	if trackingNumber == "" {
		return nil, &ValidationError{Field: "tracking_number", Reason: "required"}
	}

	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if err := s.orders.SetTracking(ctx, o.ID, carrier, trackingNumber); err != nil {
		return nil, errors.Wrapf(err, "set tracking for order %q", o.ID)
	}
	o.Carrier = carrier
	o.TrackingNumber = trackingNumber

	s.events.Publish(events.Event{
		Type:        events.TypeTrackingAdded,
		OrderID:     o.ID,
		OrderNumber: o.Number,
		Carrier:     carrier,
		Tracking:    trackingNumber,
	})

	return o, nil
}

func logWarn(ctx context.Context, msg, orderID string, err error) {
	zctx.From(ctx).Warn(msg, zap.String("order_id", orderID), zap.Error(err))
}
