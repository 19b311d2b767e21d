package order

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/farmstand/internal/domain/payment"
	"github.com/xenking/farmstand/internal/domain/pricing"
)

// PaymentSummary is the settlement view of an order, derived from the
// gateway's authorization record rather than duplicated locally.
type PaymentSummary struct {
	PaymentStatus     payment.Status
	AuthorizedAmount  decimal.Decimal
	CapturedAmount    decimal.Decimal
	RefundedAmount    decimal.Decimal
	RefundableAmount  decimal.Decimal
	OverAuthorization decimal.Decimal
}

// Capture charges the held funds for an order. Preconditions: the order is
// authorized, every weight-priced item has a recorded actual weight, the
// gateway authorization is capturable, and the amount does not exceed the
// original authorization ceiling. Capturing less than authorized releases
// the remainder to the payer. Transitions are serialized per order.
func (s *Service) Capture(ctx context.Context, orderID string, amount decimal.Decimal) (*Order, error) {
	unlock := s.locks.Lock(orderID)
	defer unlock()

	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if o.PaymentStatus != payment.StatusAuthorized {
		return nil, errors.Wrapf(payment.ErrCaptureNotAllowed, "payment status is %s", o.PaymentStatus)
	}
	for _, item := range o.Items {
		if item.PricingType == pricing.PricingWeight && item.ActualWeight == nil {
			return nil, errors.Wrapf(payment.ErrCaptureNotAllowed, "item %s awaiting actual weight", item.ID)
		}
	}
	if !amount.IsPositive() {
		return nil, errors.Wrap(payment.ErrCaptureNotAllowed, "amount must be greater than 0")
	}

	auth, err := s.gateway.Get(ctx, o.AuthorizationID)
	if err != nil {
		return nil, errors.Wrapf(err, "get authorization %s", o.AuthorizationID)
	}
	if auth.Status != payment.AuthRequiresCapture {
		return nil, errors.Wrapf(payment.ErrCaptureNotAllowed, "authorization is %s", auth.Status)
	}
	// Weight reconciliation can push the total above the ceiling; the excess
	// is a manual-resolution case, never an automatic re-authorization.
	if amount.GreaterThan(auth.AuthorizedAmount) {
		return nil, &payment.CaptureExceedsAuthorizedError{
			Requested:  amount,
			Authorized: auth.AuthorizedAmount,
		}
	}

	if _, err := s.gateway.Capture(ctx, o.AuthorizationID, amount); err != nil {
		return nil, errors.Wrapf(err, "capture authorization %s", o.AuthorizationID)
	}

	if err := s.orders.UpdatePaymentStatus(ctx, o.ID, payment.StatusPaid); err != nil {
		return nil, errors.Wrapf(err, "update payment status for order %q", o.ID)
	}
	o.PaymentStatus = payment.StatusPaid
	return o, nil
}

// Refund returns part of the captured amount to the payer. Permitted only
// from paid or partially_refunded; each refund is bounded by what remains of
// the captured amount and appended to the order's refund history.
func (s *Service) Refund(ctx context.Context, orderID string, amount decimal.Decimal, reason string) (*Order, error) {
	unlock := s.locks.Lock(orderID)
	defer unlock()

	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if o.PaymentStatus != payment.StatusPaid && o.PaymentStatus != payment.StatusPartiallyRefunded {
		return nil, errors.Wrapf(payment.ErrRefundNotAllowed, "payment status is %s", o.PaymentStatus)
	}

	auth, err := s.gateway.Get(ctx, o.AuthorizationID)
	if err != nil {
		return nil, errors.Wrapf(err, "get authorization %s", o.AuthorizationID)
	}
	if !amount.IsPositive() || amount.GreaterThan(auth.Refundable()) {
		return nil, payment.ErrRefundExceedsAvailable
	}

	updated, err := s.gateway.Refund(ctx, o.AuthorizationID, amount, reason)
	if err != nil {
		return nil, errors.Wrapf(err, "refund authorization %s", o.AuthorizationID)
	}

	if err := s.refunds.Append(ctx, o.ID, amount, reason, s.now().UTC()); err != nil {
		// The gateway already moved the money; the audit row is recoverable
		// from the authorization record, so log and continue.
		logWarn(ctx, "refund history append failed", o.ID, err)
	}

	status := payment.StatusPartiallyRefunded
	if updated.RefundedAmount.Equal(updated.CapturedAmount) {
		status = payment.StatusRefunded
	}
	if err := s.orders.UpdatePaymentStatus(ctx, o.ID, status); err != nil {
		return nil, errors.Wrapf(err, "update payment status for order %q", o.ID)
	}
	o.PaymentStatus = status
	return o, nil
}

// PaymentSummary reports authorized/captured/refunded amounts and the
// remaining refundable amount for an order. For fully pre-paid (zero total)
// orders all gateway-derived amounts are zero. OverAuthorization is the part
// of the current total no longer covered by the hold after reconciliation.
func (s *Service) PaymentSummary(ctx context.Context, orderID string) (*PaymentSummary, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}

	summary := &PaymentSummary{
		PaymentStatus:     o.PaymentStatus,
		AuthorizedAmount:  decimal.Zero,
		CapturedAmount:    decimal.Zero,
		RefundedAmount:    decimal.Zero,
		RefundableAmount:  decimal.Zero,
		OverAuthorization: decimal.Zero,
	}
	if o.AuthorizationID == "" {
		return summary, nil
	}

	auth, err := s.gateway.Get(ctx, o.AuthorizationID)
	if err != nil {
		return nil, errors.Wrapf(err, "get authorization %s", o.AuthorizationID)
	}

	summary.AuthorizedAmount = auth.AuthorizedAmount
	summary.CapturedAmount = auth.CapturedAmount
	summary.RefundedAmount = auth.RefundedAmount
	summary.RefundableAmount = auth.Refundable()
	if o.PaymentStatus == payment.StatusAuthorized && o.Total.GreaterThan(auth.AuthorizedAmount) {
		summary.OverAuthorization = o.Total.Sub(auth.AuthorizedAmount)
	}
	return summary, nil
}
