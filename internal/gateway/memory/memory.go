// Package memory provides an in-process payment.Gateway used for local
// development and tests. It enforces the same invariants a real gateway
// would: refunded ≤ captured ≤ authorized, and state-dependent operations.
package memory

import (
	"context"
	"sync"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/farmstand/internal/domain/payment"
)

var _ payment.Gateway = (*Gateway)(nil)

// ErrNotFound is returned when no authorization exists for the given ID.
var ErrNotFound = errors.New("authorization not found")

// Gateway is a thread-safe in-memory payment gateway.
type Gateway struct {
	mu    sync.Mutex
	auths map[string]*payment.Authorization

	// DeclineAll makes every Authorize call fail, simulating a gateway
	// outage or card decline.
	DeclineAll bool
}

// New creates an empty in-memory gateway.
func New() *Gateway {
	return &Gateway{auths: make(map[string]*payment.Authorization)}
}

// Authorize opens a hold for the requested amount.
func (g *Gateway) Authorize(_ context.Context, req payment.AuthorizeRequest) (*payment.Authorization, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.DeclineAll {
		return nil, payment.ErrAuthorizationFailed
	}
	if !req.Amount.IsPositive() {
		return nil, errors.Wrap(payment.ErrAuthorizationFailed, "non-positive amount")
	}

	a := &payment.Authorization{
		ID:               uuid.New().String(),
		Status:           payment.AuthRequiresCapture,
		AuthorizedAmount: req.Amount,
		CapturedAmount:   decimal.Zero,
		RefundedAmount:   decimal.Zero,
	}
	g.auths[a.ID] = a

	cp := *a
	return &cp, nil
}

// Get returns a copy of the authorization.
func (g *Gateway) Get(_ context.Context, id string) (*payment.Authorization, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	a, ok := g.auths[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

// Capture charges up to the authorized amount. Capturing less than authorized
// releases the remainder; either way the authorization moves to succeeded.
func (g *Gateway) Capture(_ context.Context, id string, amount decimal.Decimal) (*payment.Authorization, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	a, ok := g.auths[id]
	if !ok {
		return nil, ErrNotFound
	}
	if a.Status != payment.AuthRequiresCapture {
		return nil, errors.Wrapf(payment.ErrCaptureNotAllowed, "authorization %s is %s", id, a.Status)
	}
	if amount.GreaterThan(a.AuthorizedAmount) {
		return nil, &payment.CaptureExceedsAuthorizedError{
			Requested:  amount,
			Authorized: a.AuthorizedAmount,
		}
	}
	if !amount.IsPositive() {
		return nil, errors.Wrap(payment.ErrCaptureNotAllowed, "non-positive amount")
	}

	a.Status = payment.AuthSucceeded
	a.CapturedAmount = amount

	cp := *a
	return &cp, nil
}

// Refund returns part of the captured amount, bounded by what remains.
func (g *Gateway) Refund(_ context.Context, id string, amount decimal.Decimal, _ string) (*payment.Authorization, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	a, ok := g.auths[id]
	if !ok {
		return nil, ErrNotFound
	}
	if a.Status != payment.AuthSucceeded {
		return nil, errors.Wrapf(payment.ErrRefundExceedsAvailable, "authorization %s is %s", id, a.Status)
	}
	if !amount.IsPositive() || amount.GreaterThan(a.Refundable()) {
		return nil, payment.ErrRefundExceedsAvailable
	}

	a.RefundedAmount = a.RefundedAmount.Add(amount)

	cp := *a
	return &cp, nil
}
