// Package payment defines the card authorization lifecycle used by the
// settlement pipeline: a hold is opened for the checkout total before the
// final (weight-reconciled) price is known, captured later for at most the
// held amount, and refunded in one or more partial steps afterwards.
package payment

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// AuthStatus is the gateway-side state of an authorization.
type AuthStatus string

const (
	// AuthPending means the gateway has not yet confirmed the hold.
	AuthPending AuthStatus = "pending"
	// AuthRequiresCapture means funds are held and capturable.
	AuthRequiresCapture AuthStatus = "requires_capture"
	// AuthSucceeded means the authorization was captured.
	AuthSucceeded AuthStatus = "succeeded"
	// AuthCanceled means the hold was released without a charge.
	AuthCanceled AuthStatus = "canceled"
)

// Status is the order-side payment status. Transitions:
//
//	pending → authorized → paid → partially_refunded → refunded
//
// with a side branch to failed from pending/authorized.
type Status string

const (
	StatusPending           Status = "pending"
	StatusAuthorized        Status = "authorized"
	StatusPaid              Status = "paid"
	StatusPartiallyRefunded Status = "partially_refunded"
	StatusRefunded          Status = "refunded"
	StatusFailed            Status = "failed"
)

// Sentinel errors for the capture/refund state machine.
var (
	// ErrAuthorizationFailed is returned when the gateway declines or is
	// unreachable while opening a hold. Order creation aborts on it.
	ErrAuthorizationFailed = errors.New("payment authorization failed")
	// ErrCaptureNotAllowed is returned when any capture precondition is
	// unmet. It is surfaced to the caller, never retried automatically.
	ErrCaptureNotAllowed = errors.New("capture not allowed")
	// ErrRefundNotAllowed is returned when refunding an order that is not
	// in paid or partially_refunded status.
	ErrRefundNotAllowed = errors.New("refund not allowed")
	// ErrRefundExceedsAvailable is returned when a refund request exceeds
	// the captured amount minus what was already refunded.
	ErrRefundExceedsAvailable = errors.New("refund exceeds available amount")
)

// CaptureExceedsAuthorizedError reports a capture request above the original
// authorization ceiling, typically after weight reconciliation pushed the
// total up. The excess requires manual resolution; there is no automatic
// re-authorization.
type CaptureExceedsAuthorizedError struct {
	Requested  decimal.Decimal
	Authorized decimal.Decimal
}

func (e *CaptureExceedsAuthorizedError) Error() string {
	return fmt.Sprintf("capture amount %s exceeds authorized %s", e.Requested, e.Authorized)
}

func (e *CaptureExceedsAuthorizedError) Unwrap() error { return ErrCaptureNotAllowed }

// Authorization is the gateway's record of a hold, referenced from the order
// by ID. Invariant: RefundedAmount ≤ CapturedAmount ≤ AuthorizedAmount.
type Authorization struct {
	ID               string
	Status           AuthStatus
	AuthorizedAmount decimal.Decimal
	CapturedAmount   decimal.Decimal
	RefundedAmount   decimal.Decimal
}

// Refundable returns the amount still available for refund.
func (a *Authorization) Refundable() decimal.Decimal {
	return a.CapturedAmount.Sub(a.RefundedAmount)
}

// AuthorizeRequest opens a hold for the checkout total.
type AuthorizeRequest struct {
	Amount      decimal.Decimal
	Currency    string
	MethodToken string
	Description string
}

// Gateway is the only component that talks to the outside payment network.
type Gateway interface {
	Authorize(ctx context.Context, req AuthorizeRequest) (*Authorization, error)
	Get(ctx context.Context, id string) (*Authorization, error)
	// Capture charges up to the authorized amount; capturing less releases
	// the remainder back to the payer.
	Capture(ctx context.Context, id string, amount decimal.Decimal) (*Authorization, error)
	// Refund returns part of the captured amount. Irreversible.
	Refund(ctx context.Context, id string, amount decimal.Decimal, reason string) (*Authorization, error)
}
