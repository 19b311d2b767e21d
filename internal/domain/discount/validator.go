package discount

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// CouponType enumerates the supported coupon discount strategies.
type CouponType string

const (
	// CouponFixed subtracts a fixed amount, capped at the subtotal.
	CouponFixed CouponType = "fixed"
	// CouponPercentage subtracts a percentage of the subtotal.
	CouponPercentage CouponType = "percentage"
)

var (
	// ErrInvalidCoupon is returned when a coupon code is not found, inactive,
	// or the cart does not meet the coupon's minimum subtotal.
	ErrInvalidCoupon = errors.New("invalid coupon code")
	// ErrCouponUsageLimitReached is returned when a coupon has exhausted its
	// allowed uses.
	ErrCouponUsageLimitReached = errors.New("coupon usage limit reached")
)

// CouponRule defines a coupon's discount behaviour and eligibility
// constraints.
type CouponRule struct {
	Code         string
	Type         CouponType
	Value        decimal.Decimal
	MinSubtotal  decimal.Decimal
	FreeShipping bool
	Uses         int
	MaxUses      int
	Active       bool
}

// CouponOffer is the effect a validated coupon would have on a checkout.
type CouponOffer struct {
	Code         string
	Amount       decimal.Decimal
	FreeShipping bool
}

// CouponFinder looks up coupon rules by code.
type CouponFinder interface {
	// FindCoupon returns the rule for code, or ErrInvalidCoupon when the
	// code does not exist.
	FindCoupon(ctx context.Context, code string) (*CouponRule, error)
}

// Validator checks a coupon code against a cart subtotal and computes the
// offer. Validation never consumes a use; usage counters move only after the
// order exists, via the Ledger.
type Validator struct {
	coupons CouponFinder
}

// NewValidator creates a Validator backed by the given coupon store.
func NewValidator(coupons CouponFinder) *Validator {
	return &Validator{coupons: coupons}
}

// Validate looks up the rule for code, checks eligibility against subtotal,
// and returns the computed offer rounded to cents.
func (v *Validator) Validate(ctx context.Context, code string, subtotal decimal.Decimal) (*CouponOffer, error) {
	rule, err := v.coupons.FindCoupon(ctx, code)
	if err != nil {
		if errors.Is(err, ErrInvalidCoupon) {
			return nil, ErrInvalidCoupon
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	if !rule.Active {
		return nil, ErrInvalidCoupon
	}
	if rule.MaxUses > 0 && rule.Uses >= rule.MaxUses {
		return nil, ErrCouponUsageLimitReached
	}
	if subtotal.LessThan(rule.MinSubtotal) {
		return nil, ErrInvalidCoupon
	}

	amount := decimal.Zero
	switch rule.Type {
	case CouponFixed:
		amount = rule.Value
	case CouponPercentage:
		amount = subtotal.Mul(rule.Value).Div(decimal.NewFromInt(100))
	default:
		return nil, errors.Errorf("unknown coupon type %q", rule.Type)
	}

	if amount.GreaterThan(subtotal) {
		amount = subtotal
	}

	return &CouponOffer{
		Code:         rule.Code,
		Amount:       amount.Round(2),
		FreeShipping: rule.FreeShipping,
	}, nil
}
