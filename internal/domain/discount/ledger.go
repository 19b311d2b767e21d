// Package discount records the consumption of discount instruments against a
// created order: gift-card redemption, store-credit debit, and the coupon
// usage counter. All three are one-way instruments by policy — cancelling or
// refunding an order later does not restore them.
package discount

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Sentinel errors for instrument redemption.
var (
	// ErrRedemptionFailed wraps any instrument failure during step 7 of
	// order creation. It is logged, never fatal to the order.
	ErrRedemptionFailed = errors.New("discount redemption failed")
	// ErrInsufficientBalance is returned when a gift card or store credit
	// balance cannot cover the requested debit.
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// GiftCardRepository decrements gift-card balances.
type GiftCardRepository interface {
	// Debit subtracts amount from the card's balance, failing with
	// ErrInsufficientBalance when the balance cannot cover it.
	Debit(ctx context.Context, giftCardID string, amount decimal.Decimal) error
}

// StoreCreditRepository debits a customer's store credit and appends a ledger
// entry tying the debit to the order.
type StoreCreditRepository interface {
	Debit(ctx context.Context, customerID string, amount decimal.Decimal, orderID string) error
}

// CouponRepository increments coupon usage counters. The pricing step only
// validates coupons; the counter moves here, after the order exists.
type CouponRepository interface {
	IncrementUses(ctx context.Context, code string) error
}

// Redemption is the set of instrument effects to record for one order.
type Redemption struct {
	OrderID           string
	CustomerID        string
	CouponCode        string
	GiftCardID        string
	GiftCardAmount    decimal.Decimal
	StoreCreditAmount decimal.Decimal
}

// Ledger applies instrument redemptions.
type Ledger struct {
	giftCards    GiftCardRepository
	storeCredits StoreCreditRepository
	coupons      CouponRepository
}

// NewLedger creates a Ledger over the three instrument repositories.
func NewLedger(
	giftCards GiftCardRepository,
	storeCredits StoreCreditRepository,
	coupons CouponRepository,
) *Ledger {
	return &Ledger{
		giftCards:    giftCards,
		storeCredits: storeCredits,
		coupons:      coupons,
	}
}

// Redeem records every applied instrument. It keeps going after individual
// failures so one broken instrument does not block the others, and returns
// the failures joined under ErrRedemptionFailed for the caller to log.
func (l *Ledger) Redeem(ctx context.Context, r Redemption) error {
	var errs []error

	if r.GiftCardID != "" && r.GiftCardAmount.IsPositive() {
		if err := l.giftCards.Debit(ctx, r.GiftCardID, r.GiftCardAmount); err != nil {
			errs = append(errs, errors.Wrapf(err, "debit gift card %s", r.GiftCardID))
		}
	}

	if r.StoreCreditAmount.IsPositive() {
		if err := l.storeCredits.Debit(ctx, r.CustomerID, r.StoreCreditAmount, r.OrderID); err != nil {
			errs = append(errs, errors.Wrap(err, "debit store credit"))
		}
	}

	if r.CouponCode != "" {
		if err := l.coupons.IncrementUses(ctx, r.CouponCode); err != nil {
			errs = append(errs, errors.Wrapf(err, "increment uses for coupon %q", r.CouponCode))
		}
	}

	if len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, err := range errs {
			msgs[i] = err.Error()
		}
		return errors.Wrap(ErrRedemptionFailed, strings.Join(msgs, "; "))
	}
	return nil
}
