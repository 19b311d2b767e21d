package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/farmstand/internal/domain/discount"
)

const (
	debitGiftCardSQL = `UPDATE gift_cards SET balance = balance - $2
	WHERE id = $1 AND balance >= $2`

	debitStoreCreditSQL = `UPDATE store_credits SET balance = balance - $2
	WHERE customer_id = $1 AND balance >= $2`

	insertStoreCreditEntrySQL = `INSERT INTO store_credit_entries (customer_id, order_id, amount)
	VALUES ($1, $2, $3)`

	incrementCouponUsesSQL = `UPDATE coupons SET uses = uses + 1 WHERE code = $1`

	findCouponSQL = `SELECT code, discount_type, value, min_subtotal, free_shipping, uses, max_uses, active
	FROM coupons WHERE code = $1`
)

var (
	_ discount.GiftCardRepository    = (*GiftCardRepository)(nil)
	_ discount.StoreCreditRepository = (*StoreCreditRepository)(nil)
	_ discount.CouponRepository      = (*CouponRepository)(nil)
	_ discount.CouponFinder          = (*CouponRepository)(nil)
)

// GiftCardRepository implements discount.GiftCardRepository backed by
// PostgreSQL.
type GiftCardRepository struct {
	pool *pgxpool.Pool
}

// NewGiftCardRepository returns a GiftCardRepository that uses the given pool.
func NewGiftCardRepository(pool *pgxpool.Pool) *GiftCardRepository {
	return &GiftCardRepository{pool: pool}
}

// Debit subtracts amount from the card's balance. The balance check runs in
// the same UPDATE, so concurrent debits cannot drive the balance negative.
func (r *GiftCardRepository) Debit(ctx context.Context, giftCardID string, amount decimal.Decimal) error {
	tag, err := r.pool.Exec(ctx, debitGiftCardSQL, giftCardID, amount)
	if err != nil {
		return fmt.Errorf("debiting gift card %q: %w", giftCardID, err)
	}
	if tag.RowsAffected() == 0 {
		return discount.ErrInsufficientBalance
	}
	return nil
}

// StoreCreditRepository implements discount.StoreCreditRepository backed by
// PostgreSQL. Each debit appends an entry to the store credit ledger.
type StoreCreditRepository struct {
	pool *pgxpool.Pool
}

// NewStoreCreditRepository returns a StoreCreditRepository that uses the
// given pool.
func NewStoreCreditRepository(pool *pgxpool.Pool) *StoreCreditRepository {
	return &StoreCreditRepository{pool: pool}
}

// Debit subtracts amount from the customer's balance and records a ledger
// entry, both within one transaction.
func (r *StoreCreditRepository) Debit(ctx context.Context, customerID string, amount decimal.Decimal, orderID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("debiting store credit for customer %q: %w", customerID, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, debitStoreCreditSQL, customerID, amount)
	if err != nil {
		return fmt.Errorf("debiting store credit for customer %q: %w", customerID, err)
	}
	if tag.RowsAffected() == 0 {
		return discount.ErrInsufficientBalance
	}

	if _, err := tx.Exec(ctx, insertStoreCreditEntrySQL, customerID, orderID, amount.Neg()); err != nil {
		return fmt.Errorf("recording store credit entry for customer %q: %w", customerID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("debiting store credit for customer %q: %w", customerID, err)
	}
	return nil
}

// CouponRepository implements discount.CouponRepository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// IncrementUses bumps the coupon's usage counter.
func (r *CouponRepository) IncrementUses(ctx context.Context, code string) error {
	_, err := r.pool.Exec(ctx, incrementCouponUsesSQL, code)
	if err != nil {
		return fmt.Errorf("incrementing uses for coupon %q: %w", code, err)
	}
	return nil
}

// FindCoupon returns the rule for code, mapping a missing row to
// discount.ErrInvalidCoupon.
func (r *CouponRepository) FindCoupon(ctx context.Context, code string) (*discount.CouponRule, error) {
	rows, err := r.pool.Query(ctx, findCouponSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon %q: %w", code, err)
	}

	rule, err := pgx.CollectExactlyOneRow(rows, func(row pgx.CollectableRow) (discount.CouponRule, error) {
		var (
			c            discount.CouponRule
			discountType string
		)
		err := row.Scan(&c.Code, &discountType, &c.Value, &c.MinSubtotal,
			&c.FreeShipping, &c.Uses, &c.MaxUses, &c.Active)
		c.Type = discount.CouponType(discountType)
		return c, err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, discount.ErrInvalidCoupon
		}
		return nil, fmt.Errorf("finding coupon %q: %w", code, err)
	}
	return &rule, nil
}
