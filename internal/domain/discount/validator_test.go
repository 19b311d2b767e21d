package discount

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockCouponFinder struct {
	rule *CouponRule
	err  error
}

func (m *mockCouponFinder) FindCoupon(_ context.Context, _ string) (*CouponRule, error) {
	return m.rule, m.err
}

func TestValidator_Validate(t *testing.T) {
	tests := []struct {
		name             string
		rule             *CouponRule
		err              error
		subtotal         string
		wantAmount       string
		wantFreeShipping bool
		wantErr          error
	}{
		{
			name: "fixed amount",
			rule: &CouponRule{
				Code:   "HARVEST10",
				Type:   CouponFixed,
				Value:  decimal.RequireFromString("10.00"),
				Active: true,
			},
			subtotal:   "89.50",
			wantAmount: "10.00",
		},
		{
			name: "percentage of subtotal",
			rule: &CouponRule{
				Code:   "TEN",
				Type:   CouponPercentage,
				Value:  decimal.NewFromInt(10),
				Active: true,
			},
			subtotal:   "89.50",
			wantAmount: "8.95",
		},
		{
			name: "fixed capped at subtotal",
			rule: &CouponRule{
				Code:   "BIG",
				Type:   CouponFixed,
				Value:  decimal.RequireFromString("50.00"),
				Active: true,
			},
			subtotal:   "30.00",
			wantAmount: "30.00",
		},
		{
			name: "free shipping flag carried",
			rule: &CouponRule{
				Code:         "FREESHIP",
				Type:         CouponFixed,
				Value:        decimal.Zero,
				FreeShipping: true,
				Active:       true,
			},
			subtotal:         "20.00",
			wantAmount:       "0.00",
			wantFreeShipping: true,
		},
		{
			name:     "unknown code",
			err:      ErrInvalidCoupon,
			subtotal: "50.00",
			wantErr:  ErrInvalidCoupon,
		},
		{
			name: "inactive coupon rejected",
			rule: &CouponRule{
				Code:  "OLD",
				Type:  CouponFixed,
				Value: decimal.RequireFromString("5.00"),
			},
			subtotal: "50.00",
			wantErr:  ErrInvalidCoupon,
		},
		{
			name: "below minimum subtotal",
			rule: &CouponRule{
				Code:        "HARVEST10",
				Type:        CouponFixed,
				Value:       decimal.RequireFromString("10.00"),
				MinSubtotal: decimal.RequireFromString("50.00"),
				Active:      true,
			},
			subtotal: "49.99",
			wantErr:  ErrInvalidCoupon,
		},
		{
			name: "usage limit reached",
			rule: &CouponRule{
				Code:    "LIMITED",
				Type:    CouponFixed,
				Value:   decimal.RequireFromString("5.00"),
				Uses:    100,
				MaxUses: 100,
				Active:  true,
			},
			subtotal: "50.00",
			wantErr:  ErrCouponUsageLimitReached,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewValidator(&mockCouponFinder{rule: tt.rule, err: tt.err})

			offer, err := v.Validate(context.Background(), "code", decimal.RequireFromString(tt.subtotal))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.True(t, offer.Amount.Equal(decimal.RequireFromString(tt.wantAmount)),
				"amount = %s, want %s", offer.Amount, tt.wantAmount)
			assert.Equal(t, tt.wantFreeShipping, offer.FreeShipping)
		})
	}
}
