package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCompute_WorkedExample(t *testing.T) {
	// Cart subtotal $89.50, shipping $12.00, membership $35.00, tax $7.16,
	// discount $10.00 => total $133.66.
	items := []Item{
		{ProductID: "p1", Quantity: 2, UnitPrice: d("24.75"), PricingType: PricingFixed},
		{ProductID: "p2", Quantity: 4, UnitPrice: d("10.00"), PricingType: PricingFixed},
	}

	q := Compute(items, Charges{
		ShippingFee:   d("12.00"),
		MembershipFee: d("35.00"),
		TaxAmount:     d("7.16"),
	}, Instruments{
		CouponCode:     "FARM10",
		DiscountAmount: d("10.00"),
	})

	assert.True(t, d("89.50").Equal(q.Subtotal), "subtotal = %s", q.Subtotal)
	assert.True(t, d("133.66").Equal(q.Total), "total = %s", q.Total)
}

func TestCompute_WeightLinesUseEstimate(t *testing.T) {
	// 2 × (4.99/lb × 1.25 lb) = 12.475, rounded at the quote boundary.
	items := []Item{
		{ProductID: "chicken", Quantity: 2, UnitPrice: d("4.99"), PricingType: PricingWeight, EstimatedWeight: d("1.25")},
	}

	q := Compute(items, Charges{}, Instruments{})

	assert.True(t, d("12.48").Equal(q.Subtotal), "subtotal = %s", q.Subtotal)
	assert.True(t, d("12.48").Equal(q.Total))
}

func TestCompute_TotalClampedAtZero(t *testing.T) {
	items := []Item{
		{ProductID: "p1", Quantity: 1, UnitPrice: d("10.00"), PricingType: PricingFixed},
	}

	q := Compute(items, Charges{}, Instruments{
		GiftCardAmount:    d("8.00"),
		StoreCreditAmount: d("5.00"),
	})

	assert.True(t, q.Total.IsZero(), "total = %s", q.Total)
	assert.True(t, d("8.00").Equal(q.GiftCardUsed))
	assert.True(t, d("5.00").Equal(q.StoreCreditUsed))
}

func TestCompute_FreeShippingZeroesFee(t *testing.T) {
	items := []Item{
		{ProductID: "p1", Quantity: 1, UnitPrice: d("20.00"), PricingType: PricingFixed},
	}

	q := Compute(items, Charges{ShippingFee: d("9.00")}, Instruments{FreeShipping: true})

	assert.True(t, q.ShippingFee.IsZero())
	assert.True(t, d("20.00").Equal(q.Total))
}

func TestCompute_MixedInstruments(t *testing.T) {
	items := []Item{
		{ProductID: "p1", Quantity: 3, UnitPrice: d("15.00"), PricingType: PricingFixed},
	}

	q := Compute(items, Charges{ShippingFee: d("5.00"), TaxAmount: d("2.50")}, Instruments{
		DiscountAmount:    d("4.50"),
		GiftCardAmount:    d("20.00"),
		StoreCreditAmount: d("3.00"),
	})

	// 45 + 5 + 2.50 − 4.50 − 20 − 3 = 25.00
	assert.True(t, d("25.00").Equal(q.Total), "total = %s", q.Total)
}

func TestRecompute_KeepsCheckoutFiguresFrozen(t *testing.T) {
	q := Quote{
		Subtotal:       d("50.00"),
		ShippingFee:    d("10.00"),
		TaxAmount:      d("4.00"),
		DiscountAmount: d("6.00"),
		Total:          d("58.00"),
	}

	got := Recompute(q, d("62.50"))

	assert.True(t, d("62.50").Equal(got.Subtotal))
	assert.True(t, d("70.50").Equal(got.Total), "total = %s", got.Total)
	assert.True(t, d("10.00").Equal(got.ShippingFee))
	assert.True(t, d("6.00").Equal(got.DiscountAmount))

	// Idempotent under repeated application with the same subtotal.
	again := Recompute(got, d("62.50"))
	assert.True(t, got.Total.Equal(again.Total))
}

func TestRecompute_ClampsAtZero(t *testing.T) {
	q := Quote{
		Subtotal:     d("30.00"),
		GiftCardUsed: d("40.00"),
		Total:        decimal.Zero,
	}

	got := Recompute(q, d("25.00"))
	assert.True(t, got.Total.IsZero())
}
