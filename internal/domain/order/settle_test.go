package order

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/farmstand/internal/domain/payment"
	"github.com/xenking/farmstand/internal/events"
)

// createAuthorized makes an order through the full pipeline and returns it
// with payment_status = authorized.
func createAuthorized(t *testing.T, env *testEnv, items []CartItem) *Order {
	t.Helper()
	o, err := env.svc.CreateOrder(context.Background(), pickupRequest(items))
	require.NoError(t, err)
	require.Equal(t, payment.StatusAuthorized, o.PaymentStatus)
	return o
}

func TestCapture_FullAmount(t *testing.T) {
	env := newTestEnv(defaultStocks()...)
	o := createAuthorized(t, env, fixedCart())

	captured, err := env.svc.Capture(context.Background(), o.ID, o.Total)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPaid, captured.PaymentStatus)

	auth, err := env.gw.Get(context.Background(), o.AuthorizationID)
	require.NoError(t, err)
	assert.True(t, o.Total.Equal(auth.CapturedAmount))
	assert.Equal(t, payment.AuthSucceeded, auth.Status)
}

func TestCapture_WeightItemsMustBeReconciled(t *testing.T) {
	env := newTestEnv(defaultStocks()...)
	o := createAuthorized(t, env, weightCart())

	_, err := env.svc.Capture(context.Background(), o.ID, o.Total)
	require.ErrorIs(t, err, payment.ErrCaptureNotAllowed)

	// After reconciliation the capture goes through.
	_, err = env.svc.RecordActualWeight(context.Background(), o.ID, o.Items[0].ID, d("4.0"))
	require.NoError(t, err)

	_, err = env.svc.Capture(context.Background(), o.ID, o.Total)
	require.NoError(t, err)
}

func TestCapture_ReconciledAboveCeiling(t *testing.T) {
	// Authorized $48 + $0 tax at checkout; reconciliation pushes the total
	// above the hold. Capturing the new total is rejected, capturing the
	// authorized amount succeeds and releases nothing extra.
	env := newTestEnv(defaultStocks()...)
	o := createAuthorized(t, env, weightCart())
	authorized := o.Total

	// 2 × (4.50 × 6.0) = 54.00 on the weight line pushes subtotal to 66.00.
	updated, err := env.svc.RecordActualWeight(context.Background(), o.ID, o.Items[0].ID, d("6.0"))
	require.NoError(t, err)
	require.True(t, updated.Total.GreaterThan(authorized))

	_, err = env.svc.Capture(context.Background(), o.ID, updated.Total)
	require.ErrorIs(t, err, payment.ErrCaptureNotAllowed)

	var ceilErr *payment.CaptureExceedsAuthorizedError
	require.ErrorAs(t, err, &ceilErr)
	assert.True(t, authorized.Equal(ceilErr.Authorized))

	// The overage is surfaced for manual resolution.
	summary, err := env.svc.PaymentSummary(context.Background(), o.ID)
	require.NoError(t, err)
	assert.True(t, updated.Total.Sub(authorized).Equal(summary.OverAuthorization))

	captured, err := env.svc.Capture(context.Background(), o.ID, authorized)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPaid, captured.PaymentStatus)
}

func TestCapture_PartialReleasesRemainder(t *testing.T) {
	env := newTestEnv(defaultStocks()...)
	o := createAuthorized(t, env, fixedCart())

	partial := o.Total.Sub(d("5.00"))
	captured, err := env.svc.Capture(context.Background(), o.ID, partial)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPaid, captured.PaymentStatus)

	auth, err := env.gw.Get(context.Background(), o.AuthorizationID)
	require.NoError(t, err)
	assert.True(t, partial.Equal(auth.CapturedAmount))
}

func TestCapture_AlreadyCaptured(t *testing.T) {
	env := newTestEnv(defaultStocks()...)
	o := createAuthorized(t, env, fixedCart())

	_, err := env.svc.Capture(context.Background(), o.ID, o.Total)
	require.NoError(t, err)

	_, err = env.svc.Capture(context.Background(), o.ID, o.Total)
	require.ErrorIs(t, err, payment.ErrCaptureNotAllowed)
}

func TestRefund_PartialThenFull(t *testing.T) {
	// Paid order of $50: refund $20 => partially_refunded with $30 left,
	// refund $30 => refunded, further refunds rejected.
	env := newTestEnv(defaultStocks()...)
	items := []CartItem{
		{ProductID: "eggs", Name: "Pasture Eggs", SKU: "EGG-12", Quantity: 1, UnitPrice: d("50.00")},
	}
	o := createAuthorized(t, env, items)
	_, err := env.svc.Capture(context.Background(), o.ID, d("50.00"))
	require.NoError(t, err)

	refunded, err := env.svc.Refund(context.Background(), o.ID, d("20.00"), "damaged item")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPartiallyRefunded, refunded.PaymentStatus)

	summary, err := env.svc.PaymentSummary(context.Background(), o.ID)
	require.NoError(t, err)
	assert.True(t, d("30.00").Equal(summary.RefundableAmount))

	refunded, err = env.svc.Refund(context.Background(), o.ID, d("30.00"), "order cancelled")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusRefunded, refunded.PaymentStatus)

	summary, err = env.svc.PaymentSummary(context.Background(), o.ID)
	require.NoError(t, err)
	assert.True(t, summary.RefundableAmount.IsZero())

	_, err = env.svc.Refund(context.Background(), o.ID, d("0.01"), "")
	require.ErrorIs(t, err, payment.ErrRefundNotAllowed)

	// Audit trail has both refunds.
	require.Len(t, env.refunds.entries, 2)
	assert.Equal(t, "damaged item", env.refunds.entries[0].reason)
}

func TestRefund_ExceedsAvailable(t *testing.T) {
	env := newTestEnv(defaultStocks()...)
	o := createAuthorized(t, env, fixedCart())
	_, err := env.svc.Capture(context.Background(), o.ID, o.Total)
	require.NoError(t, err)

	_, err = env.svc.Refund(context.Background(), o.ID, o.Total.Add(d("0.01")), "")
	require.ErrorIs(t, err, payment.ErrRefundExceedsAvailable)
}

func TestRefund_NotAllowedBeforeCapture(t *testing.T) {
	env := newTestEnv(defaultStocks()...)
	o := createAuthorized(t, env, fixedCart())

	_, err := env.svc.Refund(context.Background(), o.ID, d("1.00"), "")
	require.ErrorIs(t, err, payment.ErrRefundNotAllowed)
}

func TestRefund_DoesNotRestoreInstruments(t *testing.T) {
	// Gift cards, store credit, and coupon uses are one-way: a refund moves
	// money back to the card only.
	env := newTestEnv(defaultStocks()...)
	req := pickupRequest([]CartItem{
		{ProductID: "eggs", Name: "Pasture Eggs", SKU: "EGG-12", Quantity: 1, UnitPrice: d("50.00")},
	})
	req.Instruments.GiftCardID = "gift-1"
	req.Instruments.GiftCardAmount = d("10.00")

	o, err := env.svc.CreateOrder(context.Background(), req)
	require.NoError(t, err)
	require.True(t, d("40.00").Equal(o.Total))

	_, err = env.svc.Capture(context.Background(), o.ID, d("40.00"))
	require.NoError(t, err)
	refunded, err := env.svc.Refund(context.Background(), o.ID, d("40.00"), "returned")
	require.NoError(t, err)

	// Fully refunded against the card; the gift card usage stays recorded
	// on the order untouched.
	assert.Equal(t, payment.StatusRefunded, refunded.PaymentStatus)
	stored, err := env.svc.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.True(t, d("10.00").Equal(stored.GiftCardUsed))
}

func TestUpdateStatus_TransitionsAndEvents(t *testing.T) {
	env := newTestEnv(defaultStocks()...)
	o := createAuthorized(t, env, fixedCart())

	for _, next := range []Status{StatusProcessing, StatusPacked, StatusShipped, StatusDelivered} {
		_, err := env.svc.UpdateStatus(context.Background(), o.ID, next)
		require.NoError(t, err, "transition to %s", next)
	}

	stored, err := env.svc.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, stored.Status)
	require.NotNil(t, stored.ShippedAt)
	require.NotNil(t, stored.DeliveredAt)

	var types []events.Type
	for _, ev := range env.events.all() {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []events.Type{
		events.TypeOrderCreated,
		events.TypeOrderStatusChanged, // processing
		events.TypeOrderStatusChanged, // packed
		events.TypeOrderStatusChanged, // shipped
		events.TypeOrderShipped,
		events.TypeOrderStatusChanged, // delivered
	}, types)
}

func TestUpdateStatus_InvalidTransition(t *testing.T) {
	env := newTestEnv(defaultStocks()...)
	o := createAuthorized(t, env, fixedCart())

	_, err := env.svc.UpdateStatus(context.Background(), o.ID, StatusDelivered)

	var tErr *InvalidTransitionError
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, StatusPending, tErr.From)
	assert.Equal(t, StatusDelivered, tErr.To)
}

func TestAddTracking_PublishesEvent(t *testing.T) {
	env := newTestEnv(defaultStocks()...)
	o := createAuthorized(t, env, fixedCart())

	updated, err := env.svc.AddTracking(context.Background(), o.ID, "UPS", "1Z999")
	require.NoError(t, err)
	assert.Equal(t, "UPS", updated.Carrier)
	assert.Equal(t, "1Z999", updated.TrackingNumber)

	evs := env.events.all()
	last := evs[len(evs)-1]
	assert.Equal(t, events.TypeTrackingAdded, last.Type)
	assert.Equal(t, "1Z999", last.Tracking)
}

func TestPaymentSummary_PrepaidOrder(t *testing.T) {
	env := newTestEnv(defaultStocks()...)
	req := pickupRequest(fixedCart())
	req.Instruments.StoreCreditAmount = d("100.00")

	o, err := env.svc.CreateOrder(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, payment.StatusPaid, o.PaymentStatus)

	summary, err := env.svc.PaymentSummary(context.Background(), o.ID)
	require.NoError(t, err)
	assert.True(t, summary.AuthorizedAmount.IsZero())
	assert.True(t, summary.RefundableAmount.IsZero())
}
