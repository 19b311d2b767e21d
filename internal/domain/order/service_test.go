package order

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/farmstand/internal/domain/discount"
	"github.com/xenking/farmstand/internal/domain/inventory"
	"github.com/xenking/farmstand/internal/domain/payment"
	"github.com/xenking/farmstand/internal/domain/pricing"
	"github.com/xenking/farmstand/internal/events"
	"github.com/xenking/farmstand/internal/gateway/memory"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// --- Mock implementations ---

// callLog records the sequence of pipeline side effects for ordering checks.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (c *callLog) add(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, name)
}

func (c *callLog) all() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

type mockOrderRepo struct {
	mu         sync.Mutex
	orders     map[string]*Order
	number     int64
	log        *callLog
	headerErr  error
	itemsErr   error
	deleteErr  error
	totalsErr  error
	numberErr  error
}

func newMockOrderRepo() *mockOrderRepo {
	return &mockOrderRepo{orders: make(map[string]*Order), log: &callLog{}}
}

func (m *mockOrderRepo) NextNumber(_ context.Context) (int64, error) {
	if m.numberErr != nil {
		return 0, m.numberErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.number++
	return 1000 + m.number, nil
}

func (m *mockOrderRepo) CreateHeader(_ context.Context, o *Order) error {
	m.log.add("persist.header")
	if m.headerErr != nil {
		return m.headerErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *o
	cp.Items = nil
	m.orders[o.ID] = &cp
	return nil
}

func (m *mockOrderRepo) CreateItems(_ context.Context, orderID string, items []Item) error {
	m.log.add("persist.items")
	if m.itemsErr != nil {
		return m.itemsErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	o.Items = append([]Item(nil), items...)
	return nil
}

func (m *mockOrderRepo) Delete(_ context.Context, orderID string) error {
	m.log.add("delete.order")
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.orders, orderID)
	return nil
}

func (m *mockOrderRepo) Get(_ context.Context, orderID string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	cp.Items = append([]Item(nil), o.Items...)
	return &cp, nil
}

func (m *mockOrderRepo) UpdateTotals(_ context.Context, o *Order) error {
	if m.totalsErr != nil {
		return m.totalsErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.orders[o.ID]
	if !ok {
		return ErrNotFound
	}
	stored.Subtotal = o.Subtotal
	stored.Total = o.Total
	return nil
}

func (m *mockOrderRepo) UpdatePaymentStatus(_ context.Context, orderID string, status payment.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	o.PaymentStatus = status
	return nil
}

func (m *mockOrderRepo) UpdateStatus(_ context.Context, orderID string, status Status, shippedAt, deliveredAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	o.Status = status
	if shippedAt != nil {
		o.ShippedAt = shippedAt
	}
	if deliveredAt != nil {
		o.DeliveredAt = deliveredAt
	}
	return nil
}

func (m *mockOrderRepo) UpdateItemReconciled(_ context.Context, itemID string, actualWeight, finalPrice decimal.Decimal, packedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		for i := range o.Items {
			if o.Items[i].ID == itemID {
				w := actualWeight
				f := finalPrice
				t := packedAt
				o.Items[i].ActualWeight = &w
				o.Items[i].FinalPrice = &f
				o.Items[i].Packed = true
				o.Items[i].PackedAt = &t
				return nil
			}
		}
	}
	return ErrNotFound
}

func (m *mockOrderRepo) SetTracking(_ context.Context, orderID, carrier, trackingNumber string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	o.Carrier = carrier
	o.TrackingNumber = trackingNumber
	return nil
}

type mockStockRepo struct {
	mu     sync.Mutex
	stocks map[string]*inventory.Stock
	log    *callLog
}

func newMockStockRepo(log *callLog, stocks ...inventory.Stock) *mockStockRepo {
	byID := make(map[string]*inventory.Stock, len(stocks))
	for i := range stocks {
		byID[stocks[i].ProductID] = &stocks[i]
	}
	return &mockStockRepo{stocks: byID, log: log}
}

func (m *mockStockRepo) GetStock(_ context.Context, ids []string) ([]inventory.Stock, error) {
	m.log.add("inventory.read")
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]inventory.Stock, 0, len(ids))
	for _, id := range ids {
		if s, ok := m.stocks[id]; ok {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *mockStockRepo) DecrementStock(_ context.Context, productID string, qty int) error {
	m.log.add("inventory.decrement")
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stocks[productID]
	if !ok {
		return &inventory.ProductNotFoundError{ProductID: productID}
	}
	if s.Quantity < qty {
		return inventory.ErrInsufficientStock
	}
	s.Quantity -= qty
	return nil
}

// loggingGateway wraps another gateway and records Authorize calls.
type loggingGateway struct {
	payment.Gateway
	log *callLog
}

func (g *loggingGateway) Authorize(ctx context.Context, req payment.AuthorizeRequest) (*payment.Authorization, error) {
	g.log.add("gateway.authorize")
	return g.Gateway.Authorize(ctx, req)
}

type nopGiftCards struct{ err error }

func (n *nopGiftCards) Debit(_ context.Context, _ string, _ decimal.Decimal) error { return n.err }

type nopStoreCredits struct{ err error }

func (n *nopStoreCredits) Debit(_ context.Context, _ string, _ decimal.Decimal, _ string) error {
	return n.err
}

type nopCoupons struct{ err error }

func (n *nopCoupons) IncrementUses(_ context.Context, _ string) error { return n.err }

type mockRefundHistory struct {
	mu      sync.Mutex
	entries []refundEntry
	err     error
}

type refundEntry struct {
	orderID string
	amount  decimal.Decimal
	reason  string
}

func (m *mockRefundHistory) Append(_ context.Context, orderID string, amount decimal.Decimal, reason string, _ time.Time) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, refundEntry{orderID: orderID, amount: amount, reason: reason})
	return nil
}

type eventRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *eventRecorder) Publish(ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) all() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

// --- Helpers ---

type testEnv struct {
	svc     *Service
	repo    *mockOrderRepo
	stock   *mockStockRepo
	gw      *memory.Gateway
	refunds *mockRefundHistory
	events  *eventRecorder
	log     *callLog
}

func newTestEnv(stocks ...inventory.Stock) *testEnv {
	repo := newMockOrderRepo()
	log := repo.log
	stock := newMockStockRepo(log, stocks...)
	gw := memory.New()
	refunds := &mockRefundHistory{}
	rec := &eventRecorder{}

	svc := NewService(
		repo,
		inventory.NewGuard(stock),
		&loggingGateway{Gateway: gw, log: log},
		discount.NewLedger(&nopGiftCards{}, &nopStoreCredits{}, &nopCoupons{}),
		refunds,
		rec,
		"usd",
	)

	return &testEnv{svc: svc, repo: repo, stock: stock, gw: gw, refunds: refunds, events: rec, log: log}
}

func fixedCart() []CartItem {
	return []CartItem{
		{ProductID: "eggs", Name: "Pasture Eggs", SKU: "EGG-12", Quantity: 2, UnitPrice: d("6.50"), PricingType: pricing.PricingFixed},
		{ProductID: "honey", Name: "Raw Honey", SKU: "HON-01", Quantity: 1, UnitPrice: d("12.00"), PricingType: pricing.PricingFixed},
	}
}

func pickupRequest(items []CartItem) CreateOrderRequest {
	return CreateOrderRequest{
		CustomerID: "cust-1",
		Items:      items,
		Fulfillment: Fulfillment{
			Type:          FulfillmentPickup,
			LocationID:    "farm-stand",
			ScheduledDate: time.Date(2026, 9, 5, 0, 0, 0, 0, time.UTC),
		},
		MethodToken: "tok_visa",
	}
}

func defaultStocks() []inventory.Stock {
	return []inventory.Stock{
		{ProductID: "eggs", Tracked: true, Quantity: 10},
		{ProductID: "honey", Tracked: true, Quantity: 5},
		{ProductID: "chicken", Tracked: true, Quantity: 8},
	}
}

// --- Tests ---

func TestCreateOrder_EmptyItems(t *testing.T) {
	env := newTestEnv(defaultStocks()...)

	_, err := env.svc.CreateOrder(context.Background(), pickupRequest(nil))
	require.ErrorIs(t, err, ErrEmptyItems)
}

func TestCreateOrder_InvalidQuantity(t *testing.T) {
	env := newTestEnv(defaultStocks()...)
	items := fixedCart()
	items[0].Quantity = 0

	_, err := env.svc.CreateOrder(context.Background(), pickupRequest(items))

	var iqErr *InvalidQuantityError
	require.ErrorAs(t, err, &iqErr)
	assert.Equal(t, "eggs", iqErr.ProductID)
}

func TestCreateOrder_MissingAddressForDelivery(t *testing.T) {
	env := newTestEnv(defaultStocks()...)
	req := pickupRequest(fixedCart())
	req.Fulfillment.Type = FulfillmentDelivery

	_, err := env.svc.CreateOrder(context.Background(), req)

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "shipping_address", vErr.Field)
}

func TestCreateOrder_InsufficientStock(t *testing.T) {
	env := newTestEnv(inventory.Stock{ProductID: "eggs", Tracked: true, Quantity: 1},
		inventory.Stock{ProductID: "honey", Tracked: true, Quantity: 5})

	_, err := env.svc.CreateOrder(context.Background(), pickupRequest(fixedCart()))

	require.ErrorIs(t, err, inventory.ErrInsufficientStock)
	// No authorization was opened and nothing was persisted.
	assert.NotContains(t, env.log.all(), "gateway.authorize")
	assert.Empty(t, env.repo.orders)
}

func TestCreateOrder_HappyPath(t *testing.T) {
	env := newTestEnv(defaultStocks()...)
	req := pickupRequest(fixedCart())
	req.Charges = pricing.Charges{TaxAmount: d("2.00")}

	o, err := env.svc.CreateOrder(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, d("25.00").Equal(o.Subtotal), "subtotal = %s", o.Subtotal)
	assert.True(t, d("27.00").Equal(o.Total), "total = %s", o.Total)
	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, payment.StatusAuthorized, o.PaymentStatus)
	assert.NotEmpty(t, o.AuthorizationID)
	assert.Equal(t, int64(1001), o.Number)
	assert.Equal(t, SourceWeb, o.Source)

	// Stock decremented after persistence.
	assert.Equal(t, 8, env.stock.stocks["eggs"].Quantity)
	assert.Equal(t, 4, env.stock.stocks["honey"].Quantity)

	// order.created published.
	evs := env.events.all()
	require.Len(t, evs, 1)
	assert.Equal(t, events.TypeOrderCreated, evs[0].Type)
	assert.Equal(t, o.ID, evs[0].OrderID)
}

func TestCreateOrder_StepOrdering(t *testing.T) {
	env := newTestEnv(defaultStocks()...)

	_, err := env.svc.CreateOrder(context.Background(), pickupRequest(fixedCart()))
	require.NoError(t, err)

	calls := env.log.all()
	idx := func(name string) int {
		for i, c := range calls {
			if c == name {
				return i
			}
		}
		t.Fatalf("call %q not recorded in %v", name, calls)
		return -1
	}

	// Inventory is validated before funds are held, the hold precedes the
	// durable order row, and the decrement follows persistence.
	assert.Less(t, idx("inventory.read"), idx("gateway.authorize"))
	assert.Less(t, idx("gateway.authorize"), idx("persist.header"))
	assert.Less(t, idx("persist.items"), idx("inventory.decrement"))
}

func TestCreateOrder_ZeroTotalSkipsGateway(t *testing.T) {
	env := newTestEnv(defaultStocks()...)
	req := pickupRequest(fixedCart())
	req.Instruments = pricing.Instruments{GiftCardID: "gift-1", GiftCardAmount: d("50.00")}

	o, err := env.svc.CreateOrder(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, o.Total.IsZero())
	assert.Equal(t, payment.StatusPaid, o.PaymentStatus)
	assert.Empty(t, o.AuthorizationID)
	assert.NotContains(t, env.log.all(), "gateway.authorize")
}

func TestCreateOrder_AuthorizationFailureAborts(t *testing.T) {
	env := newTestEnv(defaultStocks()...)
	env.gw.DeclineAll = true

	_, err := env.svc.CreateOrder(context.Background(), pickupRequest(fixedCart()))

	require.ErrorIs(t, err, payment.ErrAuthorizationFailed)
	assert.Empty(t, env.repo.orders, "no order persisted after declined authorization")
	// Stock untouched.
	assert.Equal(t, 10, env.stock.stocks["eggs"].Quantity)
}

func TestCreateOrder_ItemPersistFailureRollsBackHeader(t *testing.T) {
	env := newTestEnv(defaultStocks()...)
	env.repo.itemsErr = errors.New("items insert failed")

	_, err := env.svc.CreateOrder(context.Background(), pickupRequest(fixedCart()))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "create items")
	// Compensating delete removed the header: no order remains retrievable.
	assert.Empty(t, env.repo.orders)
	assert.Contains(t, env.log.all(), "delete.order")
	// Inventory was never decremented.
	assert.Equal(t, 10, env.stock.stocks["eggs"].Quantity)
	assert.Empty(t, env.events.all())
}

func TestCreateOrder_RedemptionFailureIsNonFatal(t *testing.T) {
	repo := newMockOrderRepo()
	stock := newMockStockRepo(repo.log, defaultStocks()...)
	rec := &eventRecorder{}
	svc := NewService(
		repo,
		inventory.NewGuard(stock),
		memory.New(),
		discount.NewLedger(&nopGiftCards{err: discount.ErrInsufficientBalance}, &nopStoreCredits{}, &nopCoupons{}),
		&mockRefundHistory{},
		rec,
		"usd",
	)

	req := pickupRequest(fixedCart())
	req.Instruments = pricing.Instruments{GiftCardID: "gift-1", GiftCardAmount: d("5.00")}

	o, err := svc.CreateOrder(context.Background(), req)

	// The order exists and is payment-backed despite the failed debit.
	require.NoError(t, err)
	assert.Equal(t, payment.StatusAuthorized, o.PaymentStatus)
	require.Len(t, rec.all(), 1)
}

func TestCreateOrder_RecurringSource(t *testing.T) {
	env := newTestEnv(defaultStocks()...)
	req := pickupRequest(fixedCart())
	req.Source = SourceRecurring

	o, err := env.svc.CreateOrder(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, SourceRecurring, o.Source)
}

func TestCreateOrder_SequentialNumbers(t *testing.T) {
	env := newTestEnv(defaultStocks()...)

	first, err := env.svc.CreateOrder(context.Background(), pickupRequest(fixedCart()))
	require.NoError(t, err)
	second, err := env.svc.CreateOrder(context.Background(), pickupRequest(fixedCart()))
	require.NoError(t, err)

	assert.Equal(t, first.Number+1, second.Number)
}
