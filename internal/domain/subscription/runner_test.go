package subscription

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xenking/farmstand/internal/domain/order"
	"github.com/xenking/farmstand/internal/domain/pricing"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type mockSubRepo struct {
	due      []Template
	advanced map[string]time.Time
	listErr  error
}

func (m *mockSubRepo) ListDue(_ context.Context, _ time.Time) ([]Template, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.due, nil
}

func (m *mockSubRepo) AdvanceNextDate(_ context.Context, id string, next time.Time) error {
	if m.advanced == nil {
		m.advanced = make(map[string]time.Time)
	}
	m.advanced[id] = next
	return nil
}

type mockCatalog struct {
	byID map[string]CatalogProduct
}

func (m *mockCatalog) GetByIDs(_ context.Context, ids []string) ([]CatalogProduct, error) {
	out := make([]CatalogProduct, 0, len(ids))
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type mockCreator struct {
	requests []order.CreateOrderRequest
	errFor   map[string]error // keyed by customer ID
}

func (m *mockCreator) CreateOrder(_ context.Context, req order.CreateOrderRequest) (*order.Order, error) {
	if err := m.errFor[req.CustomerID]; err != nil {
		return nil, err
	}
	m.requests = append(m.requests, req)
	return &order.Order{ID: "o-" + req.CustomerID, Source: req.Source}, nil
}

func newCatalog() *mockCatalog {
	return &mockCatalog{byID: map[string]CatalogProduct{
		"eggs": {ID: "eggs", Name: "Pasture Eggs", SKU: "EGG-12", Price: d("7.00"), PricingType: pricing.PricingFixed},
		"milk": {ID: "milk", Name: "Whole Milk", SKU: "MLK-01", Price: d("4.25"), PricingType: pricing.PricingFixed},
	}}
}

func weeklyTemplate(id, customer string, due time.Time) Template {
	return Template{
		ID:            id,
		CustomerID:    customer,
		Frequency:     FrequencyWeekly,
		NextOrderDate: due,
		Items:         []TemplateItem{{ProductID: "eggs", Quantity: 2}},
		Fulfillment: order.Fulfillment{
			Type:          order.FulfillmentPickup,
			LocationID:    "farm-stand",
			ScheduledDate: due,
		},
		MethodToken: "tok_saved",
	}
}

func TestNextDate(t *testing.T) {
	base := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)

	weekly, err := NextDate(base, FrequencyWeekly)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC), weekly)

	biweekly, err := NextDate(base, FrequencyBiweekly)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC), biweekly)

	monthly, err := NextDate(base, FrequencyMonthly)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 9, 30, 0, 0, 0, 0, time.UTC), monthly)

	_, err = NextDate(base, Frequency("daily"))
	require.ErrorIs(t, err, ErrUnknownFrequency)
}

func TestRunOnce_CreatesOrdersAtCurrentPrices(t *testing.T) {
	due := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	repo := &mockSubRepo{due: []Template{weeklyTemplate("s1", "cust-1", due)}}
	creator := &mockCreator{}
	r := NewRunner(repo, newCatalog(), creator, zap.NewNop())

	created, failed, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, created)
	assert.Equal(t, 0, failed)

	require.Len(t, creator.requests, 1)
	req := creator.requests[0]
	assert.Equal(t, order.SourceRecurring, req.Source)
	require.Len(t, req.Items, 1)
	// Current catalog price, not a stored snapshot.
	assert.True(t, d("7.00").Equal(req.Items[0].UnitPrice))
	assert.Equal(t, "Pasture Eggs", req.Items[0].Name)
}

func TestRunOnce_AdvancesFromPreviousScheduledDate(t *testing.T) {
	// The batch runs late (due date already three days past); the next date
	// still derives from the due date, not from the processing time.
	due := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	repo := &mockSubRepo{due: []Template{weeklyTemplate("s1", "cust-1", due)}}
	r := NewRunner(repo, newCatalog(), &mockCreator{}, zap.NewNop())
	r.now = func() time.Time { return time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC) }

	_, _, err := r.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, due.AddDate(0, 0, 7), repo.advanced["s1"])
}

func TestRunOnce_FailureLeavesTemplateUntouched(t *testing.T) {
	due := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	repo := &mockSubRepo{due: []Template{
		weeklyTemplate("s1", "cust-1", due),
		weeklyTemplate("s2", "cust-2", due),
	}}
	creator := &mockCreator{errFor: map[string]error{
		"cust-1": errors.New("card declined"),
	}}
	r := NewRunner(repo, newCatalog(), creator, zap.NewNop())

	created, failed, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, created)
	assert.Equal(t, 1, failed)

	// The failed template keeps its due date for the next pass; the healthy
	// one advanced.
	_, advanced := repo.advanced["s1"]
	assert.False(t, advanced)
	assert.Equal(t, due.AddDate(0, 0, 7), repo.advanced["s2"])
}

func TestRunOnce_MissingProductFailsTemplateOnly(t *testing.T) {
	due := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	tpl := weeklyTemplate("s1", "cust-1", due)
	tpl.Items = []TemplateItem{{ProductID: "discontinued", Quantity: 1}}
	repo := &mockSubRepo{due: []Template{tpl}}
	creator := &mockCreator{}
	r := NewRunner(repo, newCatalog(), creator, zap.NewNop())

	created, failed, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, created)
	assert.Equal(t, 1, failed)
	assert.Empty(t, creator.requests)
}
