package inventory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockStockRepo implements Repository with the same atomic conditional
// decrement semantics the SQL repository provides.
type mockStockRepo struct {
	mu     sync.Mutex
	stocks map[string]*Stock
	getErr error
}

func newMockStockRepo(stocks ...Stock) *mockStockRepo {
	byID := make(map[string]*Stock, len(stocks))
	for i := range stocks {
		byID[stocks[i].ProductID] = &stocks[i]
	}
	return &mockStockRepo{stocks: byID}
}

func (m *mockStockRepo) GetStock(_ context.Context, ids []string) ([]Stock, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Stock, 0, len(ids))
	for _, id := range ids {
		if s, ok := m.stocks[id]; ok {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *mockStockRepo) DecrementStock(_ context.Context, productID string, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stocks[productID]
	if !ok {
		return &ProductNotFoundError{ProductID: productID}
	}
	if s.Quantity < qty {
		return ErrInsufficientStock
	}
	s.Quantity -= qty
	return nil
}

func TestValidate_OK(t *testing.T) {
	repo := newMockStockRepo(
		Stock{ProductID: "eggs", Tracked: true, Quantity: 12},
		Stock{ProductID: "milk", Tracked: true, Quantity: 3},
	)
	g := NewGuard(repo)

	err := g.Validate(context.Background(), []Line{
		{ProductID: "eggs", Quantity: 6},
		{ProductID: "milk", Quantity: 3},
	})
	require.NoError(t, err)
}

func TestValidate_ProductNotFound(t *testing.T) {
	g := NewGuard(newMockStockRepo())

	err := g.Validate(context.Background(), []Line{{ProductID: "missing", Quantity: 1}})

	var pnf *ProductNotFoundError
	require.ErrorAs(t, err, &pnf)
	assert.Equal(t, "missing", pnf.ProductID)
}

func TestValidate_InsufficientStock(t *testing.T) {
	repo := newMockStockRepo(Stock{ProductID: "honey", Tracked: true, Quantity: 2})
	g := NewGuard(repo)

	err := g.Validate(context.Background(), []Line{{ProductID: "honey", Quantity: 5}})

	var ise *InsufficientStockError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, 5, ise.Requested)
	assert.Equal(t, 2, ise.Available)
	assert.ErrorIs(t, err, ErrInsufficientStock)
}

func TestValidate_UntrackedAndBackorderableSkipped(t *testing.T) {
	repo := newMockStockRepo(
		Stock{ProductID: "csa-box", Tracked: false, Quantity: 0},
		Stock{ProductID: "cider", Tracked: true, AllowBackorder: true, Quantity: 0},
	)
	g := NewGuard(repo)

	err := g.Validate(context.Background(), []Line{
		{ProductID: "csa-box", Quantity: 10},
		{ProductID: "cider", Quantity: 4},
	})
	require.NoError(t, err)
}

func TestDecrement_ReducesStock(t *testing.T) {
	repo := newMockStockRepo(Stock{ProductID: "eggs", Tracked: true, Quantity: 12})
	g := NewGuard(repo)

	require.NoError(t, g.Decrement(context.Background(), []Line{{ProductID: "eggs", Quantity: 5}}))
	assert.Equal(t, 7, repo.stocks["eggs"].Quantity)
}

func TestDecrement_LastUnitRace(t *testing.T) {
	// Two concurrent orders both want the last unit: exactly one decrement
	// succeeds, stock never goes negative.
	repo := newMockStockRepo(Stock{ProductID: "turkey", Tracked: true, Quantity: 1})
	g := NewGuard(repo)

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- g.Decrement(context.Background(), []Line{{ProductID: "turkey", Quantity: 1}})
		}()
	}
	wg.Wait()
	close(results)

	var failures, successes int
	for err := range results {
		if err != nil {
			assert.ErrorIs(t, err, ErrInsufficientStock)
			failures++
		} else {
			successes++
		}
	}

	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, failures)
	assert.Equal(t, 0, repo.stocks["turkey"].Quantity)
}
