package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"frostflow/internal/models"
	"frostflow/internal/toast"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProductGateway struct {
	mu sync.Mutex

	rows    []models.Product
	listErr error
	updErr  error
	delErr  error
	insErr  error

	listCalls  int
	auditErr   error
	auditCalls []auditCall
}

func (f *fakeProductGateway) ListActiveProducts(ctx context.Context) ([]models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]models.Product, len(f.rows))
	copy(out, f.rows)
	return out, nil
}

func (f *fakeProductGateway) InsertProduct(ctx context.Context, np models.NewProduct) (*models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insErr != nil {
		return nil, f.insErr
	}
	p := models.Product{
		ID:        fmt.Sprintf("srv-%d", len(f.rows)+1),
		Name:      np.Name,
		Category:  np.Category,
		UnitPrice: np.UnitPrice,
		BaseUnit:  np.BaseUnit,
		IsActive:  true,
	}
	f.rows = append(f.rows, p)
	return &p, nil
}

func (f *fakeProductGateway) UpdateProduct(ctx context.Context, id string, patch models.ProductPatch) (*models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updErr != nil {
		return nil, f.updErr
	}
	for i := range f.rows {
		if f.rows[i].ID == id {
			patch.Apply(&f.rows[i])
			p := f.rows[i]
			return &p, nil
		}
	}
	return nil, errors.New("not found")
}

func (f *fakeProductGateway) InsertAuditLog(ctx context.Context, tableName, recordID, action, changedBy string, beforeData, afterData interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.auditErr != nil {
		return f.auditErr
	}
	f.auditCalls = append(f.auditCalls, auditCall{tableName, recordID, action, changedBy, beforeData, afterData})
	return nil
}

func (f *fakeProductGateway) SoftDeleteProduct(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.delErr != nil {
		return f.delErr
	}
	for i := range f.rows {
		if f.rows[i].ID == id {
			f.rows = append(f.rows[:i], f.rows[i+1:]...)
			return nil
		}
	}
	return nil
}

type discardNotifier struct{}

func (discardNotifier) Show(string, toast.Severity) {}

func product(id string, unit float64) models.Product {
	return models.Product{ID: id, Name: "Product " + id, Category: "frozen", Unit: unit, IsActive: true}
}

func loadedStore(t *testing.T, rows ...models.Product) (*ProductStore, *fakeProductGateway) {
	t.Helper()
	gw := &fakeProductGateway{rows: rows}
	s := NewProductStore(gw, discardNotifier{})
	require.NoError(t, s.Load(context.Background(), false))
	return s, gw
}

func TestLoadIsSingleFlight(t *testing.T) {
	s, gw := loadedStore(t, product("a", 5))

	// Repeated non-forced loads are no-ops once initialized.
	require.NoError(t, s.Load(context.Background(), false))
	require.NoError(t, s.Load(context.Background(), false))
	assert.Equal(t, 1, gw.listCalls)

	require.NoError(t, s.Load(context.Background(), true))
	assert.Equal(t, 2, gw.listCalls)
}

func TestLoadFailureKeepsPriorCache(t *testing.T) {
	s, gw := loadedStore(t, product("a", 5), product("b", 0))

	gw.listErr = errors.New("backend down")
	err := s.Load(context.Background(), true)
	require.Error(t, err)

	assert.Len(t, s.Products(), 2)
	assert.True(t, s.Initialized())
	assert.Error(t, s.Err())

	gw.listErr = nil
	require.NoError(t, s.Load(context.Background(), true))
	assert.NoError(t, s.Err())
}

func TestApplyChangeInsertDedupesReplay(t *testing.T) {
	s, _ := loadedStore(t)
	p := product("a", 3)

	change := models.ProductChange{EventType: models.ChangeInsert, New: &p}
	s.ApplyChange(change)
	s.ApplyChange(change) // redelivery of the same event

	assert.Len(t, s.Products(), 1)
}

func TestApplyChangeUpdateReplacesWholeRow(t *testing.T) {
	s, _ := loadedStore(t, product("a", 3))

	updated := product("a", 42)
	updated.Name = "Renamed"
	s.ApplyChange(models.ProductChange{EventType: models.ChangeUpdate, New: &updated})

	got, ok := s.Get("a")
	require.True(t, ok)
	assert.Equal(t, 42.0, got.Unit)
	assert.Equal(t, "Renamed", got.Name)
}

func TestApplyChangeUpdateAbsentIsNoop(t *testing.T) {
	s, _ := loadedStore(t, product("a", 3))

	ghost := product("ghost", 1)
	s.ApplyChange(models.ProductChange{EventType: models.ChangeUpdate, New: &ghost})

	assert.Len(t, s.Products(), 1)
	_, ok := s.Get("ghost")
	assert.False(t, ok)
}

func TestApplyChangeDeleteIdempotent(t *testing.T) {
	s, _ := loadedStore(t, product("a", 3), product("b", 7))

	old := product("a", 3)
	del := models.ProductChange{EventType: models.ChangeDelete, Old: &old}
	s.ApplyChange(del)
	s.ApplyChange(del) // redelivery

	assert.Len(t, s.Products(), 1)
	_, ok := s.Get("a")
	assert.False(t, ok)
}

// Replaying a full event sequence must leave the cache exactly where a single
// delivery would.
func TestApplyChangeSequenceReplay(t *testing.T) {
	a := product("a", 1)
	b := product("b", 2)
	bUpdated := product("b", 9)

	events := []models.ProductChange{
		{EventType: models.ChangeInsert, New: &a},
		{EventType: models.ChangeInsert, New: &b},
		{EventType: models.ChangeUpdate, New: &bUpdated},
		{EventType: models.ChangeDelete, Old: &a},
	}

	s, _ := loadedStore(t)
	for _, e := range events {
		s.ApplyChange(e)
	}
	once := s.Products()

	for _, e := range events {
		s.ApplyChange(e)
	}
	assert.Equal(t, once, s.Products())
}

func TestAddDedupesSelfEcho(t *testing.T) {
	s, _ := loadedStore(t)

	created, err := s.Add(context.Background(), models.NewProduct{Name: "New", UnitPrice: 10, BaseUnit: "kg"})
	require.NoError(t, err)
	require.Len(t, s.Products(), 1)

	// The realtime echo of our own insert arrives afterwards.
	echo := *created
	s.ApplyChange(models.ProductChange{EventType: models.ChangeInsert, New: &echo})
	assert.Len(t, s.Products(), 1)
}

func TestUpdateOptimisticThenAuthoritative(t *testing.T) {
	s, _ := loadedStore(t, product("a", 3))

	var sawOptimistic bool
	id := s.OnChange(func(products []models.Product) {
		for _, p := range products {
			if p.ID == "a" && p.Unit == 20 {
				sawOptimistic = true
			}
		}
	})
	defer s.RemoveListener(id)

	unit := 20.0
	updated, err := s.Update(context.Background(), "a", models.ProductPatch{Unit: &unit}, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, 20.0, updated.Unit)
	assert.True(t, sawOptimistic)

	got, ok := s.Get("a")
	require.True(t, ok)
	assert.Equal(t, 20.0, got.Unit)
}

func TestUpdateFailureRollsBackFullSnapshot(t *testing.T) {
	s, gw := loadedStore(t, product("a", 3), product("b", 7))
	before := s.Products()

	gw.updErr = errors.New("write rejected")
	name := "Mutated"
	unit := 99.0
	_, err := s.Update(context.Background(), "a", models.ProductPatch{Name: &name, Unit: &unit}, "owner-1")
	require.Error(t, err)

	assert.Equal(t, before, s.Products())

	// A rejected edit leaves no audit trail.
	assert.Empty(t, gw.auditCalls)
}

func TestRemoveFailureRestoresSnapshot(t *testing.T) {
	s, gw := loadedStore(t, product("a", 3), product("b", 7))
	before := s.Products()

	gw.delErr = errors.New("write rejected")
	require.Error(t, s.Remove(context.Background(), "a", "owner-1"))
	assert.Equal(t, before, s.Products())

	gw.delErr = nil
	require.NoError(t, s.Remove(context.Background(), "a", "owner-1"))
	assert.Len(t, s.Products(), 1)
}

func TestUpdateAuditsPreEditSnapshot(t *testing.T) {
	s, gw := loadedStore(t, product("a", 3))

	name := "Renamed"
	unit := 20.0
	_, err := s.Update(context.Background(), "a", models.ProductPatch{Name: &name, Unit: &unit}, "owner-1")
	require.NoError(t, err)

	require.Len(t, gw.auditCalls, 1)
	audit := gw.auditCalls[0]
	assert.Equal(t, "products", audit.tableName)
	assert.Equal(t, "a", audit.recordID)
	assert.Equal(t, "Edited Product: Product a", audit.action)
	assert.Equal(t, "owner-1", audit.changedBy)

	before, ok := audit.before.(models.Product)
	require.True(t, ok)
	assert.Equal(t, "Product a", before.Name)
	assert.Equal(t, 3.0, before.Unit)

	after, ok := audit.after.(*models.Product)
	require.True(t, ok)
	assert.Equal(t, "Renamed", after.Name)
	assert.Equal(t, 20.0, after.Unit)
}

func TestUpdateSucceedsWhenAuditFails(t *testing.T) {
	s, gw := loadedStore(t, product("a", 3))
	gw.auditErr = errors.New("audit table unavailable")

	unit := 20.0
	_, err := s.Update(context.Background(), "a", models.ProductPatch{Unit: &unit}, "owner-1")
	require.NoError(t, err)

	got, ok := s.Get("a")
	require.True(t, ok)
	assert.Equal(t, 20.0, got.Unit)
}

func TestRemoveAuditsArchivedRow(t *testing.T) {
	s, gw := loadedStore(t, product("a", 3))

	require.NoError(t, s.Remove(context.Background(), "a", "owner-1"))

	require.Len(t, gw.auditCalls, 1)
	audit := gw.auditCalls[0]
	assert.Equal(t, "products", audit.tableName)
	assert.Equal(t, "a", audit.recordID)
	assert.Equal(t, "Archived Product: Product a", audit.action)
	assert.Equal(t, "owner-1", audit.changedBy)

	before, ok := audit.before.(models.Product)
	require.True(t, ok)
	assert.Equal(t, "a", before.ID)
	assert.Equal(t, map[string]interface{}{"is_active": false}, audit.after)
}

func TestProductsReturnsCopy(t *testing.T) {
	s, _ := loadedStore(t, product("a", 3))

	snapshot := s.Products()
	snapshot[0].Unit = 999

	got, ok := s.Get("a")
	require.True(t, ok)
	assert.Equal(t, 3.0, got.Unit)
}

func expectedMetrics(products []models.Product, threshold float64) ProductMetrics {
	m := ProductMetrics{Total: len(products)}
	cats := map[string]struct{}{}
	for _, p := range products {
		switch {
		case p.Unit == 0:
			m.OutOfStock++
		case p.Unit < threshold:
			m.LowStock++
		}
		if p.Category != "" {
			cats[p.Category] = struct{}{}
		}
	}
	m.Categories = len(cats)
	return m
}

// Metrics must agree with an independent recomputation for arbitrary caches
// reached through arbitrary merge sequences.
func TestMetricsConsistencyRandomized(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	categories := []string{"", "frozen", "dry", "chilled"}

	for trial := 0; trial < 50; trial++ {
		s, _ := loadedStore(t)

		for op := 0; op < 40; op++ {
			id := fmt.Sprintf("p%d", rng.Intn(12))
			p := models.Product{
				ID:       id,
				Name:     id,
				Category: categories[rng.Intn(len(categories))],
				Unit:     float64(rng.Intn(15)),
			}
			switch rng.Intn(3) {
			case 0:
				s.ApplyChange(models.ProductChange{EventType: models.ChangeInsert, New: &p})
			case 1:
				s.ApplyChange(models.ProductChange{EventType: models.ChangeUpdate, New: &p})
			case 2:
				s.ApplyChange(models.ProductChange{EventType: models.ChangeDelete, Old: &p})
			}
		}

		want := expectedMetrics(s.Products(), DefaultLowStockThreshold)
		assert.Equal(t, want, s.Metrics(), "trial %d", trial)
	}
}

func TestMetricsBoundaries(t *testing.T) {
	s, _ := loadedStore(t,
		models.Product{ID: "out", Unit: 0, Category: "a"},
		models.Product{ID: "low", Unit: 9.5, Category: "a"},
		models.Product{ID: "edge", Unit: 10, Category: "b"},
		models.Product{ID: "ok", Unit: 11, Category: ""},
	)

	m := s.Metrics()
	assert.Equal(t, 4, m.Total)
	assert.Equal(t, 1, m.OutOfStock)
	assert.Equal(t, 1, m.LowStock) // unit == threshold is not low stock
	assert.Equal(t, 2, m.Categories)
}

func TestListenersObserveEveryChange(t *testing.T) {
	s, _ := loadedStore(t)

	var mu sync.Mutex
	var counts []int
	id := s.OnChange(func(products []models.Product) {
		mu.Lock()
		counts = append(counts, len(products))
		mu.Unlock()
	})

	a := product("a", 1)
	b := product("b", 2)
	s.ApplyChange(models.ProductChange{EventType: models.ChangeInsert, New: &a})
	s.ApplyChange(models.ProductChange{EventType: models.ChangeInsert, New: &b})
	s.ApplyChange(models.ProductChange{EventType: models.ChangeDelete, Old: &a})

	mu.Lock()
	assert.Equal(t, []int{1, 2, 1}, counts)
	mu.Unlock()

	s.RemoveListener(id)
	s.ApplyChange(models.ProductChange{EventType: models.ChangeInsert, New: &a})
	mu.Lock()
	assert.Len(t, counts, 3)
	mu.Unlock()
}

func TestConcurrentMergeAndRead(t *testing.T) {
	s, _ := loadedStore(t, product("a", 1))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				p := product(fmt.Sprintf("p%d-%d", n, j), float64(j))
				s.ApplyChange(models.ProductChange{EventType: models.ChangeInsert, New: &p})
				_ = s.Products()
				_ = s.Metrics()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 801, s.Metrics().Total)
}
