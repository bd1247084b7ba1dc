package service

import (
	"context"
	"sync"

	"frostflow/internal/models"
	"frostflow/internal/toast"
	"frostflow/internal/util"

	"go.uber.org/zap"
)

// DefaultLowStockThreshold marks products running low (0 < unit < threshold).
const DefaultLowStockThreshold = 10

// ProductGateway is the slice of the remote gateway the store depends on.
type ProductGateway interface {
	ListActiveProducts(ctx context.Context) ([]models.Product, error)
	InsertProduct(ctx context.Context, np models.NewProduct) (*models.Product, error)
	UpdateProduct(ctx context.Context, id string, patch models.ProductPatch) (*models.Product, error)
	SoftDeleteProduct(ctx context.Context, id string) error
	InsertAuditLog(ctx context.Context, tableName, recordID, action, changedBy string, beforeData, afterData interface{}) error
}

// ProductMetrics are the derived values recomputed on every cache change.
type ProductMetrics struct {
	Total      int `json:"total"`
	LowStock   int `json:"low_stock"`
	OutOfStock int `json:"out_of_stock"`
	Categories int `json:"categories"`
}

// ChangeListener receives a read-only snapshot after every cache change.
// Listeners must not retain or mutate the slice's backing rows.
type ChangeListener func(products []models.Product)

// ProductStore is the single in-process source of product-list truth. It
// bridges optimistic local writes and asynchronous realtime confirmation:
// local mutations apply synchronously before the remote call is issued, the
// server row always wins once it arrives, and the realtime merge in
// ApplyChange is idempotent under at-least-once delivery.
type ProductStore struct {
	gateway ProductGateway
	toast   toast.Notifier
	logger  *zap.Logger

	mu          sync.RWMutex
	products    []models.Product
	metrics     ProductMetrics
	initialized bool
	loading     bool
	lastErr     error

	listeners   map[int]ChangeListener
	listenerSeq int

	lowStockThreshold float64
}

// NewProductStore creates an uninitialized store. Call Load before reading.
func NewProductStore(gateway ProductGateway, notifier toast.Notifier) *ProductStore {
	return &ProductStore{
		gateway:           gateway,
		toast:             notifier,
		logger:            util.GetLogger(),
		listeners:         make(map[int]ChangeListener),
		lowStockThreshold: DefaultLowStockThreshold,
	}
}

// SetLowStockThreshold overrides the low-stock boundary. Call before Load.
func (s *ProductStore) SetLowStockThreshold(threshold float64) {
	if threshold <= 0 {
		return
	}
	s.mu.Lock()
	s.lowStockThreshold = threshold
	s.mu.Unlock()
}

// Load fetches the catalog and replaces the cache atomically. A no-op when
// already initialized (unless force) or when a load is already in flight, so
// simultaneous consumers cannot stampede the backend. On failure the prior
// cache is left untouched and the error is surfaced through the toast sink.
func (s *ProductStore) Load(ctx context.Context, force bool) error {
	s.mu.Lock()
	if (s.initialized && !force) || s.loading {
		s.mu.Unlock()
		return nil
	}
	s.loading = true
	s.mu.Unlock()

	ctx, span := util.StartSpan(ctx, "ProductStore.Load")
	defer span.End()

	products, err := s.gateway.ListActiveProducts(ctx)

	s.mu.Lock()
	s.loading = false
	if err != nil {
		s.lastErr = err
		s.mu.Unlock()
		s.logger.Error("Failed to load products", zap.Error(err))
		s.toast.Show("Failed to load products", toast.SeverityError)
		return err
	}

	if s.initialized && len(s.products) > 0 && len(products) == 0 {
		// Suspicious: an initialized non-empty cache collapsing to zero rows
		// usually means an upstream failure disguised as an empty result.
		// The assignment still proceeds.
		s.logger.Warn("Consistency warning: replacing non-empty cache with empty result",
			zap.Int("previous_count", len(s.products)))
	}

	s.products = products
	s.initialized = true
	s.lastErr = nil
	listeners, snapshot := s.afterChangeLocked()
	s.mu.Unlock()

	s.notify(listeners, snapshot)
	s.logger.Info("Products loaded", zap.Int("count", len(products)))
	return nil
}

// Add inserts a product remotely and appends the authoritative row to the
// cache. Appending is guarded by id: the realtime echo of this same insert
// may already have landed, and must not produce a second row.
func (s *ProductStore) Add(ctx context.Context, np models.NewProduct) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "ProductStore.Add")
	defer span.End()

	created, err := s.gateway.InsertProduct(ctx, np)
	if err != nil {
		s.toast.Show("Failed to add product", toast.SeverityError)
		return nil, err
	}

	s.mu.Lock()
	if s.indexOfLocked(created.ID) < 0 {
		s.products = append(s.products, *created)
	}
	listeners, snapshot := s.afterChangeLocked()
	s.mu.Unlock()

	s.notify(listeners, snapshot)
	return created, nil
}

// Update applies the patch optimistically before the remote call resolves,
// then replaces the row with the authoritative server version. On failure the
// entire cache is rolled back to its pre-mutation snapshot, not just the one
// row, and the error is returned. A successful update appends an audit entry
// carrying the pre-edit row as the before snapshot.
func (s *ProductStore) Update(ctx context.Context, id string, patch models.ProductPatch, actorID string) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "ProductStore.Update")
	defer span.End()

	s.mu.Lock()
	previous := s.snapshotLocked()
	var before models.Product
	hasBefore := false
	if i := s.indexOfLocked(id); i >= 0 {
		before = s.products[i]
		hasBefore = true
		patch.Apply(&s.products[i])
	}
	listeners, snapshot := s.afterChangeLocked()
	s.mu.Unlock()
	s.notify(listeners, snapshot)

	updated, err := s.gateway.UpdateProduct(ctx, id, patch)

	s.mu.Lock()
	if err != nil {
		s.products = previous
		listeners, snapshot = s.afterChangeLocked()
		s.mu.Unlock()
		s.notify(listeners, snapshot)

		util.CacheRollbacksTotal.WithLabelValues("update").Inc()
		s.logger.Warn("Rolled back optimistic update", zap.String("product_id", id), zap.Error(err))
		s.toast.Show("Failed to update product", toast.SeverityError)
		return nil, err
	}
	if i := s.indexOfLocked(id); i >= 0 {
		s.products[i] = *updated
	}
	listeners, snapshot = s.afterChangeLocked()
	s.mu.Unlock()
	s.notify(listeners, snapshot)

	name := updated.Name
	var beforeData interface{}
	if hasBefore {
		name = before.Name
		beforeData = before
	}
	s.auditProduct(ctx, id, "Edited Product: "+name, actorID, beforeData, updated)

	return updated, nil
}

// Remove filters the row out optimistically, then soft-deletes it remotely.
// On failure the full pre-mutation snapshot is restored. A successful archive
// appends an audit entry carrying the removed row as the before snapshot.
func (s *ProductStore) Remove(ctx context.Context, id string, actorID string) error {
	ctx, span := util.StartSpan(ctx, "ProductStore.Remove")
	defer span.End()

	s.mu.Lock()
	previous := s.snapshotLocked()
	var before models.Product
	hasBefore := false
	if i := s.indexOfLocked(id); i >= 0 {
		before = s.products[i]
		hasBefore = true
		s.products = append(s.products[:i], s.products[i+1:]...)
	}
	listeners, snapshot := s.afterChangeLocked()
	s.mu.Unlock()
	s.notify(listeners, snapshot)

	if err := s.gateway.SoftDeleteProduct(ctx, id); err != nil {
		s.mu.Lock()
		s.products = previous
		listeners, snapshot = s.afterChangeLocked()
		s.mu.Unlock()
		s.notify(listeners, snapshot)

		util.CacheRollbacksTotal.WithLabelValues("remove").Inc()
		s.logger.Warn("Rolled back optimistic remove", zap.String("product_id", id), zap.Error(err))
		s.toast.Show("Failed to archive product", toast.SeverityError)
		return err
	}

	name := id
	var beforeData interface{}
	if hasBefore {
		name = before.Name
		beforeData = before
	}
	s.auditProduct(ctx, id, "Archived Product: "+name, actorID, beforeData,
		map[string]interface{}{"is_active": false})

	return nil
}

// auditProduct is best-effort: a failed audit write never undoes the product
// change it records.
func (s *ProductStore) auditProduct(ctx context.Context, id, action, actorID string, beforeData, afterData interface{}) {
	if err := s.gateway.InsertAuditLog(ctx, "products", id, action, actorID, beforeData, afterData); err != nil {
		s.logger.Warn("Audit log failed",
			zap.String("product_id", id),
			zap.String("action", action),
			zap.Error(err))
	}
}

// ApplyChange merges one realtime change event into the cache. All three
// branches are idempotent under at-least-once delivery: INSERT dedups by id,
// UPDATE and DELETE on an absent id are no-ops. The server row always wins
// over locally-optimistic state.
func (s *ProductStore) ApplyChange(change models.ProductChange) {
	s.mu.Lock()
	switch change.EventType {
	case models.ChangeInsert:
		if change.New == nil {
			s.mu.Unlock()
			return
		}
		if s.indexOfLocked(change.New.ID) >= 0 {
			s.mu.Unlock()
			util.ChangeEventsDeduped.Inc()
			return
		}
		s.products = append(s.products, *change.New)

	case models.ChangeUpdate:
		if change.New == nil {
			s.mu.Unlock()
			return
		}
		i := s.indexOfLocked(change.New.ID)
		if i < 0 {
			s.mu.Unlock()
			return
		}
		s.products[i] = *change.New

	case models.ChangeDelete:
		if change.Old == nil {
			s.mu.Unlock()
			return
		}
		i := s.indexOfLocked(change.Old.ID)
		if i < 0 {
			s.mu.Unlock()
			return
		}
		s.products = append(s.products[:i], s.products[i+1:]...)

	default:
		s.mu.Unlock()
		return
	}

	listeners, snapshot := s.afterChangeLocked()
	s.mu.Unlock()

	util.ChangeEventsTotal.WithLabelValues(change.EventType).Inc()
	s.notify(listeners, snapshot)
}

// Products returns a copy of the cached rows.
func (s *ProductStore) Products() []models.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Get returns a copy of one cached row by id.
func (s *ProductStore) Get(id string) (models.Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexOfLocked(id); i >= 0 {
		return s.products[i], true
	}
	return models.Product{}, false
}

// Metrics returns the current derived values.
func (s *ProductStore) Metrics() ProductMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.metrics
}

// Initialized reports whether a load has completed.
func (s *ProductStore) Initialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

// Err returns the last load error, nil after a successful load.
func (s *ProductStore) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// OnChange registers a listener invoked with a snapshot after every cache
// change. The returned id deregisters it via RemoveListener on teardown.
func (s *ProductStore) OnChange(fn ChangeListener) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.listenerSeq
	s.listenerSeq++
	s.listeners[id] = fn
	return id
}

// RemoveListener deregisters a change listener.
func (s *ProductStore) RemoveListener(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.listeners, id)
}

func (s *ProductStore) indexOfLocked(id string) int {
	for i := range s.products {
		if s.products[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *ProductStore) snapshotLocked() []models.Product {
	out := make([]models.Product, len(s.products))
	copy(out, s.products)
	return out
}

// afterChangeLocked recomputes derived values and collects the listeners and
// a snapshot for notification outside the lock.
func (s *ProductStore) afterChangeLocked() ([]ChangeListener, []models.Product) {
	m := ProductMetrics{Total: len(s.products)}
	categories := make(map[string]struct{})
	for i := range s.products {
		unit := s.products[i].Unit
		switch {
		case unit == 0:
			m.OutOfStock++
		case unit > 0 && unit < s.lowStockThreshold:
			m.LowStock++
		}
		if c := s.products[i].Category; c != "" {
			categories[c] = struct{}{}
		}
	}
	m.Categories = len(categories)
	s.metrics = m

	util.ProductsTotal.Set(float64(m.Total))
	util.LowStockProducts.Set(float64(m.LowStock))
	util.OutOfStockProducts.Set(float64(m.OutOfStock))
	util.ProductCategories.Set(float64(m.Categories))

	listeners := make([]ChangeListener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	return listeners, s.snapshotLocked()
}

func (s *ProductStore) notify(listeners []ChangeListener, snapshot []models.Product) {
	for _, fn := range listeners {
		fn(snapshot)
	}
}
