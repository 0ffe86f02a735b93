package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"checkout-engine/internal/apperr"
	"checkout-engine/internal/models"
)

// MemoryRepository is a Repository held in process memory. Transactions run
// one at a time under a single writer lock against a staged copy of the
// state, which replaces the live state only when the transaction succeeds.
type MemoryRepository struct {
	mu    sync.RWMutex
	state *memState
	now   func() time.Time
}

var _ Repository = (*MemoryRepository)(nil)

type memState struct {
	products  map[int64]models.Product
	inventory map[int64]models.InventoryRecord
	orders    map[int64]models.Order
	intents   map[int64]models.PaymentIntent

	nextOrderID  int64
	nextItemID   int64
	nextIntentID int64
}

// NewMemoryRepository creates an empty in-memory repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		state: &memState{
			products:  make(map[int64]models.Product),
			inventory: make(map[int64]models.InventoryRecord),
			orders:    make(map[int64]models.Order),
			intents:   make(map[int64]models.PaymentIntent),
		},
		now: time.Now,
	}
}

func (st *memState) clone() *memState {
	c := &memState{
		products:     make(map[int64]models.Product, len(st.products)),
		inventory:    make(map[int64]models.InventoryRecord, len(st.inventory)),
		orders:       make(map[int64]models.Order, len(st.orders)),
		intents:      make(map[int64]models.PaymentIntent, len(st.intents)),
		nextOrderID:  st.nextOrderID,
		nextItemID:   st.nextItemID,
		nextIntentID: st.nextIntentID,
	}
	for k, v := range st.products {
		c.products[k] = v
	}
	for k, v := range st.inventory {
		c.inventory[k] = v
	}
	for k, v := range st.orders {
		c.orders[k] = copyOrder(v)
	}
	for k, v := range st.intents {
		c.intents[k] = v
	}
	return c
}

func copyOrder(o models.Order) models.Order {
	items := make([]models.OrderItem, len(o.Items))
	copy(items, o.Items)
	o.Items = items
	return o
}

// AddProduct registers a catalog product and, when stocked, its inventory record
func (m *MemoryRepository) AddProduct(p models.Product, total, lowStockThreshold int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p.CreatedAt.IsZero() {
		p.CreatedAt = m.now()
	}
	m.state.products[p.ID] = p
	m.state.inventory[p.ID] = models.InventoryRecord{
		ProductID:         p.ID,
		TotalQuantity:     total,
		LowStockThreshold: lowStockThreshold,
		Version:           1,
		UpdatedAt:         m.now(),
	}
}

// InTx implements Repository
func (m *MemoryRepository) InTx(ctx context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	staged := m.state.clone()
	if err := fn(&memTx{st: staged, now: m.now}); err != nil {
		return err
	}
	m.state = staged
	return nil
}

// GetOrder implements Repository
func (m *MemoryRepository) GetOrder(_ context.Context, orderID int64) (*models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.state.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("%w: order %d", apperr.ErrNotFound, orderID)
	}
	c := copyOrder(o)
	return &c, nil
}

// GetOrderByIdempotencyKey implements Repository
func (m *MemoryRepository) GetOrderByIdempotencyKey(_ context.Context, key string) (*models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, o := range m.state.orders {
		if o.IdempotencyKey != nil && *o.IdempotencyKey == key {
			c := copyOrder(o)
			return &c, nil
		}
	}
	return nil, fmt.Errorf("%w: order with idempotency key", apperr.ErrNotFound)
}

// GetOrdersByUserID implements Repository
func (m *MemoryRepository) GetOrdersByUserID(_ context.Context, userID int64) ([]models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var orders []models.Order
	for _, o := range m.state.orders {
		if o.UserID == userID {
			c := o
			c.Items = nil
			orders = append(orders, c)
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].ID > orders[j].ID })
	return orders, nil
}

// GetPaymentIntentByOrderID implements Repository
func (m *MemoryRepository) GetPaymentIntentByOrderID(_ context.Context, orderID int64) (*models.PaymentIntent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	intent, ok := latestIntent(m.state, orderID)
	if !ok {
		return nil, fmt.Errorf("%w: payment for order %d", apperr.ErrNotFound, orderID)
	}
	return &intent, nil
}

// GetInventory implements Repository
func (m *MemoryRepository) GetInventory(_ context.Context, productID int64) (*models.InventoryRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.state.inventory[productID]
	if !ok {
		return nil, fmt.Errorf("%w: inventory for product %d", apperr.ErrNotFound, productID)
	}
	return &rec, nil
}

// CreateInventory implements Repository
func (m *MemoryRepository) CreateInventory(_ context.Context, rec *models.InventoryRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.state.products[rec.ProductID]; !ok {
		return fmt.Errorf("%w: product %d", apperr.ErrNotFound, rec.ProductID)
	}
	if _, ok := m.state.inventory[rec.ProductID]; ok {
		return fmt.Errorf("%w: inventory for product %d already exists", apperr.ErrConflict, rec.ProductID)
	}

	rec.Version = 1
	rec.UpdatedAt = m.now()
	m.state.inventory[rec.ProductID] = *rec
	return nil
}

// GetProductsByIDs implements Repository
func (m *MemoryRepository) GetProductsByIDs(_ context.Context, ids []int64) ([]models.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	products := make([]models.Product, 0, len(ids))
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if p, ok := m.state.products[id]; ok && !seen[id] {
			products = append(products, p)
			seen[id] = true
		}
	}
	return products, nil
}

func latestIntent(st *memState, orderID int64) (models.PaymentIntent, bool) {
	var (
		latest models.PaymentIntent
		found  bool
	)
	for _, intent := range st.intents {
		if intent.OrderID == orderID && (!found || intent.ID > latest.ID) {
			latest = intent
			found = true
		}
	}
	return latest, found
}

// memTx is a transaction over a staged copy of the state
type memTx struct {
	st  *memState
	now func() time.Time
}

func (t *memTx) LockInventory(_ context.Context, productID int64) (*models.InventoryRecord, error) {
	rec, ok := t.st.inventory[productID]
	if !ok {
		return nil, fmt.Errorf("%w: inventory for product %d", apperr.ErrNotFound, productID)
	}
	return &rec, nil
}

func (t *memTx) UpdateInventory(_ context.Context, rec *models.InventoryRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	current, ok := t.st.inventory[rec.ProductID]
	if !ok {
		return fmt.Errorf("%w: inventory for product %d", apperr.ErrNotFound, rec.ProductID)
	}
	if current.Version != rec.Version {
		return fmt.Errorf("%w: inventory version moved for product %d", apperr.ErrRetryable, rec.ProductID)
	}

	rec.Version++
	rec.UpdatedAt = t.now()
	t.st.inventory[rec.ProductID] = *rec
	return nil
}

func (t *memTx) CreateOrder(_ context.Context, order *models.Order) error {
	for _, o := range t.st.orders {
		if o.OrderNumber == order.OrderNumber {
			return fmt.Errorf("%w: order number %s", apperr.ErrConflict, order.OrderNumber)
		}
		if order.IdempotencyKey != nil && o.IdempotencyKey != nil && *o.IdempotencyKey == *order.IdempotencyKey {
			return fmt.Errorf("%w: idempotency key reused", apperr.ErrConflict)
		}
	}

	t.st.nextOrderID++
	order.ID = t.st.nextOrderID
	order.CreatedAt = t.now()
	order.UpdatedAt = order.CreatedAt
	for i := range order.Items {
		t.st.nextItemID++
		order.Items[i].ID = t.st.nextItemID
		order.Items[i].OrderID = order.ID
	}
	t.st.orders[order.ID] = copyOrder(*order)
	return nil
}

func (t *memTx) GetOrderForUpdate(_ context.Context, orderID int64) (*models.Order, error) {
	o, ok := t.st.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("%w: order %d", apperr.ErrNotFound, orderID)
	}
	c := copyOrder(o)
	return &c, nil
}

func (t *memTx) UpdateOrderStatus(_ context.Context, order *models.Order) error {
	o, ok := t.st.orders[order.ID]
	if !ok {
		return fmt.Errorf("%w: order %d", apperr.ErrNotFound, order.ID)
	}
	o.Status = order.Status
	o.StockState = order.StockState
	o.StatusReason = order.StatusReason
	o.UpdatedAt = t.now()
	order.UpdatedAt = o.UpdatedAt
	t.st.orders[order.ID] = o
	return nil
}

func (t *memTx) DeleteOrder(_ context.Context, orderID int64) error {
	if _, ok := t.st.orders[orderID]; !ok {
		return fmt.Errorf("%w: order %d", apperr.ErrNotFound, orderID)
	}
	delete(t.st.orders, orderID)
	for id, intent := range t.st.intents {
		if intent.OrderID == orderID {
			delete(t.st.intents, id)
		}
	}
	return nil
}

func (t *memTx) CreatePaymentIntent(_ context.Context, intent *models.PaymentIntent) error {
	for _, existing := range t.st.intents {
		if existing.ProviderRequestID == intent.ProviderRequestID {
			return fmt.Errorf("%w: provider request id %s", apperr.ErrConflict, intent.ProviderRequestID)
		}
		if existing.OrderID == intent.OrderID && existing.Status.IsActive() && intent.Status.IsActive() {
			return fmt.Errorf("%w: order %d already has an active payment", apperr.ErrConflict, intent.OrderID)
		}
	}

	t.st.nextIntentID++
	intent.ID = t.st.nextIntentID
	intent.CreatedAt = t.now()
	intent.UpdatedAt = intent.CreatedAt
	t.st.intents[intent.ID] = *intent
	return nil
}

func (t *memTx) GetActivePaymentIntent(_ context.Context, orderID int64) (*models.PaymentIntent, error) {
	for _, intent := range t.st.intents {
		if intent.OrderID == orderID && intent.Status.IsActive() {
			c := intent
			return &c, nil
		}
	}
	return nil, nil
}

func (t *memTx) GetPaymentIntentForUpdate(_ context.Context, intentID int64) (*models.PaymentIntent, error) {
	intent, ok := t.st.intents[intentID]
	if !ok {
		return nil, fmt.Errorf("%w: payment intent %d", apperr.ErrNotFound, intentID)
	}
	return &intent, nil
}

func (t *memTx) GetPaymentIntentByRequestIDForUpdate(_ context.Context, providerRequestID string) (*models.PaymentIntent, error) {
	for _, intent := range t.st.intents {
		if intent.ProviderRequestID == providerRequestID {
			c := intent
			return &c, nil
		}
	}
	return nil, fmt.Errorf("%w: payment intent %s", apperr.ErrNotFound, providerRequestID)
}

func (t *memTx) GetLatestPaymentIntentForUpdate(_ context.Context, orderID int64) (*models.PaymentIntent, error) {
	intent, ok := latestIntent(t.st, orderID)
	if !ok {
		return nil, fmt.Errorf("%w: payment for order %d", apperr.ErrNotFound, orderID)
	}
	return &intent, nil
}

func (t *memTx) UpdatePaymentIntent(_ context.Context, intent *models.PaymentIntent) error {
	if _, ok := t.st.intents[intent.ID]; !ok {
		return fmt.Errorf("%w: payment intent %d", apperr.ErrNotFound, intent.ID)
	}
	for id, existing := range t.st.intents {
		if id != intent.ID && existing.ProviderRequestID == intent.ProviderRequestID {
			return fmt.Errorf("%w: provider request id %s", apperr.ErrConflict, intent.ProviderRequestID)
		}
	}
	intent.UpdatedAt = t.now()
	t.st.intents[intent.ID] = *intent
	return nil
}
