// Package orderstest provides an in-memory orders.Store for tests.
package orderstest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tovarapvp/monarca-next-js-sub000/internal/orders"
)

// FailFunc lets a test inject a store failure for an operation ("GetVariant",
// "DecrementStock", "InsertTransaction", ...) on a given id. Returning nil lets
// the call through.
type FailFunc func(op, id string) error

type state struct {
	variants map[string]orders.Variant
	orders   map[string]orders.Order
	journal  []orders.InventoryTransaction
}

func (s *state) clone() *state {
	c := &state{
		variants: make(map[string]orders.Variant, len(s.variants)),
		orders:   make(map[string]orders.Order, len(s.orders)),
		journal:  append([]orders.InventoryTransaction(nil), s.journal...),
	}
	for k, v := range s.variants {
		c.variants[k] = v
	}
	for k, o := range s.orders {
		o.Items = append([]orders.OrderItem(nil), o.Items...)
		c.orders[k] = o
	}
	return c
}

// MemoryStore is safe for concurrent use. A WithTx call holds the store
// lock for its whole duration, so transactions are serializable.
type MemoryStore struct {
	mu   sync.Mutex
	st   *state
	fail FailFunc
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{st: &state{
		variants: map[string]orders.Variant{},
		orders:   map[string]orders.Order{},
	}}
}

var _ orders.Store = (*MemoryStore)(nil)

// FailWith installs (or clears, with nil) a failure hook.
func (m *MemoryStore) FailWith(f FailFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = f
}

func (m *MemoryStore) PutVariant(v orders.Variant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.variants[v.ID] = v
}

func (m *MemoryStore) PutOrder(o orders.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range o.Items {
		o.Items[i].OrderID = o.ID
	}
	m.st.orders[o.ID] = o
}

// Variant returns the stored variant, ignoring failure hooks.
func (m *MemoryStore) Variant(id string) orders.Variant {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.variants[id]
}

// Order returns the stored order, ignoring failure hooks.
func (m *MemoryStore) Order(id string) orders.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.orders[id]
}

// Journal returns a copy of every journaled transaction in insertion order.
func (m *MemoryStore) Journal() []orders.InventoryTransaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]orders.InventoryTransaction(nil), m.st.journal...)
}

func (m *MemoryStore) view() *view { return &view{st: m.st, fail: m.fail} }

func (m *MemoryStore) GetVariant(ctx context.Context, id string) (orders.Variant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().GetVariant(ctx, id)
}

func (m *MemoryStore) DecrementStock(ctx context.Context, id string, qty int) (orders.Variant, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().DecrementStock(ctx, id, qty)
}

func (m *MemoryStore) IncrementStock(ctx context.Context, id string, qty int) (orders.Variant, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().IncrementStock(ctx, id, qty)
}

func (m *MemoryStore) SetStock(ctx context.Context, id string, stock int) (int, orders.Variant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().SetStock(ctx, id, stock)
}

func (m *MemoryStore) InsertTransaction(ctx context.Context, t orders.InventoryTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().InsertTransaction(ctx, t)
}

func (m *MemoryStore) ListTransactions(ctx context.Context, variantID string, limit int) ([]orders.InventoryTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().ListTransactions(ctx, variantID, limit)
}

func (m *MemoryStore) GetOrder(ctx context.Context, id string) (orders.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().GetOrder(ctx, id)
}

func (m *MemoryStore) ClaimInventoryReduction(ctx context.Context, id string, status orders.Status) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().ClaimInventoryReduction(ctx, id, status)
}

func (m *MemoryStore) CancelOrder(ctx context.Context, id string, reduced bool, from orders.Status) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().CancelOrder(ctx, id, reduced, from)
}

func (m *MemoryStore) WithTx(ctx context.Context, fn func(orders.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().WithTx(ctx, fn)
}

// view operates on the state without locking; it is what transactions see.
type view struct {
	st   *state
	fail FailFunc
}

func (v *view) check(op, id string) error {
	if v.fail == nil {
		return nil
	}
	return v.fail(op, id)
}

func (v *view) WithTx(ctx context.Context, fn func(orders.Store) error) error {
	if err := v.check("WithTx", ""); err != nil {
		return err
	}
	snapshot := v.st.clone()
	if err := fn(v); err != nil {
		*v.st = *snapshot
		return err
	}
	return nil
}

func (v *view) GetVariant(_ context.Context, id string) (orders.Variant, error) {
	if err := v.check("GetVariant", id); err != nil {
		return orders.Variant{}, err
	}
	vr, ok := v.st.variants[id]
	if !ok {
		return orders.Variant{}, orders.ErrNotFound
	}
	return vr, nil
}

func (v *view) DecrementStock(_ context.Context, id string, qty int) (orders.Variant, bool, error) {
	if err := v.check("DecrementStock", id); err != nil {
		return orders.Variant{}, false, err
	}
	vr, ok := v.st.variants[id]
	if !ok || !vr.TrackInventory {
		return orders.Variant{}, false, nil
	}
	if !vr.AllowBackorder && vr.StockQuantity < qty {
		return orders.Variant{}, false, nil
	}
	next := vr.StockQuantity - qty
	vr.IsAvailable = next > 0 || vr.AllowBackorder
	vr.StockQuantity = max(next, 0)
	vr.UpdatedAt = time.Now().UTC()
	v.st.variants[id] = vr
	return vr, true, nil
}

func (v *view) IncrementStock(_ context.Context, id string, qty int) (orders.Variant, bool, error) {
	if err := v.check("IncrementStock", id); err != nil {
		return orders.Variant{}, false, err
	}
	vr, ok := v.st.variants[id]
	if !ok || !vr.TrackInventory {
		return orders.Variant{}, false, nil
	}
	vr.StockQuantity += qty
	vr.IsAvailable = true
	vr.UpdatedAt = time.Now().UTC()
	v.st.variants[id] = vr
	return vr, true, nil
}

func (v *view) SetStock(_ context.Context, id string, stock int) (int, orders.Variant, error) {
	if err := v.check("SetStock", id); err != nil {
		return 0, orders.Variant{}, err
	}
	vr, ok := v.st.variants[id]
	if !ok {
		return 0, orders.Variant{}, orders.ErrNotFound
	}
	prev := vr.StockQuantity
	vr.StockQuantity = stock
	vr.IsAvailable = orders.Available(stock, vr.TrackInventory, vr.AllowBackorder)
	vr.UpdatedAt = time.Now().UTC()
	v.st.variants[id] = vr
	return prev, vr, nil
}

func (v *view) InsertTransaction(_ context.Context, t orders.InventoryTransaction) error {
	if err := v.check("InsertTransaction", t.VariantID); err != nil {
		return err
	}
	v.st.journal = append(v.st.journal, t)
	return nil
}

func (v *view) ListTransactions(_ context.Context, variantID string, limit int) ([]orders.InventoryTransaction, error) {
	if err := v.check("ListTransactions", variantID); err != nil {
		return nil, err
	}
	var out []orders.InventoryTransaction
	for _, t := range v.st.journal {
		if t.VariantID == variantID {
			out = append(out, t)
		}
	}
	// newest first; stable so equal timestamps keep reverse insertion order
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (v *view) GetOrder(_ context.Context, id string) (orders.Order, error) {
	if err := v.check("GetOrder", id); err != nil {
		return orders.Order{}, err
	}
	o, ok := v.st.orders[id]
	if !ok {
		return orders.Order{}, orders.ErrNotFound
	}
	o.Items = append([]orders.OrderItem(nil), o.Items...)
	return o, nil
}

func (v *view) ClaimInventoryReduction(_ context.Context, id string, status orders.Status) (bool, error) {
	if err := v.check("ClaimInventoryReduction", id); err != nil {
		return false, err
	}
	o, ok := v.st.orders[id]
	if !ok || o.InventoryReduced || o.Status == orders.StatusCancelled {
		return false, nil
	}
	o.InventoryReduced = true
	if status != "" {
		o.Status = status
	}
	o.UpdatedAt = time.Now().UTC()
	v.st.orders[id] = o
	return true, nil
}

func (v *view) CancelOrder(_ context.Context, id string, reduced bool, from orders.Status) (bool, error) {
	if err := v.check("CancelOrder", id); err != nil {
		return false, err
	}
	o, ok := v.st.orders[id]
	if !ok || o.InventoryReduced != reduced || o.Status != from {
		return false, nil
	}
	o.Status = orders.StatusCancelled
	o.InventoryReduced = false
	o.UpdatedAt = time.Now().UTC()
	v.st.orders[id] = o
	return true, nil
}
