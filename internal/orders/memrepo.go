package orders

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ariefcatur/go-order-ledger/internal/apperr"
	"github.com/shopspring/decimal"
)

// MemRepo keeps orders in memory. Used by tests and local runs without
// Postgres.
type MemRepo struct {
	mu       sync.RWMutex
	orders   map[int64]Order
	items    map[int64][]OrderItem
	byNo     map[string]int64
	nextID   int64
	nextItem int64
}

func NewMemRepo() *MemRepo {
	return &MemRepo{
		orders: make(map[int64]Order),
		items:  make(map[int64][]OrderItem),
		byNo:   make(map[string]int64),
	}
}

func (r *MemRepo) Create(_ context.Context, o *Order, items []OrderItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byNo[o.OrderNo]; ok {
		return fmt.Errorf("order no %s: %w", o.OrderNo, apperr.ErrAlreadyExists)
	}
	r.nextID++
	now := time.Now()
	o.ID = r.nextID
	o.CreatedAt, o.UpdatedAt = now, now
	stored := make([]OrderItem, len(items))
	for i := range items {
		r.nextItem++
		items[i].ID = r.nextItem
		items[i].OrderID = o.ID
		items[i].OrderNo = o.OrderNo
		stored[i] = items[i]
	}
	r.orders[o.ID] = *o
	r.items[o.ID] = stored
	r.byNo[o.OrderNo] = o.ID
	return nil
}

func (r *MemRepo) Get(_ context.Context, id int64) (Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orders[id]
	if !ok {
		return Order{}, fmt.Errorf("order %d: %w", id, apperr.ErrNotFound)
	}
	return o, nil
}

func (r *MemRepo) GetByNo(ctx context.Context, orderNo string) (Order, error) {
	r.mu.RLock()
	id, ok := r.byNo[orderNo]
	r.mu.RUnlock()
	if !ok {
		return Order{}, fmt.Errorf("order %s: %w", orderNo, apperr.ErrNotFound)
	}
	return r.Get(ctx, id)
}

func (r *MemRepo) Items(_ context.Context, orderID int64) ([]OrderItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]OrderItem(nil), r.items[orderID]...), nil
}

// newestFirst returns the orders matching keep, newest first.
func (r *MemRepo) newestFirst(keep func(Order) bool) []Order {
	out := make([]Order, 0)
	for _, o := range r.orders {
		if keep(o) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (r *MemRepo) ListByUser(_ context.Context, userID int64) ([]Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.newestFirst(func(o Order) bool { return o.UserID == userID }), nil
}

func (r *MemRepo) List(_ context.Context, offset, limit int) ([]Order, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := r.newestFirst(func(Order) bool { return true })
	total := int64(len(all))
	if offset >= len(all) {
		return []Order{}, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (r *MemRepo) PendingBefore(_ context.Context, cutoff time.Time) ([]Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := r.newestFirst(func(o Order) bool {
		return o.Status == StatusPendingPayment && o.CreatedAt.Before(cutoff)
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemRepo) UpdateStatus(_ context.Context, id int64, from, to Status, at time.Time) (Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return Order{}, fmt.Errorf("order %d: %w", id, apperr.ErrNotFound)
	}
	if o.Status != from {
		return o, fmt.Errorf("order %d is %s, expected %s: %w", id, o.Status, from, apperr.ErrInvalidTransition)
	}
	o.Status = to
	o.stamp(to, at)
	o.UpdatedAt = at
	r.orders[id] = o
	return o, nil
}

func (r *MemRepo) Count(_ context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.orders)), nil
}

func (r *MemRepo) Revenue(_ context.Context) (decimal.Decimal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sum := decimal.Zero
	for _, o := range r.orders {
		if earnsRevenue(o.Status) {
			sum = sum.Add(o.PayAmount)
		}
	}
	return sum, nil
}

// earnsRevenue reports whether an order in s counts as sold.
func earnsRevenue(s Status) bool {
	switch s {
	case StatusPaid, StatusShipped, StatusReceived, StatusCompleted:
		return true
	}
	return false
}
