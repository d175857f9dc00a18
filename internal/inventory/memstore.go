package inventory

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ariefcatur/go-order-ledger/internal/apperr"
)

type memRow struct {
	mu          sync.Mutex
	inv         Inventory
	logs        []Log
	lastOrderOp map[int64]Log
}

// MemStore keeps the ledger in process memory. Each product has its own
// mutex; the store-wide mutex only guards the row table itself.
type MemStore struct {
	mu   sync.RWMutex
	rows map[int64]*memRow

	nextID    atomic.Int64
	nextLogID atomic.Int64
}

func NewMemStore() *MemStore {
	return &MemStore{rows: make(map[int64]*memRow)}
}

func (s *MemStore) row(productID int64) (*memRow, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rows[productID]
	return r, ok
}

func (s *MemStore) Create(_ context.Context, inv Inventory) (Inventory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[inv.ProductID]; ok {
		return Inventory{}, apperr.ErrAlreadyExists
	}
	now := time.Now()
	inv.ID = s.nextID.Add(1)
	inv.CreatedAt, inv.UpdatedAt = now, now
	s.rows[inv.ProductID] = &memRow{inv: inv, lastOrderOp: make(map[int64]Log)}
	return inv, nil
}

func (s *MemStore) Get(_ context.Context, productID int64) (Inventory, error) {
	r, ok := s.row(productID)
	if !ok {
		return Inventory{}, apperr.ErrNotFound
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inv, nil
}

func (s *MemStore) Mutate(ctx context.Context, productID int64, orderID *int64, fn MutateFunc) (Inventory, error) {
	r, ok := s.row(productID)
	if !ok {
		return Inventory{}, apperr.ErrNotFound
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return r.inv, err
	}

	var last *Log
	if orderID != nil {
		if e, ok := r.lastOrderOp[*orderID]; ok {
			last = &e
		}
	}
	next, entry, err := fn(r.inv, last)
	if err != nil || entry == nil {
		return r.inv, err
	}

	now := time.Now()
	next.UpdatedAt = now
	r.inv = next

	e := *entry
	e.ID = s.nextLogID.Add(1)
	e.ProductID = productID
	e.CreatedAt = now
	r.logs = append(r.logs, e)
	if e.OrderID != nil && e.Type.OrderScoped() {
		r.lastOrderOp[*e.OrderID] = e
	}
	return r.inv, nil
}

func (s *MemStore) Warnings(_ context.Context) ([]Inventory, error) {
	s.mu.RLock()
	rows := make([]*memRow, 0, len(s.rows))
	for _, r := range s.rows {
		rows = append(rows, r)
	}
	s.mu.RUnlock()

	var out []Inventory
	for _, r := range rows {
		r.mu.Lock()
		inv := r.inv
		r.mu.Unlock()
		if inv.AvailableStock <= inv.WarningThreshold {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

func (s *MemStore) History(_ context.Context, productID int64) ([]Log, error) {
	r, ok := s.row(productID)
	if !ok {
		return []Log{}, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Log, 0, len(r.logs))
	for i := len(r.logs) - 1; i >= 0; i-- {
		out = append(out, r.logs[i])
	}
	return out, nil
}
