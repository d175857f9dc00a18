package inventory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ariefcatur/go-order-ledger/internal/apperr"
	"github.com/ariefcatur/go-order-ledger/internal/opqueue"
)

func newTestLedger(t *testing.T) (*Ledger, *opqueue.Queue) {
	t.Helper()
	q := opqueue.New(64, nil)
	return NewLedger(NewMemStore(), q, nil, DefaultWarningThreshold), q
}

func mustGet(t *testing.T, l *Ledger, productID int64) Inventory {
	t.Helper()
	inv, err := l.Get(context.Background(), productID)
	if err != nil {
		t.Fatalf("get %d: %v", productID, err)
	}
	if err := inv.Consistent(); err != nil {
		t.Fatalf("inconsistent: %v", err)
	}
	return inv
}

func TestInitAndDuplicate(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	inv, err := l.Init(ctx, 1, 10)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if inv.TotalStock != 10 || inv.AvailableStock != 10 || inv.LockedStock != 0 || inv.WarningThreshold != 10 {
		t.Fatalf("unexpected row: %+v", inv)
	}
	if _, err := l.Init(ctx, 1, 5); !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Fatalf("expected AlreadyExists, got %v", err)
	}
	if _, err := l.Init(ctx, 2, -1); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestLockThenDeduct(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	if _, err := l.Init(ctx, 1, 10); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := l.Lock(ctx, 1, 4, 100); err != nil {
		t.Fatalf("lock: %v", err)
	}
	inv := mustGet(t, l, 1)
	if inv.AvailableStock != 6 || inv.LockedStock != 4 {
		t.Fatalf("after lock: %+v", inv)
	}
	if err := l.Deduct(ctx, 1, 4, 100); err != nil {
		t.Fatalf("deduct: %v", err)
	}
	inv = mustGet(t, l, 1)
	if inv.TotalStock != 6 || inv.LockedStock != 0 || inv.AvailableStock != 6 {
		t.Fatalf("after deduct: %+v", inv)
	}
}

func TestLockThenReleaseRestores(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	_, _ = l.Init(ctx, 1, 8)
	steps := []struct {
		lock bool
		qty  int
		oid  int64
	}{
		{true, 3, 1}, {true, 2, 2}, {false, 3, 1}, {true, 5, 3}, {false, 2, 2}, {false, 5, 3},
	}
	for i, s := range steps {
		var err error
		if s.lock {
			err = l.Lock(ctx, 1, s.qty, s.oid)
		} else {
			err = l.Release(ctx, 1, s.qty, s.oid)
		}
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		mustGet(t, l, 1)
	}
	if inv := mustGet(t, l, 1); inv.AvailableStock != 8 || inv.LockedStock != 0 {
		t.Fatalf("expected stock restored: %+v", inv)
	}
}

func TestLockFailures(t *testing.T) {
	l, q := newTestLedger(t)
	ctx := context.Background()
	if err := l.Lock(ctx, 9, 1, 1); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
	_, _ = l.Init(ctx, 1, 3)
	if err := l.Lock(ctx, 1, 4, 1); !errors.Is(err, apperr.ErrInsufficientStock) {
		t.Fatalf("expected InsufficientStock, got %v", err)
	}
	if inv := mustGet(t, l, 1); inv.AvailableStock != 3 || inv.LockedStock != 0 {
		t.Fatalf("counters changed on failure: %+v", inv)
	}
	if err := l.Lock(ctx, 1, 0, 1); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if q.Len() != 0 {
		t.Fatalf("failed locks must not enqueue")
	}
	if hist, _ := l.History(ctx, 1); len(hist) != 0 {
		t.Fatalf("failed locks must not log: %+v", hist)
	}
}

func TestDeductReleaseNeedLockedStock(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	_, _ = l.Init(ctx, 1, 5)
	_ = l.Lock(ctx, 1, 2, 7)
	if err := l.Deduct(ctx, 1, 3, 8); !errors.Is(err, apperr.ErrInsufficientLockedStock) {
		t.Fatalf("deduct: expected InsufficientLockedStock, got %v", err)
	}
	if err := l.Release(ctx, 1, 3, 8); !errors.Is(err, apperr.ErrInsufficientLockedStock) {
		t.Fatalf("release: expected InsufficientLockedStock, got %v", err)
	}
	if err := l.Deduct(ctx, 2, 1, 8); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestConcurrentLocksNeverOversell(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	const available = 100
	_, _ = l.Init(ctx, 1, available)

	var wg sync.WaitGroup
	var locked atomic.Int64
	for i := 0; i < 80; i++ {
		qty := i%4 + 1
		wg.Add(1)
		go func(orderID int64, qty int) {
			defer wg.Done()
			err := l.Lock(ctx, 1, qty, orderID)
			switch {
			case err == nil:
				locked.Add(int64(qty))
			case errors.Is(err, apperr.ErrInsufficientStock):
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(int64(i+1), qty)
	}
	wg.Wait()

	if locked.Load() > available {
		t.Fatalf("oversold: locked %d of %d", locked.Load(), available)
	}
	inv := mustGet(t, l, 1)
	if int64(inv.LockedStock) != locked.Load() || inv.AvailableStock != available-inv.LockedStock {
		t.Fatalf("counters disagree with successes: %+v, locked=%d", inv, locked.Load())
	}
}

func TestConcurrentProductsIndependent(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	for p := int64(1); p <= 4; p++ {
		_, _ = l.Init(ctx, p, 50)
	}
	var wg sync.WaitGroup
	for p := int64(1); p <= 4; p++ {
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(p, oid int64) {
				defer wg.Done()
				if err := l.Lock(ctx, p, 1, oid); err != nil {
					t.Errorf("lock %d: %v", p, err)
				}
			}(p, int64(i+1))
		}
	}
	wg.Wait()
	for p := int64(1); p <= 4; p++ {
		if inv := mustGet(t, l, p); inv.AvailableStock != 0 || inv.LockedStock != 50 {
			t.Fatalf("product %d: %+v", p, inv)
		}
	}
}

func TestOrderScopedReplayIsNoop(t *testing.T) {
	l, q := newTestLedger(t)
	ctx := context.Background()
	_, _ = l.Init(ctx, 1, 10)

	if err := l.Lock(ctx, 1, 4, 100); err != nil {
		t.Fatalf("lock: %v", err)
	}
	if err := l.Lock(ctx, 1, 4, 100); err != nil {
		t.Fatalf("replayed lock: %v", err)
	}
	if inv := mustGet(t, l, 1); inv.LockedStock != 4 {
		t.Fatalf("replay applied twice: %+v", inv)
	}

	_ = l.Deduct(ctx, 1, 4, 100)
	if err := l.Deduct(ctx, 1, 4, 100); err != nil {
		t.Fatalf("replayed deduct: %v", err)
	}
	if inv := mustGet(t, l, 1); inv.TotalStock != 6 {
		t.Fatalf("deduct replay applied twice: %+v", inv)
	}
	if q.Len() != 2 {
		t.Fatalf("expected 2 queued operations, got %d", q.Len())
	}
}

func TestLockReleaseLockSameOrderApplies(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	_, _ = l.Init(ctx, 1, 10)
	_ = l.Lock(ctx, 1, 3, 5)
	_ = l.Release(ctx, 1, 3, 5)
	if err := l.Lock(ctx, 1, 3, 5); err != nil {
		t.Fatalf("relock: %v", err)
	}
	if inv := mustGet(t, l, 1); inv.LockedStock != 3 || inv.AvailableStock != 7 {
		t.Fatalf("relock not applied: %+v", inv)
	}
}

func TestOrderScopedDeductReleaseNeedOwnLock(t *testing.T) {
	l, q := newTestLedger(t)
	ctx := context.Background()
	_, _ = l.Init(ctx, 1, 10)
	_ = l.Lock(ctx, 1, 2, 1)
	_ = l.Lock(ctx, 1, 2, 2)
	if err := l.Deduct(ctx, 1, 2, 2); err != nil {
		t.Fatalf("deduct: %v", err)
	}
	queued := q.Len()

	cases := []struct {
		name string
		call func() error
	}{
		{"release after deduct", func() error { return l.Release(ctx, 1, 2, 2) }},
		{"deduct without lock", func() error { return l.Deduct(ctx, 1, 2, 3) }},
		{"release without lock", func() error { return l.Release(ctx, 1, 2, 3) }},
	}
	for _, tc := range cases {
		if err := tc.call(); !errors.Is(err, apperr.ErrInsufficientLockedStock) {
			t.Fatalf("%s: expected InsufficientLockedStock, got %v", tc.name, err)
		}
		if inv := mustGet(t, l, 1); inv.AvailableStock != 6 || inv.LockedStock != 2 || inv.TotalStock != 8 {
			t.Fatalf("%s changed counters: %+v", tc.name, inv)
		}
	}
	if q.Len() != queued {
		t.Fatalf("refused calls must not enqueue")
	}

	_ = l.Release(ctx, 1, 2, 1)
	if err := l.Deduct(ctx, 1, 2, 1); !errors.Is(err, apperr.ErrInsufficientLockedStock) {
		t.Fatalf("deduct after release: %v", err)
	}
	if inv := mustGet(t, l, 1); inv.AvailableStock != 8 || inv.LockedStock != 0 {
		t.Fatalf("after release: %+v", inv)
	}
}

func TestOrderScopedQuantityMismatchRejected(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	_, _ = l.Init(ctx, 1, 10)
	_ = l.Lock(ctx, 1, 4, 1)

	if err := l.Lock(ctx, 1, 5, 1); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("replay with other quantity: expected ValidationError, got %v", err)
	}
	if err := l.Deduct(ctx, 1, 3, 1); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("partial deduct: expected ValidationError, got %v", err)
	}
	if err := l.Release(ctx, 1, 5, 1); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("oversized release: expected ValidationError, got %v", err)
	}
	if inv := mustGet(t, l, 1); inv.LockedStock != 4 || inv.AvailableStock != 6 {
		t.Fatalf("rejected calls changed counters: %+v", inv)
	}
	if hist, _ := l.History(ctx, 1); len(hist) != 1 {
		t.Fatalf("rejected calls must not log: %+v", hist)
	}
}

func TestAddCreatesOrIncrements(t *testing.T) {
	l, q := newTestLedger(t)
	ctx := context.Background()
	if err := l.Add(ctx, 3, 5); err != nil {
		t.Fatalf("add new: %v", err)
	}
	if inv := mustGet(t, l, 3); inv.TotalStock != 5 || inv.AvailableStock != 5 {
		t.Fatalf("add new: %+v", inv)
	}
	if err := l.Add(ctx, 3, 2); err != nil {
		t.Fatalf("add existing: %v", err)
	}
	if inv := mustGet(t, l, 3); inv.TotalStock != 7 || inv.AvailableStock != 7 {
		t.Fatalf("add existing: %+v", inv)
	}
	if q.Len() != 0 {
		t.Fatalf("ADD must not be queued")
	}
	hist, _ := l.History(ctx, 3)
	if len(hist) != 1 || hist[0].Type != OpAdd || hist[0].BeforeStock != 5 || hist[0].AfterStock != 7 || hist[0].OrderID != nil {
		t.Fatalf("unexpected history: %+v", hist)
	}
}

func TestConcurrentAddOnMissingRow(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Add(ctx, 42, 1); err != nil {
				t.Errorf("add: %v", err)
			}
		}()
	}
	wg.Wait()
	if inv := mustGet(t, l, 42); inv.TotalStock != 20 {
		t.Fatalf("expected 20, got %+v", inv)
	}
}

func TestSet(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	_, _ = l.Init(ctx, 1, 10)
	_ = l.Lock(ctx, 1, 4, 1)

	inv, err := l.Set(ctx, 1, 15)
	if err != nil {
		t.Fatalf("set: %v", err)
	}
	if inv.TotalStock != 15 || inv.AvailableStock != 11 || inv.LockedStock != 4 {
		t.Fatalf("set up: %+v", inv)
	}
	inv, _ = l.Set(ctx, 1, 4)
	if inv.TotalStock != 4 || inv.AvailableStock != 0 {
		t.Fatalf("set down to locked: %+v", inv)
	}
	if _, err := l.Set(ctx, 1, 3); !errors.Is(err, apperr.ErrInsufficientLockedStock) {
		t.Fatalf("expected rejection below locked, got %v", err)
	}
	if inv := mustGet(t, l, 1); inv.TotalStock != 4 {
		t.Fatalf("rejected set changed counters: %+v", inv)
	}

	hist, _ := l.History(ctx, 1)
	if hist[0].Type != OpSet || hist[0].Quantity != -11 || hist[1].Quantity != 5 {
		t.Fatalf("set deltas not logged: %+v", hist[:2])
	}

	inv, err = l.Set(ctx, 2, 6)
	if err != nil || inv.TotalStock != 6 || inv.AvailableStock != 6 {
		t.Fatalf("set on missing row should init: %+v %v", inv, err)
	}
}

func TestWarnings(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	_, _ = l.Init(ctx, 1, 100)
	_, _ = l.Init(ctx, 2, 10)
	_, _ = l.Init(ctx, 3, 30)
	_ = l.Lock(ctx, 3, 25, 1)

	got, err := l.Warnings(ctx)
	if err != nil {
		t.Fatalf("warnings: %v", err)
	}
	if len(got) != 2 || got[0].ProductID != 2 || got[1].ProductID != 3 {
		t.Fatalf("unexpected warnings: %+v", got)
	}
}

func TestHistoryNewestFirst(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	_, _ = l.Init(ctx, 1, 10)
	_ = l.Lock(ctx, 1, 4, 9)
	_ = l.Deduct(ctx, 1, 4, 9)
	_ = l.Add(ctx, 1, 2)

	hist, err := l.History(ctx, 1)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	want := []OpType{OpAdd, OpDeduct, OpLock}
	if len(hist) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(hist))
	}
	for i, w := range want {
		if hist[i].Type != w {
			t.Fatalf("entry %d: got %s want %s", i, hist[i].Type, w)
		}
	}
	if hist[1].BeforeStock != 4 || hist[1].AfterStock != 0 {
		t.Fatalf("deduct should record locked stock: %+v", hist[1])
	}
	if hist[2].OrderID == nil || *hist[2].OrderID != 9 || hist[2].Remark == "" {
		t.Fatalf("lock entry missing order/remark: %+v", hist[2])
	}

	if empty, _ := l.History(ctx, 99); len(empty) != 0 {
		t.Fatalf("unknown product should have empty history")
	}
}

func TestAvailableStockMissingIsZero(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	if n, err := l.AvailableStock(ctx, 5); err != nil || n != 0 {
		t.Fatalf("expected 0,nil got %d,%v", n, err)
	}
	_, _ = l.Init(ctx, 5, 3)
	if n, _ := l.AvailableStock(ctx, 5); n != 3 {
		t.Fatalf("expected 3, got %d", n)
	}
}

func TestQueueFullDoesNotFailMutation(t *testing.T) {
	q := opqueue.New(1, nil)
	l := NewLedger(NewMemStore(), q, nil, DefaultWarningThreshold)
	ctx := context.Background()
	_, _ = l.Init(ctx, 1, 10)
	if err := l.Lock(ctx, 1, 1, 1); err != nil {
		t.Fatalf("lock 1: %v", err)
	}
	if err := l.Lock(ctx, 1, 1, 2); err != nil {
		t.Fatalf("lock 2 must succeed even with a full queue: %v", err)
	}
	if st := q.Stats(); st.Enqueued != 1 || st.Dropped != 1 {
		t.Fatalf("unexpected queue stats: %+v", st)
	}
	if inv := mustGet(t, l, 1); inv.LockedStock != 2 {
		t.Fatalf("expected locked 2: %+v", inv)
	}
}
