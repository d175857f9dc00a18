package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ariefcatur/go-order-ledger/internal/apperr"
	"github.com/ariefcatur/go-order-ledger/internal/opqueue"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Ledger owns per-product stock counters. Every mutation is a single
// Store.Mutate call, so the sufficiency check and the write it guards run
// under the same per-product lock.
type Ledger struct {
	Store            Store
	Queue            *opqueue.Queue
	Log              *zap.Logger
	WarningThreshold int
}

var tracer = otel.Tracer("inventory-ledger")

func NewLedger(store Store, q *opqueue.Queue, log *zap.Logger, warningThreshold int) *Ledger {
	if log == nil {
		log = zap.NewNop()
	}
	if warningThreshold < 0 {
		warningThreshold = DefaultWarningThreshold
	}
	return &Ledger{
		Store:            store,
		Queue:            q,
		Log:              log,
		WarningThreshold: warningThreshold,
	}
}

func (l *Ledger) Init(ctx context.Context, productID int64, stock int) (Inventory, error) {
	if productID <= 0 || stock < 0 {
		return Inventory{}, apperr.Validationf("productId must be positive and stock non-negative")
	}
	inv, err := l.Store.Create(ctx, Inventory{
		ProductID:        productID,
		TotalStock:       stock,
		AvailableStock:   stock,
		WarningThreshold: l.WarningThreshold,
	})
	if err != nil {
		return Inventory{}, fmt.Errorf("init inventory %d: %w", productID, err)
	}
	l.Log.Info("inventory initialized", zap.Int64("product_id", productID), zap.Int("stock", stock))
	return inv, nil
}

func (l *Ledger) Get(ctx context.Context, productID int64) (Inventory, error) {
	inv, err := l.Store.Get(ctx, productID)
	if err != nil {
		return Inventory{}, fmt.Errorf("inventory %d: %w", productID, err)
	}
	return inv, nil
}

// AvailableStock returns 0 for a product that has no ledger row.
func (l *Ledger) AvailableStock(ctx context.Context, productID int64) (int, error) {
	inv, err := l.Store.Get(ctx, productID)
	if errors.Is(err, apperr.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return inv.AvailableStock, nil
}

// Lock reserves quantity for orderID: available -= q, locked += q.
func (l *Ledger) Lock(ctx context.Context, productID int64, quantity int, orderID int64) error {
	_, err := l.mutate(ctx, OpLock, productID, quantity, orderID, func(cur Inventory) (Inventory, int, int, error) {
		if cur.AvailableStock < quantity {
			return cur, 0, 0, fmt.Errorf("%w: available %d, requested %d", apperr.ErrInsufficientStock, cur.AvailableStock, quantity)
		}
		next := cur
		next.AvailableStock -= quantity
		next.LockedStock += quantity
		return next, cur.AvailableStock, next.AvailableStock, nil
	})
	return err
}

// Deduct consumes a reservation permanently: locked -= q, total -= q.
func (l *Ledger) Deduct(ctx context.Context, productID int64, quantity int, orderID int64) error {
	_, err := l.mutate(ctx, OpDeduct, productID, quantity, orderID, func(cur Inventory) (Inventory, int, int, error) {
		if cur.LockedStock < quantity {
			return cur, 0, 0, fmt.Errorf("%w: locked %d, requested %d", apperr.ErrInsufficientLockedStock, cur.LockedStock, quantity)
		}
		next := cur
		next.LockedStock -= quantity
		next.TotalStock -= quantity
		return next, cur.LockedStock, next.LockedStock, nil
	})
	return err
}

// Release returns a reservation to sale: locked -= q, available += q.
func (l *Ledger) Release(ctx context.Context, productID int64, quantity int, orderID int64) error {
	_, err := l.mutate(ctx, OpRelease, productID, quantity, orderID, func(cur Inventory) (Inventory, int, int, error) {
		if cur.LockedStock < quantity {
			return cur, 0, 0, fmt.Errorf("%w: locked %d, requested %d", apperr.ErrInsufficientLockedStock, cur.LockedStock, quantity)
		}
		next := cur
		next.LockedStock -= quantity
		next.AvailableStock += quantity
		return next, cur.AvailableStock, next.AvailableStock, nil
	})
	return err
}

// Add increases total and available stock, creating the row when missing.
func (l *Ledger) Add(ctx context.Context, productID int64, quantity int) error {
	if productID <= 0 || quantity <= 0 {
		return apperr.Validationf("productId and quantity must be positive")
	}
	add := func(cur Inventory) (Inventory, int, int, error) {
		next := cur
		next.TotalStock += quantity
		next.AvailableStock += quantity
		return next, cur.AvailableStock, next.AvailableStock, nil
	}
	_, err := l.mutate(ctx, OpAdd, productID, quantity, 0, add)
	if !errors.Is(err, apperr.ErrNotFound) {
		return err
	}
	if _, err := l.Init(ctx, productID, quantity); !errors.Is(err, apperr.ErrAlreadyExists) {
		return err
	}
	// lost the init race; the row exists now
	_, err = l.mutate(ctx, OpAdd, productID, quantity, 0, add)
	return err
}

// Set replaces total stock and shifts available by the same delta. A new
// total below the locked stock is rejected; a missing row is initialized.
func (l *Ledger) Set(ctx context.Context, productID int64, newTotal int) (Inventory, error) {
	if productID <= 0 || newTotal < 0 {
		return Inventory{}, apperr.Validationf("productId must be positive and stock non-negative")
	}
	inv, err := l.mutate(ctx, OpSet, productID, newTotal, 0, func(cur Inventory) (Inventory, int, int, error) {
		if newTotal < cur.LockedStock {
			return cur, 0, 0, fmt.Errorf("%w: locked %d exceeds new total %d", apperr.ErrInsufficientLockedStock, cur.LockedStock, newTotal)
		}
		next := cur
		next.AvailableStock += newTotal - cur.TotalStock
		next.TotalStock = newTotal
		return next, cur.AvailableStock, next.AvailableStock, nil
	})
	if !errors.Is(err, apperr.ErrNotFound) {
		return inv, err
	}
	inv, err = l.Init(ctx, productID, newTotal)
	if !errors.Is(err, apperr.ErrAlreadyExists) {
		return inv, err
	}
	return l.Set(ctx, productID, newTotal)
}

// Warnings lists every product whose available stock is at or below its
// warning threshold.
func (l *Ledger) Warnings(ctx context.Context) ([]Inventory, error) {
	out, err := l.Store.Warnings(ctx)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []Inventory{}
	}
	return out, nil
}

// History returns the product's audit trail, newest first.
func (l *Ledger) History(ctx context.Context, productID int64) ([]Log, error) {
	return l.Store.History(ctx, productID)
}

// applyFunc computes the next row plus the before/after values recorded in
// the audit entry.
type applyFunc func(cur Inventory) (next Inventory, before, after int, err error)

func (l *Ledger) mutate(ctx context.Context, op OpType, productID int64, quantity int, orderID int64, apply applyFunc) (Inventory, error) {
	if productID <= 0 || (op != OpSet && quantity <= 0) {
		return Inventory{}, apperr.Validationf("productId and quantity must be positive")
	}

	ctx, span := tracer.Start(ctx, "inventory."+strings.ToLower(string(op)),
		trace.WithAttributes(
			attribute.Int64("inventory.product_id", productID),
			attribute.Int("inventory.quantity", quantity),
			attribute.Int64("inventory.order_id", orderID),
		))
	defer span.End()

	var ref *int64
	if orderID > 0 && op.OrderScoped() {
		ref = &orderID
	}

	var written *Log
	inv, err := l.Store.Mutate(ctx, productID, ref, func(cur Inventory, last *Log) (Inventory, *Log, error) {
		if ref != nil {
			replay, err := checkOrderScope(op, quantity, *ref, last)
			if err != nil || replay {
				return cur, nil, err
			}
		}
		next, before, after, err := apply(cur)
		if err != nil {
			return cur, nil, err
		}
		if err := next.Consistent(); err != nil {
			return cur, nil, err
		}
		delta := quantity
		if op == OpSet {
			delta = next.TotalStock - cur.TotalStock
		}
		written = &Log{
			ProductID:   productID,
			OrderID:     ref,
			Type:        op,
			Quantity:    delta,
			BeforeStock: before,
			AfterStock:  after,
			Remark:      op.Description(),
		}
		return next, written, nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return inv, fmt.Errorf("%s product %d: %w", strings.ToLower(string(op)), productID, err)
	}

	fields := []zap.Field{
		zap.Int64("product_id", productID),
		zap.Int("quantity", quantity),
		zap.Int64("order_id", orderID),
	}
	if written == nil {
		span.SetAttributes(attribute.Bool("inventory.replay", true))
		l.Log.Info("inventory operation already applied", append(fields, zap.String("op", string(op)))...)
		return inv, nil
	}

	if op.OrderScoped() {
		l.enqueue(*written)
	}
	l.Log.Info("inventory "+strings.ToLower(string(op)), append(fields,
		zap.Int("available", inv.AvailableStock),
		zap.Int("locked", inv.LockedStock),
		zap.Int("total", inv.TotalStock),
	)...)
	return inv, nil
}

// checkOrderScope decides an order-scoped call against the order's latest
// scoped entry on the product. Repeating that entry is a replay. DEDUCT and
// RELEASE act only on the order's own LOCK and must match its quantity.
func checkOrderScope(op OpType, quantity int, orderID int64, last *Log) (replay bool, err error) {
	if last != nil && last.Type == op {
		if last.Quantity != quantity {
			return false, apperr.Validationf("order %d repeats %s with quantity %d, recorded %d",
				orderID, op, quantity, last.Quantity)
		}
		return true, nil
	}
	if op == OpLock {
		return false, nil
	}
	switch {
	case last == nil || last.Type == OpRelease:
		return false, fmt.Errorf("%w: order %d holds no lock", apperr.ErrInsufficientLockedStock, orderID)
	case last.Type == OpDeduct:
		return false, fmt.Errorf("%w: order %d already consumed its lock", apperr.ErrInsufficientLockedStock, orderID)
	case last.Quantity != quantity:
		return false, apperr.Validationf("order %d locked %d, %s requested %d",
			orderID, last.Quantity, strings.ToLower(string(op)), quantity)
	}
	return false, nil
}

func (l *Ledger) enqueue(e Log) {
	if l.Queue == nil {
		return
	}
	err := l.Queue.Enqueue(opqueue.Operation{
		ProductID: e.ProductID,
		OrderID:   e.OrderID,
		Type:      string(e.Type),
		Quantity:  e.Quantity,
		Remark:    e.Remark,
	})
	if err != nil {
		l.Log.Warn("operation queue rejected record",
			zap.Error(err),
			zap.Int64("product_id", e.ProductID),
			zap.String("op", string(e.Type)),
		)
	}
}
