package inventory

import "context"

// MutateFunc receives the current row and, for order-scoped calls, the
// latest LOCK/DEDUCT/RELEASE audit entry for (product, order), nil if none.
// It returns the row to write and the audit entry to append; a nil entry
// means there is nothing to write.
type MutateFunc func(cur Inventory, last *Log) (next Inventory, entry *Log, err error)

// Store persists ledger rows and their audit trail.
//
// Mutate holds an exclusive lock on the product's row for the whole call:
// the read, fn, the counter write and the audit insert all happen inside it.
// Rows of different products never share a lock.
type Store interface {
	Create(ctx context.Context, inv Inventory) (Inventory, error)
	Get(ctx context.Context, productID int64) (Inventory, error)
	Mutate(ctx context.Context, productID int64, orderID *int64, fn MutateFunc) (Inventory, error)
	Warnings(ctx context.Context) ([]Inventory, error)
	History(ctx context.Context, productID int64) ([]Log, error)
}
