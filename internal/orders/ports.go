package orders

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Inventory is the ledger as seen from the orchestrator. Each call is
// individually atomic on the ledger side.
type Inventory interface {
	Lock(ctx context.Context, productID int64, quantity int, orderID int64) error
	Deduct(ctx context.Context, productID int64, quantity int, orderID int64) error
	Release(ctx context.Context, productID int64, quantity int, orderID int64) error
}

type Catalog interface {
	Product(ctx context.Context, id int64) (Product, error)
	IncreaseSales(ctx context.Context, id int64, quantity int) error
}

type Addresses interface {
	Address(ctx context.Context, id int64) (Address, error)
}

type Repository interface {
	// Create stores the order and its items, filling in their ids.
	Create(ctx context.Context, o *Order, items []OrderItem) error
	Get(ctx context.Context, id int64) (Order, error)
	GetByNo(ctx context.Context, orderNo string) (Order, error)
	Items(ctx context.Context, orderID int64) ([]OrderItem, error)
	ListByUser(ctx context.Context, userID int64) ([]Order, error)
	List(ctx context.Context, offset, limit int) ([]Order, int64, error)
	// PendingBefore lists PENDING_PAYMENT orders created before cutoff.
	PendingBefore(ctx context.Context, cutoff time.Time) ([]Order, error)
	// UpdateStatus moves the order from -> to only if it is still in from,
	// stamping the timestamp that belongs to to. Otherwise ErrInvalidTransition.
	UpdateStatus(ctx context.Context, id int64, from, to Status, at time.Time) (Order, error)
	Count(ctx context.Context) (int64, error)
	Revenue(ctx context.Context) (decimal.Decimal, error)
}

// EventPublisher emits lifecycle events. It must not block the caller.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, o Order)
}

// Cache speeds up status reads and remembers idempotency keys. The
// repository stays the source of truth.
type Cache interface {
	Status(ctx context.Context, orderID int64) (Status, bool)
	SetStatus(ctx context.Context, orderID int64, s Status)
	OrderForKey(ctx context.Context, key string) (int64, bool)
	RememberKey(ctx context.Context, key string, orderID int64)
}
