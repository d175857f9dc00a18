// Package opqueue buffers ledger mutation records between the inventory
// ledger and whatever ships them elsewhere.
package opqueue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const DefaultCapacity = 10000

var (
	ErrQueueFull   = errors.New("operation queue full")
	ErrQueueClosed = errors.New("operation queue closed")
)

// Operation mirrors one audit entry while it waits for a sink.
type Operation struct {
	ID        uuid.UUID `json:"id"`
	ProductID int64     `json:"product_id"`
	OrderID   *int64    `json:"order_id,omitempty"`
	Type      string    `json:"type"`
	Quantity  int       `json:"quantity"`
	At        time.Time `json:"at"`
	Remark    string    `json:"remark"`
}

// Sink receives drained operations.
type Sink interface {
	Deliver(ctx context.Context, op Operation) error
}

type Stats struct {
	Enqueued  uint64 `json:"enqueued"`
	Dropped   uint64 `json:"dropped"`
	Delivered uint64 `json:"delivered"`
	Failed    uint64 `json:"failed"`
	Len       int    `json:"len"`
	Cap       int    `json:"cap"`
}

// Queue is a capacity-bounded channel. Enqueue never blocks: once the buffer
// is full new records are rejected.
type Queue struct {
	ch  chan Operation
	log *zap.Logger

	mu     sync.RWMutex
	closed bool

	enqueued  atomic.Uint64
	dropped   atomic.Uint64
	delivered atomic.Uint64
	failed    atomic.Uint64
}

func New(capacity int, log *zap.Logger) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Queue{ch: make(chan Operation, capacity), log: log}
}

func (q *Queue) Enqueue(op Operation) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.dropped.Add(1)
		return ErrQueueClosed
	}
	if op.ID == uuid.Nil {
		op.ID = uuid.New()
	}
	if op.At.IsZero() {
		op.At = time.Now()
	}
	select {
	case q.ch <- op:
		q.enqueued.Add(1)
		return nil
	default:
		q.dropped.Add(1)
		return ErrQueueFull
	}
}

// Dequeue returns the oldest buffered operation without waiting.
func (q *Queue) Dequeue() (Operation, bool) {
	select {
	case op, ok := <-q.ch:
		return op, ok
	default:
		return Operation{}, false
	}
}

func (q *Queue) Len() int { return len(q.ch) }
func (q *Queue) Cap() int { return cap(q.ch) }

func (q *Queue) Stats() Stats {
	return Stats{
		Enqueued:  q.enqueued.Load(),
		Dropped:   q.dropped.Load(),
		Delivered: q.delivered.Load(),
		Failed:    q.failed.Load(),
		Len:       q.Len(),
		Cap:       q.Cap(),
	}
}

// Close stops intake. Buffered operations stay readable.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
}

// Run drains the queue into sink until ctx is done or the queue is closed
// and empty. On ctx done, whatever is still buffered is flushed first.
func (q *Queue) Run(ctx context.Context, sink Sink) error {
	for {
		select {
		case <-ctx.Done():
			q.flush(sink)
			return nil
		case op, ok := <-q.ch:
			if !ok {
				return nil
			}
			q.deliver(ctx, sink, op)
		}
	}
}

func (q *Queue) flush(sink Sink) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		op, ok := q.Dequeue()
		if !ok {
			return
		}
		q.deliver(ctx, sink, op)
	}
}

func (q *Queue) deliver(ctx context.Context, sink Sink, op Operation) {
	if err := sink.Deliver(ctx, op); err != nil {
		q.failed.Add(1)
		q.log.Warn("operation delivery failed",
			zap.Error(err),
			zap.String("op_id", op.ID.String()),
			zap.Int64("product_id", op.ProductID),
			zap.String("type", op.Type),
		)
		return
	}
	q.delivered.Add(1)
}
