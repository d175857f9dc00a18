package opqueue

import (
	"context"
	"strconv"

	kafkax "github.com/ariefcatur/go-order-ledger/internal/kafka"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const TopicOperations = "inventory.operations"

// LogSink writes each operation as a structured log line.
type LogSink struct{ Log *zap.Logger }

func (s LogSink) Deliver(_ context.Context, op Operation) error {
	fields := []zap.Field{
		zap.String("op_id", op.ID.String()),
		zap.Int64("product_id", op.ProductID),
		zap.String("type", op.Type),
		zap.Int("quantity", op.Quantity),
		zap.Time("at", op.At),
		zap.String("remark", op.Remark),
	}
	if op.OrderID != nil {
		fields = append(fields, zap.Int64("order_id", *op.OrderID))
	}
	s.Log.Info("inventory operation", fields...)
	return nil
}

// KafkaSink publishes operations as JSON keyed by product id, so one
// product's operations stay ordered within a partition.
type KafkaSink struct{ Producer *kafkax.Producer }

func (s KafkaSink) Deliver(_ context.Context, op Operation) error {
	return s.Producer.Publish(
		[]byte(strconv.FormatInt(op.ProductID, 10)),
		kafkax.MustMarshal(op),
		kafkago.Header{Key: "x-op-type", Value: []byte(op.Type)},
	)
}

// MultiSink delivers to every sink and reports the first failure.
type MultiSink []Sink

func (m MultiSink) Deliver(ctx context.Context, op Operation) error {
	var first error
	for _, s := range m {
		if err := s.Deliver(ctx, op); err != nil && first == nil {
			first = err
		}
	}
	return first
}
