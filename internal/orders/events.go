package orders

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	kafkax "github.com/ariefcatur/go-order-ledger/internal/kafka"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	EventOrderCreated       = "OrderCreated"
	EventOrderPaid          = "OrderPaid"
	EventOrderShipped       = "OrderShipped"
	EventOrderReceived      = "OrderReceived"
	EventOrderCompleted     = "OrderCompleted"
	EventOrderCancelled     = "OrderCancelled"
	EventOrderStatusChanged = "OrderStatusChanged"
)

func eventFor(to Status) string {
	switch to {
	case StatusPaid:
		return EventOrderPaid
	case StatusShipped:
		return EventOrderShipped
	case StatusReceived:
		return EventOrderReceived
	case StatusCompleted:
		return EventOrderCompleted
	case StatusCancelled:
		return EventOrderCancelled
	default:
		return EventOrderStatusChanged
	}
}

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // one of the Event* consts
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"` // e.g., "order-service"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

type OrderEventPayload struct {
	OrderID   int64           `json:"order_id"`
	OrderNo   string          `json:"order_no"`
	UserID    int64           `json:"user_id"`
	Status    Status          `json:"status"`
	PayAmount decimal.Decimal `json:"pay_amount"`
}

// KafkaPublisher hands lifecycle events to the async producer. A full or
// closed producer is logged; the order operation has already committed.
type KafkaPublisher struct {
	Producer *kafkax.Producer
	Source   string
	Log      *zap.Logger
}

func (p *KafkaPublisher) Publish(ctx context.Context, eventType string, o Order) {
	env := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      p.Source,
		CorrelationID: strconv.FormatInt(o.ID, 10),
		Payload: kafkax.MustMarshal(OrderEventPayload{
			OrderID:   o.ID,
			OrderNo:   o.OrderNo,
			UserID:    o.UserID,
			Status:    o.Status,
			PayAmount: o.PayAmount,
		}),
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		env.TraceID = sc.TraceID().String()
	}
	headers := append([]kafkago.Header{
		{Key: "x-event-type", Value: []byte(eventType)},
		{Key: "x-event-version", Value: []byte("1")},
	}, kafkax.TraceHeaders(ctx)...)
	err := p.Producer.PublishTo(TopicFor(eventType), PartitionKey(o.ID), kafkax.MustMarshal(env), headers...)
	if err != nil && p.Log != nil {
		p.Log.Warn("order event dropped", zap.String("event", eventType), zap.Int64("order_id", o.ID), zap.Error(err))
	}
}
