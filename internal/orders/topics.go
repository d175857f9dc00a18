package orders

import "strconv"

const (
	TopicOrderCreated       = "order.created"
	TopicOrderPaid          = "order.paid"
	TopicOrderShipped       = "order.shipped"
	TopicOrderReceived      = "order.received"
	TopicOrderCompleted     = "order.completed"
	TopicOrderCancelled     = "order.cancelled"
	TopicOrderStatusChanged = "order.status.changed"
)

var topics = map[string]string{
	EventOrderCreated:       TopicOrderCreated,
	EventOrderPaid:          TopicOrderPaid,
	EventOrderShipped:       TopicOrderShipped,
	EventOrderReceived:      TopicOrderReceived,
	EventOrderCompleted:     TopicOrderCompleted,
	EventOrderCancelled:     TopicOrderCancelled,
	EventOrderStatusChanged: TopicOrderStatusChanged,
}

func TopicFor(eventType string) string {
	if t, ok := topics[eventType]; ok {
		return t
	}
	return TopicOrderStatusChanged
}

// Partition key = order id, so all events of one order keep their order.
func PartitionKey(orderID int64) []byte { return []byte(strconv.FormatInt(orderID, 10)) }
