package dto

import "time"

// Order event types published on the messaging topic.
const (
	OrderCreated = "order.created"
	OrderUpdated = "order.updated"
	OrderDeleted = "order.deleted"
)

// OrderEvent is the envelope published whenever an order changes.
type OrderEvent struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	OrderID    int64          `json:"order_id"`
	OccurredAt time.Time      `json:"occurred_at"`
	Order      map[string]any `json:"order,omitempty"`
}

// OrderList wraps lookup results returned by transports.
type OrderList struct {
	Field  string           `json:"field"`
	Value  string           `json:"value"`
	Count  int              `json:"count"`
	Orders []map[string]any `json:"orders"`
}
