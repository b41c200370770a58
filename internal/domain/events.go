package domain

import "time"

// Domain event types published after a transaction commits.
const (
	EventOrderPlaced           = "order.placed"
	EventOrderStatusChanged    = "order.status_changed"
	EventPaymentStatusChanged  = "order.payment_status_changed"
	EventShipmentStatusChanged = "order.shipment_status_changed"
	EventInventoryChanged      = "inventory.changed"
)

// DomainEvent is the envelope delivered to the configured event sink.
type DomainEvent struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	AggregateID string         `json:"aggregateId"`
	UserID      string         `json:"userId,omitempty"`
	OccurredAt  time.Time      `json:"occurredAt"`
	Payload     map[string]any `json:"payload,omitempty"`
}
