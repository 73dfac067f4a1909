package order

import (
	"time"

	"github.com/google/uuid"
)

// Stable topics owned by the order aggregate.
const (
	TopicOrderCreated     = "order.created"
	TopicOrderClosed      = "order.closed"
	TopicKDSStatusChanged = "order.kds_status_changed"
)

type CreatedEvent struct {
	VenueID    uuid.UUID `json:"venue_id"`
	OrderID    uuid.UUID `json:"order_id"`
	DisplayID  string    `json:"display_id"`
	Total      int64     `json:"total"`
	OccurredAt time.Time `json:"occurred_at"`
}

type ClosedEvent struct {
	VenueID    uuid.UUID `json:"venue_id"`
	OrderID    uuid.UUID `json:"order_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

type KDSStatusChangedEvent struct {
	VenueID    uuid.UUID `json:"venue_id"`
	OrderID    uuid.UUID `json:"order_id"`
	Previous   KDSStatus `json:"previous"`
	Current    KDSStatus `json:"current"`
	OccurredAt time.Time `json:"occurred_at"`
}
