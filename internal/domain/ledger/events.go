package ledger

import (
	"time"

	"github.com/google/uuid"
)

const (
	TopicMovementCreated = "inventory.ledger.movement.created"
	TopicLowStock        = "inventory.low_stock"
	// TopicPOSubmitted is emitted by the procurement edge; the core only owns
	// the topic name so subscribers have one place to import it from.
	TopicPOSubmitted = "inventory.po.submitted"
)

type MovementCreatedEvent struct {
	VenueID    uuid.UUID `json:"venue_id"`
	EntryID    uuid.UUID `json:"entry_id"`
	ItemID     uuid.UUID `json:"item_id"`
	Action     Action    `json:"action"`
	Quantity   float64   `json:"quantity"`
	OccurredAt time.Time `json:"occurred_at"`
}

type LowStockEvent struct {
	VenueID    uuid.UUID `json:"venue_id"`
	ItemID     uuid.UUID `json:"item_id"`
	OnHand     float64   `json:"on_hand"`
	Threshold  float64   `json:"threshold"`
	OccurredAt time.Time `json:"occurred_at"`
}
