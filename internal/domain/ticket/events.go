package ticket

import (
	"time"

	"github.com/google/uuid"
)

const (
	TopicTicketCreated       = "kds.ticket_created"
	TopicTicketStatusChanged = "kds.ticket_status_changed"
	TopicItemStatusChanged   = "kds.item_status_changed"
)

type CreatedEvent struct {
	VenueID    uuid.UUID `json:"venue_id"`
	TicketID   uuid.UUID `json:"ticket_id"`
	OrderID    uuid.UUID `json:"order_id"`
	StationKey string    `json:"station_key"`
	RoundNo    int       `json:"round_no"`
	Lines      []Line    `json:"items"`
	OccurredAt time.Time `json:"occurred_at"`
}

type StatusChangedEvent struct {
	VenueID    uuid.UUID `json:"venue_id"`
	TicketID   uuid.UUID `json:"ticket_id"`
	OrderID    uuid.UUID `json:"order_id"`
	StationKey string    `json:"station_key"`
	Previous   Status    `json:"previous"`
	Current    Status    `json:"current"`
	Actor      string    `json:"actor"`
	OccurredAt time.Time `json:"occurred_at"`
}

type ItemStatusChangedEvent struct {
	VenueID    uuid.UUID  `json:"venue_id"`
	TicketID   uuid.UUID  `json:"ticket_id"`
	OrderID    uuid.UUID  `json:"order_id"`
	ItemID     uuid.UUID  `json:"item_id"`
	Previous   ItemStatus `json:"previous"`
	Current    ItemStatus `json:"current"`
	OccurredAt time.Time  `json:"occurred_at"`
}
