package ticket

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusNew       Status = "NEW"
	StatusPreparing Status = "PREPARING"
	StatusReady     Status = "READY"
	StatusOnHold    Status = "ON_HOLD"
	StatusCompleted Status = "COMPLETED"
	StatusRecalled  Status = "RECALLED"
)

type ItemStatus string

const (
	ItemPending   ItemStatus = "PENDING"
	ItemPreparing ItemStatus = "PREPARING"
	ItemReady     ItemStatus = "READY"
	ItemCompleted ItemStatus = "COMPLETED"
)

// Line is the denormalized item snapshot carried on the ticket for display.
type Line struct {
	ItemID   uuid.UUID `bson:"item_id" json:"item_id"`
	Name     string    `bson:"name" json:"name"`
	Quantity int       `bson:"quantity" json:"quantity"`
	Seat     int       `bson:"seat" json:"seat"`
	Course   int       `bson:"course" json:"course"`
	Note     string    `bson:"note,omitempty" json:"note,omitempty"`
}

// Ticket is one station's unit of kitchen work for one send round of an order.
type Ticket struct {
	ID         uuid.UUID `bson:"_id" json:"id"`
	DisplayID  string    `bson:"display_id" json:"display_id"`
	OrderID    uuid.UUID `bson:"order_id" json:"order_id"`
	VenueID    uuid.UUID `bson:"venue_id" json:"venue_id"`
	StationKey string    `bson:"station_key" json:"station_key"`
	Lines      []Line    `bson:"lines" json:"lines"`
	RoundNo    int       `bson:"round_no" json:"round_no"`

	Status Status `bson:"status" json:"status"`
	// PrevStatus is the state a timely undo reverts to.
	PrevStatus Status `bson:"prev_status,omitempty" json:"prev_status,omitempty"`
	// ResumeTo is the state resume returns to after ON_HOLD.
	ResumeTo Status `bson:"resume_to,omitempty" json:"resume_to,omitempty"`

	ClaimLock bool       `bson:"claim_lock" json:"claim_lock"`
	ClaimedBy string     `bson:"claimed_by,omitempty" json:"claimed_by,omitempty"`
	ClaimedAt *time.Time `bson:"claimed_at,omitempty" json:"claimed_at,omitempty"`

	UndoUntil   *time.Time `bson:"undo_until,omitempty" json:"undo_until,omitempty"`
	PreparingAt *time.Time `bson:"preparing_at,omitempty" json:"preparing_at,omitempty"`
	ReadyAt     *time.Time `bson:"ready_at,omitempty" json:"ready_at,omitempty"`
	OnHoldAt    *time.Time `bson:"on_hold_at,omitempty" json:"on_hold_at,omitempty"`
	CompletedAt *time.Time `bson:"completed_at,omitempty" json:"completed_at,omitempty"`

	LastActionBy string    `bson:"last_action_by,omitempty" json:"last_action_by,omitempty"`
	LastActionAt time.Time `bson:"last_action_at" json:"last_action_at"`
	CreatedAt    time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at" json:"updated_at"`
}

// ItemState is the per-item shadow on the station. Same graph as the ticket
// minus hold.
type ItemState struct {
	ItemID     uuid.UUID  `bson:"_id" json:"item_id"`
	OrderID    uuid.UUID  `bson:"order_id" json:"order_id"`
	TicketID   uuid.UUID  `bson:"ticket_id" json:"ticket_id"`
	VenueID    uuid.UUID  `bson:"venue_id" json:"venue_id"`
	StationKey string     `bson:"station_key" json:"station_key"`
	Status     ItemStatus `bson:"status" json:"status"`

	PendingAt   time.Time  `bson:"pending_at" json:"pending_at"`
	PreparingAt *time.Time `bson:"preparing_at,omitempty" json:"preparing_at,omitempty"`
	ReadyAt     *time.Time `bson:"ready_at,omitempty" json:"ready_at,omitempty"`
	CompletedAt *time.Time `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
}

func (t *Ticket) Clone() *Ticket {
	if t == nil {
		return nil
	}
	clone := *t
	clone.Lines = append([]Line(nil), t.Lines...)
	clone.ClaimedAt = cloneTime(t.ClaimedAt)
	clone.UndoUntil = cloneTime(t.UndoUntil)
	clone.PreparingAt = cloneTime(t.PreparingAt)
	clone.ReadyAt = cloneTime(t.ReadyAt)
	clone.OnHoldAt = cloneTime(t.OnHoldAt)
	clone.CompletedAt = cloneTime(t.CompletedAt)
	return &clone
}

func (s *ItemState) Clone() *ItemState {
	if s == nil {
		return nil
	}
	clone := *s
	clone.PreparingAt = cloneTime(s.PreparingAt)
	clone.ReadyAt = cloneTime(s.ReadyAt)
	clone.CompletedAt = cloneTime(s.CompletedAt)
	return &clone
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
