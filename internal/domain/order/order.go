package order

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("order: not found")
	ErrConflict = errors.New("order: conflict")
)

type Status string

const (
	StatusOpen           Status = "OPEN"
	StatusSent           Status = "SENT"
	StatusPartiallyReady Status = "PARTIALLY_READY"
	StatusReadyToServe   Status = "READY_TO_SERVE"
	StatusClosed         Status = "CLOSED"
	StatusVoided         Status = "VOIDED"
)

// KDSStatus is the kitchen-side aggregate reflected back onto the order.
type KDSStatus string

const (
	KDSSentToKitchen  KDSStatus = "sent_to_kitchen"
	KDSInProgress     KDSStatus = "in_progress"
	KDSPartiallyReady KDSStatus = "partially_ready"
	KDSReadyToServe   KDSStatus = "ready_to_serve"
)

type ItemStatus string

const (
	ItemPending   ItemStatus = "PENDING"
	ItemSent      ItemStatus = "SENT"
	ItemPreparing ItemStatus = "PREPARING"
	ItemReady     ItemStatus = "READY"
	ItemServed    ItemStatus = "SERVED"
	ItemVoided    ItemStatus = "VOIDED"
)

type Modifier struct {
	GroupID    string `bson:"group_id" json:"group_id"`
	OptionID   string `bson:"option_id" json:"option_id"`
	PriceDelta int64  `bson:"price_delta" json:"price_delta"`
}

// Item is embedded in its order; prices are snapshots in integer minor units.
type Item struct {
	ID         uuid.UUID  `bson:"id" json:"id"`
	MenuItemID uuid.UUID  `bson:"menu_item_id" json:"menu_item_id"`
	Name       string     `bson:"name" json:"name"`
	UnitPrice  int64      `bson:"unit_price" json:"unit_price"`
	Quantity   int        `bson:"quantity" json:"quantity"`
	Seat       int        `bson:"seat" json:"seat"`
	Course     int        `bson:"course" json:"course"`
	Modifiers  []Modifier `bson:"modifiers,omitempty" json:"modifiers,omitempty"`
	Note       string     `bson:"note,omitempty" json:"note,omitempty"`
	Category   string     `bson:"category" json:"category"`
	Tags       []string   `bson:"tags,omitempty" json:"tags,omitempty"`
	Status     ItemStatus `bson:"status" json:"status"`
}

// LineTotal is the item's contribution to the subtotal. A voided item
// contributes zero even after rollup.
func (it Item) LineTotal() int64 {
	if it.Status == ItemVoided {
		return 0
	}
	total := it.UnitPrice
	for _, m := range it.Modifiers {
		total += m.PriceDelta
	}
	return total * int64(it.Quantity)
}

type Order struct {
	ID            uuid.UUID  `bson:"_id" json:"id"`
	DisplayID     string     `bson:"display_id" json:"display_id"`
	VenueID       uuid.UUID  `bson:"venue_id" json:"venue_id"`
	TableID       string     `bson:"table_id,omitempty" json:"table_id,omitempty"`
	ServerID      string     `bson:"server_id,omitempty" json:"server_id,omitempty"`
	Items         []Item     `bson:"items" json:"items"`
	Subtotal      int64      `bson:"subtotal" json:"subtotal"`
	Tax           int64      `bson:"tax" json:"tax"`
	Total         int64      `bson:"total" json:"total"`
	Status        Status     `bson:"status" json:"status"`
	KDSStatus     KDSStatus  `bson:"kds_status,omitempty" json:"kds_status,omitempty"`
	SendRoundSeq  int        `bson:"send_round_seq" json:"send_round_seq"`
	SendClientIDs []string   `bson:"send_client_ids,omitempty" json:"send_client_ids,omitempty"`
	// SendRounds maps a send fingerprint to the round it created, so a replayed
	// send can return that round's tickets.
	SendRounds map[string]int `bson:"send_rounds,omitempty" json:"send_rounds,omitempty"`
	CreatedAt  time.Time      `bson:"created_at" json:"created_at"`
	UpdatedAt  time.Time      `bson:"updated_at" json:"updated_at"`
	ClosedAt   *time.Time     `bson:"closed_at,omitempty" json:"closed_at,omitempty"`
}

var (
	ErrEmptyOrder      = errors.New("order: at least one item is required")
	ErrInvalidQuantity = errors.New("order: item quantity must be greater than zero")
	ErrTotalMismatch   = errors.New("order: total must equal subtotal plus tax")
	ErrOrderFrozen     = errors.New("order: closed orders cannot be mutated")
	ErrNothingToSend   = errors.New("order: no sendable items")
	ErrAlreadyTerminal = errors.New("order: already in a terminal state")
	ErrDeletionRefused = errors.New("order: orders are never deleted; void instead")
)

func New(id, venueID uuid.UUID, displayID, tableID, serverID string, items []Item, taxMinor int64, now time.Time) (*Order, error) {
	if len(items) == 0 {
		return nil, ErrEmptyOrder
	}
	for i := range items {
		if items[i].Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
		if items[i].ID == uuid.Nil {
			items[i].ID = uuid.New()
		}
		if items[i].Status == "" {
			items[i].Status = ItemPending
		}
	}

	o := &Order{
		ID:        id,
		DisplayID: displayID,
		VenueID:   venueID,
		TableID:   tableID,
		ServerID:  serverID,
		Items:     items,
		Tax:       taxMinor,
		Status:    StatusOpen,
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}
	o.Rollup()
	return o, nil
}

// Rollup recomputes the monetary totals from the item snapshots.
// Invariant: total = subtotal + tax exactly, in minor units.
func (o *Order) Rollup() {
	var subtotal int64
	for _, it := range o.Items {
		subtotal += it.LineTotal()
	}
	o.Subtotal = subtotal
	o.Total = subtotal + o.Tax
}

func (o *Order) IsTerminal() bool {
	return o.Status == StatusClosed || o.Status == StatusVoided
}

// SendableItems returns the items still waiting for their first dispatch.
func (o *Order) SendableItems() []Item {
	var out []Item
	for _, it := range o.Items {
		if it.Status == ItemPending {
			out = append(out, it)
		}
	}
	return out
}

// MarkSent fixes the send fingerprint and flips pending items to SENT. Once an
// item's status leaves PENDING for the first time its fingerprint stays recorded.
func (o *Order) MarkSent(sendClientID string, now time.Time) {
	for i := range o.Items {
		if o.Items[i].Status == ItemPending {
			o.Items[i].Status = ItemSent
		}
	}
	if sendClientID != "" && !o.HasSendClientID(sendClientID) {
		o.SendClientIDs = append(o.SendClientIDs, sendClientID)
	}
	o.SendRoundSeq++
	o.Status = StatusSent
	o.KDSStatus = KDSSentToKitchen
	o.touch(now)
}

func (o *Order) HasSendClientID(id string) bool {
	for _, existing := range o.SendClientIDs {
		if existing == id {
			return true
		}
	}
	return false
}

func (o *Order) Close(now time.Time) error {
	if o.IsTerminal() {
		return ErrAlreadyTerminal
	}
	t := now.UTC()
	o.Status = StatusClosed
	o.ClosedAt = &t
	o.touch(now)
	return nil
}

func (o *Order) Void(now time.Time) error {
	if o.IsTerminal() {
		return ErrAlreadyTerminal
	}
	o.Status = StatusVoided
	for i := range o.Items {
		o.Items[i].Status = ItemVoided
	}
	o.Rollup()
	o.touch(now)
	return nil
}

func (o *Order) touch(now time.Time) {
	o.UpdatedAt = now.UTC()
}

func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	clone.Items = append([]Item(nil), o.Items...)
	for i := range clone.Items {
		clone.Items[i].Modifiers = append([]Modifier(nil), o.Items[i].Modifiers...)
		clone.Items[i].Tags = append([]string(nil), o.Items[i].Tags...)
	}
	clone.SendClientIDs = append([]string(nil), o.SendClientIDs...)
	if o.SendRounds != nil {
		clone.SendRounds = make(map[string]int, len(o.SendRounds))
		for k, v := range o.SendRounds {
			clone.SendRounds[k] = v
		}
	}
	if o.ClosedAt != nil {
		t := *o.ClosedAt
		clone.ClosedAt = &t
	}
	return &clone
}
