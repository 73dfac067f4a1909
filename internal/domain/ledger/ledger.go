package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// GenesisHash is the prev_hash of the first entry in every tenant's chain.
const GenesisHash = "genesis"

type Action string

const (
	ActionIn     Action = "IN"
	ActionOut    Action = "OUT"
	ActionAdjust Action = "ADJUST"
)

// Source names the business document that caused the movement,
// e.g. {Kind: "grn", ID: "GRN-000042"}.
type Source struct {
	Kind string `bson:"kind" json:"kind"`
	ID   string `bson:"id" json:"id"`
}

// Entry is one hash-chained stock movement. Entries are strictly append-only;
// adjustments are new entries, never edits.
type Entry struct {
	ID         uuid.UUID  `bson:"_id" json:"id"`
	DisplayID  string     `bson:"display_id" json:"display_id"`
	VenueID    uuid.UUID  `bson:"venue_id" json:"venue_id"`
	ItemID     uuid.UUID  `bson:"item_id" json:"item_id"`
	Action     Action     `bson:"action" json:"action"`
	Quantity   float64    `bson:"quantity" json:"quantity"`
	LotNumber  string     `bson:"lot_number,omitempty" json:"lot_number,omitempty"`
	ExpiryDate *time.Time `bson:"expiry_date,omitempty" json:"expiry_date,omitempty"`
	Reason     string     `bson:"reason,omitempty" json:"reason,omitempty"`
	Source     Source     `bson:"source" json:"source"`
	PrevHash   string     `bson:"prev_hash" json:"prev_hash"`
	EntryHash  string     `bson:"entry_hash" json:"entry_hash"`
	CreatedBy  string     `bson:"created_by" json:"created_by"`
	CreatedAt  time.Time  `bson:"created_at" json:"created_at"`
}

// chainPayload is the canonical serialization the hash covers. Field order is
// the sorted key order; quantity is rendered with the shortest round-trip
// representation so the bytes are stable across encoders.
type chainPayload struct {
	Action   string `json:"action"`
	ItemID   string `json:"item_id"`
	Quantity string `json:"quantity"`
	Source   string `json:"source"`
}

// ComputeHash returns hex(SHA256(canonicalJSON(payload) || prevHash)).
func ComputeHash(prevHash string, action Action, itemID uuid.UUID, quantity float64, source Source) string {
	payload := chainPayload{
		Action:   string(action),
		ItemID:   itemID.String(),
		Quantity: strconv.FormatFloat(quantity, 'f', -1, 64),
		Source:   source.Kind + ":" + source.ID,
	}
	canonical, _ := json.Marshal(payload)

	h := sha256.New()
	h.Write(canonical)
	h.Write([]byte(prevHash))
	return hex.EncodeToString(h.Sum(nil))
}

// Chain computes the entry hash for e given the prior hash and stamps both.
func (e *Entry) Chain(prevHash string) {
	e.PrevHash = prevHash
	e.EntryHash = ComputeHash(prevHash, e.Action, e.ItemID, e.Quantity, e.Source)
}

// Balance replays entries (oldest first) into a running total.
// IN adds, OUT subtracts, ADJUST sets the running total to its quantity.
func Balance(entries []*Entry) float64 {
	var total float64
	for _, e := range entries {
		switch e.Action {
		case ActionIn:
			total += e.Quantity
		case ActionOut:
			total -= e.Quantity
		case ActionAdjust:
			total = e.Quantity
		}
	}
	return total
}

// Verify recomputes every hash in order and returns the first entry whose
// stored hash does not match, or nil when the chain is intact.
func Verify(entries []*Entry) *Entry {
	prev := GenesisHash
	for _, e := range entries {
		if e.PrevHash != prev {
			return e
		}
		if ComputeHash(prev, e.Action, e.ItemID, e.Quantity, e.Source) != e.EntryHash {
			return e
		}
		prev = e.EntryHash
	}
	return nil
}
