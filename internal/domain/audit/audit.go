package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Entry is one append-only line of the audit trail: who did what to which
// entity when. Actor ids are opaque references; no PII is stored.
type Entry struct {
	ID         uuid.UUID      `bson:"_id" json:"id"`
	VenueID    uuid.UUID      `bson:"venue_id" json:"venue_id"`
	Actor      string         `bson:"actor" json:"actor"`
	Action     string         `bson:"action" json:"action"`
	EntityKind string         `bson:"entity_kind" json:"entity_kind"`
	EntityID   string         `bson:"entity_id" json:"entity_id"`
	Detail     map[string]any `bson:"detail,omitempty" json:"detail,omitempty"`
	At         time.Time      `bson:"at" json:"at"`
}

type Repository interface {
	Append(ctx context.Context, e Entry) error
	List(ctx context.Context, venueID uuid.UUID, limit int) ([]Entry, error)
}

// Recorder is the write-side port handed to services.
type Recorder interface {
	Record(ctx context.Context, e Entry)
}
