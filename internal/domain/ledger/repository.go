package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("ledger: entry not found")
	// ErrChainConflict reports that the observed tail moved between read and
	// insert. Appends retry on it.
	ErrChainConflict = errors.New("ledger: chain tail moved")
)

type Repository interface {
	// AppendCAS inserts e only if the tenant chain tail still has hash
	// expectedTail ("genesis" for an empty chain). Returns ErrChainConflict
	// when another append won the race.
	AppendCAS(ctx context.Context, e *Entry, expectedTail string) error
	Tail(ctx context.Context, venueID uuid.UUID) (*Entry, error)
	ListByVenue(ctx context.Context, venueID uuid.UUID) ([]*Entry, error)
	ListByItem(ctx context.Context, venueID, itemID uuid.UUID) ([]*Entry, error)
}

// StockLevel is the on-hand projection maintained alongside the chain.
type StockLevel struct {
	VenueID   uuid.UUID `bson:"venue_id" json:"venue_id"`
	ItemID    uuid.UUID `bson:"item_id" json:"item_id"`
	OnHand    float64   `bson:"on_hand" json:"on_hand"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

type StockRepository interface {
	// Apply folds one movement into the on-hand projection atomically and
	// returns the new level.
	Apply(ctx context.Context, venueID, itemID uuid.UUID, action Action, quantity float64, at time.Time) (float64, error)
	Get(ctx context.Context, venueID, itemID uuid.UUID) (*StockLevel, error)
}
