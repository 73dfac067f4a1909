package id

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// EntityKind selects a display-id series.
type EntityKind string

const (
	KindOrder  EntityKind = "ORD"
	KindTicket EntityKind = "KDS"
	KindSKU    EntityKind = "SKU"
	KindLedger EntityKind = "SL"
)

// widths are the zero-pad widths per series.
var widths = map[EntityKind]int{
	KindOrder:  6,
	KindTicket: 6,
	KindSKU:    6,
	KindLedger: 9,
}

// CounterRepository reserves the next value of a per-(venue, entity) counter.
// Reservation must be durable before the value is handed out; a gap caused by
// a caller that never persists its entity is acceptable.
type CounterRepository interface {
	Next(ctx context.Context, venueID uuid.UUID, kind EntityKind) (int64, error)
}

// Generator mints opaque ids and human display ids.
type Generator struct {
	counters CounterRepository
}

func NewGenerator(counters CounterRepository) *Generator {
	return &Generator{counters: counters}
}

// NewID mints an opaque, universally unique id.
func (g *Generator) NewID() uuid.UUID { return uuid.New() }

// NextDisplayID allocates the next monotonic display id for a tenant,
// formatted {PREFIX}-{zero-padded counter}, e.g. ORD-000123.
func (g *Generator) NextDisplayID(ctx context.Context, venueID uuid.UUID, kind EntityKind) (string, error) {
	n, err := g.counters.Next(ctx, venueID, kind)
	if err != nil {
		return "", fmt.Errorf("numbering: reserve %s counter: %w", kind, err)
	}
	width, ok := widths[kind]
	if !ok {
		width = 6
	}
	return fmt.Sprintf("%s-%0*d", kind, width, n), nil
}
