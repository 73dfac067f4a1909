package ticket

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("ticket: not found")

type Filter struct {
	VenueID    *uuid.UUID
	OrderID    *uuid.UUID
	StationKey *string
	Status     *Status
	Limit      int
}

type Repository interface {
	Insert(ctx context.Context, t *Ticket) error
	Get(ctx context.Context, id uuid.UUID) (*Ticket, error)
	// UpdateCAS persists t only if the stored status still equals expected,
	// serializing concurrent transition attempts on the status field.
	UpdateCAS(ctx context.Context, t *Ticket, expected Status) error
	Update(ctx context.Context, t *Ticket) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f Filter) ([]*Ticket, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*Ticket, error)
}

var ErrStaleStatus = errors.New("ticket: stale status")

type ItemStateRepository interface {
	Insert(ctx context.Context, s *ItemState) error
	Get(ctx context.Context, itemID uuid.UUID) (*ItemState, error)
	Update(ctx context.Context, s *ItemState) error
	ListByTicket(ctx context.Context, ticketID uuid.UUID) ([]*ItemState, error)
}
