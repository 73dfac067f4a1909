package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	domain "github.com/tablekit/backhouse/internal/domain/ticket"
)

type TicketRepository struct {
	mu      sync.RWMutex
	tickets map[uuid.UUID]*domain.Ticket
}

func NewTicketRepository() *TicketRepository {
	return &TicketRepository{tickets: make(map[uuid.UUID]*domain.Ticket)}
}

func (r *TicketRepository) Insert(ctx context.Context, t *domain.Ticket) error {
	_ = ctx
	if t == nil || t.ID == uuid.Nil {
		return fmt.Errorf("ticket repository: id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.tickets[t.ID] = t.Clone()
	return nil
}

func (r *TicketRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Ticket, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tickets[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return t.Clone(), nil
}

func (r *TicketRepository) UpdateCAS(ctx context.Context, t *domain.Ticket, expected domain.Status) error {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.tickets[t.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if stored.Status != expected {
		return domain.ErrStaleStatus
	}
	r.tickets[t.ID] = t.Clone()
	return nil
}

func (r *TicketRepository) Update(ctx context.Context, t *domain.Ticket) error {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tickets[t.ID]; !ok {
		return domain.ErrNotFound
	}
	r.tickets[t.ID] = t.Clone()
	return nil
}

func (r *TicketRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tickets[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.tickets, id)
	return nil
}

func (r *TicketRepository) List(ctx context.Context, f domain.Filter) ([]*domain.Ticket, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.Ticket
	for _, t := range r.tickets {
		if f.VenueID != nil && t.VenueID != *f.VenueID {
			continue
		}
		if f.OrderID != nil && t.OrderID != *f.OrderID {
			continue
		}
		if f.StationKey != nil && t.StationKey != *f.StationKey {
			continue
		}
		if f.Status != nil && t.Status != *f.Status {
			continue
		}
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *TicketRepository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*domain.Ticket, error) {
	return r.List(ctx, domain.Filter{OrderID: &orderID})
}

type ItemStateRepository struct {
	mu    sync.RWMutex
	items map[uuid.UUID]*domain.ItemState
}

func NewItemStateRepository() *ItemStateRepository {
	return &ItemStateRepository{items: make(map[uuid.UUID]*domain.ItemState)}
}

func (r *ItemStateRepository) Insert(ctx context.Context, s *domain.ItemState) error {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[s.ItemID] = s.Clone()
	return nil
}

func (r *ItemStateRepository) Get(ctx context.Context, itemID uuid.UUID) (*domain.ItemState, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.items[itemID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return s.Clone(), nil
}

func (r *ItemStateRepository) Update(ctx context.Context, s *domain.ItemState) error {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[s.ItemID]; !ok {
		return domain.ErrNotFound
	}
	r.items[s.ItemID] = s.Clone()
	return nil
}

func (r *ItemStateRepository) ListByTicket(ctx context.Context, ticketID uuid.UUID) ([]*domain.ItemState, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.ItemState
	for _, s := range r.items {
		if s.TicketID == ticketID {
			out = append(out, s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PendingAt.Before(out[j].PendingAt) })
	return out, nil
}
