package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	domain "github.com/tablekit/backhouse/internal/domain/ledger"
)

type LedgerRepository struct {
	mu sync.Mutex
	// chains holds entries per tenant, append order preserved.
	chains map[uuid.UUID][]*domain.Entry
}

func NewLedgerRepository() *LedgerRepository {
	return &LedgerRepository{chains: make(map[uuid.UUID][]*domain.Entry)}
}

func (r *LedgerRepository) AppendCAS(ctx context.Context, e *domain.Entry, expectedTail string) error {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	chain := r.chains[e.VenueID]
	tail := domain.GenesisHash
	if len(chain) > 0 {
		tail = chain[len(chain)-1].EntryHash
	}
	if tail != expectedTail {
		return domain.ErrChainConflict
	}
	clone := *e
	r.chains[e.VenueID] = append(chain, &clone)
	return nil
}

func (r *LedgerRepository) Tail(ctx context.Context, venueID uuid.UUID) (*domain.Entry, error) {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	chain := r.chains[venueID]
	if len(chain) == 0 {
		return nil, domain.ErrNotFound
	}
	clone := *chain[len(chain)-1]
	return &clone, nil
}

func (r *LedgerRepository) ListByVenue(ctx context.Context, venueID uuid.UUID) ([]*domain.Entry, error) {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	chain := r.chains[venueID]
	out := make([]*domain.Entry, 0, len(chain))
	for _, e := range chain {
		clone := *e
		out = append(out, &clone)
	}
	return out, nil
}

func (r *LedgerRepository) ListByItem(ctx context.Context, venueID, itemID uuid.UUID) ([]*domain.Entry, error) {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*domain.Entry
	for _, e := range r.chains[venueID] {
		if e.ItemID == itemID {
			clone := *e
			out = append(out, &clone)
		}
	}
	return out, nil
}

// Tamper overwrites a stored entry in place. Only tests use it, to simulate
// out-of-band mutation of the chain.
func (r *LedgerRepository) Tamper(venueID uuid.UUID, index int, mutate func(*domain.Entry)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	chain := r.chains[venueID]
	if index >= 0 && index < len(chain) {
		mutate(chain[index])
	}
}

type stockKey struct {
	venueID uuid.UUID
	itemID  uuid.UUID
}

type StockRepository struct {
	mu     sync.Mutex
	levels map[stockKey]*domain.StockLevel
}

func NewStockRepository() *StockRepository {
	return &StockRepository{levels: make(map[stockKey]*domain.StockLevel)}
}

func (r *StockRepository) Apply(ctx context.Context, venueID, itemID uuid.UUID, action domain.Action, quantity float64, at time.Time) (float64, error) {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	key := stockKey{venueID: venueID, itemID: itemID}
	level, ok := r.levels[key]
	if !ok {
		level = &domain.StockLevel{VenueID: venueID, ItemID: itemID}
		r.levels[key] = level
	}
	switch action {
	case domain.ActionIn:
		level.OnHand += quantity
	case domain.ActionOut:
		level.OnHand -= quantity
	case domain.ActionAdjust:
		level.OnHand = quantity
	}
	level.UpdatedAt = at.UTC()
	return level.OnHand, nil
}

func (r *StockRepository) Get(ctx context.Context, venueID, itemID uuid.UUID) (*domain.StockLevel, error) {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	level, ok := r.levels[stockKey{venueID: venueID, itemID: itemID}]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *level
	return &clone, nil
}
