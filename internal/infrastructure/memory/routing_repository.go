package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
	domain "github.com/tablekit/backhouse/internal/domain/routing"
)

type RoutingRepository struct {
	mu    sync.RWMutex
	rules []domain.Rule
}

func NewRoutingRepository() *RoutingRepository {
	return &RoutingRepository{}
}

func (r *RoutingRepository) Insert(ctx context.Context, rule domain.Rule) error {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	r.rules = append(r.rules, rule)
	return nil
}

func (r *RoutingRepository) ListByVenue(ctx context.Context, venueID uuid.UUID) ([]domain.Rule, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.Rule
	for _, rule := range r.rules {
		if rule.VenueID == venueID {
			out = append(out, rule)
		}
	}
	return out, nil
}
