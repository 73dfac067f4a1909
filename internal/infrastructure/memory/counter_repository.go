package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/tablekit/backhouse/internal/infrastructure/id"
)

type counterKey struct {
	venueID uuid.UUID
	kind    id.EntityKind
}

type CounterRepository struct {
	mu       sync.Mutex
	counters map[counterKey]int64
}

func NewCounterRepository() *CounterRepository {
	return &CounterRepository{counters: make(map[counterKey]int64)}
}

func (r *CounterRepository) Next(ctx context.Context, venueID uuid.UUID, kind id.EntityKind) (int64, error) {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	key := counterKey{venueID: venueID, kind: kind}
	r.counters[key]++
	return r.counters[key], nil
}
