package memory

import (
	"context"
	"sync"
	"time"

	domain "github.com/tablekit/backhouse/internal/domain/idempotency"
)

type IdempotencyRepository struct {
	mu      sync.RWMutex
	records map[string]*domain.Record
}

func NewIdempotencyRepository() *IdempotencyRepository {
	return &IdempotencyRepository{records: make(map[string]*domain.Record)}
}

func (r *IdempotencyRepository) Get(ctx context.Context, key string) (*domain.Record, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *rec
	return &clone, nil
}

func (r *IdempotencyRepository) Put(ctx context.Context, rec *domain.Record) error {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	clone := *rec
	r.records[rec.Key] = &clone
	return nil
}

func (r *IdempotencyRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for key, rec := range r.records {
		if rec.Expired(now) {
			delete(r.records, key)
			n++
		}
	}
	return n, nil
}
