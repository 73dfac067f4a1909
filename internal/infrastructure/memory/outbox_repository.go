package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	domain "github.com/tablekit/backhouse/internal/domain/outbox"
)

type OutboxRepository struct {
	mu   sync.Mutex
	live map[string]*domain.Event
	dead []domain.Event
}

func NewOutboxRepository() *OutboxRepository {
	return &OutboxRepository{live: make(map[string]*domain.Event)}
}

func (r *OutboxRepository) Append(ctx context.Context, e *domain.Event) error {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	clone := *e
	r.live[e.ID] = &clone
	return nil
}

func (r *OutboxRepository) ClaimBatch(ctx context.Context, limit int, now, staleBefore time.Time) ([]domain.Event, error) {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	var candidates []*domain.Event
	for _, e := range r.live {
		switch e.Status {
		case domain.StatusPending:
			candidates = append(candidates, e)
		case domain.StatusProcessing:
			// a claim that aged out returns to circulation
			if e.ProcessingStartedAt != nil && e.ProcessingStartedAt.Before(staleBefore) {
				candidates = append(candidates, e)
			}
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].PublishedAt.Before(candidates[j].PublishedAt)
	})
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	at := now.UTC()
	out := make([]domain.Event, 0, len(candidates))
	for _, e := range candidates {
		e.Status = domain.StatusProcessing
		e.ProcessingStartedAt = &at
		out = append(out, *e)
	}
	return out, nil
}

func (r *OutboxRepository) MarkCompleted(ctx context.Context, id string, at time.Time) error {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.live[id]
	if !ok {
		return domain.ErrNotFound
	}
	t := at.UTC()
	e.Status = domain.StatusCompleted
	e.CompletedAt = &t
	e.ConsumedAt = &t
	return nil
}

func (r *OutboxRepository) Requeue(ctx context.Context, id, lastError string) error {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.live[id]
	if !ok {
		return domain.ErrNotFound
	}
	e.Status = domain.StatusPending
	e.RetryCount++
	e.LastError = lastError
	e.ProcessingStartedAt = nil
	return nil
}

func (r *OutboxRepository) MoveToDeadLetter(ctx context.Context, e domain.Event, lastError string) error {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.live[e.ID]
	if ok {
		e = *stored
		delete(r.live, e.ID)
	}
	e.Status = domain.StatusFailed
	e.LastError = lastError
	r.dead = append(r.dead, e)
	return nil
}

func (r *OutboxRepository) CountPending(ctx context.Context) (int64, error) {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, e := range r.live {
		if e.Status == domain.StatusPending {
			n++
		}
	}
	return n, nil
}

func (r *OutboxRepository) CountDeadLetters(ctx context.Context) (int64, error) {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	return int64(len(r.dead)), nil
}

func (r *OutboxRepository) ListDeadLetters(ctx context.Context, limit int) ([]domain.Event, error) {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	out := append([]domain.Event(nil), r.dead...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type HeartbeatRepository struct {
	mu    sync.Mutex
	beats map[string]time.Time
}

func NewHeartbeatRepository() *HeartbeatRepository {
	return &HeartbeatRepository{beats: make(map[string]time.Time)}
}

func (r *HeartbeatRepository) Beat(ctx context.Context, name string, at time.Time) error {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	r.beats[name] = at.UTC()
	return nil
}

func (r *HeartbeatRepository) Last(ctx context.Context, name string) (time.Time, error) {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	at, ok := r.beats[name]
	if !ok {
		return time.Time{}, domain.ErrNotFound
	}
	return at, nil
}
