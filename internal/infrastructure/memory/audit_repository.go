package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
	domain "github.com/tablekit/backhouse/internal/domain/audit"
)

type AuditRepository struct {
	mu      sync.RWMutex
	entries []domain.Entry
}

func NewAuditRepository() *AuditRepository {
	return &AuditRepository{}
}

func (r *AuditRepository) Append(ctx context.Context, e domain.Entry) error {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = append(r.entries, e)
	return nil
}

func (r *AuditRepository) List(ctx context.Context, venueID uuid.UUID, limit int) ([]domain.Entry, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.Entry
	for i := len(r.entries) - 1; i >= 0; i-- {
		if r.entries[i].VenueID == venueID {
			out = append(out, r.entries[i])
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}
