package auditlog

import (
	"context"
	"time"

	"github.com/google/uuid"
	domain "github.com/tablekit/backhouse/internal/domain/audit"
	"github.com/tablekit/backhouse/internal/observability"
	"github.com/tablekit/backhouse/internal/observability/logctx"
)

// Recorder appends audit entries. Audit writes never fail a business
// operation; failures are logged and dropped.
type Recorder struct {
	repo domain.Repository
	now  func() time.Time
	log  observability.Logger
}

func New(repo domain.Repository, logger observability.Logger) *Recorder {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Recorder{
		repo: repo,
		now:  time.Now,
		log:  logger.With(observability.F("component", "audit")),
	}
}

func (r *Recorder) Record(ctx context.Context, e domain.Entry) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.At.IsZero() {
		e.At = r.now().UTC()
	}
	if err := r.repo.Append(ctx, e); err != nil {
		logctx.FromOr(ctx, r.log).Warn("audit_append_failed",
			observability.F("action", e.Action),
			observability.F("error", err),
		)
	}
}
