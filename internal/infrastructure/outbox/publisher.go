package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	domain "github.com/tablekit/backhouse/internal/domain/outbox"
	"github.com/tablekit/backhouse/internal/observability"
	"github.com/tablekit/backhouse/internal/observability/logctx"
)

// Publisher appends events to the outbox collection. It never talks to
// subscribers directly; the worker drains the collection.
type Publisher struct {
	repo       domain.Repository
	maxRetries int
	now        func() time.Time
	log        observability.Logger
}

func NewPublisher(repo domain.Repository, maxRetries int, logger observability.Logger) *Publisher {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Publisher{
		repo:       repo,
		maxRetries: maxRetries,
		now:        time.Now,
		log:        logger.With(observability.F("component", "outbox_publisher")),
	}
}

func (p *Publisher) Publish(ctx context.Context, topic, key string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("outbox: marshal payload for %s: %w", topic, err)
	}

	e := &domain.Event{
		ID:          uuid.NewString(),
		Topic:       topic,
		Key:         key,
		Payload:     body,
		Status:      domain.StatusPending,
		MaxRetries:  p.maxRetries,
		PublishedAt: p.now().UTC(),
	}
	if err := p.repo.Append(ctx, e); err != nil {
		return fmt.Errorf("outbox: append %s: %w", topic, err)
	}

	logctx.FromOr(ctx, p.log).Debug("event_enqueued",
		observability.F("topic", topic),
		observability.F("key", key),
	)
	return nil
}
