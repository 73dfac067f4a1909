package outbox

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	domain "github.com/tablekit/backhouse/internal/domain/outbox"
	"github.com/tablekit/backhouse/internal/observability"
)

const (
	// WorkerName keys the consumer's heartbeat document.
	WorkerName = "outbox_consumer"
	// claimTTL bounds a PROCESSING claim; after it a crashed worker's events
	// return to circulation.
	claimTTL = 60 * time.Second
)

// Worker drains the outbox: claims batches, fans out to subscribers with
// per-subscriber error isolation, and applies retry / dead-letter policy.
type Worker struct {
	repo       domain.Repository
	heartbeats domain.HeartbeatRepository
	registry   *Registry
	batchSize  int
	tick       time.Duration
	now        func() time.Time
	log        observability.Logger
	tel        observability.Telemetry
}

func NewWorker(
	repo domain.Repository,
	heartbeats domain.HeartbeatRepository,
	registry *Registry,
	batchSize int,
	tick time.Duration,
	logger observability.Logger,
	tel observability.Telemetry,
) *Worker {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if tel == nil {
		tel = observability.NopTelemetry()
	}
	return &Worker{
		repo:       repo,
		heartbeats: heartbeats,
		registry:   registry,
		batchSize:  batchSize,
		tick:       tick,
		now:        time.Now,
		log:        logger.With(observability.F("component", WorkerName)),
		tel:        tel,
	}
}

// Run loops until ctx is cancelled. In-flight events finish their tick; an
// interrupted claim ages out via claimTTL and is retried after restart.
func (w *Worker) Run(ctx context.Context) {
	w.log.Info("outbox_consumer_started",
		observability.F("batch_size", w.batchSize),
		observability.F("tick_ms", w.tick.Milliseconds()),
	)
	ticker := time.NewTicker(w.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("outbox_consumer_stopped")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce executes a single consumer tick. Exported so tests can drive the
// worker without real time.
func (w *Worker) RunOnce(ctx context.Context) {
	now := w.now()
	if err := w.heartbeats.Beat(ctx, WorkerName, now); err != nil {
		w.log.Warn("heartbeat_failed", observability.F("error", err))
	}

	events, err := w.repo.ClaimBatch(ctx, w.batchSize, now, now.Add(-claimTTL))
	if err != nil {
		w.log.Error("outbox_claim_failed", observability.F("error", err))
		return
	}

	for _, e := range events {
		if ctx.Err() != nil {
			return
		}
		w.process(ctx, e)
	}

	if backlog, err := w.repo.CountPending(ctx); err == nil {
		w.tel.Gauge("outbox_backlog").Set(float64(backlog))
	}
}

func (w *Worker) process(ctx context.Context, e domain.Event) {
	log := w.log.With(
		observability.F("event_id", e.ID),
		observability.F("topic", e.Topic),
		observability.F("key", e.Key),
	)

	handlers := w.registry.HandlersFor(e.Topic)
	var firstErr error
	for i, h := range handlers {
		if err := w.invoke(ctx, h, e); err != nil {
			log.Warn("subscriber_failed",
				observability.F("subscriber", i),
				observability.F("error", err),
			)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if firstErr == nil {
		if err := w.repo.MarkCompleted(ctx, e.ID, w.now()); err != nil {
			log.Error("outbox_complete_failed", observability.F("error", err))
			return
		}
		w.tel.Counter("outbox_events_total").Add(1, observability.L("outcome", "completed"))
		log.Debug("event_completed")
		return
	}

	if e.RetryCount+1 >= e.MaxRetries {
		if err := w.repo.MoveToDeadLetter(ctx, e, firstErr.Error()); err != nil {
			log.Error("outbox_dead_letter_failed", observability.F("error", err))
			return
		}
		w.tel.Counter("outbox_events_total").Add(1, observability.L("outcome", "dead_letter"))
		log.Error("event_dead_lettered",
			observability.F("retries", e.RetryCount+1),
			observability.F("error", firstErr),
		)
		return
	}

	if err := w.repo.Requeue(ctx, e.ID, firstErr.Error()); err != nil {
		log.Error("outbox_requeue_failed", observability.F("error", err))
		return
	}
	w.tel.Counter("outbox_events_total").Add(1, observability.L("outcome", "retried"))
}

// invoke isolates one subscriber call: a panic becomes an error instead of
// taking down the consumer loop.
func (w *Worker) invoke(ctx context.Context, h domain.Handler, e domain.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("subscriber panic: %v", r)
			w.log.Error("subscriber_panic",
				observability.F("topic", e.Topic),
				observability.F("panic", r),
				observability.F("stack", string(debug.Stack())),
			)
		}
	}()
	return h(ctx, e)
}
