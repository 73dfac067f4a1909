package janitor

import (
	"context"
	"time"

	domidem "github.com/tablekit/backhouse/internal/domain/idempotency"
	domoutbox "github.com/tablekit/backhouse/internal/domain/outbox"
	"github.com/tablekit/backhouse/internal/observability"
)

const WorkerName = "janitor"

// Janitor is the scheduled-task runner: it sweeps expired idempotency keys on
// an interval and heartbeats so the observability surface can see it alive.
type Janitor struct {
	keys       domidem.Repository
	heartbeats domoutbox.HeartbeatRepository
	interval   time.Duration
	now        func() time.Time
	log        observability.Logger
}

func New(keys domidem.Repository, heartbeats domoutbox.HeartbeatRepository, interval time.Duration, logger observability.Logger) *Janitor {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Janitor{
		keys:       keys,
		heartbeats: heartbeats,
		interval:   interval,
		now:        time.Now,
		log:        logger.With(observability.F("component", WorkerName)),
	}
}

func (j *Janitor) Run(ctx context.Context) {
	j.log.Info("janitor_started", observability.F("interval", j.interval.String()))
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.log.Info("janitor_stopped")
			return
		case <-ticker.C:
			j.RunOnce(ctx)
		}
	}
}

func (j *Janitor) RunOnce(ctx context.Context) {
	now := j.now()
	if err := j.heartbeats.Beat(ctx, WorkerName, now); err != nil {
		j.log.Warn("heartbeat_failed", observability.F("error", err))
	}

	removed, err := j.keys.DeleteExpired(ctx, now)
	if err != nil {
		j.log.Error("idempotency_sweep_failed", observability.F("error", err))
		return
	}
	if removed > 0 {
		j.log.Info("idempotency_keys_swept", observability.F("removed", removed))
	}
}
