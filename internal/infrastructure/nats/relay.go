package nats

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	domain "github.com/tablekit/backhouse/internal/domain/outbox"
	"github.com/tablekit/backhouse/internal/observability"
)

// Relay republishes drained outbox events to NATS, subject = topic, so
// out-of-process consumers can follow the event stream. The outbox collection
// stays the source of truth; the relay is a plain subscriber and inherits the
// worker's at-least-once delivery.
type Relay struct {
	conn *nats.Conn
	log  observability.Logger
}

func NewRelay(url string, logger observability.Logger) (*Relay, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("nats relay: connect: %w", err)
	}
	return &Relay{
		conn: conn,
		log:  logger.With(observability.F("component", "nats_relay")),
	}, nil
}

// Handle forwards one event. Registered for every topic of interest.
func (r *Relay) Handle(ctx context.Context, e domain.Event) error {
	_ = ctx
	if err := r.conn.Publish(e.Topic, e.Payload); err != nil {
		return fmt.Errorf("nats relay: publish %s: %w", e.Topic, err)
	}
	r.log.Debug("event_relayed", observability.F("topic", e.Topic))
	return nil
}

func (r *Relay) Close() error {
	r.conn.Close()
	return nil
}
