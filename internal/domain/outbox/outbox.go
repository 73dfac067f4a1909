package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var ErrNotFound = errors.New("outbox: event not found")

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// Event is the durable outbox document. Producers append it in the same logical
// unit as the business write; the consumer worker drains it.
type Event struct {
	ID                  string          `bson:"_id" json:"id"`
	Topic               string          `bson:"topic" json:"topic"`
	Key                 string          `bson:"key" json:"key"`
	Payload             json.RawMessage `bson:"payload" json:"payload"`
	Status              Status          `bson:"status" json:"status"`
	RetryCount          int             `bson:"retry_count" json:"retry_count"`
	MaxRetries          int             `bson:"max_retries" json:"max_retries"`
	LastError           string          `bson:"last_error,omitempty" json:"last_error,omitempty"`
	PublishedAt         time.Time       `bson:"published_at" json:"published_at"`
	ProcessingStartedAt *time.Time      `bson:"processing_started_at,omitempty" json:"processing_started_at,omitempty"`
	CompletedAt         *time.Time      `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
	ConsumedAt          *time.Time      `bson:"consumed_at,omitempty" json:"consumed_at,omitempty"`
}

// Handler processes a drained event. Handlers are required to be idempotent:
// the worker delivers at least once.
type Handler func(ctx context.Context, e Event) error

// Publisher appends an event for a topic. Implementations write to the outbox
// collection, never directly to subscribers.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload any) error
}

// Subscriber registers handlers for topics.
type Subscriber interface {
	Subscribe(topic string, h Handler)
}

// Repository is the outbox collection contract.
type Repository interface {
	Append(ctx context.Context, e *Event) error
	// ClaimBatch flips up to limit PENDING events to PROCESSING, FIFO by
	// published_at, using a conditional update so two workers never claim the
	// same event. PROCESSING claims older than staleBefore are reclaimed.
	ClaimBatch(ctx context.Context, limit int, now, staleBefore time.Time) ([]Event, error)
	MarkCompleted(ctx context.Context, id string, at time.Time) error
	// Requeue increments retry_count, records last_error, and resets to PENDING.
	Requeue(ctx context.Context, id, lastError string) error
	// MoveToDeadLetter copies the event into the DLQ collection and removes it
	// from the live outbox.
	MoveToDeadLetter(ctx context.Context, e Event, lastError string) error
	CountPending(ctx context.Context) (int64, error)
	CountDeadLetters(ctx context.Context) (int64, error)
	ListDeadLetters(ctx context.Context, limit int) ([]Event, error)
}

// HeartbeatRepository records worker liveness once per tick.
type HeartbeatRepository interface {
	Beat(ctx context.Context, name string, at time.Time) error
	Last(ctx context.Context, name string) (time.Time, error)
}
