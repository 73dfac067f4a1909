package idempotency

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("idempotency: record not found")

// Record caches the response of a completed mutating request. Exactly one
// record exists per (key, path); lookups honor the TTL.
type Record struct {
	Key           string    `bson:"_id" json:"key"`
	Method        string    `bson:"method" json:"method"`
	Path          string    `bson:"path" json:"path"`
	StatusCode    int       `bson:"status_code" json:"status_code"`
	ResponseBody  []byte    `bson:"response_body" json:"response_body"`
	DeviceID      string    `bson:"device_id,omitempty" json:"device_id,omitempty"`
	OfflineReplay bool      `bson:"offline_replay" json:"offline_replay"`
	CreatedAt     time.Time `bson:"created_at" json:"created_at"`
	ExpiresAt     time.Time `bson:"expires_at" json:"expires_at"`
}

func (r *Record) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

type Repository interface {
	Get(ctx context.Context, key string) (*Record, error)
	Put(ctx context.Context, r *Record) error
	// DeleteExpired removes records whose expires_at is before now and
	// returns how many were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
