package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domain "github.com/tablekit/backhouse/internal/domain/idempotency"
)

// IdempotencyRepository caches mutation responses. The collection carries a
// TTL index; Mongo's TTL sweep runs at most once a minute, so DeleteExpired
// still gets called by the janitor.
type IdempotencyRepository struct {
	coll *mongo.Collection
}

func NewIdempotencyRepository(s *Store) *IdempotencyRepository {
	return &IdempotencyRepository{coll: s.db.Collection(collIdempotency)}
}

func (r *IdempotencyRepository) Get(ctx context.Context, key string) (*domain.Record, error) {
	var rec domain.Record
	err := r.coll.FindOne(ctx, bson.M{"_id": key}).Decode(&rec)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("cannot find idempotency record: %w", err)
	}
	return &rec, nil
}

func (r *IdempotencyRepository) Put(ctx context.Context, rec *domain.Record) error {
	_, err := r.coll.ReplaceOne(ctx, bson.M{"_id": rec.Key}, rec,
		options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("cannot store idempotency record: %w", err)
	}
	return nil
}

func (r *IdempotencyRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.coll.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lt": now.UTC()}})
	if err != nil {
		return 0, fmt.Errorf("cannot delete expired idempotency records: %w", err)
	}
	return res.DeletedCount, nil
}
