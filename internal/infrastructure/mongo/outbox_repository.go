package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domain "github.com/tablekit/backhouse/internal/domain/outbox"
)

type OutboxRepository struct {
	events      *mongo.Collection
	deadLetters *mongo.Collection
}

func NewOutboxRepository(s *Store) *OutboxRepository {
	return &OutboxRepository{
		events:      s.db.Collection(collOutbox),
		deadLetters: s.db.Collection(collDeadLetters),
	}
}

func (r *OutboxRepository) Append(ctx context.Context, e *domain.Event) error {
	if _, err := r.events.InsertOne(ctx, e); err != nil {
		return fmt.Errorf("cannot append outbox event: %w", err)
	}
	return nil
}

// ClaimBatch claims one event at a time with FindOneAndUpdate so concurrent
// workers never hold the same event. Stale PROCESSING claims (a worker died
// mid-batch) are reclaimed alongside fresh PENDING ones.
func (r *OutboxRepository) ClaimBatch(ctx context.Context, limit int, now, staleBefore time.Time) ([]domain.Event, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"status": domain.StatusPending},
		bson.M{
			"status":                domain.StatusProcessing,
			"processing_started_at": bson.M{"$lt": staleBefore.UTC()},
		},
	}}
	update := bson.M{"$set": bson.M{
		"status":                domain.StatusProcessing,
		"processing_started_at": now.UTC(),
	}}
	opts := options.FindOneAndUpdate().
		SetSort(bson.D{{Key: "published_at", Value: 1}}).
		SetReturnDocument(options.After)

	var out []domain.Event
	for len(out) < limit {
		var e domain.Event
		err := r.events.FindOneAndUpdate(ctx, filter, update, opts).Decode(&e)
		if err != nil {
			if err == mongo.ErrNoDocuments {
				break
			}
			return nil, fmt.Errorf("cannot claim outbox event: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *OutboxRepository) MarkCompleted(ctx context.Context, id string, at time.Time) error {
	t := at.UTC()
	res, err := r.events.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"status":       domain.StatusCompleted,
		"completed_at": t,
		"consumed_at":  t,
	}})
	if err != nil {
		return fmt.Errorf("cannot complete outbox event: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *OutboxRepository) Requeue(ctx context.Context, id, lastError string) error {
	res, err := r.events.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{
			"status":                domain.StatusPending,
			"last_error":            lastError,
			"processing_started_at": nil,
		},
		"$inc": bson.M{"retry_count": 1},
	})
	if err != nil {
		return fmt.Errorf("cannot requeue outbox event: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *OutboxRepository) MoveToDeadLetter(ctx context.Context, e domain.Event, lastError string) error {
	e.Status = domain.StatusFailed
	e.RetryCount++
	e.LastError = lastError
	if _, err := r.deadLetters.InsertOne(ctx, e); err != nil && !mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("cannot insert dead letter: %w", err)
	}
	if _, err := r.events.DeleteOne(ctx, bson.M{"_id": e.ID}); err != nil {
		return fmt.Errorf("cannot remove dead-lettered event: %w", err)
	}
	return nil
}

func (r *OutboxRepository) CountPending(ctx context.Context) (int64, error) {
	n, err := r.events.CountDocuments(ctx, bson.M{"status": domain.StatusPending})
	if err != nil {
		return 0, fmt.Errorf("cannot count pending events: %w", err)
	}
	return n, nil
}

func (r *OutboxRepository) CountDeadLetters(ctx context.Context) (int64, error) {
	n, err := r.deadLetters.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("cannot count dead letters: %w", err)
	}
	return n, nil
}

func (r *OutboxRepository) ListDeadLetters(ctx context.Context, limit int) ([]domain.Event, error) {
	opts := options.Find().SetSort(bson.D{{Key: "published_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := r.deadLetters.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("cannot find dead letters: %w", err)
	}
	defer cursor.Close(ctx)

	var out []domain.Event
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("cannot decode dead letters: %w", err)
	}
	return out, nil
}

type HeartbeatRepository struct {
	coll *mongo.Collection
}

func NewHeartbeatRepository(s *Store) *HeartbeatRepository {
	return &HeartbeatRepository{coll: s.db.Collection(collHeartbeats)}
}

type heartbeatDoc struct {
	Name string    `bson:"_id"`
	At   time.Time `bson:"at"`
}

func (r *HeartbeatRepository) Beat(ctx context.Context, name string, at time.Time) error {
	_, err := r.coll.ReplaceOne(ctx, bson.M{"_id": name},
		heartbeatDoc{Name: name, At: at.UTC()},
		options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("cannot record heartbeat: %w", err)
	}
	return nil
}

func (r *HeartbeatRepository) Last(ctx context.Context, name string) (time.Time, error) {
	var doc heartbeatDoc
	err := r.coll.FindOne(ctx, bson.M{"_id": name}).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return time.Time{}, domain.ErrNotFound
		}
		return time.Time{}, fmt.Errorf("cannot read heartbeat: %w", err)
	}
	return doc.At, nil
}
