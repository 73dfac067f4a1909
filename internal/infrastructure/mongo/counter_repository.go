package mongo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tablekit/backhouse/internal/infrastructure/id"
)

// CounterRepository reserves display-id counters with an atomic upsert+$inc,
// so the reservation is durable before the value leaves the database.
type CounterRepository struct {
	coll *mongo.Collection
}

func NewCounterRepository(s *Store) *CounterRepository {
	return &CounterRepository{coll: s.db.Collection(collCounters)}
}

type counterDoc struct {
	VenueID    uuid.UUID `bson:"venue_id"`
	EntityType string    `bson:"entity_type"`
	Seq        int64     `bson:"seq"`
}

func (r *CounterRepository) Next(ctx context.Context, venueID uuid.UUID, kind id.EntityKind) (int64, error) {
	filter := bson.M{"venue_id": venueID, "entity_type": string(kind)}
	update := bson.M{"$inc": bson.M{"seq": 1}}

	var doc counterDoc
	err := r.coll.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)).Decode(&doc)
	if err != nil {
		return 0, fmt.Errorf("cannot reserve %s counter: %w", kind, err)
	}
	return doc.Seq, nil
}
