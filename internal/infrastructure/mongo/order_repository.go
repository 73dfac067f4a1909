package mongo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domain "github.com/tablekit/backhouse/internal/domain/order"
)

type OrderRepository struct {
	coll *mongo.Collection
}

func NewOrderRepository(s *Store) *OrderRepository {
	return &OrderRepository{coll: s.db.Collection(collOrders)}
}

func (r *OrderRepository) Insert(ctx context.Context, o *domain.Order) error {
	if _, err := r.coll.InsertOne(ctx, o); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrConflict
		}
		return fmt.Errorf("cannot insert order: %w", err)
	}
	return nil
}

func (r *OrderRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	var o domain.Order
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&o)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("cannot find order: %w", err)
	}
	return &o, nil
}

func (r *OrderRepository) Update(ctx context.Context, o *domain.Order) error {
	res, err := r.coll.ReplaceOne(ctx, bson.M{"_id": o.ID}, o)
	if err != nil {
		return fmt.Errorf("cannot update order: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *OrderRepository) ListByVenue(ctx context.Context, venueID uuid.UUID, limit int) ([]*domain.Order, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := r.coll.Find(ctx, bson.M{"venue_id": venueID}, opts)
	if err != nil {
		return nil, fmt.Errorf("cannot find orders: %w", err)
	}
	defer cursor.Close(ctx)

	var out []*domain.Order
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("cannot decode orders: %w", err)
	}
	return out, nil
}
