package mongo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domain "github.com/tablekit/backhouse/internal/domain/routing"
)

type RoutingRepository struct {
	coll *mongo.Collection
}

func NewRoutingRepository(s *Store) *RoutingRepository {
	return &RoutingRepository{coll: s.db.Collection(collRouting)}
}

func (r *RoutingRepository) ListByVenue(ctx context.Context, venueID uuid.UUID) ([]domain.Rule, error) {
	cursor, err := r.coll.Find(ctx, bson.M{"venue_id": venueID},
		options.Find().SetSort(bson.D{{Key: "priority", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("cannot find routing rules: %w", err)
	}
	defer cursor.Close(ctx)

	var out []domain.Rule
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("cannot decode routing rules: %w", err)
	}
	return out, nil
}

func (r *RoutingRepository) Insert(ctx context.Context, rule domain.Rule) error {
	if _, err := r.coll.InsertOne(ctx, rule); err != nil {
		return fmt.Errorf("cannot insert routing rule: %w", err)
	}
	return nil
}
