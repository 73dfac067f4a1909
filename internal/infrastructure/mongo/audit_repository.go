package mongo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domain "github.com/tablekit/backhouse/internal/domain/audit"
)

type AuditRepository struct {
	coll *mongo.Collection
}

func NewAuditRepository(s *Store) *AuditRepository {
	return &AuditRepository{coll: s.db.Collection(collAudit)}
}

func (r *AuditRepository) Append(ctx context.Context, e domain.Entry) error {
	if _, err := r.coll.InsertOne(ctx, e); err != nil {
		return fmt.Errorf("cannot append audit entry: %w", err)
	}
	return nil
}

func (r *AuditRepository) List(ctx context.Context, venueID uuid.UUID, limit int) ([]domain.Entry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := r.coll.Find(ctx, bson.M{"venue_id": venueID}, opts)
	if err != nil {
		return nil, fmt.Errorf("cannot find audit entries: %w", err)
	}
	defer cursor.Close(ctx)

	var out []domain.Entry
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("cannot decode audit entries: %w", err)
	}
	return out, nil
}
