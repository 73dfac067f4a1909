package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domain "github.com/tablekit/backhouse/internal/domain/ledger"
)

// LedgerRepository stores the hash chain. Linearity is enforced by the unique
// (venue_id, prev_hash) index: at most one entry may claim any given tail, so
// a lost append race surfaces as a duplicate key.
type LedgerRepository struct {
	coll *mongo.Collection
}

func NewLedgerRepository(s *Store) *LedgerRepository {
	return &LedgerRepository{coll: s.db.Collection(collLedger)}
}

func (r *LedgerRepository) AppendCAS(ctx context.Context, e *domain.Entry, expectedTail string) error {
	if e.PrevHash != expectedTail {
		return domain.ErrChainConflict
	}
	if _, err := r.coll.InsertOne(ctx, e); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrChainConflict
		}
		return fmt.Errorf("cannot insert ledger entry: %w", err)
	}
	return nil
}

func (r *LedgerRepository) Tail(ctx context.Context, venueID uuid.UUID) (*domain.Entry, error) {
	var e domain.Entry
	err := r.coll.FindOne(ctx, bson.M{"venue_id": venueID},
		options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})).Decode(&e)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("cannot read chain tail: %w", err)
	}
	return &e, nil
}

func (r *LedgerRepository) ListByVenue(ctx context.Context, venueID uuid.UUID) ([]*domain.Entry, error) {
	return r.list(ctx, bson.M{"venue_id": venueID})
}

func (r *LedgerRepository) ListByItem(ctx context.Context, venueID, itemID uuid.UUID) ([]*domain.Entry, error) {
	return r.list(ctx, bson.M{"venue_id": venueID, "item_id": itemID})
}

func (r *LedgerRepository) list(ctx context.Context, query bson.M) ([]*domain.Entry, error) {
	cursor, err := r.coll.Find(ctx, query,
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("cannot find ledger entries: %w", err)
	}
	defer cursor.Close(ctx)

	var out []*domain.Entry
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("cannot decode ledger entries: %w", err)
	}
	return out, nil
}

// StockRepository maintains the on-hand projection with single-document
// atomic updates.
type StockRepository struct {
	coll *mongo.Collection
}

func NewStockRepository(s *Store) *StockRepository {
	return &StockRepository{coll: s.db.Collection(collStockLevels)}
}

func (r *StockRepository) Apply(ctx context.Context, venueID, itemID uuid.UUID, action domain.Action, quantity float64, at time.Time) (float64, error) {
	filter := bson.M{"venue_id": venueID, "item_id": itemID}

	var update bson.M
	switch action {
	case domain.ActionIn:
		update = bson.M{
			"$inc": bson.M{"on_hand": quantity},
			"$set": bson.M{"updated_at": at.UTC()},
		}
	case domain.ActionOut:
		update = bson.M{
			"$inc": bson.M{"on_hand": -quantity},
			"$set": bson.M{"updated_at": at.UTC()},
		}
	case domain.ActionAdjust:
		update = bson.M{
			"$set": bson.M{"on_hand": quantity, "updated_at": at.UTC()},
		}
	default:
		return 0, fmt.Errorf("unknown ledger action %q", action)
	}

	var level domain.StockLevel
	err := r.coll.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)).Decode(&level)
	if err != nil {
		return 0, fmt.Errorf("cannot apply stock movement: %w", err)
	}
	return level.OnHand, nil
}

func (r *StockRepository) Get(ctx context.Context, venueID, itemID uuid.UUID) (*domain.StockLevel, error) {
	var level domain.StockLevel
	err := r.coll.FindOne(ctx, bson.M{"venue_id": venueID, "item_id": itemID}).Decode(&level)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("cannot read stock level: %w", err)
	}
	return &level, nil
}
