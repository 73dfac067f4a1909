package mongo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domain "github.com/tablekit/backhouse/internal/domain/ticket"
)

type TicketRepository struct {
	coll *mongo.Collection
}

func NewTicketRepository(s *Store) *TicketRepository {
	return &TicketRepository{coll: s.db.Collection(collTickets)}
}

func (r *TicketRepository) Insert(ctx context.Context, t *domain.Ticket) error {
	if _, err := r.coll.InsertOne(ctx, t); err != nil {
		return fmt.Errorf("cannot insert ticket: %w", err)
	}
	return nil
}

func (r *TicketRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Ticket, error) {
	var t domain.Ticket
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&t)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("cannot find ticket: %w", err)
	}
	return &t, nil
}

// UpdateCAS replaces the document only while the stored status equals
// expected; a zero match with an existing document means a concurrent writer
// changed the status first.
func (r *TicketRepository) UpdateCAS(ctx context.Context, t *domain.Ticket, expected domain.Status) error {
	res, err := r.coll.ReplaceOne(ctx, bson.M{"_id": t.ID, "status": expected}, t)
	if err != nil {
		return fmt.Errorf("cannot update ticket: %w", err)
	}
	if res.MatchedCount == 0 {
		if n, err := r.coll.CountDocuments(ctx, bson.M{"_id": t.ID}); err == nil && n > 0 {
			return domain.ErrStaleStatus
		}
		return domain.ErrNotFound
	}
	return nil
}

func (r *TicketRepository) Update(ctx context.Context, t *domain.Ticket) error {
	res, err := r.coll.ReplaceOne(ctx, bson.M{"_id": t.ID}, t)
	if err != nil {
		return fmt.Errorf("cannot update ticket: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *TicketRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("cannot delete ticket: %w", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *TicketRepository) List(ctx context.Context, f domain.Filter) ([]*domain.Ticket, error) {
	query := bson.M{}
	if f.VenueID != nil {
		query["venue_id"] = *f.VenueID
	}
	if f.OrderID != nil {
		query["order_id"] = *f.OrderID
	}
	if f.StationKey != nil {
		query["station_key"] = *f.StationKey
	}
	if f.Status != nil {
		query["status"] = *f.Status
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}

	cursor, err := r.coll.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("cannot find tickets: %w", err)
	}
	defer cursor.Close(ctx)

	var out []*domain.Ticket
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("cannot decode tickets: %w", err)
	}
	return out, nil
}

func (r *TicketRepository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*domain.Ticket, error) {
	cursor, err := r.coll.Find(ctx, bson.M{"order_id": orderID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("cannot find tickets: %w", err)
	}
	defer cursor.Close(ctx)

	var out []*domain.Ticket
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("cannot decode tickets: %w", err)
	}
	return out, nil
}

type ItemStateRepository struct {
	coll *mongo.Collection
}

func NewItemStateRepository(s *Store) *ItemStateRepository {
	return &ItemStateRepository{coll: s.db.Collection(collItemStates)}
}

func (r *ItemStateRepository) Insert(ctx context.Context, st *domain.ItemState) error {
	if _, err := r.coll.InsertOne(ctx, st); err != nil {
		return fmt.Errorf("cannot insert item state: %w", err)
	}
	return nil
}

func (r *ItemStateRepository) Get(ctx context.Context, itemID uuid.UUID) (*domain.ItemState, error) {
	var st domain.ItemState
	err := r.coll.FindOne(ctx, bson.M{"_id": itemID}).Decode(&st)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("cannot find item state: %w", err)
	}
	return &st, nil
}

func (r *ItemStateRepository) Update(ctx context.Context, st *domain.ItemState) error {
	res, err := r.coll.ReplaceOne(ctx, bson.M{"_id": st.ItemID}, st)
	if err != nil {
		return fmt.Errorf("cannot update item state: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *ItemStateRepository) ListByTicket(ctx context.Context, ticketID uuid.UUID) ([]*domain.ItemState, error) {
	cursor, err := r.coll.Find(ctx, bson.M{"ticket_id": ticketID})
	if err != nil {
		return nil, fmt.Errorf("cannot find item states: %w", err)
	}
	defer cursor.Close(ctx)

	var out []*domain.ItemState
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("cannot decode item states: %w", err)
	}
	return out, nil
}
