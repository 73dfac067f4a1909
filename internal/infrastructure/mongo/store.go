package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tablekit/backhouse/internal/observability"
)

const (
	collOrders      = "orders"
	collTickets     = "tickets"
	collItemStates  = "ticket_item_states"
	collLedger      = "stock_ledger"
	collStockLevels = "stock_levels"
	collOutbox      = "outbox_events"
	collDeadLetters = "outbox_dead_letters"
	collHeartbeats  = "worker_heartbeats"
	collIdempotency = "idempotency_keys"
	collCounters    = "counters"
	collRouting     = "routing_rules"
	collAudit       = "audit_trail"
)

// Store owns the client and database handle shared by every repository.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	log    observability.Logger
}

func Connect(ctx context.Context, url, dbName string, logger observability.Logger) (*Store, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}

	opts := options.Client().ApplyURI(url).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("cannot ping MongoDB: %w", err)
	}

	s := &Store{
		client: client,
		db:     client.Database(dbName),
		log:    logger.With(observability.F("component", "mongo")),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, err
	}

	s.log.Info("mongo_connected", observability.F("database", dbName))
	return s, nil
}

func (s *Store) Close(ctx context.Context) error {
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("cannot disconnect from MongoDB: %w", err)
	}
	return nil
}

// ensureIndexes creates the index set every collection relies on. Creation is
// idempotent, so it runs on every boot.
func (s *Store) ensureIndexes(ctx context.Context) error {
	type spec struct {
		coll   string
		model  mongo.IndexModel
		reason string
	}
	specs := []spec{
		{collOrders, mongo.IndexModel{
			Keys: bson.D{{Key: "venue_id", Value: 1}, {Key: "created_at", Value: -1}},
		}, "tenant order feed"},
		{collTickets, mongo.IndexModel{
			Keys: bson.D{{Key: "venue_id", Value: 1}, {Key: "created_at", Value: -1}},
		}, "tenant ticket feed"},
		{collTickets, mongo.IndexModel{
			Keys: bson.D{{Key: "order_id", Value: 1}},
		}, "tickets by order"},
		{collTickets, mongo.IndexModel{
			Keys: bson.D{{Key: "venue_id", Value: 1}, {Key: "station_key", Value: 1}, {Key: "status", Value: 1}},
		}, "station board query"},
		{collItemStates, mongo.IndexModel{
			Keys: bson.D{{Key: "ticket_id", Value: 1}},
		}, "item shadows by ticket"},
		{collLedger, mongo.IndexModel{
			Keys: bson.D{{Key: "venue_id", Value: 1}, {Key: "item_id", Value: 1}, {Key: "created_at", Value: -1}},
		}, "item movement history"},
		{collLedger, mongo.IndexModel{
			Keys:    bson.D{{Key: "venue_id", Value: 1}, {Key: "prev_hash", Value: 1}},
			Options: options.Index().SetUnique(true),
		}, "chain linearity; at most one successor per tail"},
		{collStockLevels, mongo.IndexModel{
			Keys:    bson.D{{Key: "venue_id", Value: 1}, {Key: "item_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		}, "one level per item"},
		{collOutbox, mongo.IndexModel{
			Keys: bson.D{{Key: "status", Value: 1}, {Key: "published_at", Value: 1}},
			Options: options.Index().SetPartialFilterExpression(
				bson.D{{Key: "status", Value: "PENDING"}},
			),
		}, "consumer claim scan"},
		{collIdempotency, mongo.IndexModel{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		}, "server-side TTL expiry"},
		{collCounters, mongo.IndexModel{
			Keys:    bson.D{{Key: "venue_id", Value: 1}, {Key: "entity_type", Value: 1}},
			Options: options.Index().SetUnique(true),
		}, "one counter per series"},
		{collRouting, mongo.IndexModel{
			Keys: bson.D{{Key: "venue_id", Value: 1}, {Key: "priority", Value: 1}},
		}, "rule evaluation order"},
		{collAudit, mongo.IndexModel{
			Keys: bson.D{{Key: "venue_id", Value: 1}, {Key: "at", Value: -1}},
		}, "tenant audit feed"},
	}

	for _, sp := range specs {
		if _, err := s.db.Collection(sp.coll).Indexes().CreateOne(ctx, sp.model); err != nil {
			return fmt.Errorf("cannot create %s index (%s): %w", sp.coll, sp.reason, err)
		}
	}
	return nil
}
