package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/tablekit/backhouse/internal/domain/audit"
	"github.com/tablekit/backhouse/internal/domain/fault"
	domain "github.com/tablekit/backhouse/internal/domain/ledger"
	domoutbox "github.com/tablekit/backhouse/internal/domain/outbox"
	"github.com/tablekit/backhouse/internal/infrastructure/id"
	"github.com/tablekit/backhouse/internal/observability"
	"github.com/tablekit/backhouse/internal/observability/logctx"
)

// appendAttempts bounds the optimistic retry on a moved chain tail.
const appendAttempts = 3

// Service appends to the per-tenant hash-chained stock ledger and maintains
// the on-hand projection next to it.
type Service struct {
	entries           domain.Repository
	stock             domain.StockRepository
	gen               *id.Generator
	publisher         domoutbox.Publisher
	auditor           audit.Recorder
	lowStockThreshold float64
	now               func() time.Time
	log               observability.Logger
	tel               observability.Telemetry
}

func NewService(
	entries domain.Repository,
	stock domain.StockRepository,
	gen *id.Generator,
	publisher domoutbox.Publisher,
	auditor audit.Recorder,
	lowStockThreshold float64,
	logger observability.Logger,
	tel observability.Telemetry,
) *Service {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if tel == nil {
		tel = observability.NopTelemetry()
	}
	return &Service{
		entries:           entries,
		stock:             stock,
		gen:               gen,
		publisher:         publisher,
		auditor:           auditor,
		lowStockThreshold: lowStockThreshold,
		now:               time.Now,
		log:               logger.With(observability.F("component", "inventory_service")),
		tel:               tel,
	}
}

// WithNow overrides the clock. Tests only.
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}

type AppendInput struct {
	VenueID    uuid.UUID
	ItemID     uuid.UUID
	Action     domain.Action
	Quantity   float64
	LotNumber  string
	ExpiryDate *time.Time
	Reason     string
	Source     domain.Source
	Actor      string
}

func (in AppendInput) validate() error {
	switch in.Action {
	case domain.ActionIn, domain.ActionOut, domain.ActionAdjust:
	default:
		return fault.Newf(fault.CodeValidation, "unknown ledger action %q", in.Action)
	}
	if in.Quantity < 0 {
		return fault.New(fault.CodeValidation, "quantity must not be negative")
	}
	if in.ItemID == uuid.Nil {
		return fault.New(fault.CodeValidation, "item_id is required")
	}
	return nil
}

// Append writes one movement to the tenant chain. The tail is read, the new
// entry is hashed against it, and the insert is conditioned on the tail being
// unchanged; a lost race re-reads and re-hashes, up to appendAttempts times.
func (s *Service) Append(ctx context.Context, in AppendInput) (*domain.Entry, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	displayID, err := s.gen.NextDisplayID(ctx, in.VenueID, id.KindLedger)
	if err != nil {
		return nil, fault.Wrap(fault.CodeInternal, "allocate ledger display id", err)
	}

	now := s.now()
	e := &domain.Entry{
		ID:         s.gen.NewID(),
		DisplayID:  displayID,
		VenueID:    in.VenueID,
		ItemID:     in.ItemID,
		Action:     in.Action,
		Quantity:   in.Quantity,
		LotNumber:  in.LotNumber,
		ExpiryDate: in.ExpiryDate,
		Reason:     in.Reason,
		Source:     in.Source,
		CreatedBy:  in.Actor,
		CreatedAt:  now.UTC(),
	}

	var appended bool
	for attempt := 0; attempt < appendAttempts; attempt++ {
		tailHash := domain.GenesisHash
		tail, err := s.entries.Tail(ctx, in.VenueID)
		switch {
		case err == nil:
			tailHash = tail.EntryHash
		case errors.Is(err, domain.ErrNotFound):
		default:
			return nil, fault.Wrap(fault.CodeInternal, "read chain tail", err)
		}

		e.Chain(tailHash)
		err = s.entries.AppendCAS(ctx, e, tailHash)
		if err == nil {
			appended = true
			break
		}
		if errors.Is(err, domain.ErrChainConflict) {
			s.tel.Counter("ledger_append_conflicts_total").Add(1)
			continue
		}
		return nil, fault.Wrap(fault.CodeInternal, "append ledger entry", err)
	}
	if !appended {
		return nil, fault.New(fault.CodeChainConflict, "ledger chain contended, retry").
			WithDetail("attempts", appendAttempts)
	}

	onHand, err := s.stock.Apply(ctx, in.VenueID, in.ItemID, in.Action, in.Quantity, now)
	if err != nil {
		return nil, fault.Wrap(fault.CodeInternal, "apply stock projection", err)
	}

	if err := s.publisher.Publish(ctx, domain.TopicMovementCreated, e.ID.String(), domain.MovementCreatedEvent{
		VenueID:    e.VenueID,
		EntryID:    e.ID,
		ItemID:     e.ItemID,
		Action:     e.Action,
		Quantity:   e.Quantity,
		OccurredAt: now.UTC(),
	}); err != nil {
		return nil, fault.Wrap(fault.CodeInternal, "enqueue movement event", err)
	}

	if s.lowStockThreshold > 0 && onHand <= s.lowStockThreshold {
		if err := s.publisher.Publish(ctx, domain.TopicLowStock, e.ItemID.String(), domain.LowStockEvent{
			VenueID:    e.VenueID,
			ItemID:     e.ItemID,
			OnHand:     onHand,
			Threshold:  s.lowStockThreshold,
			OccurredAt: now.UTC(),
		}); err != nil {
			logctx.FromOr(ctx, s.log).Warn("low_stock_event_failed", observability.F("error", err))
		}
	}

	s.auditor.Record(ctx, audit.Entry{
		VenueID:    e.VenueID,
		Actor:      in.Actor,
		Action:     "ledger.append",
		EntityKind: "ledger_entry",
		EntityID:   e.ID.String(),
		Detail:     map[string]any{"action": e.Action, "quantity": e.Quantity},
	})

	logctx.FromOr(ctx, s.log).Info("ledger_entry_appended",
		observability.F("entry_id", e.ID.String()),
		observability.F("item_id", e.ItemID.String()),
		observability.F("action", string(e.Action)),
		observability.F("on_hand", onHand),
	)
	return e, nil
}

// Balance replays the item's movements into its current level.
func (s *Service) Balance(ctx context.Context, venueID, itemID uuid.UUID) (float64, error) {
	entries, err := s.entries.ListByItem(ctx, venueID, itemID)
	if err != nil {
		return 0, fault.Wrap(fault.CodeInternal, "list ledger entries", err)
	}
	return domain.Balance(entries), nil
}

func (s *Service) ListByItem(ctx context.Context, venueID, itemID uuid.UUID) ([]*domain.Entry, error) {
	entries, err := s.entries.ListByItem(ctx, venueID, itemID)
	if err != nil {
		return nil, fault.Wrap(fault.CodeInternal, "list ledger entries", err)
	}
	return entries, nil
}

// VerifyChain walks the tenant chain and returns the first corrupted entry,
// or nil when the chain verifies end to end.
func (s *Service) VerifyChain(ctx context.Context, venueID uuid.UUID) (*domain.Entry, error) {
	entries, err := s.entries.ListByVenue(ctx, venueID)
	if err != nil {
		return nil, fault.Wrap(fault.CodeInternal, "list ledger entries", err)
	}
	bad := domain.Verify(entries)
	if bad != nil {
		s.log.Error("ledger_chain_broken",
			observability.F("venue_id", venueID.String()),
			observability.F("entry_id", bad.ID.String()),
		)
	}
	return bad, nil
}

// OnHand reads the maintained projection without replaying the chain.
func (s *Service) OnHand(ctx context.Context, venueID, itemID uuid.UUID) (*domain.StockLevel, error) {
	level, err := s.stock.Get(ctx, venueID, itemID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return &domain.StockLevel{VenueID: venueID, ItemID: itemID}, nil
		}
		return nil, fault.Wrap(fault.CodeInternal, "read stock level", err)
	}
	return level, nil
}
