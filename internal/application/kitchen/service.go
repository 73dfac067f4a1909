package kitchen

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/tablekit/backhouse/internal/domain/audit"
	"github.com/tablekit/backhouse/internal/domain/fault"
	domoutbox "github.com/tablekit/backhouse/internal/domain/outbox"
	domain "github.com/tablekit/backhouse/internal/domain/ticket"
	"github.com/tablekit/backhouse/internal/observability"
	"github.com/tablekit/backhouse/internal/observability/logctx"
)

// Service is the station-facing ticket workflow: bump, claim, hold, undo.
// Every status write goes through a conditional update keyed on the status the
// actor observed, so two expeditors racing on one ticket cannot both win.
type Service struct {
	tickets    domain.Repository
	itemStates domain.ItemStateRepository
	publisher  domoutbox.Publisher
	auditor    audit.Recorder
	undoWindow time.Duration
	now        func() time.Time
	log        observability.Logger
	tel        observability.Telemetry
}

func NewService(
	tickets domain.Repository,
	itemStates domain.ItemStateRepository,
	publisher domoutbox.Publisher,
	auditor audit.Recorder,
	undoWindow time.Duration,
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
		tickets:    tickets,
		itemStates: itemStates,
		publisher:  publisher,
		auditor:    auditor,
		undoWindow: undoWindow,
		now:        time.Now,
		log:        logger.With(observability.F("component", "kitchen_service")),
		tel:        tel,
	}
}

// WithNow overrides the clock. Tests only.
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) Get(ctx context.Context, ticketID uuid.UUID) (*domain.Ticket, error) {
	t, err := s.tickets.Get(ctx, ticketID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fault.New(fault.CodeNotFound, "ticket not found")
		}
		return nil, fault.Wrap(fault.CodeInternal, "load ticket", err)
	}
	return t, nil
}

func (s *Service) List(ctx context.Context, f domain.Filter) ([]*domain.Ticket, error) {
	out, err := s.tickets.List(ctx, f)
	if err != nil {
		return nil, fault.Wrap(fault.CodeInternal, "list tickets", err)
	}
	return out, nil
}

// Bump advances the ticket one step along the happy path. Completing a ticket
// is refused while any of its item shadows is still behind READY.
func (s *Service) Bump(ctx context.Context, ticketID uuid.UUID, actor string) (*domain.Ticket, error) {
	t, err := s.Get(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	if t.Status == domain.StatusReady {
		items, err := s.itemStates.ListByTicket(ctx, t.ID)
		if err != nil {
			return nil, fault.Wrap(fault.CodeInternal, "load item states", err)
		}
		if !domain.ReadyForCompletion(items) {
			return nil, fault.New(fault.CodeIllegalState, "ticket has items that are not ready").
				WithDetail("ticket_id", t.ID.String())
		}
	}

	previous := t.Status
	now := s.now()
	if err := t.Bump(actor, now, s.undoWindow); err != nil {
		return nil, err
	}
	if err := s.persistTransition(ctx, t, previous, actor, now); err != nil {
		return nil, err
	}
	s.syncItemShadows(ctx, t, now)

	s.tel.Counter("kds_ticket_transitions_total").Add(1,
		observability.L("from", string(previous)),
		observability.L("to", string(t.Status)),
	)
	return t, nil
}

// Hold parks the ticket; Resume returns it to where it was.
func (s *Service) Hold(ctx context.Context, ticketID uuid.UUID, actor string) (*domain.Ticket, error) {
	return s.transition(ctx, ticketID, actor, "ticket.hold", func(t *domain.Ticket, now time.Time) error {
		return t.Hold(actor, now, s.undoWindow)
	})
}

func (s *Service) Resume(ctx context.Context, ticketID uuid.UUID, actor string) (*domain.Ticket, error) {
	return s.transition(ctx, ticketID, actor, "ticket.resume", func(t *domain.Ticket, now time.Time) error {
		return t.Resume(actor, now, s.undoWindow)
	})
}

// Undo reverts the last transition inside the undo window. Non-owners need
// override authority.
func (s *Service) Undo(ctx context.Context, ticketID uuid.UUID, actor string, override bool) (*domain.Ticket, error) {
	return s.transition(ctx, ticketID, actor, "ticket.undo", func(t *domain.Ticket, now time.Time) error {
		return t.Undo(actor, override, now)
	})
}

func (s *Service) Claim(ctx context.Context, ticketID uuid.UUID, actor string) (*domain.Ticket, error) {
	t, err := s.Get(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := t.Claim(actor, now); err != nil {
		return nil, err
	}
	if err := s.tickets.Update(ctx, t); err != nil {
		return nil, fault.Wrap(fault.CodeInternal, "persist claim", err)
	}
	s.auditor.Record(ctx, audit.Entry{
		VenueID:    t.VenueID,
		Actor:      actor,
		Action:     "ticket.claim",
		EntityKind: "ticket",
		EntityID:   t.ID.String(),
	})
	return t, nil
}

func (s *Service) Release(ctx context.Context, ticketID uuid.UUID, actor string) (*domain.Ticket, error) {
	t, err := s.Get(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	t.Release(actor, s.now())
	if err := s.tickets.Update(ctx, t); err != nil {
		return nil, fault.Wrap(fault.CodeInternal, "persist release", err)
	}
	s.auditor.Record(ctx, audit.Entry{
		VenueID:    t.VenueID,
		Actor:      actor,
		Action:     "ticket.release",
		EntityKind: "ticket",
		EntityID:   t.ID.String(),
	})
	return t, nil
}

// BumpItem advances one item shadow and recomputes the ticket status from the
// full shadow set, transitioning the ticket when the aggregate moved forward.
func (s *Service) BumpItem(ctx context.Context, ticketID, itemID uuid.UUID, actor string) (*domain.ItemState, error) {
	t, err := s.Get(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	state, err := s.itemStates.Get(ctx, itemID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fault.New(fault.CodeNotFound, "item state not found")
		}
		return nil, fault.Wrap(fault.CodeInternal, "load item state", err)
	}
	if state.TicketID != t.ID {
		return nil, fault.New(fault.CodeValidation, "item does not belong to ticket")
	}

	previous := state.Status
	now := s.now()
	if err := state.Bump(now); err != nil {
		return nil, err
	}
	if err := s.itemStates.Update(ctx, state); err != nil {
		return nil, fault.Wrap(fault.CodeInternal, "persist item state", err)
	}
	if err := s.publisher.Publish(ctx, domain.TopicItemStatusChanged, state.ItemID.String(), domain.ItemStatusChangedEvent{
		VenueID:    t.VenueID,
		TicketID:   t.ID,
		OrderID:    t.OrderID,
		ItemID:     state.ItemID,
		Previous:   previous,
		Current:    state.Status,
		OccurredAt: now.UTC(),
	}); err != nil {
		return nil, fault.Wrap(fault.CodeInternal, "enqueue item event", err)
	}

	s.reconcileTicketFromItems(ctx, t, actor, now)

	s.auditor.Record(ctx, audit.Entry{
		VenueID:    t.VenueID,
		Actor:      actor,
		Action:     "ticket.item_bump",
		EntityKind: "ticket_item",
		EntityID:   state.ItemID.String(),
		Detail:     map[string]any{"from": previous, "to": state.Status},
	})
	return state, nil
}

func (s *Service) transition(ctx context.Context, ticketID uuid.UUID, actor, action string, fn func(*domain.Ticket, time.Time) error) (*domain.Ticket, error) {
	t, err := s.Get(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	previous := t.Status
	now := s.now()
	if err := fn(t, now); err != nil {
		return nil, err
	}
	if err := s.persistTransition(ctx, t, previous, actor, now); err != nil {
		return nil, err
	}
	s.auditor.Record(ctx, audit.Entry{
		VenueID:    t.VenueID,
		Actor:      actor,
		Action:     action,
		EntityKind: "ticket",
		EntityID:   t.ID.String(),
		Detail:     map[string]any{"from": previous, "to": t.Status},
	})
	return t, nil
}

// persistTransition writes the mutated ticket conditioned on the status the
// caller read, then enqueues the status event.
func (s *Service) persistTransition(ctx context.Context, t *domain.Ticket, previous domain.Status, actor string, now time.Time) error {
	if err := s.tickets.UpdateCAS(ctx, t, previous); err != nil {
		if errors.Is(err, domain.ErrStaleStatus) {
			return fault.New(fault.CodeIllegalState, "ticket changed concurrently, reload and retry").
				WithDetail("ticket_id", t.ID.String())
		}
		return fault.Wrap(fault.CodeInternal, "persist ticket", err)
	}
	if err := s.publisher.Publish(ctx, domain.TopicTicketStatusChanged, t.ID.String(), domain.StatusChangedEvent{
		VenueID:    t.VenueID,
		TicketID:   t.ID,
		OrderID:    t.OrderID,
		StationKey: t.StationKey,
		Previous:   previous,
		Current:    t.Status,
		Actor:      actor,
		OccurredAt: now.UTC(),
	}); err != nil {
		return fault.Wrap(fault.CodeInternal, "enqueue ticket event", err)
	}
	logctx.FromOr(ctx, s.log).Info("ticket_transitioned",
		observability.F("ticket_id", t.ID.String()),
		observability.F("from", string(previous)),
		observability.F("to", string(t.Status)),
	)
	return nil
}

// syncItemShadows drags lagging item shadows up to the ticket's new status so
// a whole-ticket bump reads the same as bumping each item. Best effort; a
// shadow that cannot advance is left alone.
func (s *Service) syncItemShadows(ctx context.Context, t *domain.Ticket, now time.Time) {
	target, ok := map[domain.Status]domain.ItemStatus{
		domain.StatusPreparing: domain.ItemPreparing,
		domain.StatusReady:     domain.ItemReady,
		domain.StatusCompleted: domain.ItemCompleted,
	}[t.Status]
	if !ok {
		return
	}
	items, err := s.itemStates.ListByTicket(ctx, t.ID)
	if err != nil {
		logctx.FromOr(ctx, s.log).Warn("item_shadow_sync_failed", observability.F("error", err))
		return
	}
	for _, it := range items {
		for it.Status != target {
			if err := it.Bump(now); err != nil {
				break
			}
		}
		if err := s.itemStates.Update(ctx, it); err != nil {
			logctx.FromOr(ctx, s.log).Warn("item_shadow_sync_failed",
				observability.F("item_id", it.ItemID.String()),
				observability.F("error", err),
			)
		}
	}
}

// reconcileTicketFromItems moves the ticket forward when its item shadows
// collectively imply a later status. ON_HOLD tickets are left parked.
func (s *Service) reconcileTicketFromItems(ctx context.Context, t *domain.Ticket, actor string, now time.Time) {
	if t.Status == domain.StatusOnHold {
		return
	}
	items, err := s.itemStates.ListByTicket(ctx, t.ID)
	if err != nil {
		logctx.FromOr(ctx, s.log).Warn("ticket_reconcile_failed", observability.F("error", err))
		return
	}
	implied := domain.AggregateStatus(items)
	if implied == t.Status {
		return
	}
	previous := t.Status
	if err := t.Transition(implied, actor, now, s.undoWindow); err != nil {
		return
	}
	if err := s.persistTransition(ctx, t, previous, actor, now); err != nil {
		logctx.FromOr(ctx, s.log).Warn("ticket_reconcile_failed", observability.F("error", err))
	}
}
