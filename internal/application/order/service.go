package order

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/tablekit/backhouse/internal/domain/audit"
	"github.com/tablekit/backhouse/internal/domain/fault"
	domain "github.com/tablekit/backhouse/internal/domain/order"
	domoutbox "github.com/tablekit/backhouse/internal/domain/outbox"
	"github.com/tablekit/backhouse/internal/domain/routing"
	domticket "github.com/tablekit/backhouse/internal/domain/ticket"
	"github.com/tablekit/backhouse/internal/infrastructure/id"
	"github.com/tablekit/backhouse/internal/observability"
	"github.com/tablekit/backhouse/internal/observability/logctx"
)

// Service owns order lifecycle and the order -> ticket integration.
type Service struct {
	orders         domain.Repository
	tickets        domticket.Repository
	itemStates     domticket.ItemStateRepository
	rules          routing.Repository
	gen            *id.Generator
	publisher      domoutbox.Publisher
	auditor        audit.Recorder
	defaultStation string
	now            func() time.Time
	log            observability.Logger
}

func NewService(
	orders domain.Repository,
	tickets domticket.Repository,
	itemStates domticket.ItemStateRepository,
	rules routing.Repository,
	gen *id.Generator,
	publisher domoutbox.Publisher,
	auditor audit.Recorder,
	defaultStation string,
	logger observability.Logger,
) *Service {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Service{
		orders:         orders,
		tickets:        tickets,
		itemStates:     itemStates,
		rules:          rules,
		gen:            gen,
		publisher:      publisher,
		auditor:        auditor,
		defaultStation: defaultStation,
		now:            time.Now,
		log:            logger.With(observability.F("component", "order_service")),
	}
}

// WithNow overrides the clock. Tests only.
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}

type CreateInput struct {
	VenueID  uuid.UUID
	TableID  string
	ServerID string
	Items    []domain.Item
	Tax      int64
	Actor    string
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*domain.Order, error) {
	displayID, err := s.gen.NextDisplayID(ctx, in.VenueID, id.KindOrder)
	if err != nil {
		return nil, fault.Wrap(fault.CodeInternal, "allocate order display id", err)
	}

	now := s.now()
	o, err := domain.New(s.gen.NewID(), in.VenueID, displayID, in.TableID, in.ServerID, in.Items, in.Tax, now)
	if err != nil {
		return nil, fault.Wrap(fault.CodeValidation, err.Error(), err)
	}

	if err := s.orders.Insert(ctx, o); err != nil {
		return nil, fault.Wrap(fault.CodeInternal, "persist order", err)
	}

	if err := s.publisher.Publish(ctx, domain.TopicOrderCreated, o.ID.String(), domain.CreatedEvent{
		VenueID:    o.VenueID,
		OrderID:    o.ID,
		DisplayID:  o.DisplayID,
		Total:      o.Total,
		OccurredAt: now.UTC(),
	}); err != nil {
		return nil, fault.Wrap(fault.CodeInternal, "enqueue order.created", err)
	}

	s.auditor.Record(ctx, audit.Entry{
		VenueID:    o.VenueID,
		Actor:      in.Actor,
		Action:     "order.create",
		EntityKind: "order",
		EntityID:   o.ID.String(),
	})

	logctx.FromOr(ctx, s.log).Info("order_created",
		observability.F("order_id", o.ID.String()),
		observability.F("display_id", o.DisplayID),
	)
	return o, nil
}

func (s *Service) Get(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fault.New(fault.CodeNotFound, "order not found")
		}
		return nil, fault.Wrap(fault.CodeInternal, "load order", err)
	}
	return o, nil
}

// Send dispatches the order's pending items to kitchen stations: one ticket
// per station per send round. A re-send with a known send client id returns
// the tickets that send created instead of creating new ones.
func (s *Service) Send(ctx context.Context, orderID uuid.UUID, sendClientID, actor string) ([]*domticket.Ticket, error) {
	o, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.IsTerminal() {
		return nil, fault.Newf(fault.CodeIllegalState, "order is %s", o.Status).
			WithDetail("status", string(o.Status))
	}

	if sendClientID != "" && o.HasSendClientID(sendClientID) {
		return s.ticketsForRound(ctx, o, sendClientID)
	}

	items := o.SendableItems()
	if len(items) == 0 {
		return nil, fault.New(fault.CodeIllegalState, "no sendable items on order")
	}

	rules, err := s.rules.ListByVenue(ctx, o.VenueID)
	if err != nil {
		return nil, fault.Wrap(fault.CodeInternal, "load routing rules", err)
	}
	engine := routing.NewEngine(rules, s.defaultStation)

	byStation := map[string][]domain.Item{}
	for _, it := range items {
		snapshot := routing.Snapshot{
			Category:         it.Category,
			Tags:             it.Tags,
			ModifierGroupIDs: modifierGroups(it),
		}
		for _, station := range engine.Route(snapshot) {
			byStation[station] = append(byStation[station], it)
		}
	}

	stations := make([]string, 0, len(byStation))
	for station := range byStation {
		stations = append(stations, station)
	}
	sort.Strings(stations)

	now := s.now()
	round := o.SendRoundSeq + 1
	created := make([]*domticket.Ticket, 0, len(stations))
	for _, station := range stations {
		t, err := s.createTicket(ctx, o, station, byStation[station], round, actor, now)
		if err != nil {
			return nil, err
		}
		created = append(created, t)
	}

	o.MarkSent(sendClientID, now)
	if sendClientID != "" {
		if o.SendRounds == nil {
			o.SendRounds = map[string]int{}
		}
		o.SendRounds[sendClientID] = round
	}
	if err := s.orders.Update(ctx, o); err != nil {
		return nil, fault.Wrap(fault.CodeInternal, "persist sent order", err)
	}

	s.auditor.Record(ctx, audit.Entry{
		VenueID:    o.VenueID,
		Actor:      actor,
		Action:     "order.send",
		EntityKind: "order",
		EntityID:   o.ID.String(),
		Detail:     map[string]any{"round_no": round, "stations": stations},
	})

	logctx.FromOr(ctx, s.log).Info("order_dispatched",
		observability.F("order_id", o.ID.String()),
		observability.F("round_no", round),
		observability.F("tickets", len(created)),
	)
	return created, nil
}

// createTicket persists one ticket plus its item shadows and enqueues the
// creation event. The ticket write is rolled back if the event cannot be
// enqueued: a ticket whose creation event is lost must never exist.
func (s *Service) createTicket(ctx context.Context, o *domain.Order, station string, items []domain.Item, round int, actor string, now time.Time) (*domticket.Ticket, error) {
	displayID, err := s.gen.NextDisplayID(ctx, o.VenueID, id.KindTicket)
	if err != nil {
		return nil, fault.Wrap(fault.CodeInternal, "allocate ticket display id", err)
	}

	lines := make([]domticket.Line, 0, len(items))
	for _, it := range items {
		lines = append(lines, domticket.Line{
			ItemID:   it.ID,
			Name:     it.Name,
			Quantity: it.Quantity,
			Seat:     it.Seat,
			Course:   it.Course,
			Note:     it.Note,
		})
	}

	t := &domticket.Ticket{
		ID:           s.gen.NewID(),
		DisplayID:    displayID,
		OrderID:      o.ID,
		VenueID:      o.VenueID,
		StationKey:   station,
		Lines:        lines,
		RoundNo:      round,
		Status:       domticket.StatusNew,
		LastActionBy: actor,
		LastActionAt: now.UTC(),
		CreatedAt:    now.UTC(),
		UpdatedAt:    now.UTC(),
	}
	if err := s.tickets.Insert(ctx, t); err != nil {
		return nil, fault.Wrap(fault.CodeInternal, "persist ticket", err)
	}

	for _, it := range items {
		state := &domticket.ItemState{
			ItemID:     it.ID,
			OrderID:    o.ID,
			TicketID:   t.ID,
			VenueID:    o.VenueID,
			StationKey: station,
			Status:     domticket.ItemPending,
			PendingAt:  now.UTC(),
		}
		if err := s.itemStates.Insert(ctx, state); err != nil {
			_ = s.tickets.Delete(ctx, t.ID)
			return nil, fault.Wrap(fault.CodeInternal, "persist item state", err)
		}
	}

	if err := s.publisher.Publish(ctx, domticket.TopicTicketCreated, t.ID.String(), domticket.CreatedEvent{
		VenueID:    t.VenueID,
		TicketID:   t.ID,
		OrderID:    t.OrderID,
		StationKey: t.StationKey,
		RoundNo:    t.RoundNo,
		Lines:      t.Lines,
		OccurredAt: now.UTC(),
	}); err != nil {
		_ = s.tickets.Delete(ctx, t.ID)
		return nil, fault.Wrap(fault.CodeInternal, "enqueue kds.ticket_created", err)
	}

	return t, nil
}

func (s *Service) ticketsForRound(ctx context.Context, o *domain.Order, sendClientID string) ([]*domticket.Ticket, error) {
	all, err := s.tickets.ListByOrder(ctx, o.ID)
	if err != nil {
		return nil, fault.Wrap(fault.CodeInternal, "load tickets", err)
	}
	round, ok := o.SendRounds[sendClientID]
	if !ok {
		return all, nil
	}
	var out []*domticket.Ticket
	for _, t := range all {
		if t.RoundNo == round {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Service) Close(ctx context.Context, orderID uuid.UUID, actor string) (*domain.Order, error) {
	o, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := o.Close(now); err != nil {
		return nil, fault.Wrap(fault.CodeIllegalState, err.Error(), err)
	}
	if err := s.orders.Update(ctx, o); err != nil {
		return nil, fault.Wrap(fault.CodeInternal, "persist closed order", err)
	}
	if err := s.publisher.Publish(ctx, domain.TopicOrderClosed, o.ID.String(), domain.ClosedEvent{
		VenueID:    o.VenueID,
		OrderID:    o.ID,
		OccurredAt: now.UTC(),
	}); err != nil {
		return nil, fault.Wrap(fault.CodeInternal, "enqueue order.closed", err)
	}
	s.auditor.Record(ctx, audit.Entry{
		VenueID:    o.VenueID,
		Actor:      actor,
		Action:     "order.close",
		EntityKind: "order",
		EntityID:   o.ID.String(),
	})
	return o, nil
}

func (s *Service) Void(ctx context.Context, orderID uuid.UUID, actor string) (*domain.Order, error) {
	o, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := o.Void(s.now()); err != nil {
		return nil, fault.Wrap(fault.CodeIllegalState, err.Error(), err)
	}
	if err := s.orders.Update(ctx, o); err != nil {
		return nil, fault.Wrap(fault.CodeInternal, "persist voided order", err)
	}
	s.auditor.Record(ctx, audit.Entry{
		VenueID:    o.VenueID,
		Actor:      actor,
		Action:     "order.void",
		EntityKind: "order",
		EntityID:   o.ID.String(),
	})
	return o, nil
}

func modifierGroups(it domain.Item) []string {
	var out []string
	for _, m := range it.Modifiers {
		out = append(out, m.GroupID)
	}
	return out
}
