package order

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablekit/backhouse/internal/domain/fault"
	domain "github.com/tablekit/backhouse/internal/domain/order"
	domoutbox "github.com/tablekit/backhouse/internal/domain/outbox"
	"github.com/tablekit/backhouse/internal/domain/routing"
	domticket "github.com/tablekit/backhouse/internal/domain/ticket"
	"github.com/tablekit/backhouse/internal/infrastructure/auditlog"
	"github.com/tablekit/backhouse/internal/infrastructure/id"
	"github.com/tablekit/backhouse/internal/infrastructure/memory"
	outboxinfra "github.com/tablekit/backhouse/internal/infrastructure/outbox"
)

var t0 = time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)

type fixture struct {
	svc        *Service
	reconciler *Reconciler
	orders     *memory.OrderRepository
	tickets    *memory.TicketRepository
	itemStates *memory.ItemStateRepository
	outbox     *memory.OutboxRepository
	venueID    uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	orders := memory.NewOrderRepository()
	tickets := memory.NewTicketRepository()
	itemStates := memory.NewItemStateRepository()
	rules := memory.NewRoutingRepository()
	outboxRepo := memory.NewOutboxRepository()
	venueID := uuid.New()

	require.NoError(t, rules.Insert(context.Background(), routing.Rule{
		ID: uuid.New(), VenueID: venueID, Priority: 1,
		Predicate:   routing.Predicate{Category: "hot"},
		StationKeys: []string{"GRILL"},
	}))
	require.NoError(t, rules.Insert(context.Background(), routing.Rule{
		ID: uuid.New(), VenueID: venueID, Priority: 2,
		Predicate:   routing.Predicate{Category: "cold"},
		StationKeys: []string{"COLD"},
	}))

	gen := id.NewGenerator(memory.NewCounterRepository())
	publisher := outboxinfra.NewPublisher(outboxRepo, 3, nil)
	auditor := auditlog.New(memory.NewAuditRepository(), nil)

	svc := NewService(orders, tickets, itemStates, rules, gen, publisher, auditor, "KITCHEN", nil)
	svc.WithNow(func() time.Time { return t0 })

	reconciler := NewReconciler(orders, tickets, publisher, nil)
	reconciler.WithNow(func() time.Time { return t0 })

	return &fixture{
		svc:        svc,
		reconciler: reconciler,
		orders:     orders,
		tickets:    tickets,
		itemStates: itemStates,
		outbox:     outboxRepo,
		venueID:    venueID,
	}
}

func (f *fixture) createOrder(t *testing.T) *domain.Order {
	t.Helper()
	o, err := f.svc.Create(context.Background(), CreateInput{
		VenueID:  f.venueID,
		TableID:  "T4",
		ServerID: "srv-1",
		Tax:      0,
		Actor:    "alice",
		Items: []domain.Item{
			{MenuItemID: uuid.New(), Name: "Steak", UnitPrice: 2400, Quantity: 1, Category: "hot"},
			{MenuItemID: uuid.New(), Name: "Caesar", UnitPrice: 1100, Quantity: 1, Category: "cold"},
		},
	})
	require.NoError(t, err)
	return o
}

// drainedTopics claims everything in the outbox and tallies by topic.
func (f *fixture) drainedTopics(t *testing.T) map[string][]domoutbox.Event {
	t.Helper()
	events, err := f.outbox.ClaimBatch(context.Background(), 1000, t0, t0.Add(-time.Hour))
	require.NoError(t, err)
	byTopic := map[string][]domoutbox.Event{}
	for _, e := range events {
		byTopic[e.Topic] = append(byTopic[e.Topic], e)
	}
	return byTopic
}

func TestCreateOrderAssignsDisplayIDAndEvent(t *testing.T) {
	f := newFixture(t)
	o := f.createOrder(t)

	assert.Equal(t, "ORD-000001", o.DisplayID)
	assert.Equal(t, domain.StatusOpen, o.Status)
	assert.Equal(t, int64(3500), o.Total)

	byTopic := f.drainedTopics(t)
	assert.Len(t, byTopic[domain.TopicOrderCreated], 1)
}

func TestSendRoutesItemsToStations(t *testing.T) {
	f := newFixture(t)
	o := f.createOrder(t)

	tickets, err := f.svc.Send(context.Background(), o.ID, "send-1", "alice")
	require.NoError(t, err)
	require.Len(t, tickets, 2)

	// stations are emitted in deterministic sorted order
	assert.Equal(t, "COLD", tickets[0].StationKey)
	assert.Equal(t, "GRILL", tickets[1].StationKey)
	for _, tk := range tickets {
		assert.Equal(t, 1, tk.RoundNo)
		assert.Equal(t, domticket.StatusNew, tk.Status)
		assert.Len(t, tk.Lines, 1)
	}

	stored, err := f.orders.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSent, stored.Status)
	assert.Equal(t, 1, stored.SendRoundSeq)
	assert.Equal(t, domain.KDSSentToKitchen, stored.KDSStatus)

	states, err := f.itemStates.ListByTicket(context.Background(), tickets[0].ID)
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.Equal(t, domticket.ItemPending, states[0].Status)

	byTopic := f.drainedTopics(t)
	assert.Len(t, byTopic[domticket.TopicTicketCreated], 2)
}

func TestSendIsIdempotentPerClientID(t *testing.T) {
	f := newFixture(t)
	o := f.createOrder(t)

	first, err := f.svc.Send(context.Background(), o.ID, "send-1", "alice")
	require.NoError(t, err)

	second, err := f.svc.Send(context.Background(), o.ID, "send-1", "alice")
	require.NoError(t, err)

	require.Len(t, second, len(first))
	firstIDs := map[uuid.UUID]bool{}
	for _, tk := range first {
		firstIDs[tk.ID] = true
	}
	for _, tk := range second {
		assert.True(t, firstIDs[tk.ID], "replay must return the original tickets")
	}

	stored, err := f.orders.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.SendRoundSeq)

	all, err := f.tickets.ListByOrder(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSendWithoutSendableItemsFails(t *testing.T) {
	f := newFixture(t)
	o := f.createOrder(t)

	_, err := f.svc.Send(context.Background(), o.ID, "send-1", "alice")
	require.NoError(t, err)

	_, err = f.svc.Send(context.Background(), o.ID, "send-2", "alice")
	require.Error(t, err)
	fe := fault.As(err)
	assert.Equal(t, fault.CodeIllegalState, fe.Code)
}

func TestSendOnTerminalOrderFails(t *testing.T) {
	f := newFixture(t)
	o := f.createOrder(t)

	_, err := f.svc.Void(context.Background(), o.ID, "alice")
	require.NoError(t, err)

	_, err = f.svc.Send(context.Background(), o.ID, "send-1", "alice")
	require.Error(t, err)
	assert.Equal(t, fault.CodeIllegalState, fault.As(err).Code)
}

func TestCloseEmitsEventOnce(t *testing.T) {
	f := newFixture(t)
	o := f.createOrder(t)

	_, err := f.svc.Close(context.Background(), o.ID, "alice")
	require.NoError(t, err)

	_, err = f.svc.Close(context.Background(), o.ID, "alice")
	require.Error(t, err)

	byTopic := f.drainedTopics(t)
	assert.Len(t, byTopic[domain.TopicOrderClosed], 1)
}

func setTicketStatus(t *testing.T, f *fixture, tk *domticket.Ticket, status domticket.Status) {
	t.Helper()
	tk.Status = status
	require.NoError(t, f.tickets.Update(context.Background(), tk))
}

func TestReconcileAggregatesTicketStatuses(t *testing.T) {
	f := newFixture(t)
	o := f.createOrder(t)
	tickets, err := f.svc.Send(context.Background(), o.ID, "send-1", "alice")
	require.NoError(t, err)
	require.Len(t, tickets, 2)

	setTicketStatus(t, f, tickets[0], domticket.StatusPreparing)
	require.NoError(t, f.reconciler.Reconcile(context.Background(), o.ID))
	stored, _ := f.orders.Get(context.Background(), o.ID)
	assert.Equal(t, domain.KDSInProgress, stored.KDSStatus)

	setTicketStatus(t, f, tickets[0], domticket.StatusReady)
	require.NoError(t, f.reconciler.Reconcile(context.Background(), o.ID))
	stored, _ = f.orders.Get(context.Background(), o.ID)
	assert.Equal(t, domain.KDSPartiallyReady, stored.KDSStatus)
	assert.Equal(t, domain.StatusPartiallyReady, stored.Status)

	setTicketStatus(t, f, tickets[0], domticket.StatusCompleted)
	setTicketStatus(t, f, tickets[1], domticket.StatusCompleted)
	require.NoError(t, f.reconciler.Reconcile(context.Background(), o.ID))
	stored, _ = f.orders.Get(context.Background(), o.ID)
	assert.Equal(t, domain.KDSReadyToServe, stored.KDSStatus)
	assert.Equal(t, domain.StatusReadyToServe, stored.Status)
}

func TestReconcileEmitsOnlyOnChange(t *testing.T) {
	f := newFixture(t)
	o := f.createOrder(t)
	tickets, err := f.svc.Send(context.Background(), o.ID, "send-1", "alice")
	require.NoError(t, err)

	setTicketStatus(t, f, tickets[0], domticket.StatusPreparing)
	require.NoError(t, f.reconciler.Reconcile(context.Background(), o.ID))
	// redelivery of the same ticket event recomputes the same value
	require.NoError(t, f.reconciler.Reconcile(context.Background(), o.ID))
	require.NoError(t, f.reconciler.Reconcile(context.Background(), o.ID))

	byTopic := f.drainedTopics(t)
	assert.Len(t, byTopic[domain.TopicKDSStatusChanged], 1)
}
