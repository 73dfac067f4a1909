package kitchen

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablekit/backhouse/internal/domain/fault"
	domain "github.com/tablekit/backhouse/internal/domain/ticket"
	"github.com/tablekit/backhouse/internal/infrastructure/auditlog"
	"github.com/tablekit/backhouse/internal/infrastructure/memory"
	outboxinfra "github.com/tablekit/backhouse/internal/infrastructure/outbox"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

const window = 30 * time.Second

type fixture struct {
	svc        *Service
	tickets    *memory.TicketRepository
	itemStates *memory.ItemStateRepository
	clock      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		tickets:    memory.NewTicketRepository(),
		itemStates: memory.NewItemStateRepository(),
		clock:      t0,
	}
	publisher := outboxinfra.NewPublisher(memory.NewOutboxRepository(), 3, nil)
	auditor := auditlog.New(memory.NewAuditRepository(), nil)
	f.svc = NewService(f.tickets, f.itemStates, publisher, auditor, window, nil, nil)
	f.svc.WithNow(func() time.Time { return f.clock })
	return f
}

// seedTicket stores a NEW ticket with one item shadow per line.
func (f *fixture) seedTicket(t *testing.T, lines int) (*domain.Ticket, []uuid.UUID) {
	t.Helper()
	tk := &domain.Ticket{
		ID:        uuid.New(),
		OrderID:   uuid.New(),
		VenueID:   uuid.New(),
		Status:    domain.StatusNew,
		CreatedAt: t0,
		UpdatedAt: t0,
	}
	itemIDs := make([]uuid.UUID, 0, lines)
	for i := 0; i < lines; i++ {
		itemID := uuid.New()
		itemIDs = append(itemIDs, itemID)
		tk.Lines = append(tk.Lines, domain.Line{ItemID: itemID, Name: "Item", Quantity: 1})
		require.NoError(t, f.itemStates.Insert(context.Background(), &domain.ItemState{
			ItemID:    itemID,
			OrderID:   tk.OrderID,
			TicketID:  tk.ID,
			VenueID:   tk.VenueID,
			Status:    domain.ItemPending,
			PendingAt: t0,
		}))
	}
	require.NoError(t, f.tickets.Insert(context.Background(), tk))
	return tk, itemIDs
}

func faultCode(t *testing.T, err error) fault.Code {
	t.Helper()
	require.Error(t, err)
	return fault.As(err).Code
}

func TestBumpAdvancesTicketAndShadows(t *testing.T) {
	f := newFixture(t)
	tk, itemIDs := f.seedTicket(t, 2)

	got, err := f.svc.Bump(context.Background(), tk.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPreparing, got.Status)

	for _, id := range itemIDs {
		st, err := f.itemStates.Get(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, domain.ItemPreparing, st.Status)
	}
}

func TestBumpToCompletedRequiresReadyItems(t *testing.T) {
	f := newFixture(t)
	tk, itemIDs := f.seedTicket(t, 2)

	tk.Status = domain.StatusReady
	require.NoError(t, f.tickets.Update(context.Background(), tk))

	// one shadow lags behind READY
	st, err := f.itemStates.Get(context.Background(), itemIDs[0])
	require.NoError(t, err)
	st.Status = domain.ItemReady
	require.NoError(t, f.itemStates.Update(context.Background(), st))

	_, err = f.svc.Bump(context.Background(), tk.ID, "alice")
	assert.Equal(t, fault.CodeIllegalState, faultCode(t, err))

	st2, err := f.itemStates.Get(context.Background(), itemIDs[1])
	require.NoError(t, err)
	st2.Status = domain.ItemReady
	require.NoError(t, f.itemStates.Update(context.Background(), st2))

	got, err := f.svc.Bump(context.Background(), tk.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)
}

func TestUndoWithinWindow(t *testing.T) {
	f := newFixture(t)
	tk, _ := f.seedTicket(t, 1)

	_, err := f.svc.Bump(context.Background(), tk.ID, "alice")
	require.NoError(t, err)

	f.clock = t0.Add(10 * time.Second)
	got, err := f.svc.Undo(context.Background(), tk.ID, "alice", false)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusNew, got.Status)
}

func TestUndoAfterWindowExpires(t *testing.T) {
	f := newFixture(t)
	tk, _ := f.seedTicket(t, 1)

	_, err := f.svc.Bump(context.Background(), tk.ID, "alice")
	require.NoError(t, err)

	f.clock = t0.Add(45 * time.Second)
	_, err = f.svc.Undo(context.Background(), tk.ID, "alice", false)
	assert.Equal(t, fault.CodeUndoExpired, faultCode(t, err))

	stored, err := f.tickets.Get(context.Background(), tk.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPreparing, stored.Status)
}

func TestUndoByOtherActorNeedsOverride(t *testing.T) {
	f := newFixture(t)
	tk, _ := f.seedTicket(t, 1)

	_, err := f.svc.Bump(context.Background(), tk.ID, "alice")
	require.NoError(t, err)

	f.clock = t0.Add(5 * time.Second)
	_, err = f.svc.Undo(context.Background(), tk.ID, "bob", false)
	assert.Equal(t, fault.CodeIllegalState, faultCode(t, err))

	got, err := f.svc.Undo(context.Background(), tk.ID, "bob", true)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusNew, got.Status)
}

// staleReads serves a snapshot older than what the store holds, the way a KDS
// screen that has not refreshed would.
type staleReads struct {
	*memory.TicketRepository
	stale *domain.Ticket
}

func (r *staleReads) Get(ctx context.Context, id uuid.UUID) (*domain.Ticket, error) {
	if r.stale != nil && r.stale.ID == id {
		return r.stale.Clone(), nil
	}
	return r.TicketRepository.Get(ctx, id)
}

func TestConcurrentTransitionLosesCAS(t *testing.T) {
	f := newFixture(t)
	tk, _ := f.seedTicket(t, 1)

	snapshot := tk.Clone()

	// another expeditor already bumped the ticket
	_, err := f.svc.Bump(context.Background(), tk.ID, "bob")
	require.NoError(t, err)

	stale := &staleReads{TicketRepository: f.tickets, stale: snapshot}
	publisher := outboxinfra.NewPublisher(memory.NewOutboxRepository(), 3, nil)
	auditor := auditlog.New(memory.NewAuditRepository(), nil)
	svc := NewService(stale, f.itemStates, publisher, auditor, window, nil, nil)
	svc.WithNow(func() time.Time { return f.clock })

	_, err = svc.Bump(context.Background(), tk.ID, "alice")
	assert.Equal(t, fault.CodeIllegalState, faultCode(t, err))
}

func TestClaimConflict(t *testing.T) {
	f := newFixture(t)
	tk, _ := f.seedTicket(t, 1)

	_, err := f.svc.Claim(context.Background(), tk.ID, "alice")
	require.NoError(t, err)

	_, err = f.svc.Claim(context.Background(), tk.ID, "bob")
	assert.Equal(t, fault.CodeClaimConflict, faultCode(t, err))

	_, err = f.svc.Release(context.Background(), tk.ID, "alice")
	require.NoError(t, err)

	_, err = f.svc.Claim(context.Background(), tk.ID, "bob")
	require.NoError(t, err)
}

func TestBumpItemReconcilesTicket(t *testing.T) {
	f := newFixture(t)
	tk, itemIDs := f.seedTicket(t, 2)

	st, err := f.svc.BumpItem(context.Background(), tk.ID, itemIDs[0], "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.ItemPreparing, st.Status)

	stored, err := f.tickets.Get(context.Background(), tk.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPreparing, stored.Status)

	// drive both items to READY
	_, err = f.svc.BumpItem(context.Background(), tk.ID, itemIDs[1], "alice")
	require.NoError(t, err)
	_, err = f.svc.BumpItem(context.Background(), tk.ID, itemIDs[0], "alice")
	require.NoError(t, err)
	_, err = f.svc.BumpItem(context.Background(), tk.ID, itemIDs[1], "alice")
	require.NoError(t, err)

	stored, err = f.tickets.Get(context.Background(), tk.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReady, stored.Status)
}

func TestBumpItemRejectsForeignItem(t *testing.T) {
	f := newFixture(t)
	tk, _ := f.seedTicket(t, 1)
	other, otherItems := f.seedTicket(t, 1)
	_ = other

	_, err := f.svc.BumpItem(context.Background(), tk.ID, otherItems[0], "alice")
	assert.Equal(t, fault.CodeValidation, faultCode(t, err))
}
