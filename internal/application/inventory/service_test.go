package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablekit/backhouse/internal/domain/fault"
	domain "github.com/tablekit/backhouse/internal/domain/ledger"
	domoutbox "github.com/tablekit/backhouse/internal/domain/outbox"
	"github.com/tablekit/backhouse/internal/infrastructure/auditlog"
	"github.com/tablekit/backhouse/internal/infrastructure/id"
	"github.com/tablekit/backhouse/internal/infrastructure/memory"
	outboxinfra "github.com/tablekit/backhouse/internal/infrastructure/outbox"
)

var t0 = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	svc     *Service
	entries *memory.LedgerRepository
	outbox  *memory.OutboxRepository
	venueID uuid.UUID
	itemID  uuid.UUID
}

func newFixture(t *testing.T, threshold float64) *fixture {
	t.Helper()
	f := &fixture{
		entries: memory.NewLedgerRepository(),
		outbox:  memory.NewOutboxRepository(),
		venueID: uuid.New(),
		itemID:  uuid.New(),
	}
	publisher := outboxinfra.NewPublisher(f.outbox, 3, nil)
	auditor := auditlog.New(memory.NewAuditRepository(), nil)
	gen := id.NewGenerator(memory.NewCounterRepository())
	f.svc = NewService(f.entries, memory.NewStockRepository(), gen, publisher, auditor, threshold, nil, nil)
	f.svc.WithNow(func() time.Time { return t0 })
	return f
}

func (f *fixture) append(t *testing.T, action domain.Action, qty float64) *domain.Entry {
	t.Helper()
	e, err := f.svc.Append(context.Background(), AppendInput{
		VenueID:  f.venueID,
		ItemID:   f.itemID,
		Action:   action,
		Quantity: qty,
		Source:   domain.Source{Kind: "manual", ID: "stocktake"},
		Actor:    "alice",
	})
	require.NoError(t, err)
	return e
}

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

func TestAppendChainsEntries(t *testing.T) {
	f := newFixture(t, 0)

	first := f.append(t, domain.ActionIn, 10)
	assert.Equal(t, "SL-000000001", first.DisplayID)
	assert.Equal(t, domain.GenesisHash, first.PrevHash)
	assert.NotEmpty(t, first.EntryHash)

	second := f.append(t, domain.ActionOut, 4)
	assert.Equal(t, "SL-000000002", second.DisplayID)
	assert.Equal(t, first.EntryHash, second.PrevHash)

	balance, err := f.svc.Balance(context.Background(), f.venueID, f.itemID)
	require.NoError(t, err)
	assert.InDelta(t, 6, balance, 1e-9)

	level, err := f.svc.OnHand(context.Background(), f.venueID, f.itemID)
	require.NoError(t, err)
	assert.InDelta(t, 6, level.OnHand, 1e-9)

	byTopic := f.drainedTopics(t)
	assert.Len(t, byTopic[domain.TopicMovementCreated], 2)
	assert.Empty(t, byTopic[domain.TopicLowStock])
}

func TestAppendAdjustSetsLevel(t *testing.T) {
	f := newFixture(t, 0)

	f.append(t, domain.ActionIn, 10)
	f.append(t, domain.ActionAdjust, 3)
	f.append(t, domain.ActionOut, 1)

	balance, err := f.svc.Balance(context.Background(), f.venueID, f.itemID)
	require.NoError(t, err)
	assert.InDelta(t, 2, balance, 1e-9)

	level, err := f.svc.OnHand(context.Background(), f.venueID, f.itemID)
	require.NoError(t, err)
	assert.InDelta(t, 2, level.OnHand, 1e-9)
}

func TestAppendValidation(t *testing.T) {
	f := newFixture(t, 0)

	_, err := f.svc.Append(context.Background(), AppendInput{
		VenueID: f.venueID, ItemID: f.itemID, Action: "TRANSFER", Quantity: 1,
	})
	require.Error(t, err)
	assert.Equal(t, fault.CodeValidation, fault.As(err).Code)

	_, err = f.svc.Append(context.Background(), AppendInput{
		VenueID: f.venueID, ItemID: f.itemID, Action: domain.ActionIn, Quantity: -1,
	})
	require.Error(t, err)
	assert.Equal(t, fault.CodeValidation, fault.As(err).Code)

	_, err = f.svc.Append(context.Background(), AppendInput{
		VenueID: f.venueID, Action: domain.ActionIn, Quantity: 1,
	})
	require.Error(t, err)
	assert.Equal(t, fault.CodeValidation, fault.As(err).Code)
}

func TestLowStockEventFiresAtThreshold(t *testing.T) {
	f := newFixture(t, 5)

	f.append(t, domain.ActionIn, 10)
	f.append(t, domain.ActionOut, 6)

	byTopic := f.drainedTopics(t)
	require.Len(t, byTopic[domain.TopicLowStock], 1)
}

func TestOnHandUnknownItemIsZero(t *testing.T) {
	f := newFixture(t, 0)

	level, err := f.svc.OnHand(context.Background(), f.venueID, uuid.New())
	require.NoError(t, err)
	assert.Zero(t, level.OnHand)
}

// contendedRepo fails the first AppendCAS calls with a chain conflict, the way
// a concurrent writer that won the tail would.
type contendedRepo struct {
	*memory.LedgerRepository
	failures int
}

func (r *contendedRepo) AppendCAS(ctx context.Context, e *domain.Entry, expectedTail string) error {
	if r.failures > 0 {
		r.failures--
		return domain.ErrChainConflict
	}
	return r.LedgerRepository.AppendCAS(ctx, e, expectedTail)
}

func TestAppendRetriesOnChainConflict(t *testing.T) {
	f := newFixture(t, 0)
	contended := &contendedRepo{LedgerRepository: f.entries, failures: 2}

	publisher := outboxinfra.NewPublisher(f.outbox, 3, nil)
	auditor := auditlog.New(memory.NewAuditRepository(), nil)
	gen := id.NewGenerator(memory.NewCounterRepository())
	svc := NewService(contended, memory.NewStockRepository(), gen, publisher, auditor, 0, nil, nil)
	svc.WithNow(func() time.Time { return t0 })

	e, err := svc.Append(context.Background(), AppendInput{
		VenueID: f.venueID, ItemID: f.itemID, Action: domain.ActionIn, Quantity: 5, Actor: "alice",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.GenesisHash, e.PrevHash)
}

func TestAppendGivesUpAfterRepeatedConflicts(t *testing.T) {
	f := newFixture(t, 0)
	contended := &contendedRepo{LedgerRepository: f.entries, failures: 10}

	publisher := outboxinfra.NewPublisher(f.outbox, 3, nil)
	auditor := auditlog.New(memory.NewAuditRepository(), nil)
	gen := id.NewGenerator(memory.NewCounterRepository())
	svc := NewService(contended, memory.NewStockRepository(), gen, publisher, auditor, 0, nil, nil)

	_, err := svc.Append(context.Background(), AppendInput{
		VenueID: f.venueID, ItemID: f.itemID, Action: domain.ActionIn, Quantity: 5, Actor: "alice",
	})
	require.Error(t, err)
	assert.Equal(t, fault.CodeChainConflict, fault.As(err).Code)
}

func TestVerifyChainFlagsTampering(t *testing.T) {
	f := newFixture(t, 0)

	f.append(t, domain.ActionIn, 10)
	tampered := f.append(t, domain.ActionOut, 3)
	f.append(t, domain.ActionIn, 2)

	bad, err := f.svc.VerifyChain(context.Background(), f.venueID)
	require.NoError(t, err)
	assert.Nil(t, bad)

	f.entries.Tamper(f.venueID, 1, func(e *domain.Entry) { e.Quantity = 300 })

	bad, err = f.svc.VerifyChain(context.Background(), f.venueID)
	require.NoError(t, err)
	require.NotNil(t, bad)
	assert.Equal(t, tampered.ID, bad.ID)
}
