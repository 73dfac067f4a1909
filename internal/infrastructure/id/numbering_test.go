package id_test

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablekit/backhouse/internal/infrastructure/id"
	"github.com/tablekit/backhouse/internal/infrastructure/memory"
)

func TestDisplayIDFormats(t *testing.T) {
	gen := id.NewGenerator(memory.NewCounterRepository())
	venueID := uuid.New()

	tests := []struct {
		kind id.EntityKind
		want string
	}{
		{id.KindOrder, "ORD-000001"},
		{id.KindTicket, "KDS-000001"},
		{id.KindSKU, "SKU-000001"},
		{id.KindLedger, "SL-000000001"},
	}
	for _, tt := range tests {
		got, err := gen.NextDisplayID(context.Background(), venueID, tt.kind)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestDisplayIDsAreMonotonicPerVenueAndKind(t *testing.T) {
	gen := id.NewGenerator(memory.NewCounterRepository())
	venueA := uuid.New()
	venueB := uuid.New()

	first, err := gen.NextDisplayID(context.Background(), venueA, id.KindOrder)
	require.NoError(t, err)
	second, err := gen.NextDisplayID(context.Background(), venueA, id.KindOrder)
	require.NoError(t, err)
	assert.Equal(t, "ORD-000001", first)
	assert.Equal(t, "ORD-000002", second)

	// each venue numbers its own series
	other, err := gen.NextDisplayID(context.Background(), venueB, id.KindOrder)
	require.NoError(t, err)
	assert.Equal(t, "ORD-000001", other)

	// each kind numbers its own series
	ticket, err := gen.NextDisplayID(context.Background(), venueA, id.KindTicket)
	require.NoError(t, err)
	assert.Equal(t, "KDS-000001", ticket)
}

func TestDisplayIDsUniqueUnderConcurrency(t *testing.T) {
	gen := id.NewGenerator(memory.NewCounterRepository())
	venueID := uuid.New()

	const n = 100
	var (
		mu   sync.Mutex
		seen = map[string]bool{}
		wg   sync.WaitGroup
	)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			got, err := gen.NextDisplayID(context.Background(), venueID, id.KindOrder)
			assert.NoError(t, err)
			mu.Lock()
			seen[got] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, n)
}
