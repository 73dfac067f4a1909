package order

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 6, 1, 18, 30, 0, 0, time.UTC)

func testItems() []Item {
	return []Item{
		{
			MenuItemID: uuid.New(),
			Name:       "Burger",
			UnitPrice:  1250,
			Quantity:   2,
			Modifiers:  []Modifier{{GroupID: "extras", OptionID: "cheese", PriceDelta: 150}},
		},
		{
			MenuItemID: uuid.New(),
			Name:       "Lemonade",
			UnitPrice:  400,
			Quantity:   1,
		},
	}
}

func TestNewRollsUpTotals(t *testing.T) {
	o, err := New(uuid.New(), uuid.New(), "ORD-000001", "T1", "srv-1", testItems(), 280, t0)
	require.NoError(t, err)

	// (1250+150)*2 + 400*1 = 3200
	assert.Equal(t, int64(3200), o.Subtotal)
	assert.Equal(t, int64(3480), o.Total)
	assert.Equal(t, o.Subtotal+o.Tax, o.Total)
	assert.Equal(t, StatusOpen, o.Status)
	assert.Equal(t, ItemPending, o.Items[0].Status)
}

func TestNewRejectsEmptyAndZeroQuantity(t *testing.T) {
	_, err := New(uuid.New(), uuid.New(), "ORD-000001", "", "", nil, 0, t0)
	assert.ErrorIs(t, err, ErrEmptyOrder)

	items := testItems()
	items[0].Quantity = 0
	_, err = New(uuid.New(), uuid.New(), "ORD-000001", "", "", items, 0, t0)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestMarkSentRecordsFingerprintOnce(t *testing.T) {
	o, err := New(uuid.New(), uuid.New(), "ORD-000001", "T1", "srv-1", testItems(), 0, t0)
	require.NoError(t, err)

	o.MarkSent("client-abc", t0.Add(time.Minute))
	assert.Equal(t, StatusSent, o.Status)
	assert.Equal(t, KDSSentToKitchen, o.KDSStatus)
	assert.Equal(t, 1, o.SendRoundSeq)
	assert.True(t, o.HasSendClientID("client-abc"))
	for _, it := range o.Items {
		assert.Equal(t, ItemSent, it.Status)
	}

	o.MarkSent("client-abc", t0.Add(2*time.Minute))
	assert.Equal(t, []string{"client-abc"}, o.SendClientIDs)
}

func TestSendableItemsSkipsSent(t *testing.T) {
	o, err := New(uuid.New(), uuid.New(), "ORD-000001", "T1", "srv-1", testItems(), 0, t0)
	require.NoError(t, err)
	require.Len(t, o.SendableItems(), 2)

	o.MarkSent("", t0)
	assert.Empty(t, o.SendableItems())
}

func TestVoidZeroesTotalsAndFreezes(t *testing.T) {
	o, err := New(uuid.New(), uuid.New(), "ORD-000001", "T1", "srv-1", testItems(), 100, t0)
	require.NoError(t, err)

	require.NoError(t, o.Void(t0.Add(time.Minute)))
	assert.Equal(t, StatusVoided, o.Status)
	assert.Equal(t, int64(0), o.Subtotal)
	assert.Equal(t, int64(100), o.Total) // tax survives the void; items contribute zero

	assert.ErrorIs(t, o.Close(t0.Add(2*time.Minute)), ErrAlreadyTerminal)
	assert.ErrorIs(t, o.Void(t0.Add(2*time.Minute)), ErrAlreadyTerminal)
}

func TestCloseStampsClosedAt(t *testing.T) {
	o, err := New(uuid.New(), uuid.New(), "ORD-000001", "T1", "srv-1", testItems(), 0, t0)
	require.NoError(t, err)

	require.NoError(t, o.Close(t0.Add(time.Hour)))
	require.NotNil(t, o.ClosedAt)
	assert.Equal(t, t0.Add(time.Hour), *o.ClosedAt)
	assert.True(t, o.IsTerminal())
}

func TestCloneIsDeep(t *testing.T) {
	o, err := New(uuid.New(), uuid.New(), "ORD-000001", "T1", "srv-1", testItems(), 0, t0)
	require.NoError(t, err)
	o.SendRounds = map[string]int{"c1": 1}

	clone := o.Clone()
	clone.Items[0].Name = "mutated"
	clone.SendRounds["c1"] = 99

	assert.Equal(t, "Burger", o.Items[0].Name)
	assert.Equal(t, 1, o.SendRounds["c1"])
}
