package routing

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestRouteMatchesByCategory(t *testing.T) {
	venueID := uuid.New()
	engine := NewEngine([]Rule{
		{ID: uuid.New(), VenueID: venueID, Priority: 1, Predicate: Predicate{Category: "hot"}, StationKeys: []string{"GRILL"}},
		{ID: uuid.New(), VenueID: venueID, Priority: 2, Predicate: Predicate{Category: "cold"}, StationKeys: []string{"COLD"}},
	}, "KITCHEN")

	assert.Equal(t, []string{"GRILL"}, engine.Route(Snapshot{Category: "hot"}))
	assert.Equal(t, []string{"COLD"}, engine.Route(Snapshot{Category: "cold"}))
}

func TestRouteFallsBackToDefaultStation(t *testing.T) {
	engine := NewEngine(nil, "KITCHEN")
	assert.Equal(t, []string{"KITCHEN"}, engine.Route(Snapshot{Category: "dessert"}))
}

func TestRoutePriorityOrdersStations(t *testing.T) {
	venueID := uuid.New()
	// rules supplied out of priority order on purpose
	engine := NewEngine([]Rule{
		{ID: uuid.New(), VenueID: venueID, Priority: 5, Predicate: Predicate{AnyTag: []string{"fried"}}, StationKeys: []string{"FRYER"}},
		{ID: uuid.New(), VenueID: venueID, Priority: 1, Predicate: Predicate{Category: "hot"}, StationKeys: []string{"GRILL"}},
	}, "KITCHEN")

	got := engine.Route(Snapshot{Category: "hot", Tags: []string{"fried"}})
	assert.Equal(t, []string{"GRILL", "FRYER"}, got)
}

func TestRouteDeduplicatesStations(t *testing.T) {
	venueID := uuid.New()
	engine := NewEngine([]Rule{
		{ID: uuid.New(), VenueID: venueID, Priority: 1, Predicate: Predicate{Category: "hot"}, StationKeys: []string{"GRILL", "EXPO"}},
		{ID: uuid.New(), VenueID: venueID, Priority: 2, Predicate: Predicate{AnyTag: []string{"steak"}}, StationKeys: []string{"GRILL"}},
	}, "KITCHEN")

	got := engine.Route(Snapshot{Category: "hot", Tags: []string{"steak"}})
	assert.Equal(t, []string{"GRILL", "EXPO"}, got)
}

func TestRouteModifierGroupPredicate(t *testing.T) {
	engine := NewEngine([]Rule{
		{ID: uuid.New(), Priority: 1, Predicate: Predicate{ModifierGroup: "side-salad"}, StationKeys: []string{"COLD"}},
	}, "KITCHEN")

	assert.Equal(t, []string{"COLD"}, engine.Route(Snapshot{ModifierGroupIDs: []string{"side-salad"}}))
	assert.Equal(t, []string{"KITCHEN"}, engine.Route(Snapshot{ModifierGroupIDs: []string{"extra-cheese"}}))
}

func TestRouteIsDeterministic(t *testing.T) {
	venueID := uuid.New()
	engine := NewEngine([]Rule{
		{ID: uuid.New(), VenueID: venueID, Priority: 2, Predicate: Predicate{AnyTag: []string{"raw"}}, StationKeys: []string{"SUSHI"}},
		{ID: uuid.New(), VenueID: venueID, Priority: 1, Predicate: Predicate{Category: "fish"}, StationKeys: []string{"FISH"}},
	}, "KITCHEN")

	snapshot := Snapshot{Category: "fish", Tags: []string{"raw"}}
	first := engine.Route(snapshot)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, engine.Route(snapshot))
	}
}

func TestPredicateAllFieldsMustMatch(t *testing.T) {
	p := Predicate{Category: "hot", AnyTag: []string{"grilled"}}
	assert.True(t, p.Matches(Snapshot{Category: "hot", Tags: []string{"grilled", "spicy"}}))
	assert.False(t, p.Matches(Snapshot{Category: "hot", Tags: []string{"spicy"}}))
	assert.False(t, p.Matches(Snapshot{Category: "cold", Tags: []string{"grilled"}}))
}
