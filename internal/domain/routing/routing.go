package routing

import (
	"context"
	"sort"

	"github.com/google/uuid"
)

// Snapshot is the slice of an order item the engine is allowed to see.
type Snapshot struct {
	Category         string
	Tags             []string
	ModifierGroupIDs []string
}

// Predicate matches a snapshot. Zero-valued fields are wildcards; set fields
// must all match.
type Predicate struct {
	Category      string   `bson:"category,omitempty" json:"category,omitempty"`
	AnyTag        []string `bson:"any_tag,omitempty" json:"any_tag,omitempty"`
	ModifierGroup string   `bson:"modifier_group,omitempty" json:"modifier_group,omitempty"`
}

func (p Predicate) Matches(s Snapshot) bool {
	if p.Category != "" && p.Category != s.Category {
		return false
	}
	if len(p.AnyTag) > 0 && !anyOverlap(p.AnyTag, s.Tags) {
		return false
	}
	if p.ModifierGroup != "" && !contains(s.ModifierGroupIDs, p.ModifierGroup) {
		return false
	}
	return true
}

// Rule routes matching items to its stations. Lower Priority wins ties.
type Rule struct {
	ID          uuid.UUID `bson:"_id" json:"id"`
	VenueID     uuid.UUID `bson:"venue_id" json:"venue_id"`
	Priority    int       `bson:"priority" json:"priority"`
	Predicate   Predicate `bson:"predicate" json:"predicate"`
	StationKeys []string  `bson:"station_keys" json:"station_keys"`
}

type Repository interface {
	ListByVenue(ctx context.Context, venueID uuid.UUID) ([]Rule, error)
	Insert(ctx context.Context, r Rule) error
}

// Engine evaluates rules against item snapshots. It is pure: identical inputs
// yield identical outputs, and Route never mutates its receiver.
type Engine struct {
	rules          []Rule
	defaultStation string
}

func NewEngine(rules []Rule, defaultStation string) *Engine {
	ordered := append([]Rule(nil), rules...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Priority < ordered[j].Priority })
	return &Engine{rules: ordered, defaultStation: defaultStation}
}

// Route returns the ordered station set for the snapshot. Stations are listed
// in rule-priority order, deduplicated. When no rule matches, the default
// station receives the item.
func (e *Engine) Route(s Snapshot) []string {
	var out []string
	seen := map[string]bool{}
	matched := false
	for _, r := range e.rules {
		if !r.Predicate.Matches(s) {
			continue
		}
		matched = true
		for _, key := range r.StationKeys {
			if !seen[key] {
				seen[key] = true
				out = append(out, key)
			}
		}
	}
	if !matched {
		return []string{e.defaultStation}
	}
	return out
}

func anyOverlap(want, have []string) bool {
	for _, w := range want {
		if contains(have, w) {
			return true
		}
	}
	return false
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
