package ticket

import (
	"time"

	"github.com/tablekit/backhouse/internal/domain/fault"
)

// legal edges of the ticket graph. Hold and undo are handled separately
// because their targets depend on recorded prior state.
var legal = map[Status][]Status{
	StatusNew:       {StatusPreparing, StatusOnHold},
	StatusPreparing: {StatusReady, StatusOnHold},
	StatusReady:     {StatusCompleted, StatusOnHold},
	StatusOnHold:    {}, // only resume leaves ON_HOLD
	StatusCompleted: {},
	StatusRecalled:  {},
}

// next is the bump order along the happy path.
var next = map[Status]Status{
	StatusNew:       StatusPreparing,
	StatusPreparing: StatusReady,
	StatusReady:     StatusCompleted,
}

func allows(from, to Status) bool {
	for _, s := range legal[from] {
		if s == to {
			return true
		}
	}
	return false
}

func illegalTransition(observed, requested Status) *fault.Error {
	return fault.Newf(fault.CodeIllegalTransition, "transition %s -> %s is not allowed", observed, requested).
		WithDetail("observed", string(observed)).
		WithDetail("requested", string(requested))
}

// Transition moves the ticket to a named state, stamping the transition
// timestamp, the actor, and a fresh undo window.
func (t *Ticket) Transition(to Status, actor string, now time.Time, undoWindow time.Duration) error {
	if !allows(t.Status, to) {
		return illegalTransition(t.Status, to)
	}
	t.apply(to, actor, now, undoWindow)
	return nil
}

// Bump advances along NEW -> PREPARING -> READY -> COMPLETED.
func (t *Ticket) Bump(actor string, now time.Time, undoWindow time.Duration) error {
	to, ok := next[t.Status]
	if !ok {
		return fault.Newf(fault.CodeIllegalTransition, "cannot bump from %s", t.Status).
			WithDetail("observed", string(t.Status)).
			WithDetail("operation", "bump")
	}
	return t.Transition(to, actor, now, undoWindow)
}

// Hold suspends work, remembering where resume should return.
func (t *Ticket) Hold(actor string, now time.Time, undoWindow time.Duration) error {
	if !allows(t.Status, StatusOnHold) {
		return illegalTransition(t.Status, StatusOnHold)
	}
	resumeTo := t.Status
	t.apply(StatusOnHold, actor, now, undoWindow)
	t.ResumeTo = resumeTo
	return nil
}

// Resume leaves ON_HOLD back to the suspended state.
func (t *Ticket) Resume(actor string, now time.Time, undoWindow time.Duration) error {
	if t.Status != StatusOnHold || t.ResumeTo == "" {
		return illegalTransition(t.Status, t.ResumeTo)
	}
	to := t.ResumeTo
	t.apply(to, actor, now, undoWindow)
	t.ResumeTo = ""
	return nil
}

// Claim asserts exclusive ownership. Orthogonal to status; last_action_by
// stays with the latest transition actor, so claiming never shifts who may undo.
func (t *Ticket) Claim(actor string, now time.Time) error {
	if t.ClaimLock {
		return fault.Newf(fault.CodeClaimConflict, "ticket already claimed by %s", t.ClaimedBy).
			WithDetail("claimed_by", t.ClaimedBy)
	}
	at := now.UTC()
	t.ClaimLock = true
	t.ClaimedBy = actor
	t.ClaimedAt = &at
	t.UpdatedAt = at
	return nil
}

// Release clears the claim lock without changing status or undo ownership.
func (t *Ticket) Release(actor string, now time.Time) {
	t.ClaimLock = false
	t.ClaimedBy = ""
	t.ClaimedAt = nil
	t.UpdatedAt = now.UTC()
}

// Undo reverts the last transition. Only the original actor (or an override)
// may undo, and only until undo_until.
func (t *Ticket) Undo(actor string, override bool, now time.Time) error {
	if t.PrevStatus == "" || t.UndoUntil == nil {
		return fault.New(fault.CodeIllegalState, "nothing to undo")
	}
	if !now.Before(*t.UndoUntil) {
		return fault.New(fault.CodeUndoExpired, "undo window has expired").
			WithDetail("undo_until", t.UndoUntil.UTC().Format(time.RFC3339))
	}
	if !override && actor != t.LastActionBy {
		return fault.Newf(fault.CodeIllegalState, "undo allowed only for %s", t.LastActionBy)
	}

	t.Status = t.PrevStatus
	t.PrevStatus = ""
	t.UndoUntil = nil
	t.touch(actor, now)
	return nil
}

func (t *Ticket) apply(to Status, actor string, now time.Time, undoWindow time.Duration) {
	at := now.UTC()
	t.PrevStatus = t.Status
	t.Status = to
	switch to {
	case StatusPreparing:
		t.PreparingAt = &at
	case StatusReady:
		t.ReadyAt = &at
	case StatusOnHold:
		t.OnHoldAt = &at
	case StatusCompleted:
		t.CompletedAt = &at
	}
	until := at.Add(undoWindow)
	t.UndoUntil = &until
	t.touch(actor, now)
}

func (t *Ticket) touch(actor string, now time.Time) {
	t.LastActionBy = actor
	t.LastActionAt = now.UTC()
	t.UpdatedAt = now.UTC()
}

// --- item shadow machine ---

var itemNext = map[ItemStatus]ItemStatus{
	ItemPending:   ItemPreparing,
	ItemPreparing: ItemReady,
	ItemReady:     ItemCompleted,
}

// Bump advances the item shadow machine one step.
func (s *ItemState) Bump(now time.Time) error {
	to, ok := itemNext[s.Status]
	if !ok {
		return fault.Newf(fault.CodeIllegalTransition, "item transition from %s is not allowed", s.Status).
			WithDetail("observed", string(s.Status))
	}
	at := now.UTC()
	s.Status = to
	switch to {
	case ItemPreparing:
		s.PreparingAt = &at
	case ItemReady:
		s.ReadyAt = &at
	case ItemCompleted:
		s.CompletedAt = &at
	}
	return nil
}

// AggregateStatus derives the ticket status implied by its item shadows.
func AggregateStatus(items []*ItemState) Status {
	if len(items) == 0 {
		return StatusNew
	}
	allCompleted := true
	allReadyOrDone := true
	anyPreparing := false
	for _, it := range items {
		switch it.Status {
		case ItemCompleted:
		case ItemReady:
			allCompleted = false
		case ItemPreparing:
			anyPreparing = true
			allCompleted = false
			allReadyOrDone = false
		default:
			allCompleted = false
			allReadyOrDone = false
		}
	}
	switch {
	case allCompleted:
		return StatusCompleted
	case allReadyOrDone:
		return StatusReady
	case anyPreparing:
		return StatusPreparing
	default:
		return StatusNew
	}
}

// ReadyForCompletion reports whether every item shadow is READY or COMPLETED.
// Completing a ticket while an item is still PREPARING is refused.
func ReadyForCompletion(items []*ItemState) bool {
	for _, it := range items {
		if it.Status != ItemReady && it.Status != ItemCompleted {
			return false
		}
	}
	return true
}
