package order

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	domain "github.com/tablekit/backhouse/internal/domain/order"
	domoutbox "github.com/tablekit/backhouse/internal/domain/outbox"
	domticket "github.com/tablekit/backhouse/internal/domain/ticket"
	"github.com/tablekit/backhouse/internal/observability"
)

// Reconciler folds ticket status changes back into the owning order's kitchen
// aggregate. It runs as an outbox subscriber on kds.ticket_status_changed, so
// it inherits at-least-once delivery; recomputing from the full ticket set
// makes redelivery harmless.
type Reconciler struct {
	orders    domain.Repository
	tickets   domticket.Repository
	publisher domoutbox.Publisher
	now       func() time.Time
	log       observability.Logger
}

func NewReconciler(orders domain.Repository, tickets domticket.Repository, publisher domoutbox.Publisher, logger observability.Logger) *Reconciler {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Reconciler{
		orders:    orders,
		tickets:   tickets,
		publisher: publisher,
		now:       time.Now,
		log:       logger.With(observability.F("component", "order_reconciler")),
	}
}

// WithNow overrides the clock. Tests only.
func (r *Reconciler) WithNow(now func() time.Time) *Reconciler {
	r.now = now
	return r
}

// Handle is the subscriber entrypoint for kds.ticket_status_changed.
func (r *Reconciler) Handle(ctx context.Context, e domoutbox.Event) error {
	var payload domticket.StatusChangedEvent
	if err := json.Unmarshal(e.Payload, &payload); err != nil {
		return fmt.Errorf("reconciler: decode %s: %w", e.Topic, err)
	}
	return r.Reconcile(ctx, payload.OrderID)
}

// Reconcile recomputes the order's kitchen aggregate from every ticket of the
// order and emits order.kds_status_changed only when the value moved.
func (r *Reconciler) Reconcile(ctx context.Context, orderID uuid.UUID) error {
	o, err := r.orders.Get(ctx, orderID)
	if err != nil {
		return fmt.Errorf("reconciler: load order: %w", err)
	}
	if o.IsTerminal() {
		return nil
	}

	tickets, err := r.tickets.ListByOrder(ctx, o.ID)
	if err != nil {
		return fmt.Errorf("reconciler: load tickets: %w", err)
	}
	if len(tickets) == 0 {
		return nil
	}

	next := aggregateKDS(tickets)
	if next == o.KDSStatus {
		return nil
	}

	previous := o.KDSStatus
	o.KDSStatus = next
	switch next {
	case domain.KDSPartiallyReady:
		o.Status = domain.StatusPartiallyReady
	case domain.KDSReadyToServe:
		o.Status = domain.StatusReadyToServe
	default:
		o.Status = domain.StatusSent
	}
	if err := r.orders.Update(ctx, o); err != nil {
		return fmt.Errorf("reconciler: persist order: %w", err)
	}

	if err := r.publisher.Publish(ctx, domain.TopicKDSStatusChanged, o.ID.String(), domain.KDSStatusChangedEvent{
		VenueID:    o.VenueID,
		OrderID:    o.ID,
		Previous:   previous,
		Current:    next,
		OccurredAt: r.now().UTC(),
	}); err != nil {
		return fmt.Errorf("reconciler: enqueue order.kds_status_changed: %w", err)
	}

	r.log.Info("order_kds_status_changed",
		observability.F("order_id", o.ID.String()),
		observability.F("previous", string(previous)),
		observability.F("current", string(next)),
	)
	return nil
}

// aggregateKDS maps the ticket set onto the order-level kitchen status.
// All tickets COMPLETED wins, then any READY, then any PREPARING.
func aggregateKDS(tickets []*domticket.Ticket) domain.KDSStatus {
	allCompleted := true
	anyReady := false
	anyPreparing := false
	for _, t := range tickets {
		if t.Status != domticket.StatusCompleted {
			allCompleted = false
		}
		switch t.Status {
		case domticket.StatusReady:
			anyReady = true
		case domticket.StatusPreparing:
			anyPreparing = true
		}
	}
	switch {
	case allCompleted:
		return domain.KDSReadyToServe
	case anyReady:
		return domain.KDSPartiallyReady
	case anyPreparing:
		return domain.KDSInProgress
	default:
		return domain.KDSSentToKitchen
	}
}
