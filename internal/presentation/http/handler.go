package httppresentation

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	appinventory "github.com/tablekit/backhouse/internal/application/inventory"
	appkitchen "github.com/tablekit/backhouse/internal/application/kitchen"
	apporder "github.com/tablekit/backhouse/internal/application/order"
	"github.com/tablekit/backhouse/internal/auth"
	"github.com/tablekit/backhouse/internal/domain/audit"
	"github.com/tablekit/backhouse/internal/domain/fault"
	"github.com/tablekit/backhouse/internal/domain/idempotency"
	domainorder "github.com/tablekit/backhouse/internal/domain/order"
	domoutbox "github.com/tablekit/backhouse/internal/domain/outbox"
	"github.com/tablekit/backhouse/internal/observability"
)

const componentHTTPHandler = "http_server"

// BuildInfo is stamped at compile time and echoed by the health surface.
type BuildInfo struct {
	BuildID string `json:"build_id,omitempty"`
	GitSHA  string `json:"git_sha,omitempty"`
	BuiltAt string `json:"built_at,omitempty"`
}

type Handler struct {
	orders    *apporder.Service
	kitchen   *appkitchen.Service
	inventory *appinventory.Service

	auditTrail audit.Repository
	outbox     domoutbox.Repository
	heartbeats domoutbox.HeartbeatRepository

	hub     *EventHub
	codec   *auth.Codec
	limiter *rateLimiter
	idem    *idempotencyMiddleware

	build          BuildInfo
	metricsHandler http.Handler
	now            func() time.Time
	log            observability.Logger
	tel            observability.Telemetry
}

type HandlerDeps struct {
	Orders    *apporder.Service
	Kitchen   *appkitchen.Service
	Inventory *appinventory.Service

	AuditTrail audit.Repository
	Outbox     domoutbox.Repository
	Heartbeats domoutbox.HeartbeatRepository

	Hub     *EventHub
	Codec   *auth.Codec
	Limiter *rateLimiter
	Idem    *idempotencyMiddleware

	Build          BuildInfo
	MetricsHandler http.Handler
	Logger         observability.Logger
	Telemetry      observability.Telemetry
}

func NewHandler(d HandlerDeps) *Handler {
	logger := d.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}
	tel := d.Telemetry
	if tel == nil {
		tel = observability.NopTelemetry()
	}
	return &Handler{
		orders:         d.Orders,
		kitchen:        d.Kitchen,
		inventory:      d.Inventory,
		auditTrail:     d.AuditTrail,
		outbox:         d.Outbox,
		heartbeats:     d.Heartbeats,
		hub:            d.Hub,
		codec:          d.Codec,
		limiter:        d.Limiter,
		idem:           d.Idem,
		build:          d.Build,
		metricsHandler: d.MetricsHandler,
		now:            time.Now,
		log:            logger.With(observability.F("component", componentHTTPHandler)),
		tel:            tel,
	}
}

// NewRateLimiter and NewIdempotency expose the middleware constructors for
// composition in main.
func NewRateLimiter(defaultRPM int, overrides map[string]int, tel observability.Telemetry) *rateLimiter {
	return newRateLimiter(defaultRPM, overrides, tel)
}

func NewIdempotency(repo idempotency.Repository, ttl time.Duration, logger observability.Logger, tel observability.Telemetry) *idempotencyMiddleware {
	return newIdempotencyMiddleware(repo, ttl, logger, tel)
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(observabilityMiddleware(h.log, h.tel))

	// Unauthenticated operational surface.
	r.Get("/healthz", h.handleHealth)
	if h.metricsHandler != nil {
		r.Handle("/metrics", h.metricsHandler)
	}

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware(h.codec, h.now))
		if h.limiter != nil {
			r.Use(h.limiter.middleware)
		}
		if h.idem != nil {
			r.Use(h.idem.wrap)
		}

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", h.handleCreateOrder)
			r.Get("/{id}", h.handleGetOrder)
			r.Post("/{id}/send", h.handleSendOrder)
			r.Post("/{id}/close", h.handleCloseOrder)
			r.Post("/{id}/void", h.handleVoidOrder)
		})

		r.Route("/kds/tickets", func(r chi.Router) {
			r.Get("/", h.handleListTickets)
			r.Get("/{id}", h.handleGetTicket)
			r.Post("/{id}/bump", h.handleBumpTicket)
			r.Post("/{id}/undo", h.handleUndoTicket)
			r.Post("/{id}/claim", h.handleClaimTicket)
			r.Post("/{id}/release", h.handleReleaseTicket)
			r.Post("/{id}/hold", h.handleHoldTicket)
			r.Post("/{id}/resume", h.handleResumeTicket)
			r.Post("/{id}/items/{itemID}/bump", h.handleBumpTicketItem)
		})

		r.Route("/inventory/ledger", func(r chi.Router) {
			r.Post("/", h.handleAppendLedger)
			r.Get("/", h.handleListLedger)
			r.Get("/balance", h.handleLedgerBalance)
			r.Get("/verify", h.handleLedgerVerify)
		})

		if h.hub != nil {
			r.Get("/events", h.hub.ServeHTTP)
		}
		r.Get("/audit", h.handleAudit)
	})

	return r
}

// --- order handlers ---

type createOrderRequest struct {
	VenueID  uuid.UUID          `json:"venue_id"`
	TableID  string             `json:"table_id"`
	ServerID string             `json:"server_id"`
	Tax      int64              `json:"tax"`
	Items    []domainorder.Item `json:"items"`
}

func (h *Handler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFrom(r.Context())
	var req createOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFault(w, r, err)
		return
	}
	if err := requireVenue(claims, req.VenueID); err != nil {
		writeFault(w, r, err)
		return
	}

	o, err := h.orders.Create(r.Context(), apporder.CreateInput{
		VenueID:  req.VenueID,
		TableID:  req.TableID,
		ServerID: req.ServerID,
		Items:    req.Items,
		Tax:      req.Tax,
		Actor:    claims.UserID,
	})
	if err != nil {
		writeFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFrom(r.Context())
	id, err := pathUUID(r, "id")
	if err != nil {
		writeFault(w, r, err)
		return
	}
	o, err := h.orders.Get(r.Context(), id)
	if err != nil {
		writeFault(w, r, err)
		return
	}
	if err := requireVenue(claims, o.VenueID); err != nil {
		writeFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

type sendOrderRequest struct {
	SendClientID string `json:"send_client_id"`
}

func (h *Handler) handleSendOrder(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFrom(r.Context())
	id, err := pathUUID(r, "id")
	if err != nil {
		writeFault(w, r, err)
		return
	}

	var req sendOrderRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeFault(w, r, err)
			return
		}
	}

	o, err := h.orders.Get(r.Context(), id)
	if err != nil {
		writeFault(w, r, err)
		return
	}
	if err := requireVenue(claims, o.VenueID); err != nil {
		writeFault(w, r, err)
		return
	}

	tickets, err := h.orders.Send(r.Context(), id, req.SendClientID, claims.UserID)
	if err != nil {
		writeFault(w, r, err)
		return
	}

	ids := make([]uuid.UUID, 0, len(tickets))
	for _, t := range tickets {
		ids = append(ids, t.ID)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ticket_ids": ids,
		"tickets":    tickets,
	})
}

func (h *Handler) handleCloseOrder(w http.ResponseWriter, r *http.Request) {
	h.terminateOrder(w, r, h.orders.Close)
}

func (h *Handler) handleVoidOrder(w http.ResponseWriter, r *http.Request) {
	h.terminateOrder(w, r, h.orders.Void)
}

func (h *Handler) terminateOrder(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id uuid.UUID, actor string) (*domainorder.Order, error)) {
	claims, _ := claimsFrom(r.Context())
	id, err := pathUUID(r, "id")
	if err != nil {
		writeFault(w, r, err)
		return
	}
	o, err := h.orders.Get(r.Context(), id)
	if err != nil {
		writeFault(w, r, err)
		return
	}
	if err := requireVenue(claims, o.VenueID); err != nil {
		writeFault(w, r, err)
		return
	}
	o, err = op(r.Context(), id, claims.UserID)
	if err != nil {
		writeFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	raw := chi.URLParam(r, name)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fault.Newf(fault.CodeValidation, "invalid %s", name)
	}
	return id, nil
}
