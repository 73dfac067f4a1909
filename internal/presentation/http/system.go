package httppresentation

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	outboxworker "github.com/tablekit/backhouse/internal/infrastructure/outbox"

	"github.com/tablekit/backhouse/internal/domain/fault"
	"github.com/tablekit/backhouse/internal/infrastructure/janitor"
)

// heartbeatStaleAfter marks a worker degraded when its last beat is older.
const heartbeatStaleAfter = 2 * time.Minute

type healthResponse struct {
	Status  string                `json:"status"`
	Build   BuildInfo             `json:"build"`
	Outbox  healthOutbox          `json:"outbox"`
	Workers map[string]workerBeat `json:"workers"`
}

type healthOutbox struct {
	Pending     int64 `json:"pending"`
	DeadLetters int64 `json:"dead_letters"`
}

type workerBeat struct {
	LastBeat   *time.Time `json:"last_beat,omitempty"`
	AgeSeconds *int64     `json:"age_seconds,omitempty"`
	Healthy    bool       `json:"healthy"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:  "ok",
		Build:   h.build,
		Workers: map[string]workerBeat{},
	}

	if pending, err := h.outbox.CountPending(r.Context()); err == nil {
		resp.Outbox.Pending = pending
	}
	if dead, err := h.outbox.CountDeadLetters(r.Context()); err == nil {
		resp.Outbox.DeadLetters = dead
	}

	now := h.now()
	for _, name := range []string{outboxworker.WorkerName, janitor.WorkerName} {
		beat := workerBeat{}
		last, err := h.heartbeats.Last(r.Context(), name)
		if err == nil && !last.IsZero() {
			t := last.UTC()
			age := int64(now.Sub(last).Seconds())
			beat.LastBeat = &t
			beat.AgeSeconds = &age
			beat.Healthy = now.Sub(last) < heartbeatStaleAfter
		}
		if !beat.Healthy {
			resp.Status = "degraded"
		}
		resp.Workers[name] = beat
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func (h *Handler) handleAudit(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFrom(r.Context())

	venueID := claims.VenueID
	if raw := r.URL.Query().Get("venue_id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			writeFault(w, r, fault.New(fault.CodeValidation, "invalid venue_id"))
			return
		}
		venueID = parsed
	}
	if err := requireVenue(claims, venueID); err != nil {
		writeFault(w, r, err)
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}

	entries, err := h.auditTrail.List(r.Context(), venueID, limit)
	if err != nil {
		writeFault(w, r, fault.Wrap(fault.CodeInternal, "list audit entries", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
