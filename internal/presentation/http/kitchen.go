package httppresentation

import (
	"net/http"

	"github.com/google/uuid"

	domticket "github.com/tablekit/backhouse/internal/domain/ticket"
)

func (h *Handler) handleListTickets(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFrom(r.Context())

	venueID := claims.VenueID
	if raw := r.URL.Query().Get("venue_id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err == nil {
			venueID = parsed
		}
	}
	if err := requireVenue(claims, venueID); err != nil {
		writeFault(w, r, err)
		return
	}

	f := domticket.Filter{VenueID: &venueID}
	if station := r.URL.Query().Get("station"); station != "" {
		f.StationKey = &station
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := domticket.Status(raw)
		f.Status = &status
	}

	tickets, err := h.kitchen.List(r.Context(), f)
	if err != nil {
		writeFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tickets": tickets})
}

func (h *Handler) handleGetTicket(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFrom(r.Context())
	id, err := pathUUID(r, "id")
	if err != nil {
		writeFault(w, r, err)
		return
	}
	t, err := h.kitchen.Get(r.Context(), id)
	if err != nil {
		writeFault(w, r, err)
		return
	}
	if err := requireVenue(claims, t.VenueID); err != nil {
		writeFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

type ticketOp func(w http.ResponseWriter, r *http.Request, id uuid.UUID, actor string)

func (h *Handler) ticketAction(w http.ResponseWriter, r *http.Request, op ticketOp) {
	claims, _ := claimsFrom(r.Context())
	id, err := pathUUID(r, "id")
	if err != nil {
		writeFault(w, r, err)
		return
	}
	t, err := h.kitchen.Get(r.Context(), id)
	if err != nil {
		writeFault(w, r, err)
		return
	}
	if err := requireVenue(claims, t.VenueID); err != nil {
		writeFault(w, r, err)
		return
	}
	op(w, r, id, claims.UserID)
}

func (h *Handler) handleBumpTicket(w http.ResponseWriter, r *http.Request) {
	h.ticketAction(w, r, func(w http.ResponseWriter, r *http.Request, id uuid.UUID, actor string) {
		t, err := h.kitchen.Bump(r.Context(), id, actor)
		if err != nil {
			writeFault(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	})
}

func (h *Handler) handleUndoTicket(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFrom(r.Context())
	h.ticketAction(w, r, func(w http.ResponseWriter, r *http.Request, id uuid.UUID, actor string) {
		t, err := h.kitchen.Undo(r.Context(), id, actor, claims.CanOverride())
		if err != nil {
			writeFault(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	})
}

func (h *Handler) handleClaimTicket(w http.ResponseWriter, r *http.Request) {
	h.ticketAction(w, r, func(w http.ResponseWriter, r *http.Request, id uuid.UUID, actor string) {
		t, err := h.kitchen.Claim(r.Context(), id, actor)
		if err != nil {
			writeFault(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	})
}

func (h *Handler) handleReleaseTicket(w http.ResponseWriter, r *http.Request) {
	h.ticketAction(w, r, func(w http.ResponseWriter, r *http.Request, id uuid.UUID, actor string) {
		t, err := h.kitchen.Release(r.Context(), id, actor)
		if err != nil {
			writeFault(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	})
}

func (h *Handler) handleHoldTicket(w http.ResponseWriter, r *http.Request) {
	h.ticketAction(w, r, func(w http.ResponseWriter, r *http.Request, id uuid.UUID, actor string) {
		t, err := h.kitchen.Hold(r.Context(), id, actor)
		if err != nil {
			writeFault(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	})
}

func (h *Handler) handleResumeTicket(w http.ResponseWriter, r *http.Request) {
	h.ticketAction(w, r, func(w http.ResponseWriter, r *http.Request, id uuid.UUID, actor string) {
		t, err := h.kitchen.Resume(r.Context(), id, actor)
		if err != nil {
			writeFault(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	})
}

func (h *Handler) handleBumpTicketItem(w http.ResponseWriter, r *http.Request) {
	h.ticketAction(w, r, func(w http.ResponseWriter, r *http.Request, id uuid.UUID, actor string) {
		itemID, err := pathUUID(r, "itemID")
		if err != nil {
			writeFault(w, r, err)
			return
		}
		state, err := h.kitchen.BumpItem(r.Context(), id, itemID, actor)
		if err != nil {
			writeFault(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, state)
	})
}
