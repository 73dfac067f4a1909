package httppresentation

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	appinventory "github.com/tablekit/backhouse/internal/application/inventory"
	"github.com/tablekit/backhouse/internal/domain/fault"
	"github.com/tablekit/backhouse/internal/domain/ledger"
)

type appendLedgerRequest struct {
	VenueID    uuid.UUID     `json:"venue_id"`
	ItemID     uuid.UUID     `json:"item_id"`
	Action     ledger.Action `json:"action"`
	Quantity   float64       `json:"quantity"`
	LotNumber  string        `json:"lot_number,omitempty"`
	ExpiryDate *time.Time    `json:"expiry_date,omitempty"`
	Reason     string        `json:"reason,omitempty"`
	Source     ledger.Source `json:"source"`
}

func (h *Handler) handleAppendLedger(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFrom(r.Context())
	var req appendLedgerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFault(w, r, err)
		return
	}
	if err := requireVenue(claims, req.VenueID); err != nil {
		writeFault(w, r, err)
		return
	}

	entry, err := h.inventory.Append(r.Context(), appinventory.AppendInput{
		VenueID:    req.VenueID,
		ItemID:     req.ItemID,
		Action:     req.Action,
		Quantity:   req.Quantity,
		LotNumber:  req.LotNumber,
		ExpiryDate: req.ExpiryDate,
		Reason:     req.Reason,
		Source:     req.Source,
		Actor:      claims.UserID,
	})
	if err != nil {
		writeFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (h *Handler) ledgerQueryScope(r *http.Request) (uuid.UUID, uuid.UUID, error) {
	claims, _ := claimsFrom(r.Context())

	venueID := claims.VenueID
	if raw := r.URL.Query().Get("venue_id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			return uuid.Nil, uuid.Nil, fault.New(fault.CodeValidation, "invalid venue_id")
		}
		venueID = parsed
	}
	if err := requireVenue(claims, venueID); err != nil {
		return uuid.Nil, uuid.Nil, err
	}

	var itemID uuid.UUID
	if raw := r.URL.Query().Get("item_id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			return uuid.Nil, uuid.Nil, fault.New(fault.CodeValidation, "invalid item_id")
		}
		itemID = parsed
	}
	return venueID, itemID, nil
}

func (h *Handler) handleListLedger(w http.ResponseWriter, r *http.Request) {
	venueID, itemID, err := h.ledgerQueryScope(r)
	if err != nil {
		writeFault(w, r, err)
		return
	}
	if itemID == uuid.Nil {
		writeFault(w, r, fault.New(fault.CodeValidation, "item_id is required"))
		return
	}
	entries, err := h.inventory.ListByItem(r.Context(), venueID, itemID)
	if err != nil {
		writeFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *Handler) handleLedgerBalance(w http.ResponseWriter, r *http.Request) {
	venueID, itemID, err := h.ledgerQueryScope(r)
	if err != nil {
		writeFault(w, r, err)
		return
	}
	if itemID == uuid.Nil {
		writeFault(w, r, fault.New(fault.CodeValidation, "item_id is required"))
		return
	}

	balance, err := h.inventory.Balance(r.Context(), venueID, itemID)
	if err != nil {
		writeFault(w, r, err)
		return
	}
	level, err := h.inventory.OnHand(r.Context(), venueID, itemID)
	if err != nil {
		writeFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"venue_id": venueID,
		"item_id":  itemID,
		"balance":  balance,
		"on_hand":  level.OnHand,
	})
}

func (h *Handler) handleLedgerVerify(w http.ResponseWriter, r *http.Request) {
	venueID, _, err := h.ledgerQueryScope(r)
	if err != nil {
		writeFault(w, r, err)
		return
	}

	bad, err := h.inventory.VerifyChain(r.Context(), venueID)
	if err != nil {
		writeFault(w, r, err)
		return
	}
	body := map[string]any{"venue_id": venueID, "intact": bad == nil}
	if bad != nil {
		body["first_broken_entry"] = bad
	}
	writeJSON(w, http.StatusOK, body)
}
