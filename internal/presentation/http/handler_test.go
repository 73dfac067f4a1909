package httppresentation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appinventory "github.com/tablekit/backhouse/internal/application/inventory"
	appkitchen "github.com/tablekit/backhouse/internal/application/kitchen"
	apporder "github.com/tablekit/backhouse/internal/application/order"
	"github.com/tablekit/backhouse/internal/auth"
	"github.com/tablekit/backhouse/internal/infrastructure/auditlog"
	"github.com/tablekit/backhouse/internal/infrastructure/id"
	"github.com/tablekit/backhouse/internal/infrastructure/janitor"
	"github.com/tablekit/backhouse/internal/infrastructure/memory"
	outboxinfra "github.com/tablekit/backhouse/internal/infrastructure/outbox"
)

type apiHarness struct {
	router     http.Handler
	codec      *auth.Codec
	heartbeats *memory.HeartbeatRepository
	venueID    uuid.UUID
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()

	h := &apiHarness{
		codec:      auth.NewCodec([]byte("test-secret")),
		heartbeats: memory.NewHeartbeatRepository(),
		venueID:    uuid.New(),
	}

	orders := memory.NewOrderRepository()
	tickets := memory.NewTicketRepository()
	itemStates := memory.NewItemStateRepository()
	outboxRepo := memory.NewOutboxRepository()
	auditRepo := memory.NewAuditRepository()

	gen := id.NewGenerator(memory.NewCounterRepository())
	publisher := outboxinfra.NewPublisher(outboxRepo, 3, nil)
	auditor := auditlog.New(auditRepo, nil)

	orderSvc := apporder.NewService(orders, tickets, itemStates, memory.NewRoutingRepository(), gen, publisher, auditor, "KITCHEN", nil)
	kitchenSvc := appkitchen.NewService(tickets, itemStates, publisher, auditor, 30*time.Second, nil, nil)
	inventorySvc := appinventory.NewService(memory.NewLedgerRepository(), memory.NewStockRepository(), gen, publisher, auditor, 0, nil, nil)

	handler := NewHandler(HandlerDeps{
		Orders:     orderSvc,
		Kitchen:    kitchenSvc,
		Inventory:  inventorySvc,
		AuditTrail: auditRepo,
		Outbox:     outboxRepo,
		Heartbeats: h.heartbeats,
		Codec:      h.codec,
	})
	h.router = handler.Router()
	return h
}

func (h *apiHarness) token(t *testing.T, venueIDs ...uuid.UUID) string {
	t.Helper()
	token, err := h.codec.Sign(auth.Claims{
		UserID:          "u-1",
		VenueID:         h.venueID,
		Role:            "server",
		AllowedVenueIDs: venueIDs,
		ExpiresAt:       time.Now().Add(time.Hour).Unix(),
	})
	require.NoError(t, err)
	return token
}

func (h *apiHarness) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), "body: %s", rec.Body.String())
}

func TestHealthzReflectsWorkerHeartbeats(t *testing.T) {
	h := newAPIHarness(t)

	rec := h.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code, "no worker has ever beaten")

	now := time.Now()
	require.NoError(t, h.heartbeats.Beat(context.Background(), outboxinfra.WorkerName, now))
	require.NoError(t, h.heartbeats.Beat(context.Background(), janitor.WorkerName, now))

	rec = h.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Status string `json:"status"`
	}
	decodeBody(t, rec, &resp)
	assert.Equal(t, "ok", resp.Status)
	assert.NotEmpty(t, rec.Header().Get(headerRequestID))
}

func TestAuthRequired(t *testing.T) {
	h := newAPIHarness(t)

	rec := h.do(t, http.MethodPost, "/orders", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(t, http.MethodPost, "/orders", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTenantBoundaryOnCreate(t *testing.T) {
	h := newAPIHarness(t)
	token := h.token(t, h.venueID)

	foreign := uuid.New()
	rec := h.do(t, http.MethodPost, "/orders", token, map[string]any{
		"venue_id": foreign,
		"table_id": "T1",
		"items": []map[string]any{
			{"menu_item_id": uuid.New(), "name": "Soup", "unit_price": 600, "quantity": 1},
		},
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	var resp struct {
		Code string `json:"code"`
	}
	decodeBody(t, rec, &resp)
	assert.Equal(t, "TENANT_DENIED", resp.Code)
}

func TestOrderLifecycleOverHTTP(t *testing.T) {
	h := newAPIHarness(t)
	token := h.token(t, h.venueID)

	rec := h.do(t, http.MethodPost, "/orders", token, map[string]any{
		"venue_id":  h.venueID,
		"table_id":  "T4",
		"server_id": "srv-1",
		"items": []map[string]any{
			{"menu_item_id": uuid.New(), "name": "Soup", "unit_price": 600, "quantity": 2},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var order struct {
		ID        uuid.UUID `json:"id"`
		DisplayID string    `json:"display_id"`
		Total     int64     `json:"total"`
	}
	decodeBody(t, rec, &order)
	assert.Equal(t, "ORD-000001", order.DisplayID)
	assert.Equal(t, int64(1200), order.Total)

	rec = h.do(t, http.MethodPost, fmt.Sprintf("/orders/%s/send", order.ID), token, map[string]any{
		"send_client_id": "send-1",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var sent struct {
		TicketIDs []uuid.UUID `json:"ticket_ids"`
	}
	decodeBody(t, rec, &sent)
	require.Len(t, sent.TicketIDs, 1)

	rec = h.do(t, http.MethodPost, fmt.Sprintf("/kds/tickets/%s/bump", sent.TicketIDs[0]), token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var ticket struct {
		Status string `json:"status"`
	}
	decodeBody(t, rec, &ticket)
	assert.Equal(t, "PREPARING", ticket.Status)

	rec = h.do(t, http.MethodPost, fmt.Sprintf("/orders/%s/close", order.ID), token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestCreateOrderRejectsUnknownFields(t *testing.T) {
	h := newAPIHarness(t)
	token := h.token(t, h.venueID)

	rec := h.do(t, http.MethodPost, "/orders", token, map[string]any{
		"venue_id": h.venueID,
		"surprise": true,
		"table_id": "T1",
		"items":    []map[string]any{},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetUnknownOrderIs404(t *testing.T) {
	h := newAPIHarness(t)
	token := h.token(t, h.venueID)

	rec := h.do(t, http.MethodGet, "/orders/"+uuid.NewString(), token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(t, http.MethodGet, "/orders/not-a-uuid", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLedgerEndpoints(t *testing.T) {
	h := newAPIHarness(t)
	token := h.token(t, h.venueID)
	itemID := uuid.New()

	for _, movement := range []map[string]any{
		{"venue_id": h.venueID, "item_id": itemID, "action": "IN", "quantity": 10},
		{"venue_id": h.venueID, "item_id": itemID, "action": "OUT", "quantity": 4},
	} {
		rec := h.do(t, http.MethodPost, "/inventory/ledger", token, movement)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec := h.do(t, http.MethodGet, fmt.Sprintf("/inventory/ledger/balance?venue_id=%s&item_id=%s", h.venueID, itemID), token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var balance struct {
		Balance float64 `json:"balance"`
		OnHand  float64 `json:"on_hand"`
	}
	decodeBody(t, rec, &balance)
	assert.InDelta(t, 6, balance.Balance, 1e-9)
	assert.InDelta(t, 6, balance.OnHand, 1e-9)

	rec = h.do(t, http.MethodGet, "/inventory/ledger/verify?venue_id="+h.venueID.String(), token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var verify struct {
		Intact bool `json:"intact"`
	}
	decodeBody(t, rec, &verify)
	assert.True(t, verify.Intact)
}
