package httppresentation

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablekit/backhouse/internal/domain/fault"
)

func TestRateLimiterExhaustsBudget(t *testing.T) {
	l := newRateLimiter(2, nil, nil)
	l.now = func() time.Time { return t0 }

	assert.True(t, l.allow("/orders", "u-1"))
	assert.True(t, l.allow("/orders", "u-1"))
	assert.False(t, l.allow("/orders", "u-1"))

	// a different caller has its own bucket
	assert.True(t, l.allow("/orders", "u-2"))
}

func TestRateLimiterRefillsOverTime(t *testing.T) {
	l := newRateLimiter(60, nil, nil)
	clock := t0
	l.now = func() time.Time { return clock }

	for i := 0; i < 60; i++ {
		require.True(t, l.allow("/orders", "u-1"))
	}
	require.False(t, l.allow("/orders", "u-1"))

	clock = clock.Add(time.Second)
	assert.True(t, l.allow("/orders", "u-1"))
}

func TestRateLimitedResponseEnvelope(t *testing.T) {
	l := newRateLimiter(1, nil, nil)
	l.now = func() time.Time { return t0 }

	r := chi.NewRouter()
	r.Use(l.middleware)
	r.Post("/orders", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})

	post := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/orders", nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	require.Equal(t, http.StatusCreated, post().Code)

	rec := post()
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	var resp struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(fault.CodeRateLimited), resp.Code)
}
