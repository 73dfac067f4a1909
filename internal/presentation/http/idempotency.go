package httppresentation

import (
	"bytes"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/tablekit/backhouse/internal/domain/fault"
	domain "github.com/tablekit/backhouse/internal/domain/idempotency"
	"github.com/tablekit/backhouse/internal/observability"
	"github.com/tablekit/backhouse/internal/observability/logctx"
)

const (
	headerIdempotencyKey      = "X-Idempotency-Key"
	headerIdempotencyKeyAlias = "Idempotency-Key"
	headerOfflineReplay       = "X-Offline-Replay"
	headerReplayed            = "Idempotency-Replayed"
)

// maxIdempotencyKeyLen bounds client-chosen keys; they double as document ids.
const maxIdempotencyKeyLen = 128

// idempotencyMiddleware dedupes mutating requests carrying an idempotency key
// (X-Idempotency-Key, with the unprefixed header accepted as an alias).
// A cached JSON success is replayed byte for byte without touching the handler;
// a cached failure lets the retry through. Requests without a key pass through.
type idempotencyMiddleware struct {
	repo domain.Repository
	ttl  time.Duration
	now  func() time.Time
	log  observability.Logger
	tel  observability.Telemetry
}

func newIdempotencyMiddleware(repo domain.Repository, ttl time.Duration, logger observability.Logger, tel observability.Telemetry) *idempotencyMiddleware {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if tel == nil {
		tel = observability.NopTelemetry()
	}
	return &idempotencyMiddleware{
		repo: repo,
		ttl:  ttl,
		now:  time.Now,
		log:  logger.With(observability.F("component", "idempotency")),
		tel:  tel,
	}
}

func (m *idempotencyMiddleware) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			next.ServeHTTP(w, r)
			return
		}
		key := r.Header.Get(headerIdempotencyKey)
		if key == "" {
			key = r.Header.Get(headerIdempotencyKeyAlias)
		}
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}
		if len(key) > maxIdempotencyKeyLen {
			writeFault(w, r, fault.Newf(fault.CodeValidation, "idempotency key longer than %d characters", maxIdempotencyKeyLen))
			return
		}

		now := m.now()
		cached, err := m.repo.Get(r.Context(), key)
		switch {
		case err == nil && !cached.Expired(now) && cached.StatusCode < http.StatusBadRequest:
			m.tel.Counter("idempotent_replays_total").Add(1)
			logctx.FromOr(r.Context(), m.log).Info("idempotent_replay",
				observability.F("key", key),
				observability.F("path", r.URL.Path),
			)
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set(headerReplayed, "true")
			w.WriteHeader(cached.StatusCode)
			_, _ = w.Write(cached.ResponseBody)
			return
		case err != nil && !errors.Is(err, domain.ErrNotFound):
			logctx.FromOr(r.Context(), m.log).Warn("idempotency_lookup_failed",
				observability.F("error", err),
			)
		}

		rec := &captureWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		contentType := rec.Header().Get("Content-Type")
		if rec.status >= http.StatusOK && rec.status < http.StatusMultipleChoices &&
			strings.HasPrefix(contentType, "application/json") {
			record := &domain.Record{
				Key:           key,
				Method:        r.Method,
				Path:          r.URL.Path,
				StatusCode:    rec.status,
				ResponseBody:  rec.body.Bytes(),
				DeviceID:      r.Header.Get(headerDeviceID),
				OfflineReplay: r.Header.Get(headerOfflineReplay) == "true",
				CreatedAt:     now.UTC(),
				ExpiresAt:     now.Add(m.ttl).UTC(),
			}
			if err := m.repo.Put(r.Context(), record); err != nil {
				logctx.FromOr(r.Context(), m.log).Warn("idempotency_store_failed",
					observability.F("key", key),
					observability.F("error", err),
				)
			}
		}
	})
}

// captureWriter tees the response so a success can be cached for replay.
type captureWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (w *captureWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *captureWriter) Write(p []byte) (int, error) {
	w.body.Write(p)
	return w.ResponseWriter.Write(p)
}
