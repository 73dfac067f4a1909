package httppresentation

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/tablekit/backhouse/internal/auth"
	"github.com/tablekit/backhouse/internal/domain/fault"
	"github.com/tablekit/backhouse/internal/observability"
	"github.com/tablekit/backhouse/internal/observability/logctx"
)

const (
	headerRequestID = "X-Request-ID"
	headerDeviceID  = "X-Device-ID"
)

type claimsKey struct{}

func claimsFrom(ctx context.Context) (auth.Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(auth.Claims)
	return c, ok
}

// observabilityMiddleware combines:
// - W3C Trace Context extraction + a server span per request
// - request-scoped logger injection (dynamic fields only)
// - X-Request-ID generation + echo
// - HTTP metrics (counter + histogram) with low-cardinality route labels
func observabilityMiddleware(base observability.Logger, tel observability.Telemetry) func(http.Handler) http.Handler {
	if base == nil {
		base = observability.NopLogger()
	}
	if tel == nil {
		tel = observability.NopTelemetry()
	}
	prop := otel.GetTextMapPropagator()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := prop.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

			rid := r.Header.Get(headerRequestID)
			if rid == "" {
				rid = uuid.NewString()
			}
			w.Header().Set(headerRequestID, rid)

			ctx, span := tel.Tracer().Start(ctx, r.Method+" "+r.URL.Path,
				attribute.String("http.method", r.Method),
				attribute.String("http.target", r.URL.Path),
			)
			defer span.End()

			fields := []observability.Field{observability.F("request_id", rid)}
			if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
				fields = append(fields,
					observability.F("trace_id", sc.TraceID().String()),
					observability.F("span_id", sc.SpanID().String()),
				)
			}
			reqLogger := base.With(fields...)
			ctx = logctx.With(ctx, reqLogger)

			start := time.Now()
			lrw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(lrw, r.WithContext(ctx))

			route := chi.RouteContext(r.Context()).RoutePattern()
			if route == "" {
				route = r.URL.Path
			}
			statusLabel := strconv.Itoa(lrw.status)
			elapsed := time.Since(start)

			tel.Counter("http_requests_total").Add(1,
				observability.L("method", r.Method),
				observability.L("route", route),
				observability.L("status", statusLabel),
			)
			tel.Histogram("http_request_duration_seconds").Observe(elapsed.Seconds(),
				observability.L("method", r.Method),
				observability.L("route", route),
			)

			reqLogger.Info("http_access",
				observability.F("method", r.Method),
				observability.F("route", route),
				observability.F("status", lrw.status),
				observability.F("duration_ms", elapsed.Milliseconds()),
			)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// authMiddleware verifies the bearer token and stores its claims on the
// context. Handlers still check tenant access per resource.
func authMiddleware(codec *auth.Codec, now func() time.Time) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(raw, "Bearer ")
			if !ok || token == "" {
				writeJSON(w, http.StatusUnauthorized, errorEnvelope{
					Code:      fault.CodeTenantDenied,
					Message:   "missing bearer token",
					RequestID: w.Header().Get(headerRequestID),
				})
				return
			}
			claims, err := codec.Verify(token, now())
			if err != nil {
				msg := "invalid token"
				if errors.Is(err, auth.ErrTokenExpired) {
					msg = "token expired"
				}
				writeJSON(w, http.StatusUnauthorized, errorEnvelope{
					Code:      fault.CodeTenantDenied,
					Message:   msg,
					RequestID: w.Header().Get(headerRequestID),
				})
				return
			}
			ctx := context.WithValue(r.Context(), claimsKey{}, claims)
			ctx = logctx.Append(ctx,
				observability.F("venue_id", claims.VenueID.String()),
				observability.F("role", claims.Role),
			)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// requireVenue enforces the tenant boundary for a resource's venue.
func requireVenue(claims auth.Claims, venueID uuid.UUID) error {
	if claims.AllowsVenue(venueID) {
		return nil
	}
	return fault.New(fault.CodeTenantDenied, "caller may not act on this venue").
		WithDetail("venue_id", venueID.String())
}
