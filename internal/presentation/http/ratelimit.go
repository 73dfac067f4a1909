package httppresentation

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/tablekit/backhouse/internal/domain/fault"
	"github.com/tablekit/backhouse/internal/observability"
)

// rateLimiter is a per-(route, caller) token bucket. Buckets refill at the
// route's requests-per-minute rate and cap at one minute of burst.
type rateLimiter struct {
	mu         sync.Mutex
	buckets    map[string]*bucket
	defaultRPM int
	overrides  map[string]int
	now        func() time.Time
	tel        observability.Telemetry
}

type bucket struct {
	tokens   float64
	lastFill time.Time
}

func newRateLimiter(defaultRPM int, overrides map[string]int, tel observability.Telemetry) *rateLimiter {
	if tel == nil {
		tel = observability.NopTelemetry()
	}
	return &rateLimiter{
		buckets:    map[string]*bucket{},
		defaultRPM: defaultRPM,
		overrides:  overrides,
		now:        time.Now,
		tel:        tel,
	}
}

func (l *rateLimiter) limitFor(route string) int {
	if rpm, ok := l.overrides[route]; ok {
		return rpm
	}
	return l.defaultRPM
}

func (l *rateLimiter) allow(route, caller string) bool {
	rpm := l.limitFor(route)
	if rpm <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := route + "|" + caller
	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(rpm), lastFill: now}
		l.buckets[key] = b
	}

	refill := now.Sub(b.lastFill).Minutes() * float64(rpm)
	b.tokens += refill
	if limit := float64(rpm); b.tokens > limit {
		b.tokens = limit
	}
	b.lastFill = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

func (l *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		caller := r.RemoteAddr
		if claims, ok := claimsFrom(r.Context()); ok {
			caller = claims.UserID
		}

		if !l.allow(route, caller) {
			l.tel.Counter("http_rate_limited_total").Add(1, observability.L("route", route))
			w.Header().Set("Retry-After", "60")
			writeJSON(w, http.StatusTooManyRequests, errorEnvelope{
				Code:      fault.CodeRateLimited,
				Message:   "rate limit exceeded",
				RequestID: w.Header().Get(headerRequestID),
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
