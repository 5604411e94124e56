package ratelimit

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/Mathfer/Bot-gemini-middleware/internal/httputil"
	"github.com/Mathfer/Bot-gemini-middleware/internal/telemetry"
)

const (
	headerRateLimitLimit     = "X-RateLimit-Limit"
	headerRateLimitRemaining = "X-RateLimit-Remaining"
	headerRetryAfter         = "Retry-After"

	throttledMessage = "Limite de requisições excedido. Tente novamente em 1 minuto."
)

// Middleware returns chi middleware that admits requests per client address.
// It expects RealIP to have run so RemoteAddr is the caller.
func Middleware(admitter Admitter, route string, metrics *telemetry.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := w.Header().Get("X-Request-ID")
			identity := ClientIdentity(r)

			d, err := admitter.Admit(r.Context(), identity, time.Now())
			if err != nil {
				slog.Warn("rate limiter error, admitting request", "request_id", reqID, "error", err)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set(headerRateLimitLimit, strconv.Itoa(d.Limit))
			w.Header().Set(headerRateLimitRemaining, strconv.Itoa(d.Remaining))

			if !d.Allowed {
				slog.Warn("rate limit exceeded",
					"request_id", reqID,
					"client", identity,
					"route", route,
					"limit", d.Limit,
				)
				if metrics != nil {
					metrics.RecordRateLimitHit(route)
				}
				w.Header().Set(headerRetryAfter, strconv.Itoa(retryAfterSeconds(d.RetryAfter)))
				httputil.WriteRateLimitError(w, reqID, throttledMessage)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ClientIdentity is the host part of the caller's address.
func ClientIdentity(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func retryAfterSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}
