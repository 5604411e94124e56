package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/Mathfer/Bot-gemini-middleware/internal/auth"
	"github.com/Mathfer/Bot-gemini-middleware/internal/ratelimit"
)

// Routes builds the HTTP surface. token is read on every request.
func (h *Handler) Routes(admitter ratelimit.Admitter, token func() string) http.Handler {
	trusted, err := h.cfg().Server.TrustedPrefixes()
	if err != nil {
		h.logger.Error("ignoring trusted proxies", "error", err)
		trusted = nil
	}

	r := chi.NewRouter()
	r.Use(ratelimit.RealIP(trusted))
	r.Use(middleware.Recoverer)
	r.Use(RequestID)

	r.Get("/health", h.Health)
	r.Get("/health/full", h.HealthFull)
	r.Get("/config", h.ConfigInfo)
	r.Get("/metrics", h.MetricsSnapshot)
	r.Get("/stats", h.Stats)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(token))

		r.With(ratelimit.Middleware(admitter, "inbound", h.metrics)).Put("/webhook/inbound", h.Inbound)
		r.With(ratelimit.Middleware(admitter, "inbound", h.metrics)).Put("/webhook/freshbot", h.Inbound)
		r.With(ratelimit.Middleware(admitter, "outbound", h.metrics)).Post("/webhook/outbound", h.Outbound)
		r.With(ratelimit.Middleware(admitter, "outbound", h.metrics)).Post("/webhook/freshbot", h.Outbound)

		r.Get("/logs", h.Logs)
		r.Post("/cleanup", h.Cleanup)
		r.Get("/history/{requester}", h.History)
		r.Post("/test/payload", h.TestPayload)
		r.Get("/test/relay", h.TestRelay)
		r.Get("/test/freshchat", h.TestRelay)
		r.Post("/test/completion", h.TestCompletion)
		r.Post("/test/gemini", h.TestCompletion)
		r.Post("/test/integration", h.TestIntegration)
	})
	return r
}

// RequestID propagates or assigns X-Request-ID. Handlers read it back from
// the response headers.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = "req_" + uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r)
	})
}
