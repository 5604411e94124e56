package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/Mathfer/Bot-gemini-middleware/internal/httputil"
)

const invalidTokenMessage = "Token inválido ou ausente"

// Middleware returns a chi middleware that checks the Bearer token against
// the shared webhook token. expected is read on every request so a
// reloaded configuration takes effect immediately.
func Middleware(expected func() string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := w.Header().Get("X-Request-ID")

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				slog.Warn("auth failed: missing or malformed bearer token", "request_id", reqID, "path", r.URL.Path)
				httputil.WriteAuthError(w, reqID, invalidTokenMessage)
				return
			}

			want := expected()
			if want == "" || !Equal(token, want) {
				slog.Warn("auth failed: token mismatch", "request_id", reqID, "fingerprint", Fingerprint(token))
				httputil.WriteAuthError(w, reqID, invalidTokenMessage)
				return
			}

			ctx := ContextWithAuth(r.Context(), &AuthInfo{Fingerprint: Fingerprint(token)})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
