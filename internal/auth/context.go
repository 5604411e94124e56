package auth

import "context"

type contextKey string

const authContextKey contextKey = "relay_auth"

// AuthInfo describes the authenticated caller of a webhook.
type AuthInfo struct {
	// Fingerprint identifies the token that was presented without revealing it.
	Fingerprint string
}

func ContextWithAuth(ctx context.Context, info *AuthInfo) context.Context {
	return context.WithValue(ctx, authContextKey, info)
}

func AuthFromContext(ctx context.Context) (*AuthInfo, bool) {
	info, ok := ctx.Value(authContextKey).(*AuthInfo)
	return info, ok
}
