package core

import "context"

type contextKey string

const (
	ctxKeyClientIP contextKey = "client_ip"
	ctxKeyAPIKey   contextKey = "api_key_name"
)

// ContextWithClientIP records the caller's address for operation logs.
func ContextWithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ctxKeyClientIP, ip)
}

// ClientIPFromContext returns the recorded caller address, or "".
func ClientIPFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyClientIP).(string); ok {
		return v
	}
	return ""
}

// ContextWithAPIKeyName records which configured key authenticated the call.
func ContextWithAPIKeyName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, ctxKeyAPIKey, name)
}

// APIKeyNameFromContext returns the authenticating key name, or "".
func APIKeyNameFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyAPIKey).(string); ok {
		return v
	}
	return ""
}
