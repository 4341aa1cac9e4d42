package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/sheetimport/internal/core"
	"github.com/JonMunkholm/sheetimport/internal/logging"
)

// WithRequestMetadata carries the client address into the service so
// import logs name the caller. RemoteAddr has already been resolved by
// TrustedRealIP.
func WithRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	ctx = core.ContextWithClientIP(ctx, r.RemoteAddr)
	if name := core.APIKeyNameFromContext(ctx); name != "" {
		ctx = logging.ContextWith(ctx, "api_key", name)
	}
	return ctx
}
