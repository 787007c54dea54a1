package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/studydata/internal/core"
)

// WithRequestMetadata adds the client IP to ctx for audit logging.
func WithRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	ip := r.RemoteAddr // already processed by TrustedRealIP
	if host, _, err := splitHostPort(ip); err == nil {
		ip = host
	}
	return core.ContextWithIPAddress(ctx, ip)
}

// actorFrom returns the actor set by the auth middleware.
func actorFrom(r *http.Request) core.Actor {
	actor, _ := core.ActorFromContext(r.Context())
	return actor
}
