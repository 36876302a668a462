package auth

import (
	"context"
	"net/http"

	"github.com/BradenHooton/gatekeeper/internal/models"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	// SessionContextKey is the key for storing session claims in context
	SessionContextKey contextKey = "session"
	// RequestMetaContextKey is the key for storing request metadata in context
	RequestMetaContextKey contextKey = "request_meta"
)

// WithRequestMeta attaches the resolved identity and user agent of the request.
func WithRequestMeta(ctx context.Context, meta models.RequestMeta) context.Context {
	return context.WithValue(ctx, RequestMetaContextKey, meta)
}

// RequestMetaFromContext returns the request metadata, defaulting the user
// agent to "Unknown" when absent.
func RequestMetaFromContext(ctx context.Context) models.RequestMeta {
	meta, _ := ctx.Value(RequestMetaContextKey).(models.RequestMeta)
	if meta.UserAgent == "" {
		meta.UserAgent = models.UnknownUserAgent
	}
	return meta
}

// WithSession stores validated session claims
func WithSession(ctx context.Context, claims *models.SessionClaims) context.Context {
	return context.WithValue(ctx, SessionContextKey, claims)
}

// GetSessionFromContext retrieves session claims, or nil for anonymous requests
func GetSessionFromContext(r *http.Request) *models.SessionClaims {
	claims, ok := r.Context().Value(SessionContextKey).(*models.SessionClaims)
	if !ok {
		return nil
	}
	return claims
}
