package middleware

import (
	"net/http"
	"time"

	"github.com/BradenHooton/gatekeeper/internal/auth"
	pkghttp "github.com/BradenHooton/gatekeeper/pkg/http"
	"github.com/go-chi/httprate"
)

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int
}

// DefaultLoginRateLimit returns the login throttle (10 requests per minute)
func DefaultLoginRateLimit() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 10,
	}
}

// RateLimitByIdentity throttles requests per resolved client identity. It
// keys on the identity Admission stored, so it must run after Admission.
// This bounds request volume only; lockout is decided by the attempt ledger.
func RateLimitByIdentity(config RateLimitConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.RequestsPerMinute,
		1*time.Minute,
		httprate.WithKeyFuncs(identityKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			pkghttp.WriteTooManyRequests(w, pkghttp.TooManyAttemptsMessage)
		}),
	)
}

func identityKey(r *http.Request) (string, error) {
	if meta := auth.RequestMetaFromContext(r.Context()); meta.Identity != "" {
		return meta.Identity.String(), nil
	}
	return pkghttp.ResolveClientIP(r), nil
}
