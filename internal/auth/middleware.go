package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/BradenHooton/gatekeeper/internal/models"
	pkghttp "github.com/BradenHooton/gatekeeper/pkg/http"
)

// SessionRevocationChecker reports whether a session was ended early (logout)
type SessionRevocationChecker interface {
	IsSessionRevoked(ctx context.Context, sessionID string) (bool, error)
}

// SessionExpiryHandler invalidates a session that outlived its timeout
type SessionExpiryHandler interface {
	OnSessionExpired(ctx context.Context, claims *models.SessionClaims)
}

// RevocationConfig holds configuration for revocation check failures
type RevocationConfig struct {
	FailClosed bool // deny when the revocation store cannot be read
}

// SessionMiddleware guards privileged routes with the admin session cookie.
type SessionMiddleware struct {
	sessions *SessionManager
	revoked  SessionRevocationChecker
	expiry   SessionExpiryHandler
	cookies  CookieConfig
	config   RevocationConfig
}

// NewSessionMiddleware creates a SessionMiddleware
func NewSessionMiddleware(sessions *SessionManager, revoked SessionRevocationChecker, expiry SessionExpiryHandler, cookies CookieConfig, config RevocationConfig) *SessionMiddleware {
	return &SessionMiddleware{
		sessions: sessions,
		revoked:  revoked,
		expiry:   expiry,
		cookies:  cookies,
		config:   config,
	}
}

// RequireSession rejects requests without a live session and injects the
// claims into the context. Timed-out sessions are invalidated here.
func (m *SessionMiddleware) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := GetSessionCookie(r)
		if err != nil || token == "" {
			pkghttp.WriteUnauthorized(w, "Authentication required")
			return
		}

		claims, err := m.sessions.Parse(token)
		if err != nil {
			if errors.Is(err, models.ErrSessionExpired) && claims != nil {
				m.expireOnce(r.Context(), claims)
			}
			ClearSessionCookies(w, m.cookies)
			if errors.Is(err, models.ErrSessionExpired) {
				pkghttp.WriteUnauthorized(w, "Session expired, please log in again")
				return
			}
			pkghttp.WriteUnauthorized(w, "Authentication required")
			return
		}

		if m.revoked != nil {
			revoked, err := m.revoked.IsSessionRevoked(r.Context(), claims.SessionID())
			if err != nil && m.config.FailClosed {
				pkghttp.WriteServiceUnavailable(w, "Unable to verify session")
				return
			}
			if revoked {
				ClearSessionCookies(w, m.cookies)
				pkghttp.WriteUnauthorized(w, "Authentication required")
				return
			}
		}

		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), claims)))
	})
}

// expireOnce invalidates a timed-out session unless an earlier request
// already did; a stale cookie replayed later adds no further events.
func (m *SessionMiddleware) expireOnce(ctx context.Context, claims *models.SessionClaims) {
	if m.expiry == nil {
		return
	}
	if m.revoked != nil {
		if revoked, err := m.revoked.IsSessionRevoked(ctx, claims.SessionID()); err == nil && revoked {
			return
		}
	}
	m.expiry.OnSessionExpired(ctx, claims)
}
