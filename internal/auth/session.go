package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/BradenHooton/gatekeeper/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// clockLeeway lets the age check below, not the exp claim, decide expiry.
// It also admits the rounded-up iat/nbf of a token issued this second.
const clockLeeway = time.Second

// loginTime rounds t up to the whole second the JWT numeric dates can hold.
// Rounding down would end sessions up to a second before the timeout.
func loginTime(t time.Time) time.Time {
	whole := t.Truncate(time.Second)
	if whole.Before(t) {
		whole = whole.Add(time.Second)
	}
	return whole
}

// SessionManager issues and verifies signed admin session tokens
type SessionManager struct {
	secret  []byte
	timeout time.Duration
	now     func() time.Time
}

// NewSessionManager creates a new SessionManager
func NewSessionManager(secret string, timeout time.Duration) *SessionManager {
	return &SessionManager{
		secret:  []byte(secret),
		timeout: timeout,
		now:     time.Now,
	}
}

// SetClock replaces the time source
func (sm *SessionManager) SetClock(now func() time.Time) {
	sm.now = now
}

// Timeout returns the maximum session age
func (sm *SessionManager) Timeout() time.Duration {
	return sm.timeout
}

// Issue creates a session for subject logged in from identity
func (sm *SessionManager) Issue(subject string, identity models.Identity) (string, *models.SessionClaims, error) {
	now := loginTime(sm.now())

	claims := &models.SessionClaims{
		Subject:  subject,
		Identity: identity,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(sm.timeout)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(sm.secret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign session token: %w", err)
	}

	return tokenString, claims, nil
}

// Parse verifies a session token. An authentic but timed-out session returns
// its claims together with ErrSessionExpired so the caller can clean up.
func (sm *SessionManager) Parse(tokenString string) (*models.SessionClaims, error) {
	claims := &models.SessionClaims{}

	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return sm.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(sm.now),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(clockLeeway),
	)

	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return claims, models.ErrSessionExpired
	case err != nil:
		return nil, fmt.Errorf("%w: %v", models.ErrUnauthorized, err)
	}

	if claims.SessionID() == "" || claims.IssuedAt == nil {
		return nil, models.ErrUnauthorized
	}

	if sm.IsExpired(claims) {
		return claims, models.ErrSessionExpired
	}

	return claims, nil
}

// IsExpired reports whether the session is older than the timeout. Age is
// measured from the recorded login time, so a session of exactly the timeout
// is still live.
func (sm *SessionManager) IsExpired(claims *models.SessionClaims) bool {
	return sm.now().Sub(claims.LoginTime()) > sm.timeout
}
