package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims is the signed payload of an admin session cookie.
// IssuedAt doubles as the login time used by the session timeout.
type SessionClaims struct {
	Subject  string   `json:"sub_email"`
	Identity Identity `json:"identity"`
	jwt.RegisteredClaims
}

// SessionID returns the unique session identifier (the JWT ID).
func (c *SessionClaims) SessionID() string {
	return c.ID
}

// LoginTime returns when the session was established.
func (c *SessionClaims) LoginTime() time.Time {
	if c.IssuedAt == nil {
		return time.Time{}
	}
	return c.IssuedAt.Time
}

// RequestMeta carries per-request attributes that audit records need.
type RequestMeta struct {
	Identity  Identity
	UserAgent string
	Path      string
}
