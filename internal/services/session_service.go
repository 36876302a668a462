package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/gatekeeper/internal/auth"
	"github.com/BradenHooton/gatekeeper/internal/models"
)

// EstablishedSession is what a successful login hands back to the handler
type EstablishedSession struct {
	Token     string
	CSRFToken string
	Claims    *models.SessionClaims
}

// SessionService owns the admin session lifecycle: login, logout and
// invalidation after the timeout.
type SessionService struct {
	sessions    *auth.SessionManager
	revocations SessionRevocationRepository
	csrf        *CSRFTokenManager
	events      *SecurityEventLog
	logger      *slog.Logger
	now         func() time.Time
}

// NewSessionService creates a new SessionService
func NewSessionService(sessions *auth.SessionManager, revocations SessionRevocationRepository, csrf *CSRFTokenManager, events *SecurityEventLog, logger *slog.Logger) *SessionService {
	return &SessionService{
		sessions:    sessions,
		revocations: revocations,
		csrf:        csrf,
		events:      events,
		logger:      logger,
		now:         time.Now,
	}
}

// SetClock replaces the time source
func (s *SessionService) SetClock(now func() time.Time) {
	s.now = now
}

// Establish issues a session for subject and its CSRF token
func (s *SessionService) Establish(ctx context.Context, subject string, identity models.Identity) (*EstablishedSession, error) {
	token, claims, err := s.sessions.Issue(subject, identity)
	if err != nil {
		return nil, fmt.Errorf("failed to establish session: %w", err)
	}

	csrfToken, err := s.csrf.TokenFor(ctx, claims.SessionID())
	if err != nil {
		return nil, fmt.Errorf("failed to establish session: %w", err)
	}

	s.events.Append(ctx, identity, models.ActionAdminLogin, "Admin logged in")

	return &EstablishedSession{Token: token, CSRFToken: csrfToken, Claims: claims}, nil
}

// Logout ends a live session
func (s *SessionService) Logout(ctx context.Context, claims *models.SessionClaims) error {
	s.events.Append(ctx, requestIdentity(ctx, claims.Identity), models.ActionAdminLogout, "Admin logged out")
	return s.invalidate(ctx, claims)
}

// OnSessionExpired invalidates a session that outlived its timeout
func (s *SessionService) OnSessionExpired(ctx context.Context, claims *models.SessionClaims) {
	s.events.Append(ctx, requestIdentity(ctx, claims.Identity), models.ActionSessionExpired,
		fmt.Sprintf("Session expired after %s", s.sessions.Timeout()))

	if err := s.invalidate(ctx, claims); err != nil {
		s.logger.ErrorContext(ctx, "failed to invalidate expired session",
			slog.String("session_id", claims.SessionID()),
			slog.Any("error", err),
		)
	}
}

// IsSessionRevoked reports whether the session was ended early
func (s *SessionService) IsSessionRevoked(ctx context.Context, sessionID string) (bool, error) {
	revoked, err := s.revocations.IsRevoked(ctx, sessionID)
	if err != nil {
		s.logger.ErrorContext(ctx, "session revocation check failed",
			slog.String("session_id", sessionID),
			slog.Any("error", err),
		)
		return false, fmt.Errorf("failed to check session revocation: %w", err)
	}
	return revoked, nil
}

func (s *SessionService) invalidate(ctx context.Context, claims *models.SessionClaims) error {
	now := s.now()
	expiresAt := claims.LoginTime().Add(s.sessions.Timeout())
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}

	if err := s.revocations.Revoke(ctx, claims.SessionID(), now, expiresAt); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	if err := s.csrf.Discard(ctx, claims.SessionID()); err != nil {
		return err
	}
	return nil
}
