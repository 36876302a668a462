package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/BradenHooton/gatekeeper/internal/auth"
	"github.com/BradenHooton/gatekeeper/internal/models"
)

// CSRFTokenManager issues one anti-forgery token per session and checks
// submitted tokens against it.
type CSRFTokenManager struct {
	repo   CSRFTokenRepository
	events *SecurityEventLog
	random  io.Reader
	compare func(stored, supplied string) bool
	logger  *slog.Logger
	now     func() time.Time
}

// NewCSRFTokenManager creates a new CSRFTokenManager backed by crypto/rand
func NewCSRFTokenManager(repo CSRFTokenRepository, events *SecurityEventLog, logger *slog.Logger) *CSRFTokenManager {
	return &CSRFTokenManager{
		repo:    repo,
		events:  events,
		random:  rand.Reader,
		compare: auth.CompareCSRFTokens,
		logger:  logger,
		now:     time.Now,
	}
}

// SetClock replaces the time source
func (m *CSRFTokenManager) SetClock(now func() time.Time) {
	m.now = now
}

// SetRandomSource replaces the randomness source
func (m *CSRFTokenManager) SetRandomSource(r io.Reader) {
	m.random = r
}

// SetComparer replaces the token comparison
func (m *CSRFTokenManager) SetComparer(compare func(stored, supplied string) bool) {
	m.compare = compare
}

// TokenFor returns the session's token, creating it on first use. Two
// concurrent first calls observe the same token.
func (m *CSRFTokenManager) TokenFor(ctx context.Context, sessionID string) (string, error) {
	if sessionID == "" {
		return "", fmt.Errorf("%w: session id required", models.ErrBadRequest)
	}

	token, err := m.repo.Get(ctx, sessionID)
	if err == nil {
		return token, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return "", fmt.Errorf("failed to read csrf token: %w", err)
	}

	candidate, err := auth.GenerateCSRFToken(m.random)
	if err != nil {
		m.logger.ErrorContext(ctx, "csrf token generation failed", slog.Any("error", err))
		return "", err
	}

	token, err = m.repo.GetOrCreate(ctx, sessionID, candidate, m.now())
	if err != nil {
		return "", fmt.Errorf("failed to store csrf token: %w", err)
	}
	return token, nil
}

// Validate compares supplied against the session's token in constant time.
// A missing token is compared as the empty string so every answer takes the
// same path. A mismatch or missing token is recorded as CSRF_ATTACK.
func (m *CSRFTokenManager) Validate(ctx context.Context, sessionID, supplied string) bool {
	identity := requestIdentity(ctx, "")

	stored := ""
	if sessionID != "" {
		token, err := m.repo.Get(ctx, sessionID)
		switch {
		case err == nil:
			stored = token
		case errors.Is(err, models.ErrNotFound):
		default:
			m.logger.ErrorContext(ctx, "csrf token lookup failed",
				slog.String("identity", identity.String()),
				slog.Any("error", err),
			)
			m.events.Append(ctx, identity, models.ActionStorageUnavailable, "CSRF token lookup failed")
			return false
		}
	}

	if !m.compare(stored, supplied) {
		m.events.Append(ctx, identity, models.ActionCSRFAttack, "Invalid CSRF token")
		return false
	}
	return true
}

// Discard drops the session's token
func (m *CSRFTokenManager) Discard(ctx context.Context, sessionID string) error {
	if err := m.repo.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to discard csrf token: %w", err)
	}
	return nil
}
