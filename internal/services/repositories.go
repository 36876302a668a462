package services

import (
	"context"
	"errors"
	"time"

	"github.com/BradenHooton/gatekeeper/internal/models"
)

// LoginAttemptRepository stores the per-identity failure ledger.
// RecordFailure must increment and apply the lock in one atomic step.
type LoginAttemptRepository interface {
	RecordFailure(ctx context.Context, identity models.Identity, now time.Time, threshold int, lockUntil time.Time) (*models.LoginAttemptRecord, error)
	Get(ctx context.Context, identity models.Identity) (*models.LoginAttemptRecord, error)
	Delete(ctx context.Context, identity models.Identity) error
	CountActiveSince(ctx context.Context, since time.Time) (int64, error)
}

// BlockedIdentityRepository stores long-term deny entries.
// ListLive returns every live block when limit <= 0.
type BlockedIdentityRepository interface {
	Upsert(ctx context.Context, rec *models.BlockedIdentityRecord) (*models.BlockedIdentityRecord, error)
	Get(ctx context.Context, identity models.Identity) (*models.BlockedIdentityRecord, error)
	Delete(ctx context.Context, identity models.Identity) error
	ListLive(ctx context.Context, now time.Time, limit int) ([]*models.BlockedIdentityRecord, error)
	CountLive(ctx context.Context, now time.Time) (int64, error)
}

// SecurityLogRepository is the append-only event store plus its dashboard reads.
// Recent returns no events when limit <= 0.
type SecurityLogRepository interface {
	Append(ctx context.Context, event *models.SecurityEvent) error
	Count(ctx context.Context) (int64, error)
	Recent(ctx context.Context, limit int) ([]*models.SecurityEvent, error)
	CountByActionsSince(ctx context.Context, actions []models.Action, since time.Time) (int64, error)
}

// CSRFTokenRepository holds one token per session.
// GetOrCreate stores candidate only if the slot is empty and returns the live value.
type CSRFTokenRepository interface {
	GetOrCreate(ctx context.Context, sessionID, candidate string, now time.Time) (string, error)
	Get(ctx context.Context, sessionID string) (string, error)
	Delete(ctx context.Context, sessionID string) error
}

// SessionRevocationRepository remembers sessions ended before their timeout
type SessionRevocationRepository interface {
	Revoke(ctx context.Context, sessionID string, revokedAt, expiresAt time.Time) error
	IsRevoked(ctx context.Context, sessionID string) (bool, error)
}

func isNotFound(err error) bool {
	return errors.Is(err, models.ErrNotFound)
}
