package services

import (
	"context"
	"time"

	"github.com/BradenHooton/gatekeeper/internal/models"
)

// MockLoginAttemptRepository implements LoginAttemptRepository for testing
type MockLoginAttemptRepository struct {
	RecordFailureFunc    func(ctx context.Context, identity models.Identity, now time.Time, threshold int, lockUntil time.Time) (*models.LoginAttemptRecord, error)
	GetFunc              func(ctx context.Context, identity models.Identity) (*models.LoginAttemptRecord, error)
	DeleteFunc           func(ctx context.Context, identity models.Identity) error
	CountActiveSinceFunc func(ctx context.Context, since time.Time) (int64, error)
}

func (m *MockLoginAttemptRepository) RecordFailure(ctx context.Context, identity models.Identity, now time.Time, threshold int, lockUntil time.Time) (*models.LoginAttemptRecord, error) {
	if m.RecordFailureFunc != nil {
		return m.RecordFailureFunc(ctx, identity, now, threshold, lockUntil)
	}
	return &models.LoginAttemptRecord{Identity: identity, Attempts: 1, LastAttemptAt: now}, nil
}

func (m *MockLoginAttemptRepository) Get(ctx context.Context, identity models.Identity) (*models.LoginAttemptRecord, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, identity)
	}
	return nil, models.ErrNotFound
}

func (m *MockLoginAttemptRepository) Delete(ctx context.Context, identity models.Identity) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, identity)
	}
	return nil
}

func (m *MockLoginAttemptRepository) CountActiveSince(ctx context.Context, since time.Time) (int64, error) {
	if m.CountActiveSinceFunc != nil {
		return m.CountActiveSinceFunc(ctx, since)
	}
	return 0, nil
}

// MockBlockedIdentityRepository implements BlockedIdentityRepository for testing
type MockBlockedIdentityRepository struct {
	UpsertFunc    func(ctx context.Context, rec *models.BlockedIdentityRecord) (*models.BlockedIdentityRecord, error)
	GetFunc       func(ctx context.Context, identity models.Identity) (*models.BlockedIdentityRecord, error)
	DeleteFunc    func(ctx context.Context, identity models.Identity) error
	ListLiveFunc  func(ctx context.Context, now time.Time, limit int) ([]*models.BlockedIdentityRecord, error)
	CountLiveFunc func(ctx context.Context, now time.Time) (int64, error)
}

func (m *MockBlockedIdentityRepository) Upsert(ctx context.Context, rec *models.BlockedIdentityRecord) (*models.BlockedIdentityRecord, error) {
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, rec)
	}
	out := *rec
	return &out, nil
}

func (m *MockBlockedIdentityRepository) Get(ctx context.Context, identity models.Identity) (*models.BlockedIdentityRecord, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, identity)
	}
	return nil, models.ErrNotFound
}

func (m *MockBlockedIdentityRepository) Delete(ctx context.Context, identity models.Identity) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, identity)
	}
	return nil
}

func (m *MockBlockedIdentityRepository) ListLive(ctx context.Context, now time.Time, limit int) ([]*models.BlockedIdentityRecord, error) {
	if m.ListLiveFunc != nil {
		return m.ListLiveFunc(ctx, now, limit)
	}
	return []*models.BlockedIdentityRecord{}, nil
}

func (m *MockBlockedIdentityRepository) CountLive(ctx context.Context, now time.Time) (int64, error) {
	if m.CountLiveFunc != nil {
		return m.CountLiveFunc(ctx, now)
	}
	return 0, nil
}

// MockSecurityLogRepository implements SecurityLogRepository for testing
type MockSecurityLogRepository struct {
	AppendFunc              func(ctx context.Context, event *models.SecurityEvent) error
	CountFunc               func(ctx context.Context) (int64, error)
	RecentFunc              func(ctx context.Context, limit int) ([]*models.SecurityEvent, error)
	CountByActionsSinceFunc func(ctx context.Context, actions []models.Action, since time.Time) (int64, error)
}

func (m *MockSecurityLogRepository) Append(ctx context.Context, event *models.SecurityEvent) error {
	if m.AppendFunc != nil {
		return m.AppendFunc(ctx, event)
	}
	return nil
}

func (m *MockSecurityLogRepository) Count(ctx context.Context) (int64, error) {
	if m.CountFunc != nil {
		return m.CountFunc(ctx)
	}
	return 0, nil
}

func (m *MockSecurityLogRepository) Recent(ctx context.Context, limit int) ([]*models.SecurityEvent, error) {
	if m.RecentFunc != nil {
		return m.RecentFunc(ctx, limit)
	}
	return []*models.SecurityEvent{}, nil
}

func (m *MockSecurityLogRepository) CountByActionsSince(ctx context.Context, actions []models.Action, since time.Time) (int64, error) {
	if m.CountByActionsSinceFunc != nil {
		return m.CountByActionsSinceFunc(ctx, actions, since)
	}
	return 0, nil
}

// MockCSRFTokenRepository implements CSRFTokenRepository for testing
type MockCSRFTokenRepository struct {
	GetOrCreateFunc func(ctx context.Context, sessionID, candidate string, now time.Time) (string, error)
	GetFunc         func(ctx context.Context, sessionID string) (string, error)
	DeleteFunc      func(ctx context.Context, sessionID string) error
}

func (m *MockCSRFTokenRepository) GetOrCreate(ctx context.Context, sessionID, candidate string, now time.Time) (string, error) {
	if m.GetOrCreateFunc != nil {
		return m.GetOrCreateFunc(ctx, sessionID, candidate, now)
	}
	return candidate, nil
}

func (m *MockCSRFTokenRepository) Get(ctx context.Context, sessionID string) (string, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, sessionID)
	}
	return "", models.ErrNotFound
}

func (m *MockCSRFTokenRepository) Delete(ctx context.Context, sessionID string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, sessionID)
	}
	return nil
}

// MockSessionRevocationRepository implements SessionRevocationRepository for testing
type MockSessionRevocationRepository struct {
	RevokeFunc    func(ctx context.Context, sessionID string, revokedAt, expiresAt time.Time) error
	IsRevokedFunc func(ctx context.Context, sessionID string) (bool, error)
}

func (m *MockSessionRevocationRepository) Revoke(ctx context.Context, sessionID string, revokedAt, expiresAt time.Time) error {
	if m.RevokeFunc != nil {
		return m.RevokeFunc(ctx, sessionID, revokedAt, expiresAt)
	}
	return nil
}

func (m *MockSessionRevocationRepository) IsRevoked(ctx context.Context, sessionID string) (bool, error) {
	if m.IsRevokedFunc != nil {
		return m.IsRevokedFunc(ctx, sessionID)
	}
	return false, nil
}

// MockAlertNotifier implements AlertNotifier for testing
type MockAlertNotifier struct {
	NotifyBlockedFunc func(ctx context.Context, block *models.BlockedIdentityRecord) error
}

func (m *MockAlertNotifier) NotifyBlocked(ctx context.Context, block *models.BlockedIdentityRecord) error {
	if m.NotifyBlockedFunc != nil {
		return m.NotifyBlockedFunc(ctx, block)
	}
	return nil
}
