package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/gatekeeper/internal/auth"
	"github.com/BradenHooton/gatekeeper/internal/models"
	"github.com/BradenHooton/gatekeeper/pkg/logger"
)

// SecurityEventLog is the audit sink every defense component writes to.
// Writes go to slog first and then to the event store.
type SecurityEventLog struct {
	repo  SecurityLogRepository
	audit *logger.SecurityEventLogger
	now   func() time.Time
}

// NewSecurityEventLog creates a new SecurityEventLog
func NewSecurityEventLog(repo SecurityLogRepository, log *slog.Logger) *SecurityEventLog {
	return &SecurityEventLog{
		repo:  repo,
		audit: logger.NewSecurityEventLogger(log),
		now:   time.Now,
	}
}

// SetClock replaces the time source
func (s *SecurityEventLog) SetClock(now func() time.Time) {
	s.now = now
}

// Append records one event. The user agent comes from the request metadata
// in ctx. A store failure is logged and swallowed.
func (s *SecurityEventLog) Append(ctx context.Context, identity models.Identity, action models.Action, details string) {
	meta := auth.RequestMetaFromContext(ctx)

	event := models.SecurityEvent{
		OccurredAt: s.now().UTC(),
		Identity:   identity,
		UserAgent:  meta.UserAgent,
		Action:     action,
		Details:    details,
	}

	s.audit.LogEvent(ctx, event)

	if err := s.repo.Append(ctx, &event); err != nil {
		s.audit.LogStoreFailure(ctx, event, err)
	}
}

// Count returns the total number of stored events
func (s *SecurityEventLog) Count(ctx context.Context) (int64, error) {
	count, err := s.repo.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count security events: %w", err)
	}
	return count, nil
}

// Recent returns the newest events first
func (s *SecurityEventLog) Recent(ctx context.Context, limit int) ([]*models.SecurityEvent, error) {
	events, err := s.repo.Recent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list security events: %w", err)
	}
	return events, nil
}

// CountByActionsSince counts events of the given actions within the window
func (s *SecurityEventLog) CountByActionsSince(ctx context.Context, actions []models.Action, since time.Time) (int64, error) {
	count, err := s.repo.CountByActionsSince(ctx, actions, since)
	if err != nil {
		return 0, fmt.Errorf("failed to count security events: %w", err)
	}
	return count, nil
}

// requestIdentity prefers the identity resolved for the current request
func requestIdentity(ctx context.Context, fallback models.Identity) models.Identity {
	if meta := auth.RequestMetaFromContext(ctx); meta.Identity != "" {
		return meta.Identity
	}
	if fallback != "" {
		return fallback
	}
	return models.LoopbackIdentity
}
