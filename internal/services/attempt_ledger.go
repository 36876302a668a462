package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/gatekeeper/internal/models"
)

// LockoutReason is recorded on blocks created by escalation
const LockoutReason = "Too many failed login attempts"

// AttemptLedgerConfig holds the lockout policy
type AttemptLedgerConfig struct {
	MaxAttempts     int
	LockoutDuration time.Duration
}

// AttemptLedger counts failed logins per identity. The failure that reaches
// MaxAttempts locks the identity and escalates it to the block list.
type AttemptLedger struct {
	repo   LoginAttemptRepository
	blocks *BlockList
	events *SecurityEventLog
	config AttemptLedgerConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewAttemptLedger creates a new AttemptLedger
func NewAttemptLedger(repo LoginAttemptRepository, blocks *BlockList, events *SecurityEventLog, config AttemptLedgerConfig, logger *slog.Logger) *AttemptLedger {
	return &AttemptLedger{
		repo:   repo,
		blocks: blocks,
		events: events,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// SetClock replaces the time source
func (l *AttemptLedger) SetClock(now func() time.Time) {
	l.now = now
}

// MaxAttempts returns the configured threshold
func (l *AttemptLedger) MaxAttempts() int {
	return l.config.MaxAttempts
}

// MayAuthenticate is false while a block is live or the ledger denies
func (l *AttemptLedger) MayAuthenticate(ctx context.Context, identity models.Identity) (bool, error) {
	blocked, err := l.blocks.IsBlocked(ctx, identity)
	if err != nil {
		return false, err
	}
	if blocked {
		return false, nil
	}

	locked, err := l.IsLocked(ctx, identity)
	if err != nil {
		return false, err
	}
	return !locked, nil
}

// IsLocked applies the ledger half of the admission rule only
func (l *AttemptLedger) IsLocked(ctx context.Context, identity models.Identity) (bool, error) {
	rec, err := l.Lookup(ctx, identity)
	if err != nil {
		return false, err
	}
	if rec == nil {
		return false, nil
	}
	return rec.DeniesAuthentication(l.now(), l.config.MaxAttempts), nil
}

// Lookup returns the identity's record, or nil when it has none
func (l *AttemptLedger) Lookup(ctx context.Context, identity models.Identity) (*models.LoginAttemptRecord, error) {
	rec, err := l.repo.Get(ctx, identity)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read login attempts: %w", err)
	}
	return rec, nil
}

// RecordFailure counts one failed attempt and escalates once the threshold
// is reached. The returned record reflects the post-increment state.
func (l *AttemptLedger) RecordFailure(ctx context.Context, identity models.Identity) (*models.LoginAttemptRecord, error) {
	now := l.now()

	rec, err := l.repo.RecordFailure(ctx, identity, now, l.config.MaxAttempts, now.Add(l.config.LockoutDuration))
	if err != nil {
		l.logger.ErrorContext(ctx, "failed to record login failure",
			slog.String("identity", identity.String()),
			slog.Any("error", err),
		)
		return nil, fmt.Errorf("failed to record login failure: %w", err)
	}

	if rec.Attempts < l.config.MaxAttempts {
		l.logger.InfoContext(ctx, "login failure recorded",
			slog.String("identity", identity.String()),
			slog.Int("attempts", rec.Attempts),
		)
		return rec, nil
	}

	l.events.Append(ctx, identity, models.ActionAccountLocked, LockoutReason)

	if _, err := l.blocks.Block(ctx, identity, LockoutReason); err != nil {
		return rec, fmt.Errorf("failed to escalate lockout: %w", err)
	}

	return rec, nil
}

// Reset deletes the identity's record. Blocks are not touched.
func (l *AttemptLedger) Reset(ctx context.Context, identity models.Identity) error {
	if err := l.repo.Delete(ctx, identity); err != nil {
		l.logger.ErrorContext(ctx, "failed to reset login attempts",
			slog.String("identity", identity.String()),
			slog.Any("error", err),
		)
		return fmt.Errorf("failed to reset login attempts: %w", err)
	}
	return nil
}

// CountActiveSince counts identities with a failure at or after since
func (l *AttemptLedger) CountActiveSince(ctx context.Context, since time.Time) (int64, error) {
	count, err := l.repo.CountActiveSince(ctx, since)
	if err != nil {
		return 0, fmt.Errorf("failed to count login attempts: %w", err)
	}
	return count, nil
}
