package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/gatekeeper/internal/models"
)

// BlockListConfig holds the block policy
type BlockListConfig struct {
	BlockDuration time.Duration
	AlertTimeout  time.Duration
}

// BlockList is the long-term deny list. Liveness is decided at read time;
// expired rows are ignored, not removed.
type BlockList struct {
	repo     BlockedIdentityRepository
	events   *SecurityEventLog
	notifier AlertNotifier
	config   BlockListConfig
	logger   *slog.Logger
	now      func() time.Time
}

// NewBlockList creates a new BlockList. A nil notifier disables alerts.
func NewBlockList(repo BlockedIdentityRepository, events *SecurityEventLog, notifier AlertNotifier, config BlockListConfig, logger *slog.Logger) *BlockList {
	if notifier == nil {
		notifier = NoopAlertNotifier{}
	}
	if config.AlertTimeout <= 0 {
		config.AlertTimeout = 5 * time.Second
	}
	return &BlockList{
		repo:     repo,
		events:   events,
		notifier: notifier,
		config:   config,
		logger:   logger,
		now:      time.Now,
	}
}

// SetClock replaces the time source
func (b *BlockList) SetClock(now func() time.Time) {
	b.now = now
}

// IsBlocked reports whether a live block exists for identity
func (b *BlockList) IsBlocked(ctx context.Context, identity models.Identity) (bool, error) {
	rec, err := b.repo.Get(ctx, identity)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check block: %w", err)
	}
	return rec.IsLive(b.now()), nil
}

// Block places or refreshes a block lasting the configured duration.
// Re-blocking always restarts the full window.
func (b *BlockList) Block(ctx context.Context, identity models.Identity, reason string) (*models.BlockedIdentityRecord, error) {
	now := b.now()
	until := now.Add(b.config.BlockDuration)
	return b.place(ctx, &models.BlockedIdentityRecord{
		Identity:     identity,
		Reason:       reason,
		BlockedUntil: &until,
		CreatedAt:    now,
	})
}

// BlockPermanent places a block with no expiry
func (b *BlockList) BlockPermanent(ctx context.Context, identity models.Identity, reason string) (*models.BlockedIdentityRecord, error) {
	return b.place(ctx, &models.BlockedIdentityRecord{
		Identity:  identity,
		Reason:    reason,
		CreatedAt: b.now(),
	})
}

func (b *BlockList) place(ctx context.Context, rec *models.BlockedIdentityRecord) (*models.BlockedIdentityRecord, error) {
	stored, err := b.repo.Upsert(ctx, rec)
	if err != nil {
		b.logger.ErrorContext(ctx, "failed to store block",
			slog.String("identity", rec.Identity.String()),
			slog.String("action", string(models.ActionIPBlocked)),
			slog.Any("error", err),
		)
		return nil, fmt.Errorf("failed to block identity: %w", err)
	}

	b.events.Append(ctx, rec.Identity, models.ActionIPBlocked, rec.Reason)
	b.notify(ctx, stored)

	return stored, nil
}

func (b *BlockList) notify(ctx context.Context, rec *models.BlockedIdentityRecord) {
	ctx, cancel := context.WithTimeout(ctx, b.config.AlertTimeout)
	defer cancel()

	if err := b.notifier.NotifyBlocked(ctx, rec); err != nil {
		b.logger.WarnContext(ctx, "block alert not delivered",
			slog.String("identity", rec.Identity.String()),
			slog.Any("error", err),
		)
	}
}

// Unblock lifts a block. Returns ErrNotFound when there was none.
func (b *BlockList) Unblock(ctx context.Context, identity models.Identity) error {
	if err := b.repo.Delete(ctx, identity); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		b.logger.ErrorContext(ctx, "failed to lift block",
			slog.String("identity", identity.String()),
			slog.Any("error", err),
		)
		return fmt.Errorf("failed to unblock identity: %w", err)
	}

	b.events.Append(ctx, identity, models.ActionIPUnblocked, "Block lifted by administrator")
	return nil
}

// Lookup returns the stored block for identity, live or expired
func (b *BlockList) Lookup(ctx context.Context, identity models.Identity) (*models.BlockedIdentityRecord, error) {
	rec, err := b.repo.Get(ctx, identity)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get block: %w", err)
	}
	return rec, nil
}

// ListLive returns blocks in force, newest first
func (b *BlockList) ListLive(ctx context.Context, limit int) ([]*models.BlockedIdentityRecord, error) {
	blocks, err := b.repo.ListLive(ctx, b.now(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list blocks: %w", err)
	}
	return blocks, nil
}

// CountLive counts blocks in force
func (b *BlockList) CountLive(ctx context.Context) (int64, error) {
	count, err := b.repo.CountLive(ctx, b.now())
	if err != nil {
		return 0, fmt.Errorf("failed to count blocks: %w", err)
	}
	return count, nil
}
