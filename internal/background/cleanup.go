package background

import (
	"context"
	"log/slog"
	"time"
)

// ExpiredSweeper deletes rows whose expiry is at or before now
type ExpiredSweeper interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// AgeSweeper deletes rows created before cutoff
type AgeSweeper interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// CleanupStores are the stores the sweep prunes. The attempt ledger is
// deliberately absent: its rows only leave through a successful login.
type CleanupStores struct {
	Blocks      ExpiredSweeper
	Revocations ExpiredSweeper
	CSRFTokens  AgeSweeper
	SecurityLog AgeSweeper
}

// CleanupConfig controls how often and how far back the sweep prunes
type CleanupConfig struct {
	Interval       time.Duration
	SessionTimeout time.Duration // CSRF tokens older than this belong to dead sessions
	LogRetention   time.Duration // zero keeps security events forever
}

// CleanupManager periodically removes expired blocks, revocations, stale
// CSRF tokens and security events past retention. It never changes an
// access decision: expired rows already read as absent.
type CleanupManager struct {
	stores CleanupStores
	config CleanupConfig
	logger *slog.Logger
	now    func() time.Time
	stopCh chan struct{}
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(stores CleanupStores, config CleanupConfig, logger *slog.Logger) *CleanupManager {
	return &CleanupManager{
		stores: stores,
		config: config,
		logger: logger,
		now:    time.Now,
		stopCh: make(chan struct{}),
	}
}

// SetClock replaces the time source
func (cm *CleanupManager) SetClock(now func() time.Time) {
	cm.now = now
}

// Start begins the periodic cleanup task
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.config.Interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			cm.RunOnce(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

// RunOnce performs one sweep. A failing store is logged and the rest still run.
func (cm *CleanupManager) RunOnce(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	now := cm.now()

	if cm.stores.Blocks != nil {
		cm.sweep("expired blocks", func() (int64, error) {
			return cm.stores.Blocks.DeleteExpired(cleanupCtx, now)
		})
	}
	if cm.stores.Revocations != nil {
		cm.sweep("expired session revocations", func() (int64, error) {
			return cm.stores.Revocations.DeleteExpired(cleanupCtx, now)
		})
	}
	if cm.stores.CSRFTokens != nil && cm.config.SessionTimeout > 0 {
		cm.sweep("stale csrf tokens", func() (int64, error) {
			return cm.stores.CSRFTokens.DeleteOlderThan(cleanupCtx, now.Add(-cm.config.SessionTimeout))
		})
	}
	if cm.stores.SecurityLog != nil && cm.config.LogRetention > 0 {
		cm.sweep("security events past retention", func() (int64, error) {
			return cm.stores.SecurityLog.DeleteOlderThan(cleanupCtx, now.Add(-cm.config.LogRetention))
		})
	}
}

func (cm *CleanupManager) sweep(target string, fn func() (int64, error)) {
	deleted, err := fn()
	if err != nil {
		cm.logger.Error("cleanup failed", slog.String("target", target), slog.Any("error", err))
		return
	}
	if deleted > 0 {
		cm.logger.Info("cleanup completed", slog.String("target", target), slog.Int64("rows_deleted", deleted))
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
