package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/BradenHooton/gatekeeper/internal/models"
)

const (
	DefaultRecentEvents = 10
	MaxRecentEvents     = 100
)

// DashboardStatsResponse contains aggregate defense metrics.
type DashboardStatsResponse struct {
	TotalEvents       int64 `json:"total_events"`
	LiveBlocks        int64 `json:"live_blocks"`
	RecentAttempts    int64 `json:"recent_attempts"`
	RecentLockouts    int64 `json:"recent_lockouts"`
	RecentCSRFAttacks int64 `json:"recent_csrf_attacks"`
	WindowSeconds     int64 `json:"window_seconds"`
}

// DashboardEventsResponse contains the recent event feed.
type DashboardEventsResponse struct {
	Events []*models.SecurityEvent `json:"events"`
	Limit  int                     `json:"limit"`
}

// AdminService aggregates data for admin dashboard endpoints.
type AdminService struct {
	events *SecurityEventLog
	blocks *BlockList
	ledger *AttemptLedger
	window time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// NewAdminService creates a new AdminService. window is the look-back used
// for the "recent" counters.
func NewAdminService(events *SecurityEventLog, blocks *BlockList, ledger *AttemptLedger, window time.Duration, logger *slog.Logger) *AdminService {
	return &AdminService{
		events: events,
		blocks: blocks,
		ledger: ledger,
		window: window,
		logger: logger,
		now:    time.Now,
	}
}

// SetClock replaces the time source
func (s *AdminService) SetClock(now func() time.Time) {
	s.now = now
}

// GetDashboardStats returns aggregate counts. A counter that cannot be read
// is reported as zero rather than failing the whole dashboard.
func (s *AdminService) GetDashboardStats(ctx context.Context) *DashboardStatsResponse {
	since := s.now().Add(-s.window)
	resp := &DashboardStatsResponse{WindowSeconds: int64(s.window.Seconds())}

	var err error
	if resp.TotalEvents, err = s.events.Count(ctx); err != nil {
		s.logger.ErrorContext(ctx, "dashboard: failed to count events", slog.Any("error", err))
	}
	if resp.LiveBlocks, err = s.blocks.CountLive(ctx); err != nil {
		s.logger.ErrorContext(ctx, "dashboard: failed to count blocks", slog.Any("error", err))
	}
	if resp.RecentAttempts, err = s.ledger.CountActiveSince(ctx, since); err != nil {
		s.logger.ErrorContext(ctx, "dashboard: failed to count recent attempts", slog.Any("error", err))
	}
	if resp.RecentLockouts, err = s.events.CountByActionsSince(ctx, []models.Action{models.ActionAccountLocked}, since); err != nil {
		s.logger.ErrorContext(ctx, "dashboard: failed to count lockouts", slog.Any("error", err))
	}
	if resp.RecentCSRFAttacks, err = s.events.CountByActionsSince(ctx, []models.Action{models.ActionCSRFAttack}, since); err != nil {
		s.logger.ErrorContext(ctx, "dashboard: failed to count csrf attacks", slog.Any("error", err))
	}

	return resp
}

// GetRecentEvents returns the newest events. limit defaults to 10 and is
// capped at 100.
func (s *AdminService) GetRecentEvents(ctx context.Context, limit int) (*DashboardEventsResponse, error) {
	if limit <= 0 {
		limit = DefaultRecentEvents
	}
	if limit > MaxRecentEvents {
		limit = MaxRecentEvents
	}

	events, err := s.events.Recent(ctx, limit)
	if err != nil {
		s.logger.ErrorContext(ctx, "dashboard: failed to list events", slog.Any("error", err))
		return nil, err
	}
	if events == nil {
		events = []*models.SecurityEvent{}
	}

	return &DashboardEventsResponse{Events: events, Limit: limit}, nil
}
