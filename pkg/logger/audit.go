package logger

import (
	"context"
	"log/slog"
	"time"

	"github.com/BradenHooton/gatekeeper/internal/models"
)

// SecurityEventLogger mirrors security events to the structured log so that
// they survive even when the event store is unreachable.
type SecurityEventLogger struct {
	logger *slog.Logger
}

// NewSecurityEventLogger creates a new security event logger
func NewSecurityEventLogger(logger *slog.Logger) *SecurityEventLogger {
	return &SecurityEventLogger{
		logger: logger,
	}
}

// LogEvent writes one security event. Warning actions are logged at WARN.
func (l *SecurityEventLogger) LogEvent(ctx context.Context, event models.SecurityEvent) {
	occurred := event.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}

	attrs := []slog.Attr{
		slog.String("audit_type", "security"),
		slog.String("action", string(event.Action)),
		slog.String("identity", event.Identity.String()),
		slog.String("timestamp", occurred.UTC().Format(time.RFC3339)),
	}

	if event.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", event.UserAgent))
	}
	if event.Details != "" {
		attrs = append(attrs, slog.String("details", event.Details))
	}

	level := slog.LevelInfo
	if event.Action.IsWarning() {
		level = slog.LevelWarn
	}
	l.logger.LogAttrs(ctx, level, "security_event", attrs...)
}

// LogStoreFailure records a failed write to the event store. The event itself
// has already been logged by LogEvent.
func (l *SecurityEventLogger) LogStoreFailure(ctx context.Context, event models.SecurityEvent, err error) {
	l.logger.LogAttrs(ctx, slog.LevelError, "security event not persisted",
		slog.String("audit_type", "security"),
		slog.String("action", string(event.Action)),
		slog.String("identity", event.Identity.String()),
		slog.String("error", err.Error()),
	)
}
