package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/BradenHooton/gatekeeper/internal/auth"
	"github.com/BradenHooton/gatekeeper/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jsonLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func decodeLogLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var lines []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		lines = append(lines, entry)
	}
	return lines
}

func TestSecurityEventLog_AppendPersistsEvent(t *testing.T) {
	var stored []models.SecurityEvent
	repo := &MockSecurityLogRepository{
		AppendFunc: func(ctx context.Context, event *models.SecurityEvent) error {
			event.ID = int64(len(stored) + 1)
			stored = append(stored, *event)
			return nil
		},
	}
	clock := newFakeClock()
	log := NewSecurityEventLog(repo, discardLogger())
	log.SetClock(clock.Now)

	ctx := auth.WithRequestMeta(context.Background(), models.RequestMeta{Identity: attacker, UserAgent: "Mozilla/5.0"})
	log.Append(ctx, attacker, models.ActionIPBlocked, "manual")

	require.Len(t, stored, 1)
	assert.Equal(t, attacker, stored[0].Identity)
	assert.Equal(t, "Mozilla/5.0", stored[0].UserAgent)
	assert.Equal(t, models.ActionIPBlocked, stored[0].Action)
	assert.Equal(t, "manual", stored[0].Details)
	assert.Equal(t, clock.Now(), stored[0].OccurredAt)
}

func TestSecurityEventLog_DefaultsUserAgent(t *testing.T) {
	var got models.SecurityEvent
	repo := &MockSecurityLogRepository{
		AppendFunc: func(ctx context.Context, event *models.SecurityEvent) error {
			got = *event
			return nil
		},
	}
	log := NewSecurityEventLog(repo, discardLogger())

	log.Append(context.Background(), attacker, models.ActionPageAccess, "")
	assert.Equal(t, models.UnknownUserAgent, got.UserAgent)
}

func TestSecurityEventLog_StoreFailureIsSwallowedAndLogged(t *testing.T) {
	var buf bytes.Buffer
	repo := &MockSecurityLogRepository{
		AppendFunc: func(ctx context.Context, event *models.SecurityEvent) error {
			return errors.Join(models.ErrStorageUnavailable, errors.New("connection reset"))
		},
	}
	log := NewSecurityEventLog(repo, jsonLogger(&buf))

	assert.NotPanics(t, func() {
		log.Append(context.Background(), attacker, models.ActionAccountLocked, LockoutReason)
	})

	lines := decodeLogLines(t, &buf)
	require.Len(t, lines, 2)

	assert.Equal(t, "WARN", lines[0]["level"])
	assert.Equal(t, "security_event", lines[0]["msg"])
	assert.Equal(t, "ACCOUNT_LOCKED", lines[0]["action"])
	assert.Equal(t, "security", lines[0]["audit_type"])

	assert.Equal(t, "ERROR", lines[1]["level"])
	assert.Equal(t, attacker.String(), lines[1]["identity"])
	assert.Contains(t, lines[1]["error"], "connection reset")
}

func TestSecurityEventLog_ReadSide(t *testing.T) {
	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	repo := &MockSecurityLogRepository{
		CountFunc: func(ctx context.Context) (int64, error) { return 42, nil },
		RecentFunc: func(ctx context.Context, limit int) ([]*models.SecurityEvent, error) {
			assert.Equal(t, 3, limit)
			return []*models.SecurityEvent{{ID: 3}, {ID: 2}, {ID: 1}}, nil
		},
		CountByActionsSinceFunc: func(ctx context.Context, actions []models.Action, got time.Time) (int64, error) {
			assert.Equal(t, []models.Action{models.ActionCSRFAttack}, actions)
			assert.Equal(t, since, got)
			return 7, nil
		},
	}
	log := NewSecurityEventLog(repo, discardLogger())
	ctx := context.Background()

	count, err := log.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(42), count)

	recent, err := log.Recent(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, recent, 3)

	n, err := log.CountByActionsSince(ctx, []models.Action{models.ActionCSRFAttack}, since)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
}
