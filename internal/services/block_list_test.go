package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BradenHooton/gatekeeper/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlockList_ExpiresWithoutUnblock(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.blocks.Block(ctx, attacker, "manual")
	require.NoError(t, err)

	blocked, err := e.blocks.IsBlocked(ctx, attacker)
	require.NoError(t, err)
	assert.True(t, blocked)

	e.clock.Advance(24*time.Hour - time.Second)
	blocked, err = e.blocks.IsBlocked(ctx, attacker)
	require.NoError(t, err)
	assert.True(t, blocked)

	e.clock.Advance(time.Second)
	blocked, err = e.blocks.IsBlocked(ctx, attacker)
	require.NoError(t, err)
	assert.False(t, blocked, "a block ending exactly now is no longer live")

	// the row is still there, only its liveness changed
	_, err = e.blockDB.Get(ctx, attacker)
	assert.NoError(t, err)
}

func TestBlockList_ReblockRefreshesWindow(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.blocks.Block(ctx, attacker, "first")
	require.NoError(t, err)

	e.clock.Advance(20 * time.Hour)
	rec, err := e.blocks.Block(ctx, attacker, "second")
	require.NoError(t, err)
	require.NotNil(t, rec.BlockedUntil)
	assert.Equal(t, e.clock.Now().Add(24*time.Hour), *rec.BlockedUntil)
	assert.Equal(t, "second", rec.Reason)

	e.clock.Advance(10 * time.Hour)
	blocked, err := e.blocks.IsBlocked(ctx, attacker)
	require.NoError(t, err)
	assert.True(t, blocked)

	assert.Equal(t, 2, e.countEvents(t, models.ActionIPBlocked))
}

func TestBlockList_PermanentNeverExpires(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	rec, err := e.blocks.BlockPermanent(ctx, attacker, "abuse")
	require.NoError(t, err)
	assert.True(t, rec.IsPermanent())

	e.clock.Advance(10 * 365 * 24 * time.Hour)
	blocked, err := e.blocks.IsBlocked(ctx, attacker)
	require.NoError(t, err)
	assert.True(t, blocked)
}

func TestBlockList_Unblock(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.blocks.Block(ctx, attacker, "manual")
	require.NoError(t, err)

	require.NoError(t, e.blocks.Unblock(ctx, attacker))

	blocked, err := e.blocks.IsBlocked(ctx, attacker)
	require.NoError(t, err)
	assert.False(t, blocked)
	assert.Equal(t, 1, e.countEvents(t, models.ActionIPUnblocked))

	err = e.blocks.Unblock(ctx, attacker)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.Equal(t, 1, e.countEvents(t, models.ActionIPUnblocked))
}

func TestBlockList_ListAndCountLive(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.blocks.Block(ctx, "192.0.2.1", "a")
	require.NoError(t, err)
	e.clock.Advance(time.Minute)
	_, err = e.blocks.BlockPermanent(ctx, "192.0.2.2", "b")
	require.NoError(t, err)

	live, err := e.blocks.ListLive(ctx, 10)
	require.NoError(t, err)
	require.Len(t, live, 2)
	assert.Equal(t, models.Identity("192.0.2.2"), live[0].Identity)

	e.clock.Advance(25 * time.Hour)
	count, err := e.blocks.CountLive(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestBlockList_NotifiesOnBlock(t *testing.T) {
	var notified []*models.BlockedIdentityRecord
	notifier := &MockAlertNotifier{
		NotifyBlockedFunc: func(ctx context.Context, block *models.BlockedIdentityRecord) error {
			_, hasDeadline := ctx.Deadline()
			assert.True(t, hasDeadline, "alerts run under a timeout")
			notified = append(notified, block)
			return nil
		},
	}
	e := newTestEngine(t, func(o *engineOptions) { o.notifier = notifier })

	e.fail(t, attacker, 5)

	require.Len(t, notified, 1)
	assert.Equal(t, attacker, notified[0].Identity)
	assert.Equal(t, LockoutReason, notified[0].Reason)
}

func TestBlockList_NotifierFailureDoesNotFailBlock(t *testing.T) {
	notifier := &MockAlertNotifier{
		NotifyBlockedFunc: func(ctx context.Context, block *models.BlockedIdentityRecord) error {
			return errors.New("ses throttled")
		},
	}
	e := newTestEngine(t, func(o *engineOptions) { o.notifier = notifier })

	_, err := e.blocks.Block(context.Background(), attacker, "manual")
	require.NoError(t, err)

	blocked, err := e.blocks.IsBlocked(context.Background(), attacker)
	require.NoError(t, err)
	assert.True(t, blocked)
}

func TestBlockList_StorageErrors(t *testing.T) {
	storeErr := errors.Join(models.ErrStorageUnavailable, errors.New("timeout"))
	repo := &MockBlockedIdentityRepository{
		GetFunc: func(ctx context.Context, identity models.Identity) (*models.BlockedIdentityRecord, error) {
			return nil, storeErr
		},
		UpsertFunc: func(ctx context.Context, rec *models.BlockedIdentityRecord) (*models.BlockedIdentityRecord, error) {
			return nil, storeErr
		},
	}
	var appended []models.Action
	logRepo := &MockSecurityLogRepository{
		AppendFunc: func(ctx context.Context, event *models.SecurityEvent) error {
			appended = append(appended, event.Action)
			return nil
		},
	}
	events := NewSecurityEventLog(logRepo, discardLogger())
	blocks := NewBlockList(repo, events, nil, BlockListConfig{BlockDuration: time.Hour}, discardLogger())

	_, err := blocks.IsBlocked(context.Background(), attacker)
	assert.ErrorIs(t, err, models.ErrStorageUnavailable)

	_, err = blocks.Block(context.Background(), attacker, "x")
	assert.ErrorIs(t, err, models.ErrStorageUnavailable)
	assert.Empty(t, appended, "no IP_BLOCKED event for a block that was not stored")
}
