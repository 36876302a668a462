package repositories

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/BradenHooton/gatekeeper/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The same behaviour is expected from the Postgres, Redis and memory
// backends; each backend test runs these against a fresh store.

type attemptStore interface {
	RecordFailure(ctx context.Context, identity models.Identity, now time.Time, threshold int, lockUntil time.Time) (*models.LoginAttemptRecord, error)
	Get(ctx context.Context, identity models.Identity) (*models.LoginAttemptRecord, error)
	Delete(ctx context.Context, identity models.Identity) error
	CountActiveSince(ctx context.Context, since time.Time) (int64, error)
}

type blockStore interface {
	Upsert(ctx context.Context, rec *models.BlockedIdentityRecord) (*models.BlockedIdentityRecord, error)
	Get(ctx context.Context, identity models.Identity) (*models.BlockedIdentityRecord, error)
	Delete(ctx context.Context, identity models.Identity) error
	ListLive(ctx context.Context, now time.Time, limit int) ([]*models.BlockedIdentityRecord, error)
	CountLive(ctx context.Context, now time.Time) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type eventStore interface {
	Append(ctx context.Context, event *models.SecurityEvent) error
	Count(ctx context.Context) (int64, error)
	Recent(ctx context.Context, limit int) ([]*models.SecurityEvent, error)
	CountByActionsSince(ctx context.Context, actions []models.Action, since time.Time) (int64, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type csrfStore interface {
	GetOrCreate(ctx context.Context, sessionID, candidate string, now time.Time) (string, error)
	Get(ctx context.Context, sessionID string) (string, error)
	Delete(ctx context.Context, sessionID string) error
}

type revocationStore interface {
	Revoke(ctx context.Context, sessionID string, revokedAt, expiresAt time.Time) error
	IsRevoked(ctx context.Context, sessionID string) (bool, error)
}

// storeNow is truncated to the coarsest precision any backend keeps
func storeNow() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func runAttemptStoreContract(t *testing.T, newStore func(t *testing.T) attemptStore) {
	ctx := context.Background()
	const threshold = 5

	t.Run("first failure creates record with one attempt", func(t *testing.T) {
		store := newStore(t)
		now := storeNow()

		rec, err := store.RecordFailure(ctx, "192.0.2.1", now, threshold, now.Add(15*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, 1, rec.Attempts)
		assert.Equal(t, models.Identity("192.0.2.1"), rec.Identity)
		assert.WithinDuration(t, now, rec.LastAttemptAt, time.Millisecond)
		assert.Nil(t, rec.LockedUntil)
	})

	t.Run("lock is set by the failure that reaches the threshold", func(t *testing.T) {
		store := newStore(t)
		now := storeNow()
		lockUntil := now.Add(15 * time.Minute)

		var rec *models.LoginAttemptRecord
		var err error
		for i := 1; i <= threshold; i++ {
			rec, err = store.RecordFailure(ctx, "192.0.2.2", now, threshold, lockUntil)
			require.NoError(t, err)
			assert.Equal(t, i, rec.Attempts)
			if i < threshold {
				assert.Nil(t, rec.LockedUntil, "attempt %d should not lock", i)
			}
		}

		require.NotNil(t, rec.LockedUntil)
		assert.WithinDuration(t, lockUntil, *rec.LockedUntil, time.Millisecond)

		got, err := store.Get(ctx, "192.0.2.2")
		require.NoError(t, err)
		assert.Equal(t, threshold, got.Attempts)
		require.NotNil(t, got.LockedUntil)
	})

	t.Run("get missing record returns not found", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Get(ctx, "192.0.2.3")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("delete resets the count", func(t *testing.T) {
		store := newStore(t)
		now := storeNow()

		for i := 0; i < 3; i++ {
			_, err := store.RecordFailure(ctx, "192.0.2.4", now, threshold, now.Add(time.Minute))
			require.NoError(t, err)
		}
		require.NoError(t, store.Delete(ctx, "192.0.2.4"))

		_, err := store.Get(ctx, "192.0.2.4")
		assert.ErrorIs(t, err, models.ErrNotFound)

		rec, err := store.RecordFailure(ctx, "192.0.2.4", now, threshold, now.Add(time.Minute))
		require.NoError(t, err)
		assert.Equal(t, 1, rec.Attempts)

		// deleting an absent record is not an error
		require.NoError(t, store.Delete(ctx, "192.0.2.250"))
	})

	t.Run("concurrent failures are all counted", func(t *testing.T) {
		store := newStore(t)
		now := storeNow()
		const workers = 50

		var wg sync.WaitGroup
		errs := make(chan error, workers)
		start := make(chan struct{})
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				if _, err := store.RecordFailure(ctx, "198.51.100.7", now, threshold, now.Add(15*time.Minute)); err != nil {
					errs <- err
				}
			}()
		}
		close(start)
		wg.Wait()
		close(errs)

		for err := range errs {
			require.NoError(t, err)
		}

		rec, err := store.Get(ctx, "198.51.100.7")
		require.NoError(t, err)
		assert.Equal(t, workers, rec.Attempts)
		assert.NotNil(t, rec.LockedUntil)
	})

	t.Run("count active since", func(t *testing.T) {
		store := newStore(t)
		now := storeNow()

		_, err := store.RecordFailure(ctx, "203.0.113.1", now.Add(-2*time.Hour), threshold, now)
		require.NoError(t, err)
		_, err = store.RecordFailure(ctx, "203.0.113.2", now.Add(-10*time.Minute), threshold, now)
		require.NoError(t, err)
		_, err = store.RecordFailure(ctx, "203.0.113.3", now, threshold, now)
		require.NoError(t, err)

		count, err := store.CountActiveSince(ctx, now.Add(-time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)
	})
}

func runBlockStoreContract(t *testing.T, newStore func(t *testing.T) blockStore) {
	ctx := context.Background()

	t.Run("upsert then get", func(t *testing.T) {
		store := newStore(t)
		now := storeNow()
		until := now.Add(24 * time.Hour)

		rec, err := store.Upsert(ctx, &models.BlockedIdentityRecord{
			Identity:     "192.0.2.10",
			Reason:       "Too many failed login attempts",
			BlockedUntil: &until,
			CreatedAt:    now,
		})
		require.NoError(t, err)
		assert.Equal(t, "Too many failed login attempts", rec.Reason)
		require.NotNil(t, rec.BlockedUntil)
		assert.WithinDuration(t, until, *rec.BlockedUntil, time.Millisecond)

		got, err := store.Get(ctx, "192.0.2.10")
		require.NoError(t, err)
		assert.Equal(t, rec.Reason, got.Reason)
		assert.WithinDuration(t, now, got.CreatedAt, time.Millisecond)
	})

	t.Run("upsert overwrites reason and expiry", func(t *testing.T) {
		store := newStore(t)
		now := storeNow()
		first := now.Add(time.Hour)
		second := now.Add(48 * time.Hour)

		_, err := store.Upsert(ctx, &models.BlockedIdentityRecord{Identity: "192.0.2.11", Reason: "first", BlockedUntil: &first, CreatedAt: now})
		require.NoError(t, err)
		_, err = store.Upsert(ctx, &models.BlockedIdentityRecord{Identity: "192.0.2.11", Reason: "second", BlockedUntil: &second, CreatedAt: now})
		require.NoError(t, err)

		got, err := store.Get(ctx, "192.0.2.11")
		require.NoError(t, err)
		assert.Equal(t, "second", got.Reason)
		require.NotNil(t, got.BlockedUntil)
		assert.WithinDuration(t, second, *got.BlockedUntil, time.Millisecond)
	})

	t.Run("permanent block has no expiry", func(t *testing.T) {
		store := newStore(t)
		now := storeNow()

		_, err := store.Upsert(ctx, &models.BlockedIdentityRecord{Identity: "2001:db8::1", Reason: "manual", CreatedAt: now})
		require.NoError(t, err)

		got, err := store.Get(ctx, "2001:db8::1")
		require.NoError(t, err)
		assert.True(t, got.IsPermanent())

		count, err := store.CountLive(ctx, now.Add(100*365*24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})

	t.Run("live listing excludes expired and is newest first", func(t *testing.T) {
		store := newStore(t)
		now := storeNow()
		past := now.Add(-time.Minute)
		future := now.Add(time.Hour)

		_, err := store.Upsert(ctx, &models.BlockedIdentityRecord{Identity: "192.0.2.20", Reason: "old", BlockedUntil: &future, CreatedAt: now.Add(-2 * time.Hour)})
		require.NoError(t, err)
		_, err = store.Upsert(ctx, &models.BlockedIdentityRecord{Identity: "192.0.2.21", Reason: "expired", BlockedUntil: &past, CreatedAt: now.Add(-time.Hour)})
		require.NoError(t, err)
		_, err = store.Upsert(ctx, &models.BlockedIdentityRecord{Identity: "192.0.2.22", Reason: "new", CreatedAt: now})
		require.NoError(t, err)

		live, err := store.ListLive(ctx, now, 10)
		require.NoError(t, err)
		require.Len(t, live, 2)
		assert.Equal(t, models.Identity("192.0.2.22"), live[0].Identity)
		assert.Equal(t, models.Identity("192.0.2.20"), live[1].Identity)

		limited, err := store.ListLive(ctx, now, 1)
		require.NoError(t, err)
		assert.Len(t, limited, 1)

		for _, limit := range []int{0, -1} {
			all, err := store.ListLive(ctx, now, limit)
			require.NoError(t, err)
			assert.Len(t, all, 2, "limit %d", limit)
		}

		count, err := store.CountLive(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)
	})

	t.Run("delete", func(t *testing.T) {
		store := newStore(t)
		now := storeNow()

		_, err := store.Upsert(ctx, &models.BlockedIdentityRecord{Identity: "192.0.2.30", Reason: "x", CreatedAt: now})
		require.NoError(t, err)

		require.NoError(t, store.Delete(ctx, "192.0.2.30"))
		_, err = store.Get(ctx, "192.0.2.30")
		assert.ErrorIs(t, err, models.ErrNotFound)

		assert.ErrorIs(t, store.Delete(ctx, "192.0.2.30"), models.ErrNotFound)
	})

	t.Run("delete expired keeps live and permanent rows", func(t *testing.T) {
		store := newStore(t)
		now := storeNow()
		past := now.Add(-time.Second)
		future := now.Add(time.Hour)

		_, err := store.Upsert(ctx, &models.BlockedIdentityRecord{Identity: "192.0.2.40", Reason: "expired", BlockedUntil: &past, CreatedAt: now})
		require.NoError(t, err)
		_, err = store.Upsert(ctx, &models.BlockedIdentityRecord{Identity: "192.0.2.41", Reason: "live", BlockedUntil: &future, CreatedAt: now})
		require.NoError(t, err)
		_, err = store.Upsert(ctx, &models.BlockedIdentityRecord{Identity: "192.0.2.42", Reason: "permanent", CreatedAt: now})
		require.NoError(t, err)

		deleted, err := store.DeleteExpired(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, int64(1), deleted)

		_, err = store.Get(ctx, "192.0.2.40")
		assert.ErrorIs(t, err, models.ErrNotFound)
		_, err = store.Get(ctx, "192.0.2.41")
		assert.NoError(t, err)
		_, err = store.Get(ctx, "192.0.2.42")
		assert.NoError(t, err)
	})
}

func runEventStoreContract(t *testing.T, newStore func(t *testing.T) eventStore) {
	ctx := context.Background()

	appendEvents := func(t *testing.T, store eventStore, now time.Time, actions ...models.Action) []*models.SecurityEvent {
		events := make([]*models.SecurityEvent, 0, len(actions))
		for i, action := range actions {
			event := &models.SecurityEvent{
				OccurredAt: now.Add(time.Duration(i) * time.Millisecond),
				Identity:   "192.0.2.50",
				UserAgent:  "test-agent",
				Action:     action,
				Details:    fmt.Sprintf("event %d", i),
			}
			require.NoError(t, store.Append(ctx, event))
			events = append(events, event)
		}
		return events
	}

	t.Run("append assigns increasing ids", func(t *testing.T) {
		store := newStore(t)
		events := appendEvents(t, store, storeNow(), models.ActionPageAccess, models.ActionIPBlocked)

		assert.Greater(t, events[0].ID, int64(0))
		assert.Greater(t, events[1].ID, events[0].ID)

		count, err := store.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)
	})

	t.Run("recent returns newest first", func(t *testing.T) {
		store := newStore(t)
		appendEvents(t, store, storeNow(),
			models.ActionPageAccess, models.ActionAccountLocked, models.ActionIPBlocked)

		recent, err := store.Recent(ctx, 2)
		require.NoError(t, err)
		require.Len(t, recent, 2)
		assert.Equal(t, models.ActionIPBlocked, recent[0].Action)
		assert.Equal(t, models.ActionAccountLocked, recent[1].Action)
		assert.Equal(t, "test-agent", recent[0].UserAgent)
		assert.Equal(t, "event 2", recent[0].Details)
		assert.Equal(t, models.Identity("192.0.2.50"), recent[0].Identity)

		for _, limit := range []int{0, -1} {
			none, err := store.Recent(ctx, limit)
			require.NoError(t, err)
			assert.Empty(t, none, "limit %d", limit)
		}
	})

	t.Run("count by actions since", func(t *testing.T) {
		store := newStore(t)
		now := storeNow()
		appendEvents(t, store, now.Add(-2*time.Hour), models.ActionAccountLocked)
		appendEvents(t, store, now,
			models.ActionAccountLocked, models.ActionPageAccess, models.ActionIPBlocked)

		count, err := store.CountByActionsSince(ctx,
			[]models.Action{models.ActionAccountLocked, models.ActionIPBlocked}, now.Add(-time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)

		count, err = store.CountByActionsSince(ctx, nil, now.Add(-time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(0), count)
	})

	t.Run("delete older than", func(t *testing.T) {
		store := newStore(t)
		now := storeNow()
		appendEvents(t, store, now, models.ActionPageAccess, models.ActionPageAccess)

		deleted, err := store.DeleteOlderThan(ctx, now.Add(-time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(0), deleted)

		deleted, err = store.DeleteOlderThan(ctx, now.Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(2), deleted)

		count, err := store.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(0), count)
	})
}

func runCSRFStoreContract(t *testing.T, newStore func(t *testing.T) csrfStore) {
	ctx := context.Background()

	t.Run("first candidate wins", func(t *testing.T) {
		store := newStore(t)
		now := storeNow()

		token, err := store.GetOrCreate(ctx, "session-1", "aaaa", now)
		require.NoError(t, err)
		assert.Equal(t, "aaaa", token)

		token, err = store.GetOrCreate(ctx, "session-1", "bbbb", now)
		require.NoError(t, err)
		assert.Equal(t, "aaaa", token)

		got, err := store.Get(ctx, "session-1")
		require.NoError(t, err)
		assert.Equal(t, "aaaa", got)
	})

	t.Run("racing creators observe one token", func(t *testing.T) {
		store := newStore(t)
		now := storeNow()
		const workers = 20

		results := make([]string, workers)
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				token, err := store.GetOrCreate(ctx, "session-race", fmt.Sprintf("candidate-%d", i), now)
				assert.NoError(t, err)
				results[i] = token
			}(i)
		}
		wg.Wait()

		for _, token := range results {
			assert.Equal(t, results[0], token)
		}
	})

	t.Run("delete clears the slot", func(t *testing.T) {
		store := newStore(t)
		now := storeNow()

		_, err := store.GetOrCreate(ctx, "session-2", "cccc", now)
		require.NoError(t, err)
		require.NoError(t, store.Delete(ctx, "session-2"))

		_, err = store.Get(ctx, "session-2")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})
}

func runRevocationStoreContract(t *testing.T, newStore func(t *testing.T) revocationStore) {
	ctx := context.Background()

	t.Run("revoke and check", func(t *testing.T) {
		store := newStore(t)
		now := storeNow()

		revoked, err := store.IsRevoked(ctx, "session-a")
		require.NoError(t, err)
		assert.False(t, revoked)

		require.NoError(t, store.Revoke(ctx, "session-a", now, now.Add(30*time.Minute)))
		// second revocation is a no-op
		require.NoError(t, store.Revoke(ctx, "session-a", now, now.Add(30*time.Minute)))

		revoked, err = store.IsRevoked(ctx, "session-a")
		require.NoError(t, err)
		assert.True(t, revoked)

		revoked, err = store.IsRevoked(ctx, "session-b")
		require.NoError(t, err)
		assert.False(t, revoked)
	})
}
