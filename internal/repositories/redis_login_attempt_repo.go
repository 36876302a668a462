package repositories

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/BradenHooton/gatekeeper/internal/database"
	"github.com/BradenHooton/gatekeeper/internal/models"
	"github.com/redis/go-redis/v9"
)

// The increment, the lock decision and the activity index update run as one
// script so concurrent failures for an identity cannot interleave.
var recordFailureScript = redis.NewScript(`
local attempts = redis.call('HINCRBY', KEYS[1], 'attempts', 1)
redis.call('HSET', KEYS[1], 'last_attempt_at', ARGV[1])
if attempts >= tonumber(ARGV[2]) then
	redis.call('HSET', KEYS[1], 'locked_until', ARGV[3])
end
redis.call('ZADD', KEYS[2], ARGV[1], ARGV[4])
return redis.call('HMGET', KEYS[1], 'attempts', 'last_attempt_at', 'locked_until')
`)

// RedisLoginAttemptRepository stores the failure ledger in Redis hashes
type RedisLoginAttemptRepository struct {
	client redis.UniversalClient
	keys   redisKeyspace
}

// NewRedisLoginAttemptRepository creates a new RedisLoginAttemptRepository
func NewRedisLoginAttemptRepository(client redis.UniversalClient, prefix string) *RedisLoginAttemptRepository {
	return &RedisLoginAttemptRepository{client: client, keys: newRedisKeyspace(prefix)}
}

func parseAttemptFields(identity models.Identity, vals []interface{}) (*models.LoginAttemptRecord, error) {
	if len(vals) != 3 || vals[0] == nil {
		return nil, models.ErrNotFound
	}

	attemptsRaw, _ := vals[0].(string)
	attempts, err := strconv.Atoi(attemptsRaw)
	if err != nil {
		return nil, fmt.Errorf("invalid attempts value %q: %w", attemptsRaw, err)
	}

	lastRaw, _ := vals[1].(string)
	last, err := parseMillis(lastRaw)
	if err != nil {
		return nil, err
	}

	lockedUntil, err := parseOptionalMillis(vals[2])
	if err != nil {
		return nil, err
	}

	return &models.LoginAttemptRecord{
		Identity:      identity,
		Attempts:      attempts,
		LastAttemptAt: last,
		LockedUntil:   lockedUntil,
	}, nil
}

// RecordFailure records one failed attempt and sets the lock once the count reaches threshold
func (r *RedisLoginAttemptRepository) RecordFailure(ctx context.Context, identity models.Identity, now time.Time, threshold int, lockUntil time.Time) (*models.LoginAttemptRecord, error) {
	keys := []string{r.keys.attempts(identity), r.keys.attemptsIndex()}
	vals, err := recordFailureScript.Run(ctx, r.client, keys,
		formatMillis(now), threshold, formatMillis(lockUntil), string(identity),
	).Slice()
	if err != nil {
		return nil, fmt.Errorf("failed to record login failure: %w", database.MapRedisError(err))
	}

	rec, err := parseAttemptFields(identity, vals)
	if err != nil {
		return nil, fmt.Errorf("failed to record login failure: %w", err)
	}
	return rec, nil
}

// Get returns the attempt record for identity
func (r *RedisLoginAttemptRepository) Get(ctx context.Context, identity models.Identity) (*models.LoginAttemptRecord, error) {
	vals, err := r.client.HMGet(ctx, r.keys.attempts(identity), "attempts", "last_attempt_at", "locked_until").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get login attempts: %w", database.MapRedisError(err))
	}

	rec, err := parseAttemptFields(identity, vals)
	if err != nil {
		return nil, fmt.Errorf("failed to get login attempts: %w", err)
	}
	return rec, nil
}

// Delete clears the attempt record for identity
func (r *RedisLoginAttemptRepository) Delete(ctx context.Context, identity models.Identity) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.keys.attempts(identity))
		pipe.ZRem(ctx, r.keys.attemptsIndex(), string(identity))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete login attempts: %w", database.MapRedisError(err))
	}
	return nil
}

// CountActiveSince counts identities with a failure at or after since
func (r *RedisLoginAttemptRepository) CountActiveSince(ctx context.Context, since time.Time) (int64, error) {
	count, err := r.client.ZCount(ctx, r.keys.attemptsIndex(), formatMillis(since), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count login attempts: %w", database.MapRedisError(err))
	}
	return count, nil
}
