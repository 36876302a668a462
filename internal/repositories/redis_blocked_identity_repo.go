package repositories

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/BradenHooton/gatekeeper/internal/database"
	"github.com/BradenHooton/gatekeeper/internal/models"
	"github.com/redis/go-redis/v9"
)

// permanentScore ranks permanent blocks after every finite expiry
const permanentScore = float64(math.MaxInt64)

// deleteBlockIfExpiredScript removes one block whose indexed expiry is still
// at or before ARGV[2]; a block refreshed since the candidate scan survives.
// KEYS: block hash, expiry index. ARGV: identity, now (ms).
var deleteBlockIfExpiredScript = redis.NewScript(`
local score = redis.call('ZSCORE', KEYS[2], ARGV[1])
if score and tonumber(score) <= tonumber(ARGV[2]) then
	redis.call('DEL', KEYS[1])
	redis.call('ZREM', KEYS[2], ARGV[1])
	return 1
end
return 0
`)

// RedisBlockedIdentityRepository keeps one hash per block plus a sorted set
// of identities scored by expiry.
type RedisBlockedIdentityRepository struct {
	client redis.UniversalClient
	keys   redisKeyspace
}

// NewRedisBlockedIdentityRepository creates a new RedisBlockedIdentityRepository
func NewRedisBlockedIdentityRepository(client redis.UniversalClient, prefix string) *RedisBlockedIdentityRepository {
	return &RedisBlockedIdentityRepository{client: client, keys: newRedisKeyspace(prefix)}
}

func blockScore(rec *models.BlockedIdentityRecord) float64 {
	if rec.BlockedUntil == nil {
		return permanentScore
	}
	return float64(rec.BlockedUntil.UnixMilli())
}

func parseBlockFields(identity models.Identity, fields map[string]string) (*models.BlockedIdentityRecord, error) {
	if len(fields) == 0 {
		return nil, models.ErrNotFound
	}

	createdAt, err := parseMillis(fields["created_at"])
	if err != nil {
		return nil, err
	}
	blockedUntil, err := parseOptionalMillis(fields["blocked_until"])
	if err != nil {
		return nil, err
	}

	return &models.BlockedIdentityRecord{
		Identity:     identity,
		Reason:       fields["reason"],
		BlockedUntil: blockedUntil,
		CreatedAt:    createdAt,
	}, nil
}

// Upsert creates or replaces the block for rec.Identity
func (r *RedisBlockedIdentityRepository) Upsert(ctx context.Context, rec *models.BlockedIdentityRecord) (*models.BlockedIdentityRecord, error) {
	blockedUntil := ""
	if rec.BlockedUntil != nil {
		blockedUntil = formatMillis(*rec.BlockedUntil)
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		key := r.keys.block(rec.Identity)
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key,
			"reason", rec.Reason,
			"blocked_until", blockedUntil,
			"created_at", formatMillis(rec.CreatedAt),
		)
		pipe.ZAdd(ctx, r.keys.blockIndex(), redis.Z{Score: blockScore(rec), Member: string(rec.Identity)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upsert block: %w", database.MapRedisError(err))
	}

	return r.Get(ctx, rec.Identity)
}

// Get returns the block for identity
func (r *RedisBlockedIdentityRepository) Get(ctx context.Context, identity models.Identity) (*models.BlockedIdentityRecord, error) {
	fields, err := r.client.HGetAll(ctx, r.keys.block(identity)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get block: %w", database.MapRedisError(err))
	}

	rec, err := parseBlockFields(identity, fields)
	if err != nil {
		return nil, fmt.Errorf("failed to get block: %w", err)
	}
	return rec, nil
}

// Delete removes the block for identity
func (r *RedisBlockedIdentityRepository) Delete(ctx context.Context, identity models.Identity) error {
	var del *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, r.keys.block(identity))
		pipe.ZRem(ctx, r.keys.blockIndex(), string(identity))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete block: %w", database.MapRedisError(err))
	}
	if del.Val() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// ListLive returns blocks in force at now, newest first; limit <= 0 returns all
func (r *RedisBlockedIdentityRepository) ListLive(ctx context.Context, now time.Time, limit int) ([]*models.BlockedIdentityRecord, error) {
	ids, err := r.client.ZRangeByScore(ctx, r.keys.blockIndex(), &redis.ZRangeBy{
		Min: "(" + formatMillis(now),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to query blocks: %w", database.MapRedisError(err))
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, r.keys.block(models.Identity(id)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query blocks: %w", database.MapRedisError(err))
	}

	blocks := make([]*models.BlockedIdentityRecord, 0, len(ids))
	for i, id := range ids {
		rec, err := parseBlockFields(models.Identity(id), cmds[i].Val())
		if err != nil {
			// removed between the index read and the hash read
			continue
		}
		blocks = append(blocks, rec)
	}

	sort.SliceStable(blocks, func(i, j int) bool {
		return blocks[i].CreatedAt.After(blocks[j].CreatedAt)
	})
	if limit > 0 && len(blocks) > limit {
		blocks = blocks[:limit]
	}
	return blocks, nil
}

// CountLive counts blocks in force at now
func (r *RedisBlockedIdentityRepository) CountLive(ctx context.Context, now time.Time) (int64, error) {
	count, err := r.client.ZCount(ctx, r.keys.blockIndex(), "("+formatMillis(now), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count blocks: %w", database.MapRedisError(err))
	}
	return count, nil
}

// DeleteExpired removes blocks whose expiry is at or before now. Candidates
// come from the expiry index; each is deleted by a script that declares both
// of its keys.
func (r *RedisBlockedIdentityRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	nowMillis := formatMillis(now)
	ids, err := r.client.ZRangeByScore(ctx, r.keys.blockIndex(), &redis.ZRangeBy{
		Min: "-inf",
		Max: nowMillis,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to scan expired blocks: %w", database.MapRedisError(err))
	}

	var deleted int64
	for _, id := range ids {
		keys := []string{r.keys.block(models.Identity(id)), r.keys.blockIndex()}
		n, err := deleteBlockIfExpiredScript.Run(ctx, r.client, keys, id, nowMillis).Int64()
		if err != nil {
			return deleted, fmt.Errorf("failed to delete expired block: %w", database.MapRedisError(err))
		}
		deleted += n
	}
	return deleted, nil
}
