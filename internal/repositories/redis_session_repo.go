package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/gatekeeper/internal/database"
	"github.com/redis/go-redis/v9"
)

// Either the candidate is stored or the live value is returned, atomically.
var csrfGetOrCreateScript = redis.NewScript(`
if redis.call('SET', KEYS[1], ARGV[1], 'NX', 'PX', ARGV[2]) then
	return ARGV[1]
end
return redis.call('GET', KEYS[1])
`)

// RedisCSRFTokenRepository stores CSRF tokens as keys that expire with the
// session they belong to.
type RedisCSRFTokenRepository struct {
	client redis.UniversalClient
	keys   redisKeyspace
	ttl    time.Duration
}

// NewRedisCSRFTokenRepository creates a new RedisCSRFTokenRepository
func NewRedisCSRFTokenRepository(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisCSRFTokenRepository {
	return &RedisCSRFTokenRepository{client: client, keys: newRedisKeyspace(prefix), ttl: ttl}
}

// GetOrCreate returns the token for sessionID, storing candidate if none exists
func (r *RedisCSRFTokenRepository) GetOrCreate(ctx context.Context, sessionID, candidate string, now time.Time) (string, error) {
	token, err := csrfGetOrCreateScript.Run(ctx, r.client,
		[]string{r.keys.csrf(sessionID)},
		candidate, r.ttl.Milliseconds(),
	).Text()
	if err != nil {
		return "", fmt.Errorf("failed to store csrf token: %w", database.MapRedisError(err))
	}
	return token, nil
}

// Get returns the token stored for sessionID
func (r *RedisCSRFTokenRepository) Get(ctx context.Context, sessionID string) (string, error) {
	token, err := r.client.Get(ctx, r.keys.csrf(sessionID)).Result()
	if err != nil {
		return "", fmt.Errorf("failed to get csrf token: %w", database.MapRedisError(err))
	}
	return token, nil
}

// Delete removes the token for sessionID
func (r *RedisCSRFTokenRepository) Delete(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, r.keys.csrf(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete csrf token: %w", database.MapRedisError(err))
	}
	return nil
}

// DeleteOlderThan is a no-op; keys expire on their own.
func (r *RedisCSRFTokenRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

// RedisSessionRevocationRepository keeps one expiring key per revoked session
type RedisSessionRevocationRepository struct {
	client redis.UniversalClient
	keys   redisKeyspace
}

// NewRedisSessionRevocationRepository creates a new RedisSessionRevocationRepository
func NewRedisSessionRevocationRepository(client redis.UniversalClient, prefix string) *RedisSessionRevocationRepository {
	return &RedisSessionRevocationRepository{client: client, keys: newRedisKeyspace(prefix)}
}

// Revoke marks sessionID revoked until expiresAt
func (r *RedisSessionRevocationRepository) Revoke(ctx context.Context, sessionID string, revokedAt, expiresAt time.Time) error {
	ttl := expiresAt.Sub(revokedAt)
	if ttl <= 0 {
		// already past its timeout, nothing left to revoke
		return nil
	}

	if err := r.client.SetNX(ctx, r.keys.revoked(sessionID), formatMillis(revokedAt), ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke session: %w", database.MapRedisError(err))
	}
	return nil
}

// IsRevoked reports whether sessionID has been revoked
func (r *RedisSessionRevocationRepository) IsRevoked(ctx context.Context, sessionID string) (bool, error) {
	n, err := r.client.Exists(ctx, r.keys.revoked(sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check session revocation: %w", database.MapRedisError(err))
	}
	return n > 0, nil
}

// DeleteExpired is a no-op; keys expire on their own.
func (r *RedisSessionRevocationRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}
