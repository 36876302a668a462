package repositories

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/BradenHooton/gatekeeper/internal/database"
	"github.com/BradenHooton/gatekeeper/internal/models"
	"github.com/redis/go-redis/v9"
)

const securityLogScanPage = 500

var appendSecurityEventScript = redis.NewScript(`
local id = redis.call('INCR', KEYS[2])
redis.call('XADD', KEYS[1], '*',
	'id', id,
	'occurred_at', ARGV[1],
	'identity', ARGV[2],
	'user_agent', ARGV[3],
	'action', ARGV[4],
	'details', ARGV[5])
return id
`)

// RedisSecurityLogRepository appends security events to a Redis stream
type RedisSecurityLogRepository struct {
	client redis.UniversalClient
	keys   redisKeyspace
}

// NewRedisSecurityLogRepository creates a new RedisSecurityLogRepository
func NewRedisSecurityLogRepository(client redis.UniversalClient, prefix string) *RedisSecurityLogRepository {
	return &RedisSecurityLogRepository{client: client, keys: newRedisKeyspace(prefix)}
}

func parseSecurityEvent(msg redis.XMessage) (*models.SecurityEvent, error) {
	str := func(field string) string {
		v, _ := msg.Values[field].(string)
		return v
	}

	id, err := strconv.ParseInt(str("id"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid event id in stream entry %s: %w", msg.ID, err)
	}
	occurredAt, err := parseMillis(str("occurred_at"))
	if err != nil {
		return nil, err
	}

	return &models.SecurityEvent{
		ID:         id,
		OccurredAt: occurredAt,
		Identity:   models.Identity(str("identity")),
		UserAgent:  str("user_agent"),
		Action:     models.Action(str("action")),
		Details:    str("details"),
	}, nil
}

// Append stores one security event
func (r *RedisSecurityLogRepository) Append(ctx context.Context, event *models.SecurityEvent) error {
	keys := []string{r.keys.securityLog(), r.keys.securityLogSeq()}
	id, err := appendSecurityEventScript.Run(ctx, r.client, keys,
		formatMillis(event.OccurredAt), string(event.Identity), event.UserAgent,
		string(event.Action), event.Details,
	).Int64()
	if err != nil {
		return fmt.Errorf("failed to append security event: %w", database.MapRedisError(err))
	}
	event.ID = id
	return nil
}

// Count returns the number of stored events
func (r *RedisSecurityLogRepository) Count(ctx context.Context) (int64, error) {
	count, err := r.client.XLen(ctx, r.keys.securityLog()).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count security events: %w", database.MapRedisError(err))
	}
	return count, nil
}

// Recent returns up to limit events, newest first; limit <= 0 returns none
func (r *RedisSecurityLogRepository) Recent(ctx context.Context, limit int) ([]*models.SecurityEvent, error) {
	if limit <= 0 {
		return []*models.SecurityEvent{}, nil
	}

	msgs, err := r.client.XRevRangeN(ctx, r.keys.securityLog(), "+", "-", int64(limit)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to query security events: %w", database.MapRedisError(err))
	}

	events := make([]*models.SecurityEvent, 0, len(msgs))
	for _, msg := range msgs {
		event, err := parseSecurityEvent(msg)
		if err != nil {
			return nil, fmt.Errorf("failed to parse security event: %w", err)
		}
		events = append(events, event)
	}
	return events, nil
}

// CountByActionsSince walks the stream backwards until it passes since
func (r *RedisSecurityLogRepository) CountByActionsSince(ctx context.Context, actions []models.Action, since time.Time) (int64, error) {
	if len(actions) == 0 {
		return 0, nil
	}

	wanted := make(map[models.Action]struct{}, len(actions))
	for _, a := range actions {
		wanted[a] = struct{}{}
	}

	var count int64
	end := "+"
	for {
		msgs, err := r.client.XRevRangeN(ctx, r.keys.securityLog(), end, "-", securityLogScanPage).Result()
		if err != nil {
			return 0, fmt.Errorf("failed to count security events: %w", database.MapRedisError(err))
		}

		for _, msg := range msgs {
			event, err := parseSecurityEvent(msg)
			if err != nil {
				return 0, fmt.Errorf("failed to parse security event: %w", err)
			}
			if event.OccurredAt.Before(since) {
				return count, nil
			}
			if _, ok := wanted[event.Action]; ok {
				count++
			}
		}

		if len(msgs) < securityLogScanPage {
			return count, nil
		}
		prev, ok := previousStreamID(msgs[len(msgs)-1].ID)
		if !ok {
			return count, nil
		}
		end = prev
	}
}

// DeleteOlderThan trims entries whose stream ID predates cutoff. Stream IDs
// carry the server's insertion time.
func (r *RedisSecurityLogRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	deleted, err := r.client.XTrimMinID(ctx, r.keys.securityLog(), formatMillis(cutoff)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to prune security events: %w", database.MapRedisError(err))
	}
	return deleted, nil
}

// previousStreamID returns the largest ID strictly below id
func previousStreamID(id string) (string, bool) {
	msPart, seqPart, ok := strings.Cut(id, "-")
	if !ok {
		return "", false
	}
	ms, err := strconv.ParseUint(msPart, 10, 64)
	if err != nil {
		return "", false
	}
	seq, err := strconv.ParseUint(seqPart, 10, 64)
	if err != nil {
		return "", false
	}

	if seq > 0 {
		return fmt.Sprintf("%d-%d", ms, seq-1), true
	}
	if ms == 0 {
		return "", false
	}
	return fmt.Sprintf("%d-%d", ms-1, uint64(1<<64-1)), true
}
