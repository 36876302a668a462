package repositories

import (
	"fmt"
	"strconv"
	"time"

	"github.com/BradenHooton/gatekeeper/internal/models"
)

// redisKeyspace names every key the Redis backend touches. Times are stored
// as Unix milliseconds. Every script declares the keys it touches in KEYS; on
// Redis Cluster the prefix must carry a hash tag (for example
// "{gatekeeper}:") so that a record and its index share a slot.
type redisKeyspace struct {
	prefix string
}

func newRedisKeyspace(prefix string) redisKeyspace {
	if prefix == "" {
		prefix = "gatekeeper:"
	}
	return redisKeyspace{prefix: prefix}
}

func (k redisKeyspace) attempts(identity models.Identity) string {
	return k.attemptsPrefix() + string(identity)
}

func (k redisKeyspace) attemptsPrefix() string { return k.prefix + "attempts:" }
func (k redisKeyspace) attemptsIndex() string  { return k.prefix + "attempts-index" }

func (k redisKeyspace) block(identity models.Identity) string {
	return k.blockPrefix() + string(identity)
}

func (k redisKeyspace) blockPrefix() string { return k.prefix + "blocks:" }
func (k redisKeyspace) blockIndex() string  { return k.prefix + "blocks-index" }

func (k redisKeyspace) securityLog() string    { return k.prefix + "security-log" }
func (k redisKeyspace) securityLogSeq() string { return k.prefix + "security-log-seq" }

func (k redisKeyspace) csrf(sessionID string) string    { return k.prefix + "csrf:" + sessionID }
func (k redisKeyspace) revoked(sessionID string) string { return k.prefix + "revoked:" + sessionID }

func formatMillis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func parseMillis(raw string) (time.Time, error) {
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", raw, err)
	}
	return time.UnixMilli(ms).UTC(), nil
}

// parseOptionalMillis treats nil or "" as absent
func parseOptionalMillis(raw interface{}) (*time.Time, error) {
	s, ok := raw.(string)
	if !ok || s == "" {
		return nil, nil
	}
	t, err := parseMillis(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
