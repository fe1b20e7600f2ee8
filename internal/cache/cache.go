package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const scanBatch = 500

// Client is the subset of *redis.Client used here.
type Client interface {
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// Connect initializes a Redis client from URL or host:port input. A non-empty
// password overrides the URL's.
func Connect(_ context.Context, redisURL, password string) (*redis.Client, error) {
	redisURL = strings.TrimSpace(redisURL)
	if redisURL == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	var opt *redis.Options
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		parsed, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opt = parsed
	} else {
		opt = &redis.Options{Addr: redisURL}
	}
	if password != "" {
		opt.Password = password
	}
	return redis.NewClient(opt), nil
}

// Purger deletes job-queue keys by pattern.
type Purger struct {
	client Client
}

// NewPurger accepts a nil client, in which case RemoveKeys is a no-op.
func NewPurger(client Client) *Purger {
	return &Purger{client: client}
}

// RemoveKeys deletes every key matching pattern and returns how many were
// removed. Failures are logged at debug level and otherwise ignored.
func (p *Purger) RemoveKeys(ctx context.Context, pattern string) int64 {
	if p == nil || p.client == nil {
		return 0
	}
	var (
		cursor  uint64
		removed int64
	)
	for {
		keys, next, err := p.client.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			log.Debug().Err(err).Str("pattern", pattern).Msg("redis scan failed")
			return removed
		}
		if len(keys) > 0 {
			n, err := p.client.Del(ctx, keys...).Result()
			if err != nil {
				log.Debug().Err(err).Str("pattern", pattern).Msg("redis delete failed")
				return removed
			}
			removed += n
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	log.Debug().Str("pattern", pattern).Int64("removed", removed).Msg("redis keys purged")
	return removed
}

// ObjectCache is the host's redis-backed object cache.
type ObjectCache struct {
	client Client
}

func NewObjectCache(client Client) *ObjectCache {
	return &ObjectCache{client: client}
}

func (c *ObjectCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("cache delete %s: %w", key, err)
	}
	return nil
}

func (c *ObjectCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// Touch stores the current unix time under key, invalidating readers that
// compare against it.
func (c *ObjectCache) Touch(ctx context.Context, key string, now time.Time) error {
	return c.Set(ctx, key, now.Unix(), 0)
}

var keyEscaper = strings.NewReplacer("%", "%25", ":", "%3A", " ", "_")

// MakeKey builds keyspace:part:part with the delimiter escaped in each part.
func MakeKey(keyspace string, parts ...string) string {
	var b strings.Builder
	b.WriteString(keyspace)
	for _, part := range parts {
		b.WriteByte(':')
		b.WriteString(keyEscaper.Replace(part))
	}
	return b.String()
}
