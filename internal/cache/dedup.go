package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// refTTL keeps dedup sets around long enough to cover re-uploads of recent
// broker exports without growing unbounded.
const refTTL = 30 * 24 * time.Hour

// DedupCache keeps applied broker execution reference ids in a Redis set per
// portfolio. It is a fast path in front of the database: errors are logged
// and treated as misses, so a Redis outage degrades imports to DB-only
// duplicate checks instead of failing them.
type DedupCache struct {
	client *redis.Client
	log    zerolog.Logger
}

// NewDedupCache connects to Redis and verifies the connection.
func NewDedupCache(ctx context.Context, addr string, db int, log zerolog.Logger) (*DedupCache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return &DedupCache{client: client, log: log}, nil
}

func dedupKey(portfolioID int) string {
	return fmt.Sprintf("import:refs:%d", portfolioID)
}

// Seen reports whether the broker reference was recently applied to the
// portfolio. False on any Redis error.
func (c *DedupCache) Seen(ctx context.Context, portfolioID int, ref string) bool {
	seen, err := c.client.SIsMember(ctx, dedupKey(portfolioID), ref).Result()
	if err != nil {
		c.log.Warn().Err(err).Int("portfolio_id", portfolioID).Msg("dedup cache lookup failed")
		return false
	}
	return seen
}

// Add records an applied broker reference and refreshes the set's TTL.
func (c *DedupCache) Add(ctx context.Context, portfolioID int, ref string) {
	key := dedupKey(portfolioID)
	pipe := c.client.Pipeline()
	pipe.SAdd(ctx, key, ref)
	pipe.Expire(ctx, key, refTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		c.log.Warn().Err(err).Int("portfolio_id", portfolioID).Msg("dedup cache add failed")
	}
}

// Close releases the Redis connection.
func (c *DedupCache) Close() error {
	return c.client.Close()
}
