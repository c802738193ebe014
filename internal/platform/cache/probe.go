package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const probeKeyPrefix = "gondolapp:probe:"

// ProbeCache memoises upstream availability probes in Redis so a burst of
// scans against one upstream issues a single HEAD request per TTL window.
type ProbeCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewProbeCache builds the cache. A nil client disables memoisation.
func NewProbeCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *ProbeCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProbeCache{client: client, ttl: ttl, logger: logger}
}

// GetAvailability returns the cached probe result, if any. Redis failures
// count as a cache miss.
func (c *ProbeCache) GetAvailability(ctx context.Context, target string) (bool, bool) {
	if c == nil || c.client == nil || c.ttl <= 0 {
		return false, false
	}
	val, err := c.client.Get(ctx, probeKeyPrefix+target).Result()
	if err == redis.Nil {
		return false, false
	}
	if err != nil {
		c.logger.Debug("probe cache get", slog.Any("error", err))
		return false, false
	}
	return val == "1", true
}

// SetAvailability stores a probe result for the configured TTL.
func (c *ProbeCache) SetAvailability(ctx context.Context, target string, available bool) {
	if c == nil || c.client == nil || c.ttl <= 0 {
		return
	}
	val := "0"
	if available {
		val = "1"
	}
	if err := c.client.Set(ctx, probeKeyPrefix+target, val, c.ttl).Err(); err != nil {
		c.logger.Debug("probe cache set", slog.Any("error", err))
	}
}
