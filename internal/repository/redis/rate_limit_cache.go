package redis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"analytics-service/internal/client"
	"analytics-service/internal/util"
)

const ipRateLimitPrefix = "ip_rate_limit:"

// RateLimitCache throttles event producers by source IP. The collector is an
// open endpoint, so this is the only backpressure against abusive clients.
type RateLimitCache struct {
	client *client.RedisClient
}

func NewRateLimitCache(client *client.RedisClient) *RateLimitCache {
	return &RateLimitCache{client: client}
}

// IncrementIPCounter bumps the fixed-window counter for an IP and returns the
// new count. The window TTL is refreshed on every hit.
func (c *RateLimitCache) IncrementIPCounter(ctx context.Context, ip string, window time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	key := ipRateLimitPrefix + ip
	count, err := c.client.IncrWithExpire(ctx, key, window)
	if err != nil {
		util.Error("Failed to increment IP rate limit counter",
			zap.String("ip", ip),
			zap.Error(err))
		return 0, fmt.Errorf("failed to increment ip counter: %w", err)
	}

	return int(count), nil
}

// Allow reports whether the IP is under its request budget for the window.
// A Redis outage fails open: rate limiting is protective, not correctness.
func (c *RateLimitCache) Allow(ctx context.Context, ip string, limit int, window time.Duration) bool {
	count, err := c.IncrementIPCounter(ctx, ip, window)
	if err != nil {
		return true
	}
	if count > limit {
		util.Warn("IP over rate limit",
			zap.String("ip", ip),
			zap.Int("count", count),
			zap.Int("limit", limit))
		return false
	}
	return true
}

// ResetIPCounter clears the window for an IP.
func (c *RateLimitCache) ResetIPCounter(ctx context.Context, ip string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return c.client.Del(ctx, ipRateLimitPrefix+ip)
}
