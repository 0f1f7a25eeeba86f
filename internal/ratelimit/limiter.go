// Package ratelimit implements a fixed-window request limiter on Redis.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter allows at most limit requests per key within each window.
type Limiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

func NewLimiter(client *redis.Client, limit int, window time.Duration) *Limiter {
	return &Limiter{client: client, limit: int64(limit), window: window}
}

func getKey(purpose, ip string) string {
	return fmt.Sprintf("rate_limit:%s:%s", purpose, ip)
}

// Allow records a request from ip for purpose and reports whether it is
// within the limit. The window starts with the first request.
func (l *Limiter) Allow(ctx context.Context, purpose, ip string) (bool, error) {
	key := getKey(purpose, ip)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to record request: %w", err)
	}

	return incr.Val() <= l.limit, nil
}
