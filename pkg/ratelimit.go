package pkg

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DistributedLimiter guards order placement. A local token bucket absorbs bursts per replica;
// a fixed-window counter in Redis caps the total across replicas. A nil redis client degrades
// to local-only limiting and a Redis failure fails open.
type DistributedLimiter struct {
	localLimiter *rate.Limiter
	redisClient  redis.Cmdable
	key          string        // e.g: "order_api:place_order_rate"
	window       time.Duration // counter window
	limit        int64         // requests allowed per window across replicas
	logger       *zap.Logger
	now          func() time.Time
}

// NewDistributedLimiter allows ratePerSec requests per second. ratePerSec <= 0 disables limiting.
func NewDistributedLimiter(redisClient redis.Cmdable, key string, ratePerSec, burst int, window time.Duration, logger *zap.Logger) *DistributedLimiter {
	d := &DistributedLimiter{redisClient: redisClient, key: key, window: window, logger: logger, now: time.Now}
	if ratePerSec <= 0 {
		return d
	}
	if burst <= 0 {
		burst = ratePerSec
	}
	if d.window <= 0 {
		d.window = time.Second
	}
	d.localLimiter = rate.NewLimiter(rate.Limit(ratePerSec), burst)
	d.limit = max(int64(float64(ratePerSec)*d.window.Seconds()), int64(burst))
	return d
}

// windowKey names the counter for the window containing now; old windows expire on their own.
func (d *DistributedLimiter) windowKey() string {
	return fmt.Sprintf("%s:%d", d.key, d.now().UnixNano()/int64(d.window))
}

// Allow reports whether one more request may proceed.
func (d *DistributedLimiter) Allow(ctx context.Context) bool {
	if d.localLimiter == nil {
		return true
	}
	if !d.localLimiter.Allow() {
		return false
	}
	if d.redisClient == nil {
		return true
	}

	key := d.windowKey()
	pipe := d.redisClient.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, 2*d.window)
	if _, err := pipe.Exec(ctx); err != nil {
		d.logger.Error("redis_rate_limit_error_falling_back_to_local", zap.Error(err))
		return true
	}

	if count := incr.Val(); count > d.limit {
		d.logger.Warn("global_rate_limit_exceeded", zap.String("key", key), zap.Int64("count", count))
		return false
	}
	return true
}
