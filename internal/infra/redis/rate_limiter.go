package redis

import (
	"context"
	"strconv"
	"time"
)

// RateLimiter counts hits per key in fixed windows aligned to the window size.
// Each window gets its own counter, so a lost EXPIRE can never lock a client
// out past the current window.
type RateLimiter struct {
	client RedisClient
	now    func() time.Time
}

func NewRateLimiter(client RedisClient) *RateLimiter {
	return &RateLimiter{client: client, now: time.Now}
}

// Allow records one hit for key and reports whether it is within limit.
func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if window <= 0 {
		window = time.Minute
	}
	bucket := key + ":" + strconv.FormatInt(r.now().Truncate(window).Unix(), 10)

	count, err := r.client.Incr(ctx, bucket)
	if err != nil {
		return false, err
	}
	if count == 1 {
		// twice the window so a bucket outlives clock skew between replicas
		if err := r.client.Expire(ctx, bucket, 2*window); err != nil {
			return true, err
		}
	}
	return count <= int64(limit), nil
}

// CheckoutKey is the limiter key for checkout submissions from clientIP.
func CheckoutKey(clientIP string) string {
	return "rate_limit:checkout:" + clientIP
}
