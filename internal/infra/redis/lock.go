// File: internal/infra/redis/lock.go
package redis

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"agency-checkout/internal/domain"
)

type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

type RedisLocker struct {
	cli     *redis.Client
	retries int
	backoff time.Duration
}

func NewLocker(c *Client) *RedisLocker {
	return &RedisLocker{cli: c.cli, retries: 5, backoff: 50 * time.Millisecond}
}

// TryLock returns domain.ErrLockBusy when the key stays held after all retries.
func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	var lastErr error
	for i := 0; i < l.retries; i++ {
		ok, err := l.cli.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			lastErr = err
		} else if ok {
			return token, nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(l.backoff):
		}
	}
	if lastErr != nil {
		return "", lastErr
	}
	return "", domain.ErrLockBusy
}

var luaUnlock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)

func (l *RedisLocker) Unlock(ctx context.Context, key, token string) error {
	_, err := luaUnlock.Run(ctx, l.cli, []string{key}, token).Result()
	return err
}

func PurchaseLockKey(purchaseID string) string {
	return "lock:purchase:" + purchaseID
}
