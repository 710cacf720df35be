//go:build !integration

package postgres

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"

	"agency-checkout/internal/domain/model"
	"agency-checkout/internal/domain/ports/repository"
	red "agency-checkout/internal/infra/redis"
)

// --- Mocks for Cache Decorator Tests ---

// mockInnerPlanRepo mocks the database repository that the Plan decorator wraps.
type mockInnerPlanRepo struct {
	SaveFunc     func(ctx context.Context, tx repository.Tx, plan *model.Plan) error
	FindByIDFunc func(ctx context.Context, tx repository.Tx, id string) (*model.Plan, error)
	ListAllFunc  func(ctx context.Context, tx repository.Tx) ([]*model.Plan, error)
}

func (m *mockInnerPlanRepo) Save(ctx context.Context, tx repository.Tx, plan *model.Plan) error {
	return m.SaveFunc(ctx, tx, plan)
}
func (m *mockInnerPlanRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Plan, error) {
	return m.FindByIDFunc(ctx, tx, id)
}
func (m *mockInnerPlanRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.Plan, error) {
	return m.ListAllFunc(ctx, tx)
}

var _ red.RedisClient = (*mockRedisClient)(nil)

// mockRedisClient mocks the Redis client; unset funcs behave like an empty cache.
type mockRedisClient struct {
	GetFunc func(ctx context.Context, key string) (string, error)
	SetFunc func(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	DelFunc func(ctx context.Context, keys ...string) error
}

func (m *mockRedisClient) Ping(ctx context.Context) error { return nil }
func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if m.SetFunc != nil {
		return m.SetFunc(ctx, key, value, expiration)
	}
	return nil
}
func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, key)
	}
	return "", redis.Nil
}
func (m *mockRedisClient) Incr(ctx context.Context, key string) (int64, error) { return 1, nil }
func (m *mockRedisClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return nil
}
func (m *mockRedisClient) Del(ctx context.Context, keys ...string) error {
	if m.DelFunc != nil {
		return m.DelFunc(ctx, keys...)
	}
	return nil
}
func (m *mockRedisClient) Close() error { return nil }
