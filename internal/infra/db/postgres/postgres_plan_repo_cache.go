package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"agency-checkout/internal/domain/model"
	"agency-checkout/internal/domain/ports/repository"
	"agency-checkout/internal/infra/metrics"
	red "agency-checkout/internal/infra/redis"
)

var _ repository.PlanRepository = (*planRepoCacheDecorator)(nil)

const allPlansKey = "plans:all"

type planRepoCacheDecorator struct {
	inner repository.PlanRepository
	cache red.RedisClient
	ttl   time.Duration
	log   *zerolog.Logger
}

// NewPlanRepoCacheDecorator serves plan reads from Redis and invalidates on Save.
// Cache failures degrade to the inner repository.
func NewPlanRepoCacheDecorator(inner repository.PlanRepository, cache red.RedisClient, ttl time.Duration, logger *zerolog.Logger) repository.PlanRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &planRepoCacheDecorator{inner: inner, cache: cache, ttl: ttl, log: logger}
}

func planKey(id string) string { return "plan:" + id }

func (d *planRepoCacheDecorator) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Plan, error) {
	if tx == nil {
		if plan, ok := d.lookup(ctx, planKey(id), "plan"); ok {
			var p model.Plan
			if json.Unmarshal([]byte(plan), &p) == nil {
				return &p, nil
			}
		}
	}

	plan, err := d.inner.FindByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	d.store(ctx, planKey(id), plan)
	return plan, nil
}

func (d *planRepoCacheDecorator) ListAll(ctx context.Context, tx repository.Tx) ([]*model.Plan, error) {
	if tx == nil {
		if val, ok := d.lookup(ctx, allPlansKey, "plan_list"); ok {
			var plans []*model.Plan
			if json.Unmarshal([]byte(val), &plans) == nil {
				return plans, nil
			}
		}
	}

	plans, err := d.inner.ListAll(ctx, tx)
	if err != nil {
		return nil, err
	}
	if len(plans) > 0 {
		d.store(ctx, allPlansKey, plans)
	}
	return plans, nil
}

func (d *planRepoCacheDecorator) Save(ctx context.Context, tx repository.Tx, plan *model.Plan) error {
	if err := d.cache.Del(ctx, planKey(plan.ID), allPlansKey); err != nil {
		d.log.Warn().Err(err).Str("plan_id", plan.ID).Msg("plan cache invalidation failed")
	}
	return d.inner.Save(ctx, tx, plan)
}

func (d *planRepoCacheDecorator) lookup(ctx context.Context, key, cacheName string) (string, bool) {
	val, err := d.cache.Get(ctx, key)
	switch {
	case err == nil:
		metrics.IncCacheRequest(cacheName, "hit")
		return val, true
	case !errors.Is(err, redis.Nil):
		d.log.Warn().Err(err).Str("key", key).Msg("plan cache read failed")
		metrics.IncCacheRequest(cacheName, "error")
		return "", false
	default:
		metrics.IncCacheRequest(cacheName, "miss")
		return "", false
	}
}

func (d *planRepoCacheDecorator) store(ctx context.Context, key string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := d.cache.Set(ctx, key, b, d.ttl); err != nil {
		d.log.Warn().Err(err).Str("key", key).Msg("plan cache write failed")
	}
}
