//go:build !integration

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"agency-checkout/internal/domain/model"
	"agency-checkout/internal/domain/ports/repository"
)

func TestPlanRepoCacheDecorator(t *testing.T) {
	ctx := context.Background()
	plan := &model.Plan{ID: "basic", Title: "Básico", Price: decimal.RequireFromString("25.00")}
	planJSON, _ := json.Marshal(plan)

	t.Run("FindByID should return from cache on hit", func(t *testing.T) {
		mockRedis := &mockRedisClient{
			GetFunc: func(ctx context.Context, key string) (string, error) {
				if key != "plan:basic" {
					t.Errorf("unexpected key %q", key)
				}
				return string(planJSON), nil
			},
		}
		innerRepoCalled := false
		mockInnerRepo := &mockInnerPlanRepo{
			FindByIDFunc: func(ctx context.Context, tx repository.Tx, id string) (*model.Plan, error) {
				innerRepoCalled = true
				return nil, nil
			},
		}

		decorator := NewPlanRepoCacheDecorator(mockInnerRepo, mockRedis, 0, nil)
		result, err := decorator.FindByID(ctx, nil, "basic")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if innerRepoCalled {
			t.Error("inner repository should not be called on a cache hit")
		}
		if result == nil || result.ID != "basic" || !result.Price.Equal(plan.Price) {
			t.Errorf("did not return the correct plan from cache: %+v", result)
		}
	})

	t.Run("FindByID should fill the cache on miss", func(t *testing.T) {
		var stored string
		mockRedis := &mockRedisClient{
			SetFunc: func(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
				stored = key
				return nil
			},
		}
		mockInnerRepo := &mockInnerPlanRepo{
			FindByIDFunc: func(ctx context.Context, tx repository.Tx, id string) (*model.Plan, error) {
				return plan, nil
			},
		}
		decorator := NewPlanRepoCacheDecorator(mockInnerRepo, mockRedis, 0, nil)
		if _, err := decorator.FindByID(ctx, nil, "basic"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if stored != "plan:basic" {
			t.Errorf("expected plan:basic to be cached, got %q", stored)
		}
	})

	t.Run("redis failure falls through to the database", func(t *testing.T) {
		mockRedis := &mockRedisClient{
			GetFunc: func(ctx context.Context, key string) (string, error) {
				return "", errors.New("connection refused")
			},
		}
		mockInnerRepo := &mockInnerPlanRepo{
			ListAllFunc: func(ctx context.Context, tx repository.Tx) ([]*model.Plan, error) {
				return []*model.Plan{plan}, nil
			},
		}
		decorator := NewPlanRepoCacheDecorator(mockInnerRepo, mockRedis, 0, nil)
		plans, err := decorator.ListAll(ctx, nil)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(plans) != 1 {
			t.Fatalf("expected 1 plan, got %d", len(plans))
		}
	})

	t.Run("Save should invalidate the cache", func(t *testing.T) {
		var deletedKeys []string
		mockRedis := &mockRedisClient{
			DelFunc: func(ctx context.Context, keys ...string) error {
				deletedKeys = append(deletedKeys, keys...)
				return nil
			},
		}
		mockInnerRepo := &mockInnerPlanRepo{
			SaveFunc: func(ctx context.Context, tx repository.Tx, plan *model.Plan) error {
				return nil
			},
		}

		decorator := NewPlanRepoCacheDecorator(mockInnerRepo, mockRedis, 0, nil)
		if err := decorator.Save(ctx, nil, plan); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(deletedKeys) != 2 {
			t.Fatalf("expected 2 keys to be deleted, but got %d", len(deletedKeys))
		}
	})
}
