//go:build integration

package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"agency-checkout/internal/domain"
	"agency-checkout/internal/domain/model"
)

func TestPlanRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}

	ctx := context.Background()
	repo := NewPostgresPlanRepo(testPool)

	t.Run("should save, find and list plans by price", func(t *testing.T) {
		cleanup(t)
		pro, _ := model.NewPlan("pro", "Profesional", "Sitio completo", decimal.RequireFromString("49.99"), []string{"SEO", "Blog"}, true)
		basic, _ := model.NewPlan("basic", "Básico", "Landing page", decimal.RequireFromString("25.00"), []string{"1 página"}, false)
		for _, p := range []*model.Plan{pro, basic} {
			if err := repo.Save(ctx, nil, p); err != nil {
				t.Fatalf("Save(%s) failed: %v", p.ID, err)
			}
		}

		found, err := repo.FindByID(ctx, nil, "pro")
		if err != nil {
			t.Fatalf("FindByID failed: %v", err)
		}
		if !found.Price.Equal(decimal.RequireFromString("49.99")) || !found.IsPopular || len(found.Features) != 2 {
			t.Errorf("unexpected plan: %+v", found)
		}

		plans, err := repo.ListAll(ctx, nil)
		if err != nil {
			t.Fatalf("ListAll failed: %v", err)
		}
		if len(plans) != 2 || plans[0].ID != "basic" {
			t.Errorf("expected basic first, got %+v", plans)
		}
	})

	t.Run("should upsert on save", func(t *testing.T) {
		cleanup(t)
		p, _ := model.NewPlan("basic", "Básico", "", decimal.RequireFromString("25.00"), nil, false)
		_ = repo.Save(ctx, nil, p)
		p.Price = decimal.RequireFromString("30.00")
		if err := repo.Save(ctx, nil, p); err != nil {
			t.Fatalf("second Save failed: %v", err)
		}
		found, _ := repo.FindByID(ctx, nil, "basic")
		if !found.Price.Equal(decimal.RequireFromString("30")) {
			t.Errorf("expected updated price, got %s", found.Price)
		}
	})

	t.Run("should return ErrNotFound for unknown plan", func(t *testing.T) {
		cleanup(t)
		_, err := repo.FindByID(ctx, nil, "missing")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}
