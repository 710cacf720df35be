package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"agency-checkout/internal/domain"
	"agency-checkout/internal/domain/model"
	"agency-checkout/internal/domain/ports/repository"
	"agency-checkout/internal/infra/logging"
)

// Compile-time check
var _ PlanUseCase = (*planUC)(nil)

// PlanUseCase is the read-mostly plan catalog.
type PlanUseCase interface {
	// List returns every plan ordered by price ascending.
	List(ctx context.Context) ([]*model.Plan, error)
	Get(ctx context.Context, id string) (*model.Plan, error)
	// Save creates or updates a plan; used by seeding.
	Save(ctx context.Context, plan *model.Plan) error
}

type planUC struct {
	plans repository.PlanRepository
	log   *zerolog.Logger
}

func NewPlanUseCase(plans repository.PlanRepository, logger *zerolog.Logger) *planUC {
	return &planUC{plans: plans, log: logger}
}

func (u *planUC) List(ctx context.Context) ([]*model.Plan, error) {
	defer logging.TraceDuration(u.log, "PlanUC.List")()
	plans, err := u.plans.ListAll(ctx, repository.NoTX)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "list plans", Err: err}
	}
	return plans, nil
}

func (u *planUC) Get(ctx context.Context, id string) (*model.Plan, error) {
	if id == "" {
		return nil, domain.NewValidationError("plan", "no plan selected")
	}
	p, err := u.plans.FindByID(ctx, repository.NoTX, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("plan %s: %w", id, domain.ErrNotFound)
		}
		return nil, &domain.PersistenceError{Op: "find plan", Err: err}
	}
	return p, nil
}

func (u *planUC) Save(ctx context.Context, plan *model.Plan) error {
	if plan.IsZero() || plan.Price.IsNegative() {
		return domain.ErrInvalidArgument
	}
	if err := u.plans.Save(ctx, repository.NoTX, plan); err != nil {
		return &domain.PersistenceError{Op: "save plan", Err: err}
	}
	return nil
}
