package repository

import (
	"context"

	"agency-checkout/internal/domain/model"
)

// PlanRepository is the port for the plan catalog.
type PlanRepository interface {
	Save(ctx context.Context, tx Tx, plan *model.Plan) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Plan, error)
	// ListAll returns every plan ordered by price ascending.
	ListAll(ctx context.Context, tx Tx) ([]*model.Plan, error)
}
