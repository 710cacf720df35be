package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/shopspring/decimal"

	"agency-checkout/internal/domain"
	"agency-checkout/internal/domain/model"
	"agency-checkout/internal/domain/ports/repository"
)

// Ensure interface compliance
var _ repository.PlanRepository = (*PostgresPlanRepo)(nil)

type PostgresPlanRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresPlanRepo(pool *pgxpool.Pool) *PostgresPlanRepo {
	return &PostgresPlanRepo{pool: pool}
}

const planColumns = `id, title, description, price::text, features, is_popular, created_at, updated_at`

func (r *PostgresPlanRepo) Save(ctx context.Context, tx repository.Tx, plan *model.Plan) error {
	const sql = `
INSERT INTO payment_plans (id, title, description, price, features, is_popular, created_at, updated_at)
VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8)
ON CONFLICT (id) DO UPDATE
  SET title       = EXCLUDED.title,
      description = EXCLUDED.description,
      price       = EXCLUDED.price,
      features    = EXCLUDED.features,
      is_popular  = EXCLUDED.is_popular,
      updated_at  = EXCLUDED.updated_at;
`
	features := plan.Features
	if features == nil {
		features = []string{}
	}
	_, err := execSQL(ctx, r.pool, tx, sql,
		plan.ID, plan.Title, plan.Description, plan.Price.String(), features, plan.IsPopular, plan.CreatedAt, plan.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save plan: %w", err)
	}
	return nil
}

func (r *PostgresPlanRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Plan, error) {
	sql := `SELECT ` + planColumns + ` FROM payment_plans WHERE id = $1`
	row, err := pickRow(ctx, r.pool, tx, sql, id)
	if err != nil {
		return nil, err
	}
	p, err := scanPlan(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find plan: %w", err)
	}
	return p, nil
}

func (r *PostgresPlanRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.Plan, error) {
	sql := `SELECT ` + planColumns + ` FROM payment_plans ORDER BY price ASC, title ASC`
	rows, err := queryRows(ctx, r.pool, tx, sql)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	var out []*model.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPlan(row pgx.Row) (*model.Plan, error) {
	var (
		p     model.Plan
		price string
	)
	if err := row.Scan(&p.ID, &p.Title, &p.Description, &price, &p.Features, &p.IsPopular, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return nil, err
	}
	p.Price = d
	return &p, nil
}
