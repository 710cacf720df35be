package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/shopspring/decimal"

	"agency-checkout/internal/domain"
	"agency-checkout/internal/domain/model"
	"agency-checkout/internal/domain/ports/repository"
)

var _ repository.PurchaseRepository = (*PostgresPurchaseRepo)(nil)

type PostgresPurchaseRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresPurchaseRepo(pool *pgxpool.Pool) *PostgresPurchaseRepo {
	return &PostgresPurchaseRepo{pool: pool}
}

const purchaseColumns = `id, plan_id, email, amount::text, status, transaction_id, gateway_reference, requirements, payment_details::text, created_at, updated_at`

func (r *PostgresPurchaseRepo) Insert(ctx context.Context, tx repository.Tx, p *model.Purchase) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}
	details, err := marshalDetails(p.PaymentDetails)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO purchases (
  id, plan_id, email, amount, status, transaction_id, gateway_reference, requirements, payment_details, created_at, updated_at
) VALUES (
  $1, $2, $3, $4::numeric, $5, $6, $7, $8, $9::jsonb, $10, $11
) ON CONFLICT (id) DO NOTHING;`
	_, err = execSQL(ctx, r.pool, tx, q,
		p.ID, p.PlanID, p.Email, p.Amount.String(), string(p.Status), p.TransactionID, p.GatewayReference,
		p.Requirements, details, p.CreatedAt, p.UpdatedAt,
	)
	return err
}

func (r *PostgresPurchaseRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Purchase, error) {
	q := forUpdate(`SELECT `+purchaseColumns+` FROM purchases WHERE id = $1`, tx)
	return r.one(ctx, tx, q, id)
}

func (r *PostgresPurchaseRepo) FindByTransactionID(ctx context.Context, tx repository.Tx, transactionID string) (*model.Purchase, error) {
	q := forUpdate(`
SELECT `+purchaseColumns+`
  FROM purchases
 WHERE transaction_id = $1 OR gateway_reference = $1
 ORDER BY CASE WHEN transaction_id = $1 THEN 0 ELSE 1 END, created_at DESC
 LIMIT 1`, tx)
	return r.one(ctx, tx, q, transactionID)
}

func (r *PostgresPurchaseRepo) FindPendingByContact(ctx context.Context, tx repository.Tx, email, planID string) ([]*model.Purchase, error) {
	const q = `
SELECT ` + purchaseColumns + `
  FROM purchases
 WHERE email = $1 AND plan_id = $2 AND status = 'pending'
 ORDER BY created_at DESC`
	return r.many(ctx, tx, q, email, planID)
}

func (r *PostgresPurchaseRepo) List(ctx context.Context, tx repository.Tx, f repository.PurchaseFilter) ([]*model.Purchase, error) {
	var (
		where []string
		args  []interface{}
	)
	add := func(cond string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.Email != "" {
		add("email = $%d", f.Email)
	}
	if f.PlanID != "" {
		add("plan_id = $%d", f.PlanID)
	}

	var sb strings.Builder
	sb.WriteString(`SELECT ` + purchaseColumns + ` FROM purchases`)
	if len(where) > 0 {
		sb.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	args = append(args, limit, f.Offset)
	fmt.Fprintf(&sb, " ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	return r.many(ctx, tx, sb.String(), args...)
}

func (r *PostgresPurchaseRepo) ListPendingOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.Purchase, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `
SELECT ` + purchaseColumns + `
  FROM purchases
 WHERE status = 'pending' AND created_at < $1
 ORDER BY created_at ASC
 LIMIT $2`
	return r.many(ctx, tx, q, olderThan, limit)
}

func (r *PostgresPurchaseRepo) SetRequirements(ctx context.Context, tx repository.Tx, id string, requirements string) error {
	const q = `UPDATE purchases SET requirements = $2, updated_at = NOW() WHERE id = $1`
	cmd, err := execSQL(ctx, r.pool, tx, q, id, requirements)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PostgresPurchaseRepo) SetGatewayReference(ctx context.Context, tx repository.Tx, id string, ref string, details map[string]any) error {
	raw, err := marshalDetails(details)
	if err != nil {
		return err
	}
	const q = `
UPDATE purchases
   SET gateway_reference = NULLIF($2, ''),
       payment_details   = COALESCE(payment_details, '{}'::jsonb) || COALESCE($3::jsonb, '{}'::jsonb),
       updated_at        = NOW()
 WHERE id = $1`
	cmd, err := execSQL(ctx, r.pool, tx, q, id, ref, raw)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkCompletedIfPending atomically completes a purchase only while it is pending.
func (r *PostgresPurchaseRepo) MarkCompletedIfPending(ctx context.Context, tx repository.Tx, id string, transactionID string, details map[string]any) (bool, error) {
	raw, err := marshalDetails(details)
	if err != nil {
		return false, err
	}
	const q = `
UPDATE purchases
   SET status          = 'completed',
       transaction_id  = $2,
       payment_details = COALESCE(payment_details, '{}'::jsonb) || COALESCE($3::jsonb, '{}'::jsonb),
       updated_at      = NOW()
 WHERE id = $1
   AND status = 'pending'`
	cmd, err := execSQL(ctx, r.pool, tx, q, id, transactionID, raw)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() >= 1, nil
}

func (r *PostgresPurchaseRepo) MarkFailedIfPending(ctx context.Context, tx repository.Tx, id string) (bool, error) {
	const q = `UPDATE purchases SET status = 'failed', updated_at = NOW() WHERE id = $1 AND status = 'pending'`
	cmd, err := execSQL(ctx, r.pool, tx, q, id)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() >= 1, nil
}

func (r *PostgresPurchaseRepo) one(ctx context.Context, tx repository.Tx, q string, args ...interface{}) (*model.Purchase, error) {
	row, err := pickRow(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	p, err := scanPurchase(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func (r *PostgresPurchaseRepo) many(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.Purchase, error) {
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Purchase
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPurchase(row pgx.Row) (*model.Purchase, error) {
	var (
		p       model.Purchase
		amount  string
		status  string
		details *string
	)
	if err := row.Scan(&p.ID, &p.PlanID, &p.Email, &amount, &status, &p.TransactionID, &p.GatewayReference,
		&p.Requirements, &details, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("purchase %s amount: %w", p.ID, err)
	}
	p.Amount = d
	p.Status = model.PurchaseStatus(status)
	if details != nil && *details != "" {
		if err := json.Unmarshal([]byte(*details), &p.PaymentDetails); err != nil {
			return nil, fmt.Errorf("purchase %s payment_details: %w", p.ID, err)
		}
	}
	return &p, nil
}

func marshalDetails(details map[string]any) (*string, error) {
	if len(details) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("encode payment details: %w", err)
	}
	s := string(b)
	return &s, nil
}
