package repository

import (
	"context"
	"time"

	"agency-checkout/internal/domain/model"
)

// PurchaseFilter narrows List queries. Zero fields are ignored.
type PurchaseFilter struct {
	Status model.PurchaseStatus
	Email  string
	PlanID string
	Limit  int
	Offset int
}

// -----------------------------
// Purchases
// -----------------------------

type PurchaseRepository interface {
	// Insert stores a new purchase. Inserting an id that already exists is a
	// no-op so that retried inserts never duplicate a record.
	Insert(ctx context.Context, tx Tx, p *model.Purchase) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Purchase, error)
	// FindByTransactionID matches transaction_id first, then the provisional
	// gateway reference stored at link creation.
	FindByTransactionID(ctx context.Context, tx Tx, transactionID string) (*model.Purchase, error)
	// FindPendingByContact returns pending purchases for (email, planID), newest first.
	FindPendingByContact(ctx context.Context, tx Tx, email, planID string) ([]*model.Purchase, error)
	List(ctx context.Context, tx Tx, f PurchaseFilter) ([]*model.Purchase, error)
	ListPendingOlderThan(ctx context.Context, tx Tx, olderThan time.Time, limit int) ([]*model.Purchase, error)

	SetRequirements(ctx context.Context, tx Tx, id string, requirements string) error
	SetGatewayReference(ctx context.Context, tx Tx, id string, ref string, details map[string]any) error
	// MarkCompletedIfPending moves a pending purchase to completed and attaches
	// transactionID. It reports false when the purchase was not pending.
	MarkCompletedIfPending(ctx context.Context, tx Tx, id string, transactionID string, details map[string]any) (bool, error)
	// MarkFailedIfPending moves a pending purchase to failed.
	MarkFailedIfPending(ctx context.Context, tx Tx, id string) (bool, error)
}
