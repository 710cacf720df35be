package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"agency-checkout/internal/domain"
	"agency-checkout/internal/domain/model"
	"agency-checkout/internal/domain/ports/adapter"
	"agency-checkout/internal/domain/ports/repository"
	"agency-checkout/internal/infra/metrics"
)

// Compile-time check
var _ AdminPurchaseUseCase = (*adminPurchaseUC)(nil)

// AdminPurchaseUseCase is the operator view over purchases.
type AdminPurchaseUseCase interface {
	List(ctx context.Context, f repository.PurchaseFilter) ([]*model.Purchase, error)
	// SetStatus applies an operator transition. Only pending->failed is allowed;
	// completion belongs to reconciliation.
	SetStatus(ctx context.Context, purchaseID string, status model.PurchaseStatus) (*model.Purchase, error)
	// FailAbandoned marks pending purchases created before olderThan as failed.
	FailAbandoned(ctx context.Context, olderThan time.Time, batch int) (int, error)
}

type adminPurchaseUC struct {
	purchases repository.PurchaseRepository
	events    adapter.PurchaseEvents
	log       *zerolog.Logger
}

func NewAdminPurchaseUseCase(purchases repository.PurchaseRepository, events adapter.PurchaseEvents, logger *zerolog.Logger) *adminPurchaseUC {
	return &adminPurchaseUC{purchases: purchases, events: events, log: logger}
}

func (u *adminPurchaseUC) List(ctx context.Context, f repository.PurchaseFilter) ([]*model.Purchase, error) {
	items, err := u.purchases.List(ctx, repository.NoTX, f)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "list purchases", Err: err}
	}
	return items, nil
}

func (u *adminPurchaseUC) SetStatus(ctx context.Context, purchaseID string, status model.PurchaseStatus) (*model.Purchase, error) {
	if status != model.PurchaseStatusFailed {
		return nil, domain.NewValidationError("status", "only 'failed' can be set manually")
	}
	if !validPurchaseID(purchaseID) {
		return nil, fmt.Errorf("purchase %q: %w", purchaseID, domain.ErrNotFound)
	}
	p, err := u.purchases.FindByID(ctx, repository.NoTX, purchaseID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("purchase %s: %w", purchaseID, domain.ErrNotFound)
		}
		return nil, &domain.PersistenceError{Op: "find purchase", Err: err}
	}
	if p.Status == status {
		return p, nil
	}
	if !p.Status.CanTransition(status) {
		return nil, fmt.Errorf("purchase %s is %s: %w", purchaseID, p.Status, domain.ErrInvalidTransition)
	}

	ok, err := u.purchases.MarkFailedIfPending(ctx, repository.NoTX, purchaseID)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "mark purchase failed", Err: err}
	}
	if !ok {
		// completed concurrently
		return nil, fmt.Errorf("purchase %s is no longer pending: %w", purchaseID, domain.ErrInvalidTransition)
	}
	p.Status = model.PurchaseStatusFailed
	p.UpdatedAt = time.Now().UTC()
	u.failed(ctx, p, "admin")
	return p, nil
}

func (u *adminPurchaseUC) FailAbandoned(ctx context.Context, olderThan time.Time, batch int) (int, error) {
	stale, err := u.purchases.ListPendingOlderThan(ctx, repository.NoTX, olderThan, batch)
	if err != nil {
		return 0, &domain.PersistenceError{Op: "list stale purchases", Err: err}
	}
	var n int
	for _, p := range stale {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		ok, err := u.purchases.MarkFailedIfPending(ctx, repository.NoTX, p.ID)
		if err != nil {
			u.log.Error().Err(err).Str("purchase_id", p.ID).Msg("mark abandoned purchase failed")
			continue
		}
		if !ok {
			continue
		}
		n++
		p.Status = model.PurchaseStatusFailed
		p.UpdatedAt = time.Now().UTC()
		u.failed(ctx, p, "abandoned")
	}
	metrics.AddPurchasesAbandoned(n)
	return n, nil
}

func (u *adminPurchaseUC) failed(ctx context.Context, p *model.Purchase, reason string) {
	metrics.IncPayment("failed")
	u.log.Info().Str("purchase_id", p.ID).Str("reason", reason).Msg("purchase marked failed")
	if u.events == nil {
		return
	}
	ev := adapter.PurchaseEvent{PurchaseID: p.ID, Status: string(p.Status), At: p.UpdatedAt}
	if err := u.events.Publish(ctx, ev); err != nil {
		u.log.Warn().Err(err).Str("purchase_id", p.ID).Msg("publish purchase event failed")
	}
}
