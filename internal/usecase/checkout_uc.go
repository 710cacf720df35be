// File: internal/usecase/checkout_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/rs/zerolog"

	"agency-checkout/internal/domain"
	"agency-checkout/internal/domain/model"
	"agency-checkout/internal/domain/ports/repository"
	"agency-checkout/internal/infra/logging"
	"agency-checkout/internal/infra/metrics"
)

// Compile-time check
var _ CheckoutUseCase = (*checkoutUC)(nil)

type CheckoutUseCase interface {
	// CreatePendingPurchase validates buyer input and records a pending purchase
	// for plan. The returned purchase id is the gateway correlation key.
	CreatePendingPurchase(ctx context.Context, plan *model.Plan, email string) (*model.Purchase, error)
	// AttachRequirements stores free-text requirements on a purchase.
	AttachRequirements(ctx context.Context, purchaseID, text string) error
	// AttachRequirementsByContact updates the most recent pending purchase for
	// (email, planID) and reports how many pending purchases matched.
	AttachRequirementsByContact(ctx context.Context, email, planID, text string) (int, error)
	Get(ctx context.Context, purchaseID string) (*model.Purchase, error)
}

const (
	insertAttempts = 3
	insertBackoff  = 100 * time.Millisecond
)

type checkoutUC struct {
	purchases repository.PurchaseRepository
	newID     func() string
	backoff   time.Duration
	log       *zerolog.Logger
	dev       bool
}

func NewCheckoutUseCase(purchases repository.PurchaseRepository, logger *zerolog.Logger, dev bool) *checkoutUC {
	return &checkoutUC{
		purchases: purchases,
		newID:     uuid.NewString,
		backoff:   insertBackoff,
		log:       logger,
		dev:       dev,
	}
}

func (u *checkoutUC) CreatePendingPurchase(ctx context.Context, plan *model.Plan, email string) (*model.Purchase, error) {
	defer logging.TraceDuration(u.log, "CheckoutUC.CreatePendingPurchase")()

	// the id is fixed before the first attempt so retries stay idempotent
	p, err := model.NewPendingPurchase(u.newID(), plan, email)
	if err != nil {
		metrics.IncCheckout("validation")
		return nil, err
	}

	if err := u.insertWithRetry(ctx, p); err != nil {
		metrics.IncCheckout("persistence")
		logging.With(ctx, u.log).Error().Err(err).Str("purchase_id", p.ID).Msg("purchase insert failed")
		return nil, &domain.PersistenceError{Op: "insert purchase", Err: err}
	}

	logging.With(ctx, u.log).Info().
		Str("purchase_id", p.ID).
		Str("plan_id", p.PlanID).
		Str("email", logging.RedactEmail(p.Email, u.dev)).
		Str("amount", p.Amount.StringFixed(2)).
		Msg("pending purchase created")
	return p, nil
}

// insertWithRetry retries only errors the driver reports as safe, i.e. the
// statement never reached the server.
func (u *checkoutUC) insertWithRetry(ctx context.Context, p *model.Purchase) error {
	var err error
	for attempt := 0; attempt < insertAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(u.backoff * time.Duration(1<<(attempt-1))):
			}
		}
		err = u.purchases.Insert(ctx, repository.NoTX, p)
		if err == nil || !pgconn.SafeToRetry(err) {
			return err
		}
		u.log.Warn().Err(err).Int("attempt", attempt+1).Str("purchase_id", p.ID).Msg("retrying purchase insert")
	}
	return err
}

func (u *checkoutUC) AttachRequirements(ctx context.Context, purchaseID, text string) error {
	text = strings.TrimSpace(text)
	if !validPurchaseID(purchaseID) {
		return domain.NewValidationError("purchaseId", "a valid purchase id is required")
	}
	if text == "" {
		return domain.NewValidationError("requirements", "requirements text is empty")
	}
	if err := u.purchases.SetRequirements(ctx, repository.NoTX, purchaseID, text); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("purchase %s: %w", purchaseID, domain.ErrNotFound)
		}
		return &domain.PersistenceError{Op: "set requirements", Err: err}
	}
	return nil
}

func (u *checkoutUC) AttachRequirementsByContact(ctx context.Context, email, planID, text string) (int, error) {
	email = strings.TrimSpace(email)
	text = strings.TrimSpace(text)
	if email == "" || planID == "" {
		return 0, domain.NewValidationError("email", "email and plan are required")
	}
	if text == "" {
		return 0, domain.NewValidationError("requirements", "requirements text is empty")
	}

	matches, err := u.purchases.FindPendingByContact(ctx, repository.NoTX, email, planID)
	if err != nil {
		return 0, &domain.PersistenceError{Op: "find pending purchase", Err: err}
	}
	if len(matches) == 0 {
		return 0, fmt.Errorf("pending purchase for plan %s: %w", planID, domain.ErrNotFound)
	}
	if len(matches) > 1 {
		u.log.Warn().
			Int("matches", len(matches)).
			Str("plan_id", planID).
			Str("email", logging.RedactEmail(email, u.dev)).
			Str("purchase_id", matches[0].ID).
			Msg("ambiguous requirements correlation, updating most recent purchase")
	}
	if err := u.AttachRequirements(ctx, matches[0].ID, text); err != nil {
		return len(matches), err
	}
	return len(matches), nil
}

func (u *checkoutUC) Get(ctx context.Context, purchaseID string) (*model.Purchase, error) {
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
	return p, nil
}

// validPurchaseID reports whether id can be a purchase key (a UUID).
func validPurchaseID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
