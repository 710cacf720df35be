// File: internal/usecase/payment_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"agency-checkout/internal/domain"
	"agency-checkout/internal/domain/model"
	"agency-checkout/internal/domain/ports/adapter"
	"agency-checkout/internal/domain/ports/repository"
	"agency-checkout/internal/infra/logging"
	"agency-checkout/internal/infra/metrics"
)

// Compile-time check
var _ PaymentUseCase = (*paymentUC)(nil)

type PaymentUseCase interface {
	// Ready reports a ConfigurationError when no gateway is configured. It is
	// checked before any purchase is created.
	Ready() error
	// Initiate opens a gateway payment session for a pending purchase.
	Initiate(ctx context.Context, purchaseID string) (*PaymentSession, error)
}

// PaymentSession is the redirect handoff for one purchase. TransactionID is the
// gateway's provisional id and confirms nothing.
type PaymentSession struct {
	PurchaseID    string
	PaymentURL    string
	TransactionID string
	AmountMinor   int64
	BaseMinor     int64
	TaxMinor      int64
}

// PaymentSettings carries the gateway-independent checkout settings.
type PaymentSettings struct {
	Currency   string
	TaxRate    decimal.Decimal
	SuccessURL string
	CancelURL  string
	// ConfigErr is reported by Ready when the gateway could not be built.
	ConfigErr error
}

type paymentUC struct {
	purchases repository.PurchaseRepository
	plans     repository.PlanRepository
	gateway   adapter.PaymentGateway
	settings  PaymentSettings
	log       *zerolog.Logger
}

// NewPaymentUseCase accepts a nil gateway; every Initiate then fails with a
// ConfigurationError. plans must be the authoritative store, not a cached
// view, or the price re-check compares a stale value with itself.
func NewPaymentUseCase(purchases repository.PurchaseRepository, plans repository.PlanRepository, gateway adapter.PaymentGateway, settings PaymentSettings, logger *zerolog.Logger) *paymentUC {
	if settings.Currency == "" {
		settings.Currency = "USD"
	}
	return &paymentUC{purchases: purchases, plans: plans, gateway: gateway, settings: settings, log: logger}
}

func (u *paymentUC) Ready() error {
	if u.gateway != nil {
		return nil
	}
	if u.settings.ConfigErr != nil {
		return u.settings.ConfigErr
	}
	return &domain.ConfigurationError{Missing: []string{"payment gateway"}}
}

func (u *paymentUC) Initiate(ctx context.Context, purchaseID string) (*PaymentSession, error) {
	defer logging.TraceDuration(u.log, "PaymentUC.Initiate")()
	if err := u.Ready(); err != nil {
		metrics.IncCheckout("config")
		return nil, err
	}
	log := logging.With(logging.WithPurchaseID(ctx, purchaseID), u.log)

	purchase, err := u.purchases.FindByID(ctx, repository.NoTX, purchaseID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("purchase %s: %w", purchaseID, domain.ErrNotFound)
		}
		return nil, &domain.PersistenceError{Op: "find purchase", Err: err}
	}
	if purchase.Status != model.PurchaseStatusPending {
		return nil, fmt.Errorf("purchase %s is %s: %w", purchaseID, purchase.Status, domain.ErrInvalidTransition)
	}

	// never trust the amount captured at selection time
	plan, err := u.plans.FindByID(ctx, repository.NoTX, purchase.PlanID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			metrics.IncCheckout("validation")
			return nil, domain.NewValidationError("plan", "the selected plan is no longer available")
		}
		return nil, &domain.PersistenceError{Op: "find plan", Err: err}
	}
	if !plan.Price.Equal(purchase.Amount) {
		metrics.IncCheckout("validation")
		log.Warn().Str("plan_price", plan.Price.String()).Str("amount", purchase.Amount.String()).Msg("purchase amount does not match plan price")
		return nil, &domain.ValidationError{Field: "amount", Msg: "the plan price has changed, please select it again", Err: domain.ErrAmountMismatch}
	}

	minor := model.ToMinorUnits(purchase.Amount)
	base, tax := model.SplitTax(minor, u.settings.TaxRate)

	link, err := u.gateway.CreateLink(ctx, adapter.PaymentLinkRequest{
		ClientTransactionID: purchase.ID,
		AmountMinor:         minor,
		BaseMinor:           base,
		TaxMinor:            tax,
		Currency:            u.settings.Currency,
		Reference:           "Plan " + plan.Title,
		Email:               purchase.Email,
		ResponseURL:         u.settings.SuccessURL,
		CancellationURL:     u.settings.CancelURL,
	})
	if err != nil {
		metrics.IncCheckout("gateway")
		metrics.IncPayment("gateway_error")
		log.Error().Err(err).Str("gateway", u.gateway.Name()).Msg("payment link creation failed, purchase stays pending")
		var gwErr *domain.PaymentGatewayError
		if !errors.As(err, &gwErr) {
			err = &domain.PaymentGatewayError{Err: err}
		}
		return nil, err
	}

	details := map[string]any{
		"gateway":     u.gateway.Name(),
		"paymentUrl":  link.PaymentURL,
		"amountMinor": minor,
		"taxMinor":    tax,
	}
	if len(link.Raw) > 0 {
		details["initiation"] = link.Raw
	}
	if err := u.purchases.SetGatewayReference(ctx, repository.NoTX, purchase.ID, link.TransactionID, details); err != nil {
		// the link is live; confirmation by purchase id still works
		log.Warn().Err(err).Msg("could not store gateway reference")
	}

	metrics.IncCheckout("redirected")
	metrics.IncPayment("initiated")
	log.Info().Str("gateway", u.gateway.Name()).Str("transaction_id", link.TransactionID).Int64("amount_minor", minor).Msg("payment session created")

	return &PaymentSession{
		PurchaseID:    purchase.ID,
		PaymentURL:    link.PaymentURL,
		TransactionID: link.TransactionID,
		AmountMinor:   minor,
		BaseMinor:     base,
		TaxMinor:      tax,
	}, nil
}
