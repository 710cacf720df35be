//go:build !integration

package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"agency-checkout/internal/domain"
	"agency-checkout/internal/domain/model"
	"agency-checkout/internal/domain/ports/adapter"
)

func testSettings() PaymentSettings {
	return PaymentSettings{
		Currency:   "USD",
		TaxRate:    decimal.RequireFromString("0.12"),
		SuccessURL: "https://agency.test/payment-success",
		CancelURL:  "https://agency.test/payment-cancelled",
	}
}

type paymentFixture struct {
	plans     *memPlanRepo
	purchases *memPurchaseRepo
	gateway   *fakeGateway
	checkout  *checkoutUC
	payments  *paymentUC
}

func newPaymentFixture(gw adapter.PaymentGateway) *paymentFixture {
	f := &paymentFixture{
		plans:     newMemPlanRepo(basicPlan()),
		purchases: newMemPurchaseRepo(),
	}
	if fg, ok := gw.(*fakeGateway); ok {
		f.gateway = fg
	}
	f.checkout = newTestCheckout(f.purchases)
	f.payments = NewPaymentUseCase(f.purchases, f.plans, gw, testSettings(), newTestLogger())
	return f
}

func TestPaymentUseCase_InitiateSendsMinorUnitsAndTaxSplit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newPaymentFixture(&fakeGateway{link: &adapter.PaymentLink{PaymentURL: "https://pay.test/x", TransactionID: "PROV-9"}})

	p, _ := f.checkout.CreatePendingPurchase(ctx, basicPlan(), "buyer@example.com")
	s, err := f.payments.Initiate(ctx, p.ID)
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if s.PaymentURL != "https://pay.test/x" || s.AmountMinor != 2500 {
		t.Errorf("unexpected session: %+v", s)
	}

	req := f.gateway.calls[0]
	if req.AmountMinor != 2500 || req.BaseMinor != 2232 || req.TaxMinor != 268 {
		t.Errorf("unexpected amounts: %+v", req)
	}
	if req.BaseMinor+req.TaxMinor != req.AmountMinor {
		t.Error("base + tax must equal amount")
	}
	if req.ClientTransactionID != p.ID || req.Reference != "Plan Básico" || req.Email != "buyer@example.com" {
		t.Errorf("unexpected correlation fields: %+v", req)
	}

	stored := f.purchases.get(p.ID)
	if stored.TransactionID != nil {
		t.Error("provisional id must not be written to transaction_id")
	}
	if stored.GatewayReference == nil || *stored.GatewayReference != "PROV-9" {
		t.Errorf("provisional id not kept as gateway reference: %v", stored.GatewayReference)
	}
	if stored.Status != model.PurchaseStatusPending {
		t.Errorf("initiation must leave the purchase pending, got %s", stored.Status)
	}
}

func TestPaymentUseCase_GatewayRejectionLeavesPending(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	gw := &fakeGateway{err: &domain.PaymentGatewayError{StatusCode: 400, Message: "insufficient config"}}
	f := newPaymentFixture(gw)

	p, _ := f.checkout.CreatePendingPurchase(ctx, basicPlan(), "buyer@example.com")
	_, err := f.payments.Initiate(ctx, p.ID)

	var gwErr *domain.PaymentGatewayError
	if !errors.As(err, &gwErr) || gwErr.Error() != "insufficient config" {
		t.Fatalf("expected vendor message verbatim, got %v", err)
	}
	if st := f.purchases.get(p.ID).Status; st != model.PurchaseStatusPending {
		t.Errorf("purchase should stay pending, got %s", st)
	}
}

func TestPaymentUseCase_TimeoutIsGatewayError(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newPaymentFixture(&fakeGateway{err: errors.New("context deadline exceeded")})

	p, _ := f.checkout.CreatePendingPurchase(ctx, basicPlan(), "buyer@example.com")
	_, err := f.payments.Initiate(ctx, p.ID)
	var gwErr *domain.PaymentGatewayError
	if !errors.As(err, &gwErr) {
		t.Fatalf("plain gateway errors must be wrapped, got %T", err)
	}
	if f.purchases.get(p.ID).Status != model.PurchaseStatusPending {
		t.Error("purchase should stay pending")
	}
}

func TestPaymentUseCase_MissingGatewayIsConfigurationError(t *testing.T) {
	t.Parallel()
	cfgErr := &domain.ConfigurationError{Missing: []string{"payment.payphone.api_key"}}
	settings := testSettings()
	settings.ConfigErr = cfgErr
	uc := NewPaymentUseCase(newMemPurchaseRepo(), newMemPlanRepo(), nil, settings, newTestLogger())

	if err := uc.Ready(); !errors.As(err, new(*domain.ConfigurationError)) {
		t.Fatalf("Ready: expected ConfigurationError, got %v", err)
	}
	if _, err := uc.Initiate(context.Background(), "3f1c2f0e-0000-4000-8000-000000000001"); !errors.As(err, new(*domain.ConfigurationError)) {
		t.Fatalf("Initiate: expected ConfigurationError, got %v", err)
	}
}

func TestPaymentUseCase_RejectsChangedPrice(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newPaymentFixture(&fakeGateway{})

	p, _ := f.checkout.CreatePendingPurchase(ctx, basicPlan(), "buyer@example.com")
	repriced := basicPlan()
	repriced.Price = decimal.RequireFromString("30.00")
	_ = f.plans.Save(ctx, nil, repriced)

	_, err := f.payments.Initiate(ctx, p.ID)
	if !errors.Is(err, domain.ErrAmountMismatch) {
		t.Fatalf("expected amount mismatch, got %v", err)
	}
	var vErr *domain.ValidationError
	if !errors.As(err, &vErr) || vErr.Field != "amount" {
		t.Fatalf("expected ValidationError on amount, got %v", err)
	}
	if f.gateway.callCount() != 0 {
		t.Error("gateway must not be called on a price mismatch")
	}
}

func TestPaymentUseCase_RepricedBehindCatalogCache(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	// the catalog view still serves the old price while the store was edited
	store := newMemPlanRepo(basicPlan())
	repriced := basicPlan()
	repriced.Price = decimal.RequireFromString("30.00")
	_ = store.Save(ctx, nil, repriced)
	catalog := NewPlanUseCase(newMemPlanRepo(basicPlan()), newTestLogger())

	purchases := newMemPurchaseRepo()
	gw := &fakeGateway{}
	checkout := newTestCheckout(purchases)
	payments := NewPaymentUseCase(purchases, store, gw, testSettings(), newTestLogger())

	plan, err := catalog.Get(ctx, "basic")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	p, err := checkout.CreatePendingPurchase(ctx, plan, "buyer@example.com")
	if err != nil {
		t.Fatalf("CreatePendingPurchase: %v", err)
	}
	if !p.Amount.Equal(decimal.RequireFromString("25.00")) {
		t.Fatalf("purchase should carry the cached price, got %s", p.Amount)
	}

	if _, err := payments.Initiate(ctx, p.ID); !errors.Is(err, domain.ErrAmountMismatch) {
		t.Fatalf("expected amount mismatch against the store, got %v", err)
	}
	if gw.callCount() != 0 {
		t.Error("a stale price must never reach the gateway")
	}
}

func TestPaymentUseCase_RejectsNonPending(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newPaymentFixture(&fakeGateway{})
	p, _ := f.checkout.CreatePendingPurchase(ctx, basicPlan(), "buyer@example.com")
	_, _ = f.purchases.MarkCompletedIfPending(ctx, nil, p.ID, "T1", nil)

	if _, err := f.payments.Initiate(ctx, p.ID); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestMinorUnitScenario(t *testing.T) {
	minor := model.ToMinorUnits(decimal.RequireFromString("25.00"))
	if minor != 2500 {
		t.Fatalf("25.00 -> %d, want 2500", minor)
	}
	base, tax := model.SplitTax(minor, decimal.RequireFromString("0.12"))
	if base != 2232 || tax != 268 {
		t.Fatalf("split = %d/%d, want 2232/268", base, tax)
	}
}
