//go:build !integration

package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"agency-checkout/internal/domain"
	"agency-checkout/internal/domain/model"
	"agency-checkout/internal/domain/ports/repository"
	"agency-checkout/internal/usecase"
)

type fakePlans struct {
	plans map[string]*model.Plan
	err   error
}

func (f *fakePlans) List(ctx context.Context) ([]*model.Plan, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]*model.Plan, 0, len(f.plans))
	for _, p := range f.plans {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakePlans) Get(ctx context.Context, id string) (*model.Plan, error) {
	p, ok := f.plans[id]
	if !ok {
		return nil, fmt.Errorf("plan %s: %w", id, domain.ErrNotFound)
	}
	return p, nil
}

func (f *fakePlans) Save(ctx context.Context, plan *model.Plan) error { return nil }

type fakeCheckout struct {
	mu           sync.Mutex
	purchases    map[string]*model.Purchase
	requirements map[string]string
	createErr    error
	matched      int
}

func newFakeCheckout() *fakeCheckout {
	return &fakeCheckout{purchases: map[string]*model.Purchase{}, requirements: map[string]string{}}
}

func (f *fakeCheckout) CreatePendingPurchase(ctx context.Context, plan *model.Plan, email string) (*model.Purchase, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	p, err := model.NewPendingPurchase(uuid.NewString(), plan, email)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purchases[p.ID] = p
	return p, nil
}

func (f *fakeCheckout) AttachRequirements(ctx context.Context, purchaseID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.purchases[purchaseID]; !ok {
		return domain.ErrNotFound
	}
	f.requirements[purchaseID] = text
	return nil
}

func (f *fakeCheckout) AttachRequirementsByContact(ctx context.Context, email, planID, text string) (int, error) {
	if f.matched == 0 {
		return 0, domain.ErrNotFound
	}
	return f.matched, nil
}

func (f *fakeCheckout) Get(ctx context.Context, purchaseID string) (*model.Purchase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.purchases[purchaseID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeCheckout) put(p *model.Purchase) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purchases[p.ID] = p
}

func (f *fakeCheckout) complete(id, txID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.purchases[id]
	p.Status = model.PurchaseStatusCompleted
	p.TransactionID = &txID
}

func (f *fakeCheckout) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.purchases)
}

type fakePayments struct {
	readyErr error
	initErr  error
}

func (f *fakePayments) Ready() error { return f.readyErr }

func (f *fakePayments) Initiate(ctx context.Context, purchaseID string) (*usecase.PaymentSession, error) {
	if f.initErr != nil {
		return nil, f.initErr
	}
	return &usecase.PaymentSession{
		PurchaseID:    purchaseID,
		PaymentURL:    "https://pay.example/link/" + purchaseID,
		TransactionID: "prov-1",
		AmountMinor:   2500,
		BaseMinor:     2232,
		TaxMinor:      268,
	}, nil
}

type fakeReconcile struct {
	mu    sync.Mutex
	calls []usecase.LookupKey
	txIDs []string
	fn    func(txID string, key usecase.LookupKey) (*usecase.ReconcileResult, error)
}

func (f *fakeReconcile) Reconcile(ctx context.Context, transactionID string, key usecase.LookupKey, details map[string]any) (*usecase.ReconcileResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, key)
	f.txIDs = append(f.txIDs, transactionID)
	f.mu.Unlock()
	return f.fn(transactionID, key)
}

type fakeAdmin struct {
	items     []*model.Purchase
	lastQuery repository.PurchaseFilter
	setErr    error
}

func (f *fakeAdmin) List(ctx context.Context, q repository.PurchaseFilter) ([]*model.Purchase, error) {
	f.lastQuery = q
	return f.items, nil
}

func (f *fakeAdmin) SetStatus(ctx context.Context, purchaseID string, status model.PurchaseStatus) (*model.Purchase, error) {
	if f.setErr != nil {
		return nil, f.setErr
	}
	for _, p := range f.items {
		if p.ID == purchaseID {
			p.Status = status
			return p, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeAdmin) FailAbandoned(ctx context.Context, olderThan time.Time, batch int) (int, error) {
	return 0, nil
}

type fakeLimiter struct {
	allow bool
	err   error
	keys  []string
}

func (f *fakeLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	f.keys = append(f.keys, key)
	return f.allow, f.err
}

func testPlan() *model.Plan {
	p, _ := model.NewPlan("web-basic", "Web Básica", "Landing page", decimal.RequireFromString("25.00"), []string{"1 página"}, false)
	return p
}

func newTestLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}
