// File: internal/usecase/mocks_test.go
package usecase

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"agency-checkout/internal/domain"
	"agency-checkout/internal/domain/model"
	"agency-checkout/internal/domain/ports/adapter"
	"agency-checkout/internal/domain/ports/repository"
	"agency-checkout/internal/infra/worker"
)

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// --- plans ---

type memPlanRepo struct {
	mu    sync.RWMutex
	store map[string]*model.Plan
	err   error
}

func newMemPlanRepo(plans ...*model.Plan) *memPlanRepo {
	r := &memPlanRepo{store: make(map[string]*model.Plan)}
	for _, p := range plans {
		r.store[p.ID] = p
	}
	return r
}

func (m *memPlanRepo) Save(ctx context.Context, tx repository.Tx, plan *model.Plan) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *plan
	m.store[plan.ID] = &cp
	return nil
}

func (m *memPlanRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Plan, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memPlanRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.Plan, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*model.Plan, 0, len(m.store))
	for _, p := range m.store {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Price.LessThan(out[j].Price) })
	return out, nil
}

// --- purchases ---

// memPurchaseRepo mirrors the conditional-update semantics of the Postgres repo.
type memPurchaseRepo struct {
	mu         sync.Mutex
	store      map[string]*model.Purchase
	inserts    int
	insertErrs []error // consumed one per Insert call
	findErr    error
	markErr    error
}

func newMemPurchaseRepo() *memPurchaseRepo {
	return &memPurchaseRepo{store: make(map[string]*model.Purchase)}
}

func clonePurchase(p *model.Purchase) *model.Purchase {
	cp := *p
	if p.TransactionID != nil {
		v := *p.TransactionID
		cp.TransactionID = &v
	}
	if p.GatewayReference != nil {
		v := *p.GatewayReference
		cp.GatewayReference = &v
	}
	if p.Requirements != nil {
		v := *p.Requirements
		cp.Requirements = &v
	}
	return &cp
}

func (m *memPurchaseRepo) Insert(ctx context.Context, tx repository.Tx, p *model.Purchase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inserts++
	if len(m.insertErrs) > 0 {
		err := m.insertErrs[0]
		m.insertErrs = m.insertErrs[1:]
		if err != nil {
			return err
		}
	}
	if _, ok := m.store[p.ID]; ok {
		return nil
	}
	m.store[p.ID] = clonePurchase(p)
	return nil
}

func (m *memPurchaseRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Purchase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	p, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return clonePurchase(p), nil
}

func (m *memPurchaseRepo) FindByTransactionID(ctx context.Context, tx repository.Tx, transactionID string) (*model.Purchase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	var byRef *model.Purchase
	for _, p := range m.store {
		if p.TransactionID != nil && *p.TransactionID == transactionID {
			return clonePurchase(p), nil
		}
		if p.GatewayReference != nil && *p.GatewayReference == transactionID {
			byRef = p
		}
	}
	if byRef != nil {
		return clonePurchase(byRef), nil
	}
	return nil, domain.ErrNotFound
}

func (m *memPurchaseRepo) FindPendingByContact(ctx context.Context, tx repository.Tx, email, planID string) ([]*model.Purchase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Purchase
	for _, p := range m.store {
		if p.Email == email && p.PlanID == planID && p.Status == model.PurchaseStatusPending {
			out = append(out, clonePurchase(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memPurchaseRepo) List(ctx context.Context, tx repository.Tx, f repository.PurchaseFilter) ([]*model.Purchase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Purchase
	for _, p := range m.store {
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		if f.Email != "" && p.Email != f.Email {
			continue
		}
		out = append(out, clonePurchase(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memPurchaseRepo) ListPendingOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.Purchase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Purchase
	for _, p := range m.store {
		if p.Status == model.PurchaseStatusPending && p.CreatedAt.Before(olderThan) {
			out = append(out, clonePurchase(p))
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memPurchaseRepo) SetRequirements(ctx context.Context, tx repository.Tx, id string, requirements string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.store[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.Requirements = &requirements
	return nil
}

func (m *memPurchaseRepo) SetGatewayReference(ctx context.Context, tx repository.Tx, id string, ref string, details map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.store[id]
	if !ok {
		return domain.ErrNotFound
	}
	if ref != "" {
		p.GatewayReference = &ref
	}
	p.PaymentDetails = details
	return nil
}

func (m *memPurchaseRepo) MarkCompletedIfPending(ctx context.Context, tx repository.Tx, id string, transactionID string, details map[string]any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.markErr != nil {
		return false, m.markErr
	}
	p, ok := m.store[id]
	if !ok || p.Status != model.PurchaseStatusPending {
		return false, nil
	}
	p.Status = model.PurchaseStatusCompleted
	p.TransactionID = &transactionID
	return true, nil
}

func (m *memPurchaseRepo) MarkFailedIfPending(ctx context.Context, tx repository.Tx, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.store[id]
	if !ok || p.Status != model.PurchaseStatusPending {
		return false, nil
	}
	p.Status = model.PurchaseStatusFailed
	return true, nil
}

func (m *memPurchaseRepo) get(id string) *model.Purchase {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.store[id]; ok {
		return clonePurchase(p)
	}
	return nil
}

func (m *memPurchaseRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.store)
}

// memTxManager serialises transactions the way a row lock would.
type memTxManager struct {
	mu sync.Mutex
}

func (m *memTxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(ctx, nil)
}

// --- adapters ---

type fakeGateway struct {
	mu       sync.Mutex
	calls    []adapter.PaymentLinkRequest
	link     *adapter.PaymentLink
	err      error
	observed func(req adapter.PaymentLinkRequest)
}

func (g *fakeGateway) Name() string { return "fake" }

func (g *fakeGateway) CreateLink(ctx context.Context, req adapter.PaymentLinkRequest) (*adapter.PaymentLink, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, req)
	if g.observed != nil {
		g.observed(req)
	}
	if g.err != nil {
		return nil, g.err
	}
	if g.link != nil {
		return g.link, nil
	}
	return &adapter.PaymentLink{PaymentURL: "https://pay.test/" + req.ClientTransactionID, TransactionID: "PROV-" + req.ClientTransactionID[:8]}, nil
}

func (g *fakeGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

type countingNotifier struct {
	mu    sync.Mutex
	calls []string
}

func (n *countingNotifier) NotifyPurchaseCompleted(ctx context.Context, p *model.Purchase) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, p.ID)
	return nil
}

func (n *countingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

// syncTasks runs submitted tasks inline so tests can count side effects.
type syncTasks struct{}

func (syncTasks) Submit(task worker.Task) error { return task(context.Background()) }

type fakeLocker struct {
	mu      sync.Mutex
	locks   int
	unlocks int
	err     error
}

func (l *fakeLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return "", l.err
	}
	l.locks++
	return "token", nil
}

func (l *fakeLocker) Unlock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.unlocks++
	return nil
}

// retryableErr reports itself safe to retry, like a dial failure in pgconn.
type retryableErr struct{ msg string }

func (e retryableErr) Error() string { return e.msg }
func (e retryableErr) SafeToRetry() bool { return true }
