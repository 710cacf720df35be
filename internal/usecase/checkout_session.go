package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"agency-checkout/internal/domain"
	"agency-checkout/internal/domain/model"
	"agency-checkout/internal/domain/ports/adapter"
)

// ErrSessionClosed is returned by a CheckoutSession after Close.
var ErrSessionClosed = errors.New("checkout session closed")

// CheckoutFlow hands out per-request checkout sessions and waits on purchase
// outcomes. It holds no per-buyer state itself.
type CheckoutFlow struct {
	checkout CheckoutUseCase
	payments PaymentUseCase
	events   adapter.PurchaseEvents
}

func NewCheckoutFlow(checkout CheckoutUseCase, payments PaymentUseCase, events adapter.PurchaseEvents) *CheckoutFlow {
	return &CheckoutFlow{checkout: checkout, payments: payments, events: events}
}

// NewSession returns an owned handle; the caller must Close it.
func (f *CheckoutFlow) NewSession() *CheckoutSession {
	return &CheckoutSession{flow: f}
}

// Await blocks until purchaseID leaves pending or ctx ends. A purchase that is
// already terminal is returned immediately.
func (f *CheckoutFlow) Await(ctx context.Context, purchaseID string) (*model.Purchase, error) {
	p, err := f.checkout.Get(ctx, purchaseID)
	if err != nil {
		return nil, err
	}
	if p.Status.Terminal() || f.events == nil {
		return p, nil
	}

	sub, err := f.events.Subscribe(ctx, purchaseID)
	if err != nil {
		return nil, fmt.Errorf("subscribe purchase events: %w", err)
	}
	defer sub.Unsubscribe()

	// re-read after subscribing so a completion between the two reads is not missed
	if p, err = f.checkout.Get(ctx, purchaseID); err != nil || p.Status.Terminal() {
		return p, err
	}

	select {
	case <-ctx.Done():
		return p, ctx.Err()
	case _, ok := <-sub.Events():
		if !ok {
			return p, ErrSessionClosed
		}
		return f.checkout.Get(context.WithoutCancel(ctx), purchaseID)
	}
}

// CheckoutSession is one buyer's checkout attempt: select a plan, give a
// contact, submit, and optionally wait for the gateway's confirmation.
type CheckoutSession struct {
	flow *CheckoutFlow

	mu       sync.Mutex
	plan     *model.Plan
	email    string
	purchase *model.Purchase
	payment  *PaymentSession
	sub      adapter.Subscription
	closed   bool
}

func (s *CheckoutSession) SelectPlan(plan *model.Plan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plan = plan
}

func (s *CheckoutSession) SetContact(email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.email = email
}

// Purchase returns the purchase recorded by Submit, if any. It is set even
// when payment initiation failed.
func (s *CheckoutSession) Purchase() *model.Purchase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.purchase
}

// Submit records the pending purchase and then opens the payment session.
// Creation always completes before the gateway is called.
func (s *CheckoutSession) Submit(ctx context.Context) (*PaymentSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	if s.payment != nil {
		return s.payment, nil
	}
	if s.plan.IsZero() {
		return nil, domain.NewValidationError("plan", "no plan selected")
	}
	if err := s.flow.payments.Ready(); err != nil {
		return nil, err
	}

	if s.purchase == nil {
		p, err := s.flow.checkout.CreatePendingPurchase(ctx, s.plan, s.email)
		if err != nil {
			return nil, err
		}
		s.purchase = p
	}

	ps, err := s.flow.payments.Initiate(ctx, s.purchase.ID)
	if err != nil {
		return nil, err
	}
	s.payment = ps
	return ps, nil
}

// AwaitConfirmation waits for the purchase submitted by this session to settle.
// The subscription is opened on first use; Submit never depends on the event
// bus. A purchase that settled before the subscription existed is reported
// from storage.
func (s *CheckoutSession) AwaitConfirmation(ctx context.Context) (adapter.PurchaseEvent, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return adapter.PurchaseEvent{}, ErrSessionClosed
	}
	if s.purchase == nil {
		s.mu.Unlock()
		return adapter.PurchaseEvent{}, errors.New("checkout session has not been submitted")
	}
	purchaseID := s.purchase.ID
	if s.sub == nil {
		if s.flow.events == nil {
			s.mu.Unlock()
			return adapter.PurchaseEvent{}, errors.New("purchase events are not configured")
		}
		sub, err := s.flow.events.Subscribe(ctx, purchaseID)
		if err != nil {
			s.mu.Unlock()
			return adapter.PurchaseEvent{}, fmt.Errorf("subscribe purchase events: %w", err)
		}
		s.sub = sub
	}
	sub := s.sub
	s.mu.Unlock()

	// re-read after subscribing so a completion between submit and subscribe is not missed
	p, err := s.flow.checkout.Get(ctx, purchaseID)
	if err != nil {
		return adapter.PurchaseEvent{}, err
	}
	if p.Status.Terminal() {
		return settledEvent(p), nil
	}

	select {
	case <-ctx.Done():
		return adapter.PurchaseEvent{}, ctx.Err()
	case ev, ok := <-sub.Events():
		if !ok {
			return adapter.PurchaseEvent{}, ErrSessionClosed
		}
		return ev, nil
	}
}

func settledEvent(p *model.Purchase) adapter.PurchaseEvent {
	ev := adapter.PurchaseEvent{PurchaseID: p.ID, Status: string(p.Status), At: p.UpdatedAt}
	if p.TransactionID != nil {
		ev.TransactionID = *p.TransactionID
	}
	return ev
}

// Close releases the confirmation subscription. It is idempotent.
func (s *CheckoutSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.sub != nil {
		return s.sub.Unsubscribe()
	}
	return nil
}
