package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"agency-checkout/internal/domain"
)

type PurchaseStatus string

const (
	PurchaseStatusPending   PurchaseStatus = "pending"   // created, waiting for the gateway
	PurchaseStatusCompleted PurchaseStatus = "completed" // gateway reported success (terminal)
	PurchaseStatusFailed    PurchaseStatus = "failed"    // marked by an administrator (terminal)
)

func ParsePurchaseStatus(s string) (PurchaseStatus, bool) {
	switch PurchaseStatus(strings.ToLower(strings.TrimSpace(s))) {
	case PurchaseStatusPending:
		return PurchaseStatusPending, true
	case PurchaseStatusCompleted:
		return PurchaseStatusCompleted, true
	case PurchaseStatusFailed:
		return PurchaseStatusFailed, true
	}
	return "", false
}

// Terminal reports whether no further transition is allowed.
func (s PurchaseStatus) Terminal() bool {
	return s == PurchaseStatusCompleted || s == PurchaseStatusFailed
}

// CanTransition encodes the purchase state machine. Cancellation and
// abandonment keep a purchase pending, so pending->pending is not a
// transition.
func (s PurchaseStatus) CanTransition(to PurchaseStatus) bool {
	return s == PurchaseStatusPending && to.Terminal()
}

// Purchase is one checkout attempt, tracked independently of payment outcome.
type Purchase struct {
	ID               string          // UUID, sent to the gateway as clientTransactionId
	PlanID           string          // not enforced against the catalog at insert time
	Email            string          // buyer contact
	Amount           decimal.Decimal // copied from the plan price at selection time
	Status           PurchaseStatus
	TransactionID    *string // set only by reconciliation
	GatewayReference *string // provisional id returned by link creation
	Requirements     *string
	PaymentDetails   map[string]any // serialized as JSONB
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewPendingPurchase validates buyer input and builds a pending purchase for plan.
func NewPendingPurchase(id string, plan *Plan, email string) (*Purchase, error) {
	if plan.IsZero() {
		return nil, domain.NewValidationError("plan", "no plan selected")
	}
	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, domain.NewValidationError("email", "a valid email address is required")
	}
	if id == "" {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now().UTC()
	return &Purchase{
		ID:        id,
		PlanID:    plan.ID,
		Email:     email,
		Amount:    plan.Price,
		Status:    PurchaseStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// CompletedWith reports whether the purchase is already completed with txID.
func (p *Purchase) CompletedWith(txID string) bool {
	return p.Status == PurchaseStatusCompleted && p.TransactionID != nil && *p.TransactionID == txID
}
