package adapter

import (
	"context"
	"time"
)

// PurchaseEvent is published when reconciliation settles a purchase.
type PurchaseEvent struct {
	PurchaseID    string    `json:"purchaseId"`
	Status        string    `json:"status"`
	TransactionID string    `json:"transactionId,omitempty"`
	At            time.Time `json:"at"`
}

// Subscription delivers events for one purchase until Unsubscribe is called.
// Unsubscribe is idempotent and closes Events.
type Subscription interface {
	Events() <-chan PurchaseEvent
	Unsubscribe() error
}

// PurchaseEvents is a publish/subscribe channel keyed by purchase id.
type PurchaseEvents interface {
	Publish(ctx context.Context, ev PurchaseEvent) error
	Subscribe(ctx context.Context, purchaseID string) (Subscription, error)
}
