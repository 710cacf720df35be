//go:build !integration

package events

import (
	"context"
	"testing"
	"time"

	"agency-checkout/internal/domain/ports/adapter"
)

func TestMemoryEvents_DeliversToMatchingSubscribers(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryEvents()

	mine, _ := b.Subscribe(ctx, "p1")
	other, _ := b.Subscribe(ctx, "p2")
	defer other.Unsubscribe()

	_ = b.Publish(ctx, adapter.PurchaseEvent{PurchaseID: "p1", Status: "completed", TransactionID: "T123"})

	select {
	case ev := <-mine.Events():
		if ev.TransactionID != "T123" {
			t.Errorf("unexpected event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
	select {
	case ev := <-other.Events():
		t.Fatalf("p2 subscriber received %+v", ev)
	default:
	}
	_ = mine.Unsubscribe()
}

func TestMemoryEvents_UnsubscribeReleases(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryEvents()
	sub, _ := b.Subscribe(ctx, "p1")
	if b.Subscribers("p1") != 1 {
		t.Fatalf("expected 1 subscriber")
	}
	if err := sub.Unsubscribe(); err != nil {
		t.Fatal(err)
	}
	if err := sub.Unsubscribe(); err != nil {
		t.Fatalf("second Unsubscribe should be a no-op, got %v", err)
	}
	if b.Subscribers("p1") != 0 {
		t.Errorf("subscription leaked")
	}
	if _, ok := <-sub.Events(); ok {
		t.Error("events channel should be closed")
	}
	// publishing after release must not panic
	_ = b.Publish(ctx, adapter.PurchaseEvent{PurchaseID: "p1"})
}
