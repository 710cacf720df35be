package events

import (
	"context"
	"sync"

	"agency-checkout/internal/domain/ports/adapter"
)

var _ adapter.PurchaseEvents = (*MemoryEvents)(nil)

// MemoryEvents is an in-process PurchaseEvents broker for single-replica
// deployments. Slow subscribers drop events rather than block Publish.
type MemoryEvents struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[string]map[uint64]*memorySubscription
}

func NewMemoryEvents() *MemoryEvents {
	return &MemoryEvents{subs: make(map[string]map[uint64]*memorySubscription)}
}

func (m *MemoryEvents) Publish(_ context.Context, ev adapter.PurchaseEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subs[ev.PurchaseID] {
		select {
		case s.ch <- ev:
		default:
		}
	}
	return nil
}

func (m *MemoryEvents) Subscribe(_ context.Context, purchaseID string) (adapter.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	s := &memorySubscription{
		broker:     m,
		id:         m.nextID,
		purchaseID: purchaseID,
		ch:         make(chan adapter.PurchaseEvent, 4),
	}
	if m.subs[purchaseID] == nil {
		m.subs[purchaseID] = make(map[uint64]*memorySubscription)
	}
	m.subs[purchaseID][s.id] = s
	return s, nil
}

// Subscribers reports the number of live subscriptions for purchaseID.
func (m *MemoryEvents) Subscribers(purchaseID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs[purchaseID])
}

func (m *MemoryEvents) remove(s *memorySubscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if set, ok := m.subs[s.purchaseID]; ok {
		delete(set, s.id)
		if len(set) == 0 {
			delete(m.subs, s.purchaseID)
		}
	}
	close(s.ch)
}

type memorySubscription struct {
	broker     *MemoryEvents
	id         uint64
	purchaseID string
	ch         chan adapter.PurchaseEvent
	once       sync.Once
}

func (s *memorySubscription) Events() <-chan adapter.PurchaseEvent { return s.ch }

func (s *memorySubscription) Unsubscribe() error {
	s.once.Do(func() { s.broker.remove(s) })
	return nil
}
