package redis

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"agency-checkout/internal/domain/ports/adapter"
)

var _ adapter.PurchaseEvents = (*PurchaseEvents)(nil)

// PurchaseEvents fans purchase state changes out over Redis pub/sub so that
// every replica can wake its waiting checkout sessions.
type PurchaseEvents struct {
	cli *redis.Client
	log *zerolog.Logger
}

func NewPurchaseEvents(c *Client, logger *zerolog.Logger) *PurchaseEvents {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &PurchaseEvents{cli: c.cli, log: logger}
}

func purchaseChannel(purchaseID string) string { return "purchase:" + purchaseID }

func (e *PurchaseEvents) Publish(ctx context.Context, ev adapter.PurchaseEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return e.cli.Publish(ctx, purchaseChannel(ev.PurchaseID), b).Err()
}

// Subscribe returns once Redis has confirmed the subscription.
func (e *PurchaseEvents) Subscribe(ctx context.Context, purchaseID string) (adapter.Subscription, error) {
	ps := e.cli.Subscribe(ctx, purchaseChannel(purchaseID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	sub := &redisSubscription{
		ps:   ps,
		out:  make(chan adapter.PurchaseEvent, 4),
		done: make(chan struct{}),
	}
	go sub.pump(e.log)
	return sub, nil
}

type redisSubscription struct {
	ps   *redis.PubSub
	out  chan adapter.PurchaseEvent
	done chan struct{}
	once sync.Once
}

func (s *redisSubscription) pump(log *zerolog.Logger) {
	defer close(s.out)
	in := s.ps.Channel()
	for {
		select {
		case <-s.done:
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			var ev adapter.PurchaseEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Warn().Err(err).Str("channel", msg.Channel).Msg("dropping malformed purchase event")
				continue
			}
			select {
			case s.out <- ev:
			case <-s.done:
				return
			}
		}
	}
}

func (s *redisSubscription) Events() <-chan adapter.PurchaseEvent { return s.out }

func (s *redisSubscription) Unsubscribe() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	return err
}
