package payment

import (
	"context"
	"fmt"
	"sync"

	"agency-checkout/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*NoopPaymentGateway)(nil)

// NoopPaymentGateway is an in-memory gateway for local runs and tests. Links
// point at the service's own success page so the flow can be completed by hand.
type NoopPaymentGateway struct {
	mu       sync.Mutex
	seq      int64
	requests map[string]adapter.PaymentLinkRequest // provisional id -> request
	Err      error
}

func NewNoopPaymentGateway() *NoopPaymentGateway {
	return &NoopPaymentGateway{
		requests: make(map[string]adapter.PaymentLinkRequest),
	}
}

func (g *NoopPaymentGateway) Name() string { return "noop" }

func (g *NoopPaymentGateway) next() string {
	g.seq++
	return fmt.Sprintf("noop-%d", g.seq)
}

func (g *NoopPaymentGateway) CreateLink(ctx context.Context, req adapter.PaymentLinkRequest) (*adapter.PaymentLink, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return nil, g.Err
	}
	id := g.next()
	g.requests[id] = req
	payURL := fmt.Sprintf("%s?transactionId=%s&clientTransactionId=%s", req.ResponseURL, id, req.ClientTransactionID)
	return &adapter.PaymentLink{
		PaymentURL:    payURL,
		TransactionID: id,
		Raw:           map[string]any{"paymentUrl": payURL, "transactionId": id},
	}, nil
}

// Request returns the link request recorded under a provisional id.
func (g *NoopPaymentGateway) Request(id string) (adapter.PaymentLinkRequest, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.requests[id]
	return r, ok
}
