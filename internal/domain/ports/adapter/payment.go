package adapter

import "context"

// PaymentLinkRequest is everything a gateway needs to open one payment session.
// Amounts are in minor units (cents); AmountMinor == BaseMinor + TaxMinor.
type PaymentLinkRequest struct {
	ClientTransactionID string // our purchase id
	AmountMinor         int64
	BaseMinor           int64 // taxable base (amountWithTax)
	TaxMinor            int64
	Currency            string
	Reference           string
	Email               string
	ResponseURL         string
	CancellationURL     string
}

// PaymentLink is the gateway's answer. TransactionID is provisional: only
// reconciliation confirms a payment.
type PaymentLink struct {
	PaymentURL    string
	TransactionID string
	Raw           map[string]any
}

// PaymentGateway is the hex port for hosted payment-link providers.
type PaymentGateway interface {
	Name() string
	// CreateLink opens one external payment session for the request.
	CreateLink(ctx context.Context, req PaymentLinkRequest) (*PaymentLink, error)
}
