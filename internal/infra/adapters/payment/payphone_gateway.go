// File: internal/infra/adapters/payment/payphone_gateway.go
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"agency-checkout/internal/config"
	"agency-checkout/internal/domain"
	"agency-checkout/internal/domain/ports/adapter"
	"agency-checkout/internal/infra/metrics"
)

var _ adapter.PaymentGateway = (*PayPhoneGateway)(nil)

// PayPhoneGateway creates hosted payment links through the PayPhone Links API.
type PayPhoneGateway struct {
	apiKey   string
	storeID  string
	endpoint string
	timeout  time.Duration
	client   *http.Client
}

func NewPayPhoneGateway(cfg config.PayPhoneConfig) (*PayPhoneGateway, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &PayPhoneGateway{
		apiKey:   cfg.APIKey,
		storeID:  cfg.StoreID,
		endpoint: cfg.APIURL,
		timeout:  timeout,
		client:   &http.Client{},
	}, nil
}

func (g *PayPhoneGateway) Name() string { return "payphone" }

type linkRequest struct {
	Amount              int64  `json:"amount"`
	AmountWithTax       int64  `json:"amountWithTax"`
	AmountWithoutTax    int64  `json:"amountWithoutTax"`
	Tax                 int64  `json:"tax"`
	Service             int64  `json:"service"`
	Tip                 int64  `json:"tip"`
	Currency            string `json:"currency"`
	ClientTransactionID string `json:"clientTransactionId"`
	ResponseURL         string `json:"responseUrl"`
	CancellationURL     string `json:"cancellationUrl"`
	StoreID             string `json:"storeId"`
	Reference           string `json:"reference"`
	Email               string `json:"email,omitempty"`
}

type linkResponse struct {
	PaymentURL    string          `json:"paymentUrl"`
	TransactionID json.RawMessage `json:"transactionId"`
	Message       string          `json:"message"`
}

// CreateLink posts one payment link request. Amounts are minor units; an
// untaxed amount is sent as amountWithoutTax.
func (g *PayPhoneGateway) CreateLink(ctx context.Context, req adapter.PaymentLinkRequest) (*adapter.PaymentLink, error) {
	body := linkRequest{
		Amount:              req.AmountMinor,
		Tax:                 req.TaxMinor,
		Currency:            req.Currency,
		ClientTransactionID: req.ClientTransactionID,
		ResponseURL:         req.ResponseURL,
		CancellationURL:     req.CancellationURL,
		StoreID:             g.storeID,
		Reference:           req.Reference,
		Email:               req.Email,
	}
	if req.TaxMinor > 0 {
		body.AmountWithTax = req.BaseMinor
	} else {
		body.AmountWithoutTax = req.BaseMinor
	}
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)

	start := time.Now()
	resp, err := g.client.Do(httpReq)
	if err != nil {
		if isTimeout(ctx, err) {
			metrics.ObserveGatewayCall(g.Name(), "timeout", time.Since(start))
			return nil, &domain.PaymentGatewayError{Err: domain.ErrGatewayTimeout}
		}
		metrics.ObserveGatewayCall(g.Name(), "error", time.Since(start))
		return nil, &domain.PaymentGatewayError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		metrics.ObserveGatewayCall(g.Name(), "error", time.Since(start))
		return nil, &domain.PaymentGatewayError{StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.ObserveGatewayCall(g.Name(), "rejected", time.Since(start))
		var out linkResponse
		_ = json.Unmarshal(raw, &out)
		return nil, &domain.PaymentGatewayError{StatusCode: resp.StatusCode, Message: out.Message}
	}

	link, err := parseLink(raw)
	if err != nil {
		metrics.ObserveGatewayCall(g.Name(), "error", time.Since(start))
		return nil, &domain.PaymentGatewayError{StatusCode: resp.StatusCode, Err: err}
	}
	metrics.ObserveGatewayCall(g.Name(), "ok", time.Since(start))
	return link, nil
}

// parseLink accepts the object form {paymentUrl, transactionId} and the bare
// JSON string form some API versions return.
func parseLink(raw []byte) (*adapter.PaymentLink, error) {
	var bare string
	if json.Unmarshal(raw, &bare) == nil && bare != "" {
		return &adapter.PaymentLink{PaymentURL: bare, Raw: map[string]any{"paymentUrl": bare}}, nil
	}

	var out linkResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode payphone response: %w", err)
	}
	if out.PaymentURL == "" {
		return nil, errors.New("payphone response has no paymentUrl")
	}
	var rawMap map[string]any
	_ = json.Unmarshal(raw, &rawMap)
	return &adapter.PaymentLink{
		PaymentURL:    out.PaymentURL,
		TransactionID: rawID(out.TransactionID),
		Raw:           rawMap,
	}, nil
}

// rawID normalises numeric and string transaction ids.
func rawID(m json.RawMessage) string {
	s := strings.TrimSpace(string(m))
	if s == "" || s == "null" {
		return ""
	}
	var str string
	if json.Unmarshal(m, &str) == nil {
		return str
	}
	return s
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
