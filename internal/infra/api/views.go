package api

import (
	"bytes"
	"encoding/json"
	"time"

	"agency-checkout/internal/domain/model"
)

type planView struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Price       string   `json:"price"`
	Features    []string `json:"features"`
	IsPopular   bool     `json:"isPopular"`
}

func toPlanView(p *model.Plan) planView {
	features := p.Features
	if features == nil {
		features = []string{}
	}
	return planView{
		ID:          p.ID,
		Title:       p.Title,
		Description: p.Description,
		Price:       p.Price.StringFixed(2),
		Features:    features,
		IsPopular:   p.IsPopular,
	}
}

// purchaseView is the buyer-facing projection; it never carries the contact.
type purchaseView struct {
	ID            string    `json:"id"`
	PlanID        string    `json:"planId"`
	Amount        string    `json:"amount"`
	Status        string    `json:"status"`
	TransactionID *string   `json:"transactionId,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func toPurchaseView(p *model.Purchase) purchaseView {
	return purchaseView{
		ID:            p.ID,
		PlanID:        p.PlanID,
		Amount:        p.Amount.StringFixed(2),
		Status:        string(p.Status),
		TransactionID: p.TransactionID,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

type adminPurchaseView struct {
	purchaseView
	Email            string         `json:"email"`
	GatewayReference *string        `json:"gatewayReference,omitempty"`
	Requirements     *string        `json:"requirements,omitempty"`
	PaymentDetails   map[string]any `json:"paymentDetails,omitempty"`
}

func toAdminPurchaseView(p *model.Purchase) adminPurchaseView {
	return adminPurchaseView{
		purchaseView:     toPurchaseView(p),
		Email:            p.Email,
		GatewayReference: p.GatewayReference,
		Requirements:     p.Requirements,
		PaymentDetails:   p.PaymentDetails,
	}
}

// looseString accepts a JSON string or number; gateways send ids as either.
type looseString string

func (s *looseString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = looseString(v)
		return nil
	}
	if bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*s = looseString(n.String())
	return nil
}
