package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"agency-checkout/internal/domain"
)

// Plan is a purchasable offering from the catalog. Prices are USD.
type Plan struct {
	ID          string
	Title       string
	Description string
	Price       decimal.Decimal
	Features    []string
	IsPopular   bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (p *Plan) IsZero() bool { return p == nil || p.ID == "" }

// NewPlan validates and constructs a plan.
func NewPlan(id, title, description string, price decimal.Decimal, features []string, popular bool) (*Plan, error) {
	if id == "" || strings.TrimSpace(title) == "" || price.IsNegative() {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &Plan{
		ID:          id,
		Title:       title,
		Description: description,
		Price:       price,
		Features:    append([]string(nil), features...),
		IsPopular:   popular,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}
