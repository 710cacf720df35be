package adapter

import (
	"context"

	"agency-checkout/internal/domain/model"
)

// PurchaseNotifier tells the business owner about a completed purchase.
type PurchaseNotifier interface {
	NotifyPurchaseCompleted(ctx context.Context, p *model.Purchase) error
}
