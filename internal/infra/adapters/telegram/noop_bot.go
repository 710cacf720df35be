package telegram

import (
	"context"

	"github.com/rs/zerolog"

	"agency-checkout/internal/domain/model"
	"agency-checkout/internal/domain/ports/adapter"
)

var _ adapter.PurchaseNotifier = (*NoopNotifier)(nil)

// NoopNotifier logs completed purchases instead of messaging anyone.
type NoopNotifier struct {
	log *zerolog.Logger
}

func NewNoopNotifier(logger *zerolog.Logger) *NoopNotifier {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &NoopNotifier{log: logger}
}

func (n *NoopNotifier) NotifyPurchaseCompleted(ctx context.Context, p *model.Purchase) error {
	n.log.Info().Str("purchase_id", p.ID).Str("plan_id", p.PlanID).Msg("purchase completed (notifier disabled)")
	return nil
}
