package sched

import (
	"context"
	"time"

	"agency-checkout/internal/usecase"
)

const defaultSweepBatch = 200

// AbandonSweeper marks pending purchases older than After as failed. It
// covers buyers who never came back from the gateway.
type AbandonSweeper struct {
	admin usecase.AdminPurchaseUseCase
	after time.Duration
	batch int
	now   func() time.Time
}

func NewAbandonSweeper(admin usecase.AdminPurchaseUseCase, after time.Duration, batch int) *AbandonSweeper {
	if batch <= 0 {
		batch = defaultSweepBatch
	}
	return &AbandonSweeper{admin: admin, after: after, batch: batch, now: time.Now}
}

// Enabled is false when abandonment is switched off (after <= 0).
func (w *AbandonSweeper) Enabled() bool { return w.after > 0 }

// Run performs one sweep and returns how many purchases were failed.
func (w *AbandonSweeper) Run(ctx context.Context) (int, error) {
	if !w.Enabled() {
		return 0, nil
	}
	return w.admin.FailAbandoned(ctx, w.now().Add(-w.after), w.batch)
}
