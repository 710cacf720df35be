// File: internal/usecase/reconcile_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"agency-checkout/internal/domain"
	"agency-checkout/internal/domain/model"
	"agency-checkout/internal/domain/ports/adapter"
	"agency-checkout/internal/domain/ports/repository"
	"agency-checkout/internal/infra/logging"
	"agency-checkout/internal/infra/metrics"
	red "agency-checkout/internal/infra/redis"
	"agency-checkout/internal/infra/worker"
)

// Compile-time check
var _ ReconcileUseCase = (*reconcileUC)(nil)

// LookupKey identifies the purchase a success signal refers to. PurchaseID
// (the clientTransactionId) wins; otherwise TransactionID is matched against
// confirmed and provisional gateway ids.
type LookupKey struct {
	PurchaseID    string
	TransactionID string
}

// ReconcileResult reports the settled purchase. Changed is false for a
// duplicate delivery of an already applied success.
type ReconcileResult struct {
	Purchase *model.Purchase
	Changed  bool
}

type ReconcileUseCase interface {
	Reconcile(ctx context.Context, transactionID string, key LookupKey, details map[string]any) (*ReconcileResult, error)
}

// TaskSubmitter runs side effects off the request path.
type TaskSubmitter interface {
	Submit(task worker.Task) error
}

type reconcileUC struct {
	purchases repository.PurchaseRepository
	tm        repository.TransactionManager
	events    adapter.PurchaseEvents
	notifier  adapter.PurchaseNotifier
	tasks     TaskSubmitter
	locker    red.Locker
	lockTTL   time.Duration
	currency  string
	log       *zerolog.Logger
}

// NewReconcileUseCase wires the handler. events, notifier, tasks and locker
// are optional.
func NewReconcileUseCase(
	purchases repository.PurchaseRepository,
	tm repository.TransactionManager,
	events adapter.PurchaseEvents,
	notifier adapter.PurchaseNotifier,
	tasks TaskSubmitter,
	logger *zerolog.Logger,
) *reconcileUC {
	return &reconcileUC{
		purchases: purchases,
		tm:        tm,
		events:    events,
		notifier:  notifier,
		tasks:     tasks,
		lockTTL:   10 * time.Second,
		currency:  "USD",
		log:       logger,
	}
}

// WithLocker serialises deliveries for one purchase across replicas.
func (u *reconcileUC) WithLocker(l red.Locker, ttl time.Duration) *reconcileUC {
	u.locker = l
	if ttl > 0 {
		u.lockTTL = ttl
	}
	return u
}

func (u *reconcileUC) WithCurrency(c string) *reconcileUC {
	if c != "" {
		u.currency = c
	}
	return u
}

func (u *reconcileUC) Reconcile(ctx context.Context, transactionID string, key LookupKey, details map[string]any) (*ReconcileResult, error) {
	defer logging.TraceDuration(u.log, "ReconcileUC.Reconcile")()

	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		metrics.IncReconcile("invalid")
		return nil, domain.NewValidationError("transactionId", "transaction id is required")
	}
	key.PurchaseID = strings.TrimSpace(key.PurchaseID)
	if key.PurchaseID != "" && !validPurchaseID(key.PurchaseID) {
		metrics.IncReconcile("not_found")
		return nil, fmt.Errorf("purchase %q: %w", key.PurchaseID, domain.ErrNotFound)
	}
	if key.PurchaseID == "" && key.TransactionID == "" {
		key.TransactionID = transactionID
	}
	if key.PurchaseID != "" {
		ctx = logging.WithPurchaseID(ctx, key.PurchaseID)
	}
	log := logging.With(ctx, u.log)

	if u.locker != nil && key.PurchaseID != "" {
		lockKey := red.PurchaseLockKey(key.PurchaseID)
		token, err := u.locker.TryLock(ctx, lockKey, u.lockTTL)
		if err != nil {
			// the row lock below still guarantees a single completion
			log.Warn().Err(err).Msg("reconcile lock unavailable, relying on row lock")
		} else {
			defer func() {
				if err := u.locker.Unlock(context.Background(), lockKey, token); err != nil {
					log.Warn().Err(err).Msg("reconcile unlock failed")
				}
			}()
		}
	}

	var (
		purchase *model.Purchase
		changed  bool
	)
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		p, err := u.lookup(ctx, tx, key)
		if err != nil {
			return err
		}
		purchase = p

		switch p.Status {
		case model.PurchaseStatusCompleted:
			if p.CompletedWith(transactionID) {
				return nil
			}
			return domain.ErrTransactionClash
		case model.PurchaseStatusFailed:
			return fmt.Errorf("purchase %s is failed: %w", p.ID, domain.ErrInvalidTransition)
		}

		ok, err := u.purchases.MarkCompletedIfPending(ctx, tx, p.ID, transactionID, confirmationDetails(details))
		if err != nil {
			return err
		}
		if !ok {
			// lost a race the row lock should have prevented; re-read and judge again
			cur, err := u.purchases.FindByID(ctx, tx, p.ID)
			if err != nil {
				return err
			}
			purchase = cur
			if cur.CompletedWith(transactionID) {
				return nil
			}
			return domain.ErrTransactionClash
		}

		changed = true
		now := time.Now().UTC()
		txID := transactionID
		p.Status = model.PurchaseStatusCompleted
		p.TransactionID = &txID
		p.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, u.classify(log, err, purchase, transactionID)
	}

	if !changed {
		metrics.IncReconcile("duplicate")
		log.Info().Str("transaction_id", transactionID).Msg("duplicate success signal ignored")
		return &ReconcileResult{Purchase: purchase, Changed: false}, nil
	}

	metrics.IncReconcile("completed")
	metrics.IncPayment("completed")
	metrics.AddPaymentRevenue(u.currency, purchase.Amount)
	log.Info().Str("purchase_id", purchase.ID).Str("transaction_id", transactionID).Msg("purchase completed")

	u.afterCompletion(ctx, log, purchase)
	return &ReconcileResult{Purchase: purchase, Changed: true}, nil
}

func (u *reconcileUC) lookup(ctx context.Context, tx repository.Tx, key LookupKey) (*model.Purchase, error) {
	if key.PurchaseID != "" {
		return u.purchases.FindByID(ctx, tx, key.PurchaseID)
	}
	return u.purchases.FindByTransactionID(ctx, tx, key.TransactionID)
}

// classify maps a failed transaction to the caller-facing error.
func (u *reconcileUC) classify(log *zerolog.Logger, err error, p *model.Purchase, transactionID string) error {
	purchaseID := ""
	if p != nil {
		purchaseID = p.ID
	}
	switch {
	case errors.Is(err, domain.ErrNotFound):
		metrics.IncReconcile("not_found")
		log.Warn().Str("transaction_id", transactionID).Msg("no purchase matches the success signal")
		return fmt.Errorf("purchase for transaction %s: %w", transactionID, domain.ErrNotFound)
	case errors.Is(err, domain.ErrInvalidTransition):
		// money was captured for a purchase already marked failed
		metrics.IncReconcile("paid_after_failure")
		log.Error().Str("purchase_id", purchaseID).Str("transaction_id", transactionID).Msg("success signal for a failed purchase, needs manual review")
	case errors.Is(err, domain.ErrTransactionClash):
		metrics.IncReconcile("clash")
		log.Error().Str("transaction_id", transactionID).Msg("purchase already completed with another transaction")
	default:
		metrics.IncReconcile("error")
		log.Error().Err(err).Str("transaction_id", transactionID).Msg("reconciliation failed after payment")
	}
	return &domain.ReconciliationError{PurchaseID: purchaseID, TransactionID: transactionID, Err: err}
}

// afterCompletion runs only for a real pending->completed transition.
func (u *reconcileUC) afterCompletion(ctx context.Context, log *zerolog.Logger, p *model.Purchase) {
	if u.events != nil {
		ev := adapter.PurchaseEvent{
			PurchaseID:    p.ID,
			Status:        string(p.Status),
			TransactionID: *p.TransactionID,
			At:            p.UpdatedAt,
		}
		if err := u.events.Publish(context.WithoutCancel(ctx), ev); err != nil {
			log.Warn().Err(err).Msg("publish purchase event failed")
		}
	}

	if u.notifier == nil {
		return
	}
	snapshot := *p
	notify := func(ctx context.Context) error {
		return u.notifier.NotifyPurchaseCompleted(ctx, &snapshot)
	}
	if u.tasks == nil {
		go func() {
			if err := notify(context.Background()); err != nil {
				log.Warn().Err(err).Msg("owner notification failed")
			}
		}()
		return
	}
	if err := u.tasks.Submit(notify); err != nil {
		log.Warn().Err(err).Msg("owner notification dropped")
	}
}

func confirmationDetails(details map[string]any) map[string]any {
	if len(details) == 0 {
		return nil
	}
	return map[string]any{"confirmation": details}
}
