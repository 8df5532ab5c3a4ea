package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/LinHaoYu/ContractLens/app/models"
	"github.com/LinHaoYu/ContractLens/app/repository"
)

const (
	reconcileMaxAttempts = 3
	reconcileRetryDelay  = 100 * time.Millisecond
)

// TxRunner supplies transaction-scoped repositories. The ledger upsert and
// the entitlement grant for one notification run inside a single transaction
// so a concurrent duplicate delivery can never observe a half-applied state.
type TxRunner interface {
	WithTransaction(ctx context.Context, fn func(repos *repository.Repositories) error) error
}

// Reconciler applies verified payment notifications exactly once. The order
// number's uniqueness constraint plus the already-paid no-op check is the
// idempotency mechanism, not a best-effort existence probe.
type Reconciler struct {
	repos TxRunner

	now         func() time.Time
	maxAttempts int
	retryDelay  time.Duration
}

// NewReconciler creates a reconciler over transaction-capable repositories.
func NewReconciler(repos TxRunner) *Reconciler {
	return &Reconciler{
		repos:       repos,
		now:         time.Now,
		maxAttempts: reconcileMaxAttempts,
		retryDelay:  reconcileRetryDelay,
	}
}

// WithClock overrides the time source. Intended for tests.
func (r *Reconciler) WithClock(now func() time.Time) *Reconciler {
	r.now = now
	return r
}

// Reconcile upserts the order ledger row for n and, on first-time success,
// applies the entitlement grant. Verification has already happened by the
// time a Notification exists; unknown products and failed outcomes are
// permanent rejections, transient storage failures are retried a bounded
// number of times and then surfaced wrapped in ErrStorageUnavailable.
func (r *Reconciler) Reconcile(ctx context.Context, n *Notification) (Result, error) {
	if !models.IsValidProductType(n.ProductType) {
		return ResultRejected, fmt.Errorf("%w: %q", ErrUnknownProduct, n.ProductType)
	}

	status := models.OrderStatusPaid
	if !n.Succeeded {
		status = models.OrderStatusFailed
	}

	var result Result
	apply := func(repos *repository.Repositories) error {
		order := &models.Order{
			OrderNo:     n.OrderNo,
			UserID:      n.UserID,
			ProductType: n.ProductType,
			Amount:      n.Amount,
			Provider:    n.Provider,
			Status:      status,
		}

		upsert, err := repos.Order.UpsertIfAbsentOrPending(ctx, order)
		if err != nil {
			return err
		}
		if upsert == repository.OrderAlreadyPaid {
			result = ResultAlreadyApplied
			return nil
		}
		if !n.Succeeded {
			result = ResultRejected
			return nil
		}

		if _, err := repos.Entitlement.GetOrCreate(ctx, n.UserID); err != nil {
			return err
		}
		if err := repos.Entitlement.ApplyAtomic(ctx, n.UserID, r.grantForProduct(n.ProductType)); err != nil {
			return err
		}
		result = ResultApplied
		return nil
	}

	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		err := r.repos.WithTransaction(ctx, apply)
		if err == nil {
			return r.finish(n, result)
		}

		lastErr = err
		log.Errorf("[Payment] Reconcile of order %s failed (attempt %d/%d): %v", n.OrderNo, attempt, r.maxAttempts, err)
		if ctx.Err() != nil {
			break
		}
		if attempt < r.maxAttempts {
			select {
			case <-time.After(time.Duration(attempt) * r.retryDelay):
			case <-ctx.Done():
			}
		}
	}
	return ResultRejected, fmt.Errorf("%w: %v", ErrStorageUnavailable, lastErr)
}

func (r *Reconciler) finish(n *Notification, result Result) (Result, error) {
	switch result {
	case ResultAlreadyApplied:
		log.Infof("[Payment] Duplicate notification for order %s ignored (provider=%s)", n.OrderNo, n.Provider)
		return ResultAlreadyApplied, nil
	case ResultRejected:
		log.Infof("[Payment] Order %s recorded as failed (provider=%s)", n.OrderNo, n.Provider)
		return ResultRejected, ErrPaymentFailed
	default:
		log.Infof("[Payment] Order %s applied: %s for user %d (provider=%s, amount=%d)",
			n.OrderNo, n.ProductType, n.UserID, n.Provider, n.Amount)
		return ResultApplied, nil
	}
}

// grantForProduct returns the entitlement mutation for a paid product. A
// single purchase adds one credit; a subscription purchase replaces the
// remaining count and restarts the 30-day window.
func (r *Reconciler) grantForProduct(productType string) func(e *models.UserEntitlement) error {
	now := r.now()
	return func(e *models.UserEntitlement) error {
		switch productType {
		case models.ProductTypeSingle:
			e.PurchasedCredits++
		case models.ProductTypeSubscription:
			expires := now.Add(SubscriptionDays * 24 * time.Hour)
			e.SubscriptionExpiresAt = &expires
			e.SubscriptionCreditsRemaining = SubscriptionCredits
		default:
			return fmt.Errorf("%w: %q", ErrUnknownProduct, productType)
		}
		return nil
	}
}
