package entitlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/LinHaoYu/ContractLens/app/models"
	"github.com/LinHaoYu/ContractLens/app/repository"
)

const (
	defaultMaxAttempts = 3
	defaultRetryDelay  = 100 * time.Millisecond
)

// Authorizer makes the request-time decision: eligibility check, tier
// selection and quota debit in one atomic store operation.
type Authorizer struct {
	repo repository.EntitlementRepository

	// now is injectable so free-tier day boundaries are testable.
	now func() time.Time

	maxAttempts int
	retryDelay  time.Duration
}

// NewAuthorizer creates an authorizer over the given entitlement store.
func NewAuthorizer(repo repository.EntitlementRepository) *Authorizer {
	return &Authorizer{
		repo:        repo,
		now:         time.Now,
		maxAttempts: defaultMaxAttempts,
		retryDelay:  defaultRetryDelay,
	}
}

// WithClock overrides the time source. Intended for tests.
func (a *Authorizer) WithClock(now func() time.Time) *Authorizer {
	a.now = now
	return a
}

// Authorize selects the highest-value available tier for userID and debits
// it. First match wins: active subscription credits, then purchased credits,
// then the once-per-day free allotment. Check and debit happen inside a
// single ApplyAtomic, so two simultaneous requests for a user with one
// remaining credit cannot both succeed.
//
// ErrUnknownPrincipal and ErrQuotaExhausted are permanent and returned as-is.
// Any other storage failure is retried with backoff and finally wrapped in
// ErrStorageUnavailable.
func (a *Authorizer) Authorize(ctx context.Context, userID uint) (Decision, error) {
	var decision Decision

	var lastErr error
	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		err := a.repo.ApplyAtomic(ctx, userID, func(e *models.UserEntitlement) error {
			now := a.now()
			switch {
			case e.SubscriptionActive(now):
				e.SubscriptionCreditsRemaining--
				decision = Decision{Tier: TierSubscription, Debited: true}
			case e.PurchasedCredits > 0:
				e.PurchasedCredits--
				decision = Decision{Tier: TierSingle, Debited: true}
			case !e.FreeUsedOn(now):
				used := models.DateOnly(now)
				e.FreeUsedDate = &used
				decision = Decision{Tier: TierFree, Debited: true}
			default:
				return ErrQuotaExhausted
			}
			return nil
		})
		if err == nil {
			return decision, nil
		}
		if errors.Is(err, ErrQuotaExhausted) {
			return Decision{}, ErrQuotaExhausted
		}
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Decision{}, ErrUnknownPrincipal
		}
		if ctx.Err() != nil {
			return Decision{}, fmt.Errorf("%w: %v", ErrStorageUnavailable, ctx.Err())
		}

		lastErr = err
		log.Warnf("[Entitlement] Atomic debit failed for user %d (attempt %d/%d): %v", userID, attempt, a.maxAttempts, err)
		if attempt < a.maxAttempts {
			select {
			case <-time.After(time.Duration(attempt) * a.retryDelay):
			case <-ctx.Done():
				return Decision{}, fmt.Errorf("%w: %v", ErrStorageUnavailable, ctx.Err())
			}
		}
	}

	return Decision{}, fmt.Errorf("%w: %v", ErrStorageUnavailable, lastErr)
}

// Snapshot returns the current quota state without mutating it.
func (a *Authorizer) Snapshot(ctx context.Context, userID uint) (*models.UserEntitlement, error) {
	ent, err := a.repo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownPrincipal
		}
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return ent, nil
}
