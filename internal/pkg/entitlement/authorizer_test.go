package entitlement

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/LinHaoYu/ContractLens/app/models"
)

// memEntitlementRepo is an in-memory EntitlementRepository. ApplyAtomic holds
// the mutex for the whole closure, mirroring the row lock the real store takes.
type memEntitlementRepo struct {
	mu      sync.Mutex
	rows    map[uint]*models.UserEntitlement
	failFor int // number of upcoming ApplyAtomic calls that fail
}

func newMemEntitlementRepo() *memEntitlementRepo {
	return &memEntitlementRepo{rows: map[uint]*models.UserEntitlement{}}
}

func (r *memEntitlementRepo) GetByUserID(ctx context.Context, userID uint) (*models.UserEntitlement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.rows[userID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *e
	return &cp, nil
}

func (r *memEntitlementRepo) GetOrCreate(ctx context.Context, userID uint) (*models.UserEntitlement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.rows[userID]
	if !ok {
		e = &models.UserEntitlement{UserID: userID}
		r.rows[userID] = e
	}
	cp := *e
	return &cp, nil
}

func (r *memEntitlementRepo) ApplyAtomic(ctx context.Context, userID uint, fn func(e *models.UserEntitlement) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failFor > 0 {
		r.failFor--
		return errors.New("connection reset")
	}
	e, ok := r.rows[userID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	cp := *e
	if err := fn(&cp); err != nil {
		return err
	}
	r.rows[userID] = &cp
	return nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func ptrTime(t time.Time) *time.Time { return &t }

func TestAuthorizeTierPrecedence(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	yesterday := now.AddDate(0, 0, -1)

	tests := []struct {
		name     string
		ent      models.UserEntitlement
		wantTier Tier
		wantErr  error
	}{
		{
			name: "active subscription wins over purchased credits",
			ent: models.UserEntitlement{
				PurchasedCredits:             5,
				SubscriptionExpiresAt:        ptrTime(now.AddDate(0, 0, 10)),
				SubscriptionCreditsRemaining: 3,
			},
			wantTier: TierSubscription,
		},
		{
			name: "expired subscription falls through to purchased credits",
			ent: models.UserEntitlement{
				PurchasedCredits:             2,
				SubscriptionExpiresAt:        ptrTime(now.AddDate(0, 0, -1)),
				SubscriptionCreditsRemaining: 3,
			},
			wantTier: TierSingle,
		},
		{
			name: "subscription with zero credits falls through",
			ent: models.UserEntitlement{
				PurchasedCredits:             1,
				SubscriptionExpiresAt:        ptrTime(now.AddDate(0, 0, 10)),
				SubscriptionCreditsRemaining: 0,
			},
			wantTier: TierSingle,
		},
		{
			name:     "no paid quota uses the free allotment",
			ent:      models.UserEntitlement{},
			wantTier: TierFree,
		},
		{
			name:     "free allotment available again the next day",
			ent:      models.UserEntitlement{FreeUsedDate: ptrTime(models.DateOnly(yesterday))},
			wantTier: TierFree,
		},
		{
			name:    "everything exhausted",
			ent:     models.UserEntitlement{FreeUsedDate: ptrTime(models.DateOnly(now))},
			wantErr: ErrQuotaExhausted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMemEntitlementRepo()
			ent := tt.ent
			ent.UserID = 1
			repo.rows[1] = &ent

			auth := NewAuthorizer(repo).WithClock(fixedClock(now))
			decision, err := auth.Authorize(context.Background(), 1)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantTier, decision.Tier)
			assert.True(t, decision.Debited)
		})
	}
}

func TestAuthorizeDebitsSelectedBucket(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

	t.Run("subscription credit decremented", func(t *testing.T) {
		repo := newMemEntitlementRepo()
		repo.rows[1] = &models.UserEntitlement{
			UserID:                       1,
			SubscriptionExpiresAt:        ptrTime(now.AddDate(0, 0, 5)),
			SubscriptionCreditsRemaining: 2,
		}
		auth := NewAuthorizer(repo).WithClock(fixedClock(now))

		_, err := auth.Authorize(context.Background(), 1)
		require.NoError(t, err)
		assert.Equal(t, 1, repo.rows[1].SubscriptionCreditsRemaining)
	})

	t.Run("purchased credit decremented", func(t *testing.T) {
		repo := newMemEntitlementRepo()
		repo.rows[1] = &models.UserEntitlement{UserID: 1, PurchasedCredits: 1}
		auth := NewAuthorizer(repo).WithClock(fixedClock(now))

		_, err := auth.Authorize(context.Background(), 1)
		require.NoError(t, err)
		assert.Equal(t, 0, repo.rows[1].PurchasedCredits)
	})

	t.Run("free usage stamps today", func(t *testing.T) {
		repo := newMemEntitlementRepo()
		repo.rows[1] = &models.UserEntitlement{UserID: 1}
		auth := NewAuthorizer(repo).WithClock(fixedClock(now))

		_, err := auth.Authorize(context.Background(), 1)
		require.NoError(t, err)
		require.NotNil(t, repo.rows[1].FreeUsedDate)
		assert.True(t, repo.rows[1].FreeUsedOn(now))

		// second request the same day is refused
		_, err = auth.Authorize(context.Background(), 1)
		assert.ErrorIs(t, err, ErrQuotaExhausted)
	})
}

func TestAuthorizeUnknownPrincipal(t *testing.T) {
	repo := newMemEntitlementRepo()
	auth := NewAuthorizer(repo)

	_, err := auth.Authorize(context.Background(), 42)
	assert.ErrorIs(t, err, ErrUnknownPrincipal)

	_, err = auth.Snapshot(context.Background(), 42)
	assert.ErrorIs(t, err, ErrUnknownPrincipal)
}

func TestAuthorizeRetriesTransientFailures(t *testing.T) {
	repo := newMemEntitlementRepo()
	repo.rows[1] = &models.UserEntitlement{UserID: 1, PurchasedCredits: 1}
	repo.failFor = 2

	auth := NewAuthorizer(repo).WithClock(fixedClock(time.Now()))
	auth.retryDelay = time.Millisecond

	decision, err := auth.Authorize(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, TierSingle, decision.Tier)
}

func TestAuthorizeStorageUnavailableAfterRetries(t *testing.T) {
	repo := newMemEntitlementRepo()
	repo.rows[1] = &models.UserEntitlement{UserID: 1, PurchasedCredits: 1}
	repo.failFor = 10

	auth := NewAuthorizer(repo)
	auth.retryDelay = time.Millisecond

	_, err := auth.Authorize(context.Background(), 1)
	assert.ErrorIs(t, err, ErrStorageUnavailable)
	// nothing was debited
	assert.Equal(t, 1, repo.rows[1].PurchasedCredits)
}

func TestAuthorizeConcurrentRequestsNeverOversell(t *testing.T) {
	const credits = 3
	const requests = 10

	repo := newMemEntitlementRepo()
	repo.rows[1] = &models.UserEntitlement{
		UserID:           1,
		PurchasedCredits: credits,
		// free allotment already used today so only credits are in play
		FreeUsedDate: ptrTime(models.DateOnly(time.Now())),
	}
	auth := NewAuthorizer(repo)

	var wg sync.WaitGroup
	var mu sync.Mutex
	granted, refused := 0, 0
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := auth.Authorize(context.Background(), 1)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				granted++
			} else if errors.Is(err, ErrQuotaExhausted) {
				refused++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, credits, granted)
	assert.Equal(t, requests-credits, refused)
	assert.Equal(t, 0, repo.rows[1].PurchasedCredits)
}

func TestAuthorizeOneCreditTwoConcurrentRequests(t *testing.T) {
	repo := newMemEntitlementRepo()
	repo.rows[1] = &models.UserEntitlement{
		UserID:           1,
		PurchasedCredits: 1,
		FreeUsedDate:     ptrTime(models.DateOnly(time.Now())),
	}
	auth := NewAuthorizer(repo)

	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := auth.Authorize(context.Background(), 1)
			results <- err
		}()
	}
	first, second := <-results, <-results

	// exactly one succeeds, the other sees an empty bucket
	if first == nil {
		assert.ErrorIs(t, second, ErrQuotaExhausted)
	} else {
		assert.ErrorIs(t, first, ErrQuotaExhausted)
		assert.NoError(t, second)
	}
}
