package entitlement

import "errors"

// Tier identifies which quota bucket services a request. Higher-value tiers
// are always consumed first.
type Tier string

const (
	TierFree         Tier = "free"
	TierSingle       Tier = "single"
	TierSubscription Tier = "subscription"
)

var (
	// ErrUnknownPrincipal means the user has no entitlement row. Permanent.
	ErrUnknownPrincipal = errors.New("unknown principal")
	// ErrQuotaExhausted means every bucket is empty for today. Permanent;
	// upstream turns this into upsell messaging.
	ErrQuotaExhausted = errors.New("quota exhausted")
	// ErrStorageUnavailable wraps a storage failure that survived the bounded
	// retry. Transient from the caller's point of view.
	ErrStorageUnavailable = errors.New("entitlement storage unavailable")
)

// Decision is the successful outcome of an authorization: which tier was
// selected and that its quota was debited.
type Decision struct {
	Tier    Tier `json:"tier"`
	Debited bool `json:"debited"`
}
