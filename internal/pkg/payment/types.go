package payment

import (
	"errors"

	"github.com/LinHaoYu/ContractLens/app/models"
)

// Product catalog. Amounts are CNY cents, matching what checkout sends to
// both providers.
const (
	PriceSingleCents       = 399
	PriceSubscriptionCents = 3000

	DescriptionSingle       = "Single deep contract analysis"
	DescriptionSubscription = "Monthly subscription (50 analyses)"
)

// Subscription grant policy: a fresh purchase replaces the remaining count
// instead of adding to it.
const (
	SubscriptionDays    = 30
	SubscriptionCredits = 50
	PurchasedCreditDays = 30
)

// Result classifies a reconciled notification. AlreadyApplied is not an
// error: it is the explicit idempotent no-op and must stay distinguishable
// from Applied for observability.
type Result string

const (
	ResultApplied        Result = "applied"
	ResultAlreadyApplied Result = "already_applied"
	ResultRejected       Result = "rejected"
)

// Permanent rejection reasons. None of these is ever retried.
var (
	ErrBadSignature   = errors.New("notification signature verification failed")
	ErrPaymentFailed  = errors.New("provider reported payment failure")
	ErrUnknownProduct = errors.New("unknown product type")
)

// ErrStorageUnavailable wraps a transient ledger/store failure that survived
// the bounded retry; the webhook response maps it to a retryable status.
var ErrStorageUnavailable = errors.New("payment storage unavailable")

// Notification is the provider-agnostic shape every verified callback is
// normalized into before it reaches the reconciler.
type Notification struct {
	Provider    string
	OrderNo     string
	UserID      uint
	ProductType string
	Amount      int64
	Succeeded   bool
}

// CheckoutAttachment rides through the provider as opaque metadata and comes
// back in the callback so the notification can be tied to a user and product.
type CheckoutAttachment struct {
	UserID      uint   `json:"userId"`
	ProductType string `json:"type"`
}

// PriceForProduct returns amount in cents and the display description.
func PriceForProduct(productType string) (int64, string, error) {
	switch productType {
	case models.ProductTypeSingle:
		return PriceSingleCents, DescriptionSingle, nil
	case models.ProductTypeSubscription:
		return PriceSubscriptionCents, DescriptionSubscription, nil
	default:
		return 0, "", ErrUnknownProduct
	}
}
