package payment

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/checkout/session"
	"github.com/stripe/stripe-go/v78/webhook"

	"github.com/LinHaoYu/ContractLens/app/models"
	"github.com/LinHaoYu/ContractLens/internal/pkg/env"
)

// StripeCheckout wraps Stripe Checkout Session creation for the two products.
type StripeCheckout struct {
	SuccessURL string
	CancelURL  string
}

// NewStripeCheckoutFromEnv configures the Stripe client and redirect URLs
// from the environment.
func NewStripeCheckoutFromEnv() *StripeCheckout {
	stripe.Key = strings.TrimSpace(env.GetEnv("STRIPE_SECRET_KEY", ""))
	base := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", ""), "/")
	return &StripeCheckout{
		SuccessURL: base + "/payment-success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  base + "/payment-cancel",
	}
}

// CreateSession opens a Checkout Session for the given user and product and
// returns the session ID (the order number the webhook will carry) plus the
// redirect URL.
func (s *StripeCheckout) CreateSession(userID uint, productType string) (orderNo, redirectURL string, err error) {
	amount, description, err := PriceForProduct(productType)
	if err != nil {
		return "", "", err
	}

	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card", "alipay", "wechat_pay"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String("cny"),
					UnitAmount: stripe.Int64(amount),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(description),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		PaymentMethodOptions: &stripe.CheckoutSessionPaymentMethodOptionsParams{
			WeChatPay: &stripe.CheckoutSessionPaymentMethodOptionsWeChatPayParams{
				Client: stripe.String("web"),
			},
		},
		SuccessURL: stripe.String(s.SuccessURL),
		CancelURL:  stripe.String(s.CancelURL),
	}
	params.AddMetadata("userId", strconv.FormatUint(uint64(userID), 10))
	params.AddMetadata("type", productType)

	sess, err := session.New(params)
	if err != nil {
		return "", "", fmt.Errorf("create stripe checkout session: %w", err)
	}
	return sess.ID, sess.URL, nil
}

// VerifyStripeEvent checks the Stripe-Signature header against the raw
// payload using the webhook signing secret. Verification is fully delegated
// to the Stripe SDK; any failure maps to ErrBadSignature.
func VerifyStripeEvent(payload []byte, signatureHeader, webhookSecret string) (stripe.Event, error) {
	event, err := webhook.ConstructEvent(payload, signatureHeader, webhookSecret)
	if err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return event, nil
}

// ParseStripeNotification maps a verified event to the normalized shape.
// Events other than checkout.session.completed return (nil, nil) and are
// acknowledged without effect.
func ParseStripeNotification(event stripe.Event) (*Notification, error) {
	if string(event.Type) != "checkout.session.completed" {
		return nil, nil
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, fmt.Errorf("decode checkout session payload: %w", err)
	}

	userID, err := strconv.ParseUint(strings.TrimSpace(sess.Metadata["userId"]), 10, 64)
	if err != nil || userID == 0 {
		return nil, fmt.Errorf("checkout session %s has no usable userId metadata", sess.ID)
	}

	return &Notification{
		Provider:    models.PaymentProviderStripe,
		OrderNo:     sess.ID,
		UserID:      uint(userID),
		ProductType: strings.TrimSpace(sess.Metadata["type"]),
		Amount:      sess.AmountTotal,
		Succeeded:   true,
	}, nil
}
