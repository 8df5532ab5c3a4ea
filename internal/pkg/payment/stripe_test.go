package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v78"

	"github.com/LinHaoYu/ContractLens/app/models"
)

const testWebhookSecret = "whsec_test_secret"

// stripeSignatureHeader builds the v1 signature header the way Stripe does:
// HMAC-SHA256 over "<timestamp>.<payload>" with the webhook secret.
func stripeSignatureHeader(payload []byte, secret string, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func checkoutCompletedPayload(t *testing.T, sessionID string, metadata map[string]string, amount int64) []byte {
	t.Helper()
	sess := map[string]any{
		"id":           sessionID,
		"object":       "checkout.session",
		"amount_total": amount,
		"metadata":     metadata,
	}
	raw, err := json.Marshal(sess)
	require.NoError(t, err)

	event := map[string]any{
		"id":          "evt_test_1",
		"object":      "event",
		"api_version": stripe.APIVersion,
		"type":        "checkout.session.completed",
		"created":     time.Now().Unix(),
		"data":        map[string]any{"object": json.RawMessage(raw)},
	}
	payload, err := json.Marshal(event)
	require.NoError(t, err)
	return payload
}

func TestVerifyStripeEvent(t *testing.T) {
	payload := checkoutCompletedPayload(t, "cs_test_1", map[string]string{"userId": "7", "type": "single"}, PriceSingleCents)

	t.Run("valid signature", func(t *testing.T) {
		header := stripeSignatureHeader(payload, testWebhookSecret, time.Now())
		event, err := VerifyStripeEvent(payload, header, testWebhookSecret)
		require.NoError(t, err)
		assert.Equal(t, "checkout.session.completed", string(event.Type))
	})

	t.Run("wrong secret", func(t *testing.T) {
		header := stripeSignatureHeader(payload, "whsec_other", time.Now())
		_, err := VerifyStripeEvent(payload, header, testWebhookSecret)
		assert.ErrorIs(t, err, ErrBadSignature)
	})

	t.Run("tampered payload", func(t *testing.T) {
		header := stripeSignatureHeader(payload, testWebhookSecret, time.Now())
		tampered := append([]byte{}, payload...)
		tampered[len(tampered)-2] = 'X'
		_, err := VerifyStripeEvent(tampered, header, testWebhookSecret)
		assert.ErrorIs(t, err, ErrBadSignature)
	})

	t.Run("stale timestamp", func(t *testing.T) {
		header := stripeSignatureHeader(payload, testWebhookSecret, time.Now().Add(-time.Hour))
		_, err := VerifyStripeEvent(payload, header, testWebhookSecret)
		assert.ErrorIs(t, err, ErrBadSignature)
	})

	t.Run("garbage header", func(t *testing.T) {
		_, err := VerifyStripeEvent(payload, "not-a-signature", testWebhookSecret)
		assert.ErrorIs(t, err, ErrBadSignature)
	})
}

func TestParseStripeNotification(t *testing.T) {
	verified := func(t *testing.T, payload []byte) stripe.Event {
		header := stripeSignatureHeader(payload, testWebhookSecret, time.Now())
		event, err := VerifyStripeEvent(payload, header, testWebhookSecret)
		require.NoError(t, err)
		return event
	}

	t.Run("checkout session completed", func(t *testing.T) {
		payload := checkoutCompletedPayload(t, "cs_test_1", map[string]string{"userId": "7", "type": "subscription"}, PriceSubscriptionCents)
		n, err := ParseStripeNotification(verified(t, payload))
		require.NoError(t, err)
		require.NotNil(t, n)
		assert.Equal(t, models.PaymentProviderStripe, n.Provider)
		assert.Equal(t, "cs_test_1", n.OrderNo)
		assert.Equal(t, uint(7), n.UserID)
		assert.Equal(t, models.ProductTypeSubscription, n.ProductType)
		assert.Equal(t, int64(PriceSubscriptionCents), n.Amount)
		assert.True(t, n.Succeeded)
	})

	t.Run("other event types are ignored", func(t *testing.T) {
		event := stripe.Event{Type: "invoice.paid"}
		n, err := ParseStripeNotification(event)
		require.NoError(t, err)
		assert.Nil(t, n)
	})

	t.Run("missing user metadata", func(t *testing.T) {
		payload := checkoutCompletedPayload(t, "cs_test_2", map[string]string{"type": "single"}, PriceSingleCents)
		_, err := ParseStripeNotification(verified(t, payload))
		assert.Error(t, err)
	})

	t.Run("non-numeric user metadata", func(t *testing.T) {
		payload := checkoutCompletedPayload(t, "cs_test_3", map[string]string{"userId": "abc", "type": "single"}, PriceSingleCents)
		_, err := ParseStripeNotification(verified(t, payload))
		assert.Error(t, err)
	})
}
