package payment

import (
	"crypto/md5"
	"encoding/hex"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LinHaoYu/ContractLens/app/models"
)

func signedNotifyForm(t *testing.T, c *PayJSClient, overrides map[string]string) url.Values {
	t.Helper()

	params := map[string]string{
		"return_code":    "1",
		"result_code":    "1",
		"mchid":          c.MerchantID,
		"out_trade_no":   "ord-20260310-0001",
		"payjs_order_id": "2026031012345678",
		"total_fee":      "399",
		"attach":         `{"userId":7,"type":"single"}`,
	}
	for k, v := range overrides {
		params[k] = v
	}
	params["sign"] = c.Sign(params)

	form := url.Values{}
	for k, v := range params {
		form.Set(k, v)
	}
	return form
}

func TestPayJSSign(t *testing.T) {
	c := &PayJSClient{MerchantID: "1000001", Key: "testkey"}

	// empty values and the sign field itself are excluded from the base string
	got := c.Sign(map[string]string{
		"b":    "2",
		"a":    "1",
		"sign": "SHOULD-BE-IGNORED",
		"c":    "",
	})

	sum := md5.Sum([]byte("a=1&b=2&key=testkey"))
	want := strings.ToUpper(hex.EncodeToString(sum[:]))
	assert.Equal(t, want, got)
}

func TestPayJSVerifySign(t *testing.T) {
	c := &PayJSClient{MerchantID: "1000001", Key: "testkey"}
	params := map[string]string{"out_trade_no": "x1", "total_fee": "399"}
	params["sign"] = c.Sign(params)

	t.Run("valid", func(t *testing.T) {
		assert.True(t, c.VerifySign(params))
	})

	t.Run("case insensitive", func(t *testing.T) {
		lowered := map[string]string{}
		for k, v := range params {
			lowered[k] = v
		}
		lowered["sign"] = strings.ToLower(params["sign"])
		assert.True(t, c.VerifySign(lowered))
	})

	t.Run("tampered amount", func(t *testing.T) {
		tampered := map[string]string{}
		for k, v := range params {
			tampered[k] = v
		}
		tampered["total_fee"] = "1"
		assert.False(t, c.VerifySign(tampered))
	})

	t.Run("missing sign", func(t *testing.T) {
		assert.False(t, c.VerifySign(map[string]string{"out_trade_no": "x1"}))
	})

	t.Run("empty merchant key never verifies", func(t *testing.T) {
		unconfigured := &PayJSClient{}
		assert.False(t, unconfigured.VerifySign(params))
	})
}

func TestParsePayJSNotification(t *testing.T) {
	c := &PayJSClient{MerchantID: "1000001", Key: "testkey"}

	t.Run("successful payment", func(t *testing.T) {
		form := signedNotifyForm(t, c, nil)
		n, err := c.ParsePayJSNotification(form)
		require.NoError(t, err)
		assert.Equal(t, models.PaymentProviderPayJS, n.Provider)
		assert.Equal(t, "ord-20260310-0001", n.OrderNo)
		assert.Equal(t, uint(7), n.UserID)
		assert.Equal(t, models.ProductTypeSingle, n.ProductType)
		assert.Equal(t, int64(399), n.Amount)
		assert.True(t, n.Succeeded)
	})

	t.Run("failed payment still parses", func(t *testing.T) {
		form := signedNotifyForm(t, c, map[string]string{"result_code": "0"})
		n, err := c.ParsePayJSNotification(form)
		require.NoError(t, err)
		assert.False(t, n.Succeeded)
	})

	t.Run("tampered body rejected", func(t *testing.T) {
		form := signedNotifyForm(t, c, nil)
		form.Set("total_fee", "1")
		_, err := c.ParsePayJSNotification(form)
		assert.ErrorIs(t, err, ErrBadSignature)
	})

	t.Run("wrong merchant key rejected", func(t *testing.T) {
		form := signedNotifyForm(t, c, nil)
		other := &PayJSClient{MerchantID: c.MerchantID, Key: "differentkey"}
		_, err := other.ParsePayJSNotification(form)
		assert.ErrorIs(t, err, ErrBadSignature)
	})

	t.Run("missing attach user", func(t *testing.T) {
		form := signedNotifyForm(t, c, map[string]string{"attach": `{"type":"single"}`})
		_, err := c.ParsePayJSNotification(form)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrBadSignature)
	})

	t.Run("malformed attach json", func(t *testing.T) {
		form := signedNotifyForm(t, c, map[string]string{"attach": "{not json"})
		_, err := c.ParsePayJSNotification(form)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrBadSignature)
	})
}

func TestPriceForProduct(t *testing.T) {
	amount, desc, err := PriceForProduct(models.ProductTypeSingle)
	require.NoError(t, err)
	assert.Equal(t, int64(PriceSingleCents), amount)
	assert.NotEmpty(t, desc)

	amount, _, err = PriceForProduct(models.ProductTypeSubscription)
	require.NoError(t, err)
	assert.Equal(t, int64(PriceSubscriptionCents), amount)

	_, _, err = PriceForProduct("lifetime")
	assert.ErrorIs(t, err, ErrUnknownProduct)
}
