package payment

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/LinHaoYu/ContractLens/app/models"
	"github.com/LinHaoYu/ContractLens/internal/pkg/env"
)

const defaultPayJSGatewayURL = "https://payjs.cn/api"

// PayJS response tokens. The provider keeps redelivering the callback until
// it reads exactly the success token.
const (
	PayJSNotifySuccess = "SUCCESS"
	PayJSNotifyFail    = "FAIL"
)

// PayJSClient talks to the PayJS aggregation gateway (WeChat native QR
// payments) and verifies its form callbacks.
type PayJSClient struct {
	MerchantID string
	Key        string
	NotifyURL  string
	GatewayURL string

	HTTPClient *http.Client
}

// PayJSOrder is the subset of the native-order response the caller needs.
type PayJSOrder struct {
	OutTradeNo   string
	PayJSOrderID string
	CodeURL      string
	QRCode       string
}

func NewPayJSClientFromEnv() *PayJSClient {
	base := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", ""), "/")
	notifyURL := strings.TrimSpace(env.GetEnv("PAYJS_NOTIFY_URL", ""))
	if notifyURL == "" && base != "" {
		notifyURL = base + "/webhooks/payjs"
	}

	return &PayJSClient{
		MerchantID: strings.TrimSpace(env.GetEnv("PAYJS_MCHID", "")),
		Key:        strings.TrimSpace(env.GetEnv("PAYJS_KEY", "")),
		NotifyURL:  notifyURL,
		GatewayURL: strings.TrimRight(env.GetEnv("PAYJS_GATEWAY_URL", defaultPayJSGatewayURL), "/"),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Sign computes the PayJS request/callback signature: all non-empty fields
// except "sign", sorted by key, joined as k=v pairs, suffixed with the
// merchant key, MD5-hashed, upper-hex.
func (c *PayJSClient) Sign(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if k == "sign" || v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params[k])
	}
	signString := strings.Join(pairs, "&") + "&key=" + c.Key

	sum := md5.Sum([]byte(signString))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// VerifySign recomputes the signature over every non-sign field and compares
// it case-insensitively against the supplied one. The signature covers all
// monetizable fields, so a tampered total_fee or attach fails here.
func (c *PayJSClient) VerifySign(params map[string]string) bool {
	supplied := strings.TrimSpace(params["sign"])
	if supplied == "" || c.Key == "" {
		return false
	}
	return strings.EqualFold(supplied, c.Sign(params))
}

// CreateNativeOrder opens a QR-code payment at the gateway. outTradeNo is
// our side's order number; PayJS echoes it back in the callback.
func (c *PayJSClient) CreateNativeOrder(ctx context.Context, outTradeNo string, totalFee int64, body string, attach CheckoutAttachment) (*PayJSOrder, error) {
	if c.MerchantID == "" || c.Key == "" {
		return nil, errors.New("PAYJS_MCHID/PAYJS_KEY are not configured")
	}

	attachJSON, err := json.Marshal(attach)
	if err != nil {
		return nil, err
	}

	params := map[string]string{
		"mchid":        c.MerchantID,
		"total_fee":    strconv.FormatInt(totalFee, 10),
		"out_trade_no": outTradeNo,
		"body":         body,
		"attach":       string(attachJSON),
		"notify_url":   c.NotifyURL,
	}
	params["sign"] = c.Sign(params)

	form := url.Values{}
	for k, v := range params {
		form.Set(k, v)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.GatewayURL+"/native", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("payjs native order request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("payjs native order returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var decoded struct {
		ReturnCode   int    `json:"return_code"`
		ReturnMsg    string `json:"return_msg"`
		PayJSOrderID string `json:"payjs_order_id"`
		CodeURL      string `json:"code_url"`
		QRCode       string `json:"qrcode"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decode payjs native order response: %w", err)
	}
	if decoded.ReturnCode != 1 {
		return nil, fmt.Errorf("payjs rejected order %s: %s", outTradeNo, decoded.ReturnMsg)
	}

	return &PayJSOrder{
		OutTradeNo:   outTradeNo,
		PayJSOrderID: decoded.PayJSOrderID,
		CodeURL:      decoded.CodeURL,
		QRCode:       decoded.QRCode,
	}, nil
}

// ParsePayJSNotification verifies and normalizes a callback form body.
// Returns ErrBadSignature before reading any monetizable field when the
// signature does not match.
func (c *PayJSClient) ParsePayJSNotification(form url.Values) (*Notification, error) {
	params := make(map[string]string, len(form))
	for k := range form {
		params[k] = form.Get(k)
	}

	if !c.VerifySign(params) {
		return nil, ErrBadSignature
	}

	orderNo := strings.TrimSpace(params["out_trade_no"])
	if orderNo == "" {
		return nil, errors.New("payjs notification missing out_trade_no")
	}

	var attach CheckoutAttachment
	if raw := params["attach"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &attach); err != nil {
			return nil, fmt.Errorf("decode payjs attach payload: %w", err)
		}
	}
	if attach.UserID == 0 {
		return nil, fmt.Errorf("payjs notification %s has no usable userId in attach", orderNo)
	}

	amount, _ := strconv.ParseInt(params["total_fee"], 10, 64)

	return &Notification{
		Provider:    models.PaymentProviderPayJS,
		OrderNo:     orderNo,
		UserID:      attach.UserID,
		ProductType: attach.ProductType,
		Amount:      amount,
		Succeeded:   params["result_code"] == "1",
	}, nil
}
