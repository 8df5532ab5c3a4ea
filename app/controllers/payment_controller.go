package controllers

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/LinHaoYu/ContractLens/app/models"
	"github.com/LinHaoYu/ContractLens/app/repository"
	"github.com/LinHaoYu/ContractLens/internal/pkg/cache"
	"github.com/LinHaoYu/ContractLens/internal/pkg/env"
	"github.com/LinHaoYu/ContractLens/internal/pkg/metrics/counter"
	"github.com/LinHaoYu/ContractLens/internal/pkg/payment"
	"github.com/LinHaoYu/ContractLens/internal/pkg/usercontext"
)

const orderStatusCacheTTL = 5 * time.Second

type checkoutRequest struct {
	ProductType string `json:"product_type" validate:"required,oneof=single subscription"`
	Provider    string `json:"provider" validate:"required,oneof=stripe payjs"`
}

type checkoutResponse struct {
	OrderNo string `json:"order_no"`
	PayURL  string `json:"pay_url"`
}

// HandleCheckout opens a payment at the chosen provider and records a
// pending ledger row so the status endpoint has something to poll before the
// webhook lands.
func HandleCheckout(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	var req checkoutRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid JSON body"})
	}
	if err := validator.New().Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "product_type must be single|subscription, provider must be stripe|payjs"})
	}

	amount, description, err := payment.PriceForProduct(req.ProductType)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Unknown product type"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	var orderNo, payURL string
	switch req.Provider {
	case models.PaymentProviderStripe:
		checkout := payment.NewStripeCheckoutFromEnv()
		orderNo, payURL, err = checkout.CreateSession(userCtx.UserID, req.ProductType)
	case models.PaymentProviderPayJS:
		client := payment.NewPayJSClientFromEnv()
		outTradeNo := strings.ReplaceAll(uuid.NewString(), "-", "")
		var order *payment.PayJSOrder
		order, err = client.CreateNativeOrder(ctx, outTradeNo, amount, description, payment.CheckoutAttachment{
			UserID:      userCtx.UserID,
			ProductType: req.ProductType,
		})
		if err == nil {
			orderNo, payURL = order.OutTradeNo, order.CodeURL
		}
	}
	if err != nil {
		log.Errorf("[Payment] Checkout failed for user %d (provider=%s): %v", userCtx.UserID, req.Provider, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "checkout_failed", "message": "Payment provider unavailable"})
	}

	pending := &models.Order{
		OrderNo:     orderNo,
		UserID:      userCtx.UserID,
		ProductType: req.ProductType,
		Amount:      amount,
		Provider:    req.Provider,
		Status:      models.OrderStatusPending,
	}
	if _, err := repository.GetGlobalFactory().GetOrderRepository().UpsertIfAbsentOrPending(ctx, pending); err != nil {
		log.Warnf("[Payment] Failed to record pending order %s: %v", orderNo, err)
	}

	return c.Status(fiber.StatusOK).JSON(checkoutResponse{OrderNo: orderNo, PayURL: payURL})
}

// HandleStripeWebhook receives signed Stripe events. Verification is
// delegated to the SDK; only checkout.session.completed reaches the
// reconciler. A non-2xx response makes Stripe redeliver, so it is returned
// only for transient storage failures.
func HandleStripeWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := strings.TrimSpace(c.Get("Stripe-Signature"))
	secret := env.GetEnv("STRIPE_WEBHOOK_SECRET", "")

	event, err := payment.VerifyStripeEvent(rawBody, signature, secret)
	if err != nil {
		log.Warnf("[Payment] Stripe webhook signature verification failed: %v", err)
		recordWebhookMetric(models.PaymentProviderStripe, "bad_signature")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_signature"})
	}

	notification, err := payment.ParseStripeNotification(event)
	if err != nil {
		// Permanent: a malformed session of ours will not improve on redelivery.
		log.Errorf("[Payment] Stripe event %s not usable: %v", event.ID, err)
		recordWebhookMetric(models.PaymentProviderStripe, "invalid_payload")
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true, "ignored": true})
	}
	if notification == nil {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true, "ignored": true})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	result, err := payment.NewReconciler(repository.GetGlobalFactory()).Reconcile(ctx, notification)
	recordWebhookMetric(models.PaymentProviderStripe, string(result))
	if err != nil && errors.Is(err, payment.ErrStorageUnavailable) {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "storage_unavailable"})
	}

	invalidateOrderStatusCache(notification.OrderNo)
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true, "result": string(result)})
}

// HandlePayJSNotify receives the PayJS form callback. The provider keeps
// redelivering until it reads exactly "SUCCESS", so every permanent outcome
// acknowledges and only transient storage failures answer "FAIL".
func HandlePayJSNotify(c *fiber.Ctx) error {
	form, err := url.ParseQuery(string(c.BodyRaw()))
	if err != nil {
		recordWebhookMetric(models.PaymentProviderPayJS, "invalid_payload")
		return c.Status(fiber.StatusBadRequest).SendString(payment.PayJSNotifyFail)
	}

	client := payment.NewPayJSClientFromEnv()
	notification, err := client.ParsePayJSNotification(form)
	if err != nil {
		if errors.Is(err, payment.ErrBadSignature) {
			log.Warn("[Payment] PayJS callback signature verification failed")
			recordWebhookMetric(models.PaymentProviderPayJS, "bad_signature")
			return c.Status(fiber.StatusBadRequest).SendString(payment.PayJSNotifyFail)
		}
		log.Errorf("[Payment] PayJS callback not usable: %v", err)
		recordWebhookMetric(models.PaymentProviderPayJS, "invalid_payload")
		// Permanent: acknowledge so the provider stops redelivering.
		return c.Status(fiber.StatusOK).SendString(payment.PayJSNotifySuccess)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	result, err := payment.NewReconciler(repository.GetGlobalFactory()).Reconcile(ctx, notification)
	recordWebhookMetric(models.PaymentProviderPayJS, string(result))
	if err != nil && errors.Is(err, payment.ErrStorageUnavailable) {
		return c.Status(fiber.StatusInternalServerError).SendString(payment.PayJSNotifyFail)
	}

	invalidateOrderStatusCache(notification.OrderNo)
	return c.Status(fiber.StatusOK).SendString(payment.PayJSNotifySuccess)
}

// HandlePaymentStatus reports whether an order is paid. Polled by the PayJS
// QR page, hence the short cache in front of the ledger.
func HandlePaymentStatus(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	orderNo := strings.TrimSpace(c.Query("orderNo"))
	if orderNo == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "orderNo is required"})
	}

	cacheKey := orderStatusCacheKey(orderNo)
	if status, err := cache.Get(cacheKey); err == nil {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"paid": status == models.OrderStatusPaid, "status": status})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	order, err := repository.GetGlobalFactory().GetOrderRepository().GetByOrderNo(ctx, orderNo)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusOK).JSON(fiber.Map{"paid": false, "message": "order not found"})
		}
		log.Errorf("[Payment] Order status lookup failed for %s: %v", orderNo, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "order_lookup_failed"})
	}
	if order.UserID != userCtx.UserID && !userCtx.IsAdmin {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden"})
	}

	if err := cache.Set(cacheKey, order.Status, orderStatusCacheTTL); err != nil {
		log.Warnf("[Payment] Order status cache write failed: %v", err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"paid": order.Status == models.OrderStatusPaid, "status": order.Status})
}

func orderStatusCacheKey(orderNo string) string {
	return "order:status:" + orderNo
}

func invalidateOrderStatusCache(orderNo string) {
	if err := cache.Delete(orderStatusCacheKey(orderNo)); err != nil {
		log.Warnf("[Payment] Order status cache invalidation failed for %s: %v", orderNo, err)
	}
}

func recordWebhookMetric(provider, result string) {
	if err := counter.AddWebhook(provider, result); err != nil {
		log.Warnf("[Payment] Webhook metrics counter update failed: %v", err)
	}
}
