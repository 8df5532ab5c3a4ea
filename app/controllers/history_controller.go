package controllers

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/LinHaoYu/ContractLens/app/repository"
	"github.com/LinHaoYu/ContractLens/internal/pkg/entitlement"
	"github.com/LinHaoYu/ContractLens/internal/pkg/usercontext"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// HandleListOrders returns the principal's payment history, newest first.
func HandleListOrders(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	page, pageSize := parsePagination(c)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	orders, total, err := repository.GetGlobalFactory().GetOrderRepository().
		ListByUser(ctx, userCtx.UserID, (page-1)*pageSize, pageSize)
	if err != nil {
		log.Errorf("[History] Order listing failed for user %d: %v", userCtx.UserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "order_listing_failed"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"records":   orders,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// HandleListAnalyses returns the principal's analysis history, newest first.
func HandleListAnalyses(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	page, pageSize := parsePagination(c)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	records, total, err := repository.GetGlobalFactory().GetAnalysisRepository().
		ListByUser(ctx, userCtx.UserID, (page-1)*pageSize, pageSize)
	if err != nil {
		log.Errorf("[History] Analysis listing failed for user %d: %v", userCtx.UserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "analysis_listing_failed"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"records":   records,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// HandleGetQuota reports the principal's current entitlement balances.
func HandleGetQuota(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	authorizer := entitlement.NewAuthorizer(repository.GetGlobalFactory().GetEntitlementRepository())
	ent, err := authorizer.Snapshot(ctx, userCtx.UserID)
	if err != nil {
		if errors.Is(err, entitlement.ErrUnknownPrincipal) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "unknown_principal"})
		}
		log.Errorf("[History] Quota lookup failed for user %d: %v", userCtx.UserID, err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "storage_unavailable"})
	}

	now := time.Now()
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"free_available":         !ent.FreeUsedOn(now),
		"purchased_credits":      ent.PurchasedCredits,
		"subscription_active":    ent.SubscriptionActive(now),
		"subscription_expires":   ent.SubscriptionExpiresAt,
		"subscription_remaining": ent.SubscriptionCreditsRemaining,
	})
}

// parsePagination reads page/pageSize query params with sane bounds.
func parsePagination(c *fiber.Ctx) (page, pageSize int) {
	page, _ = strconv.Atoi(c.Query("page", "1"))
	if page < 1 {
		page = 1
	}
	pageSize, _ = strconv.Atoi(c.Query("pageSize", strconv.Itoa(defaultPageSize)))
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}
