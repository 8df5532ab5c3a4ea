package controllers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/LinHaoYu/ContractLens/internal/pkg/metrics/counter"
)

// HandleAdminStats returns the per-day analysis and webhook counters.
func HandleAdminStats(c *fiber.Ctx) error {
	analyses, webhooks, err := counter.Snapshot()
	if err != nil {
		log.Errorf("[Admin] Metrics snapshot failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "metrics_unavailable"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"analyses": analyses,
		"webhooks": webhooks,
	})
}
