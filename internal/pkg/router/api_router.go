package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/LinHaoYu/ContractLens/app/controllers"
	"github.com/LinHaoYu/ContractLens/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New())
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// API v1 routes, all behind API key auth
	v1 := api.Group("/v1", middleware.APIKeyAuthMiddleware())
	v1.Post("/analyze", controllers.HandleAnalyze)
	v1.Get("/analyses", controllers.HandleListAnalyses)
	v1.Get("/orders", controllers.HandleListOrders)
	v1.Get("/quota", controllers.HandleGetQuota)
	v1.Post("/payment/checkout", controllers.HandleCheckout)
	v1.Get("/payment/status", controllers.HandlePaymentStatus)

	admin := v1.Group("/admin", middleware.RequireAdminMiddleware())
	admin.Get("/stats", controllers.HandleAdminStats)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
