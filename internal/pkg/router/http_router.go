package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/LinHaoYu/ContractLens/app/controllers"
	"github.com/LinHaoYu/ContractLens/internal/pkg/constants"
)

// HttpRouter carries the public, signature-authenticated surface: provider
// webhooks and the health probe.
type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	app.Get(constants.HealthRoute, func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	app.Post(constants.StripeWebhookRoute, controllers.HandleStripeWebhook)
	app.Post(constants.PayJSNotifyRoute, controllers.HandlePayJSNotify)
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
