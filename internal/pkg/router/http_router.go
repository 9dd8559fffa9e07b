package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/stakeaware/accessgate/app/controllers"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// Browser-facing routes. Paystack sends the customer here after checkout.
	app.Get("/paystack_redirect", controllers.HandlePaystackRedirect)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
