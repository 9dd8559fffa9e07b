package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/stakeaware/accessgate/app/controllers"
	"github.com/stakeaware/accessgate/internal/pkg/cache"
	"github.com/stakeaware/accessgate/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	limiterCfg := limiter.Config{
		Max:        120,
		Expiration: 1 * time.Minute,
		// Paystack retries webhooks on non-2xx, so gateway deliveries skip
		// the limiter entirely.
		Next: func(c *fiber.Ctx) bool {
			return c.Path() == "/webhook/paystack"
		},
	}
	if storage := cache.LimiterStorage(); storage != nil {
		limiterCfg.Storage = storage
	}
	app.Use(limiter.New(limiterCfg))

	app.Post("/webhook/paystack", controllers.HandlePaystackWebhook)
	app.Post("/link_telegram", controllers.HandleLinkTelegram)
	app.Get("/status", controllers.HandleStatus)

	admin := app.Group("/admin", middleware.AdminKeyAuth())
	admin.Get("/users", controllers.HandleAdminUsers)
	admin.Post("/sweep", controllers.HandleAdminSweep)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
