package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/stakeaware/accessgate/internal/pkg/env"
)

// AdminKeyAuth authenticates admin requests carrying the X-Admin-Key header
// against ADMIN_API_KEY. When no key is configured the endpoint stays open,
// matching legacy single-operator deployments; configure a key anywhere the
// snapshot endpoint is reachable from the outside.
func AdminKeyAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		secret := env.GetEnv("ADMIN_API_KEY", "")
		if secret == "" {
			return c.Next()
		}

		key := strings.TrimSpace(c.Get("X-Admin-Key"))
		if subtle.ConstantTimeCompare([]byte(key), []byte(secret)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
		}
		return c.Next()
	}
}
