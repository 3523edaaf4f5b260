package middleware

import (
	"time"

	"github.com/academia/backend/pkg/logger"
	"github.com/gofiber/fiber/v2"
)

func RequestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		fields := map[string]interface{}{
			"method":      c.Method(),
			"path":        c.Path(),
			"status":      c.Response().StatusCode(),
			"duration_ms": time.Since(start).Milliseconds(),
			"ip":          c.IP(),
		}
		if identity := GetIdentity(c); identity != nil {
			logger.InfoWithUser(identity.ID.String(), "http_request", fields)
		} else {
			logger.Info("http_request", fields)
		}
		return err
	}
}
