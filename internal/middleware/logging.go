package middleware

import (
	"time"

	"github.com/ecocero/backend/pkg/logger"
	"github.com/gofiber/fiber/v2"
)

// RequestLogger emits one structured event per request with outcome and
// latency. Bodies are never logged; this service handles secrets.
func RequestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		fields := map[string]interface{}{
			"method":      c.Method(),
			"path":        c.Path(),
			"status":      status,
			"duration_ms": time.Since(start).Milliseconds(),
			"ip":          c.IP(),
		}

		if status >= fiber.StatusInternalServerError {
			logger.Error("http_request", err, fields)
		} else {
			logger.Info("http_request", fields)
		}

		return err
	}
}
