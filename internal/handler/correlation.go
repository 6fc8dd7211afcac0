package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/rmupfumira/classup/internal/observability"
)

// CorrelationMiddleware threads a correlation id through every request: the
// caller's X-Request-Id when present, a generated one otherwise. The id is
// echoed on the response and stashed on the request context, from where it
// reaches downstream log lines and enqueued task messages.
func CorrelationMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		correlationID := strings.TrimSpace(c.Get(fiber.HeaderXRequestID))
		if correlationID == "" {
			correlationID = uuid.NewString()
		}

		c.Set(fiber.HeaderXRequestID, correlationID)
		c.SetUserContext(observability.WithCorrelationID(c.UserContext(), correlationID))
		return c.Next()
	}
}
