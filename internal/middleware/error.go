package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/lyrixx/ClickHouse/internal/logging"
	"github.com/lyrixx/ClickHouse/internal/models"
)

// ErrorHandler maps errors escaping the handler chain onto the JSON
// error envelope. Fiber errors keep their status and message; anything
// else is an unexpected failure, logged here and reported as a 500.
// Request outcome logging itself lives in the logging middleware.
func ErrorHandler(logger *logging.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).
				JSON(models.NewErrorAt(codeForStatus(fe.Code), fe.Message, c.Path()))
		}

		logger.Error("unhandled request error",
			"path", c.Path(),
			"method", c.Method(),
			"error", err)
		return c.Status(fiber.StatusInternalServerError).
			JSON(models.NewErrorAt("INTERNAL", "Internal server error", c.Path()))
	}
}

// codeForStatus names the machine-readable code for an HTTP status.
func codeForStatus(status int) string {
	switch status {
	case fiber.StatusBadRequest:
		return "BAD_REQUEST"
	case fiber.StatusUnauthorized:
		return "UNAUTHORIZED"
	case fiber.StatusNotFound:
		return "NOT_FOUND"
	case fiber.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case fiber.StatusRequestEntityTooLarge:
		return "BODY_TOO_LARGE"
	}
	if status >= 500 {
		return "INTERNAL"
	}
	return "REQUEST_FAILED"
}
