package logging

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// FiberMiddleware tags every request with an ID, stores a request-scoped
// logger in the user context and logs the outcome with timing.
func FiberMiddleware(logger *Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		requestID := c.Get(fiber.HeaderXRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(fiber.HeaderXRequestID, requestID)

		// The request ID rides inside the logger, so handlers pulling
		// it from the context log correlated lines for free.
		reqLogger := logger.With("request_id", requestID)
		c.SetUserContext(WithLogger(c.UserContext(), reqLogger))

		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			// The error handler has not run yet, so the response still
			// shows the default status. Map it here for an honest log.
			status = fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				status = fe.Code
			}
		}

		fields := []any{
			"method", c.Method(),
			"path", c.Path(),
			"ip", c.IP(),
			"status", status,
			"duration", time.Since(start),
		}
		if err != nil {
			fields = append(fields, "error", err)
		}

		switch {
		case status >= 500:
			reqLogger.Error("request failed", fields...)
		case status >= 400:
			reqLogger.Warn("request rejected", fields...)
		default:
			reqLogger.Info("request completed", fields...)
		}

		return err
	}
}
