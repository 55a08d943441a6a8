package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/lyrixx/ClickHouse/internal/logging"
	"github.com/lyrixx/ClickHouse/internal/models"
)

const apiKeyHeader = "X-API-Key"

// minKeyLength is the shortest API key the server will accept into its
// key set.
const minKeyLength = 32

// APIKeyAuth guards a route group with a static key set. When auth is
// disabled the returned handler is a pass-through. Configured keys that
// fail validation are dropped at startup with a warning, never at
// request time.
func APIKeyAuth(logger *logging.Logger, apiKeys []string, enabled bool) fiber.Handler {
	if !enabled {
		return func(c *fiber.Ctx) error {
			return c.Next()
		}
	}

	keys := make(map[string]struct{}, len(apiKeys))
	for _, key := range apiKeys {
		if key == "" {
			continue
		}
		if !validKey(key) {
			logger.Warn("dropping configured API key",
				"key_prefix", maskKey(key),
				"key_length", len(key),
				"min_length", minKeyLength)
			continue
		}
		keys[key] = struct{}{}
	}
	if len(keys) == 0 {
		logger.Error("auth enabled but no usable API key configured",
			"configured", len(apiKeys))
	}

	return func(c *fiber.Ctx) error {
		key := clientKey(c)
		if key == "" {
			return unauthorized(c, "API key required via X-API-Key or Authorization header")
		}
		if _, ok := keys[key]; !ok {
			logging.FromContext(c.UserContext()).Warn("invalid API key",
				"path", c.Path(),
				"method", c.Method(),
				"ip", c.IP(),
				"key_prefix", maskKey(key))
			return unauthorized(c, "Invalid API key")
		}
		return c.Next()
	}
}

// clientKey pulls the key from the X-API-Key header, falling back to
// Authorization with or without the Bearer prefix.
func clientKey(c *fiber.Ctx) string {
	if key := c.Get(apiKeyHeader); key != "" {
		return key
	}
	auth := c.Get(fiber.HeaderAuthorization)
	if after, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return after
	}
	return auth
}

func unauthorized(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(models.NewError("UNAUTHORIZED", message))
}

// validKey enforces the minimum length and rejects whitespace-only keys.
func validKey(key string) bool {
	return len(key) >= minKeyLength && strings.TrimSpace(key) != ""
}

// maskKey keeps only a short prefix for logs.
func maskKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return key[:4] + "****"
}
