package handlers

import (
	"sort"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/lyrixx/ClickHouse/internal/models"
)

// Health reports liveness, uptime and the tables this node serves. It
// sits outside the authenticated route group.
func (h *Handler) Health(c *fiber.Ctx) error {
	tables := make([]string, 0, len(h.stores))
	for name := range h.stores {
		tables = append(tables, name)
	}
	sort.Strings(tables)

	return c.JSON(models.HealthResponse{
		Status:  "healthy",
		Version: version,
		Uptime:  time.Since(h.started).Seconds(),
		Tables:  tables,
	})
}

// NotFound answers every unrouted path.
func (h *Handler) NotFound(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(models.NewErrorAt("NOT_FOUND", "Route not found", c.Path()))
}
