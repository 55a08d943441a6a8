package handlers

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/lyrixx/ClickHouse/internal/logging"
	"github.com/lyrixx/ClickHouse/internal/mergetree"
	"github.com/lyrixx/ClickHouse/internal/models"
)

// version reported by the health endpoint.
const version = "1.0.0"

// Handler serves the HTTP API over a set of open table stores, keyed by
// table name.
type Handler struct {
	stores  map[string]*mergetree.Store
	started time.Time
}

// New creates a handler over the given table stores.
func New(stores map[string]*mergetree.Store) *Handler {
	return &Handler{
		stores:  stores,
		started: time.Now(),
	}
}

// log returns the request-scoped logger installed by the logging
// middleware, so handler lines carry the request ID.
func (h *Handler) log(c *fiber.Ctx) *logging.Logger {
	return logging.FromContext(c.UserContext())
}

// tableStore resolves the :table route parameter to an open store.
func (h *Handler) tableStore(c *fiber.Ctx) (*mergetree.Store, bool) {
	store, ok := h.stores[c.Params("table")]
	return store, ok
}

func (h *Handler) unknownTable(c *fiber.Ctx) error {
	msg := fmt.Sprintf("Table %q is not served by this node", c.Params("table"))
	return c.Status(fiber.StatusNotFound).JSON(models.NewErrorAt("UNKNOWN_TABLE", msg, c.Path()))
}
