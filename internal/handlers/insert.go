package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/lyrixx/ClickHouse/internal/models"
)

// Insert handles a batch row insert into one table. The whole batch is
// committed synchronously; the response names the parts it produced.
func (h *Handler) Insert(c *fiber.Ctx) error {
	store, ok := h.tableStore(c)
	if !ok {
		return h.unknownTable(c)
	}

	var req models.InsertRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).
			JSON(models.NewError("INVALID_REQUEST", "Failed to parse request body: "+err.Error()))
	}
	if err := req.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).
			JSON(models.NewError("INVALID_REQUEST", err.Error()))
	}

	rows, err := models.ToRows(store.Schema(), req.Rows)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).
			JSON(models.NewError("INVALID_ROWS", err.Error()))
	}

	parts, err := store.InsertRows(c.Context(), rows)
	if err != nil {
		h.log(c).Error("insert failed",
			"table", store.Table(),
			"rows", len(rows),
			"error", err)
		return c.Status(fiber.StatusInternalServerError).
			JSON(models.NewError("INSERT_FAILED", "Failed to write rows"))
	}

	names := make([]string, len(parts))
	for i, p := range parts {
		names[i] = p.Name.String()
	}

	h.log(c).Info("insert committed",
		"table", store.Table(),
		"rows", len(rows),
		"parts", len(names))

	return c.Status(fiber.StatusCreated).JSON(models.InsertResponse{
		Table: store.Table(),
		Rows:  len(rows),
		Parts: names,
	})
}
