package handlers

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/lyrixx/ClickHouse/internal/models"
)

// ListParts returns summaries of the table's active parts.
func (h *Handler) ListParts(c *fiber.Ctx) error {
	store, ok := h.tableStore(c)
	if !ok {
		return h.unknownTable(c)
	}

	parts := store.Parts()
	summaries := make([]models.PartSummary, len(parts))
	for i, p := range parts {
		summaries[i] = models.NewPartSummary(p)
	}

	return c.JSON(models.PartListResponse{
		Table: store.Table(),
		Parts: summaries,
		Count: len(summaries),
	})
}

// GetPart returns one active part including its manifest entries.
func (h *Handler) GetPart(c *fiber.Ctx) error {
	store, ok := h.tableStore(c)
	if !ok {
		return h.unknownTable(c)
	}

	name := c.Params("name")
	part, ok := store.Part(name)
	if !ok {
		return h.partNotFound(c, name)
	}

	return c.JSON(models.NewPartDetail(part))
}

// DropPart retires one active part. The directory is removed once the last
// reader releases it.
func (h *Handler) DropPart(c *fiber.Ctx) error {
	store, ok := h.tableStore(c)
	if !ok {
		return h.unknownTable(c)
	}

	name := c.Params("name")
	if _, ok := store.Part(name); !ok {
		return h.partNotFound(c, name)
	}

	if err := store.DropPart(c.Context(), name); err != nil {
		h.log(c).Error("part retirement failed",
			"table", store.Table(),
			"part", name,
			"error", err)
		return c.Status(fiber.StatusInternalServerError).
			JSON(models.NewError("DROP_FAILED", "Failed to retire part"))
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// TableStats reports aggregate counts over the table's active parts.
func (h *Handler) TableStats(c *fiber.Ctx) error {
	store, ok := h.tableStore(c)
	if !ok {
		return h.unknownTable(c)
	}

	parts, rows, bytes := store.Stats()
	return c.JSON(models.TableStatsResponse{
		Table: store.Table(),
		Parts: parts,
		Rows:  rows,
		Bytes: bytes,
	})
}

func (h *Handler) partNotFound(c *fiber.Ctx, name string) error {
	msg := fmt.Sprintf("No active part %q in table %q", name, c.Params("table"))
	return c.Status(fiber.StatusNotFound).JSON(models.NewErrorAt("PART_NOT_FOUND", msg, c.Path()))
}
