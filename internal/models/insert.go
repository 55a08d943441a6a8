package models

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/lyrixx/ClickHouse/internal/mergetree"
)

// InsertRequest represents an insert request body
type InsertRequest struct {
	Rows []map[string]any `json:"rows" validate:"required,min=1"`
}

// Validate validates the insert request
func (r *InsertRequest) Validate() error {
	if len(r.Rows) == 0 {
		return &fiber.Error{
			Code:    fiber.StatusBadRequest,
			Message: "rows is required and must not be empty",
		}
	}
	return nil
}

// ToRows converts loosely typed request rows into typed storage rows using
// the table schema. Unknown columns and uncoercible values are rejected with
// the offending row index.
func ToRows(schema *mergetree.Schema, raw []map[string]any) ([]mergetree.Row, error) {
	rows := make([]mergetree.Row, 0, len(raw))
	for i, m := range raw {
		row := make(mergetree.Row, len(m))
		for name, rawValue := range m {
			col, ok := schema.Column(name)
			if !ok {
				return nil, fmt.Errorf("row %d: unknown column %q", i, name)
			}
			v, err := mergetree.CoerceValue(col.Type, rawValue)
			if err != nil {
				return nil, fmt.Errorf("row %d, column %q: %w", i, name, err)
			}
			row[name] = v
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// InsertResponse reports an accepted insert: one part per affected partition
type InsertResponse struct {
	Table string   `json:"table"`
	Rows  int      `json:"rows"`
	Parts []string `json:"parts"`
}
