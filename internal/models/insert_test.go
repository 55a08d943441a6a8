package models

import (
	"strings"
	"testing"

	"github.com/lyrixx/ClickHouse/internal/mergetree"
)

func testSchema(t *testing.T) *mergetree.Schema {
	t.Helper()
	schema, err := mergetree.NewSchema(
		[]mergetree.ColumnDef{
			{Name: "ts", Type: mergetree.TypeDateTime},
			{Name: "host", Type: mergetree.TypeString},
			{Name: "value", Type: mergetree.TypeFloat64},
		},
		[]string{"ts"},
		nil, nil, nil,
	)
	if err != nil {
		t.Fatalf("build schema: %v", err)
	}
	return schema
}

func TestInsertRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		request *InsertRequest
		wantErr bool
	}{
		{
			name: "valid request",
			request: &InsertRequest{
				Rows: []map[string]any{
					{"ts": "2025-06-15T00:00:00Z", "value": 1.5},
				},
			},
			wantErr: false,
		},
		{
			name:    "empty rows",
			request: &InsertRequest{Rows: []map[string]any{}},
			wantErr: true,
		},
		{
			name:    "nil rows",
			request: &InsertRequest{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.request.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected validation error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("expected no error, got %v", err)
			}
		})
	}
}

func TestToRows(t *testing.T) {
	schema := testSchema(t)

	rows, err := ToRows(schema, []map[string]any{
		{"ts": "2025-06-15T00:00:00Z", "host": "web-a", "value": 1.5},
		{"ts": float64(1749945660), "value": 2.5},
	})
	if err != nil {
		t.Fatalf("ToRows failed: %v", err)
	}

	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}

	if got := rows[0]["ts"].Unix(); got != 1749945600 {
		t.Errorf("expected ts 1749945600, got %d", got)
	}
	if got := rows[0]["host"].StringData(); got != "web-a" {
		t.Errorf("expected host web-a, got %q", got)
	}
	if got := rows[0]["value"].Float64(); got != 1.5 {
		t.Errorf("expected value 1.5, got %v", got)
	}

	if got := rows[1]["ts"].Unix(); got != 1749945660 {
		t.Errorf("expected ts 1749945660, got %d", got)
	}
	if _, ok := rows[1]["host"]; ok {
		t.Error("missing column should stay absent, not be defaulted here")
	}
}

func TestToRows_UnknownColumn(t *testing.T) {
	schema := testSchema(t)

	_, err := ToRows(schema, []map[string]any{
		{"ts": "2025-06-15T00:00:00Z", "nope": 1},
	})
	if err == nil {
		t.Fatal("expected error for unknown column")
	}
	if !strings.Contains(err.Error(), `unknown column "nope"`) {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestToRows_BadValue(t *testing.T) {
	schema := testSchema(t)

	_, err := ToRows(schema, []map[string]any{
		{"ts": "2025-06-15T00:00:00Z", "value": "abc"},
	})
	if err == nil {
		t.Fatal("expected error for uncoercible value")
	}
	if !strings.Contains(err.Error(), `column "value"`) {
		t.Errorf("unexpected error message: %v", err)
	}
}
