package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/lyrixx/ClickHouse/internal/disk"
	"github.com/lyrixx/ClickHouse/internal/mergetree"
)

// newTestHandler builds a handler over freshly opened stores, one per table.
func newTestHandler(t *testing.T, tables ...string) *Handler {
	t.Helper()

	d, err := disk.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("create disk: %v", err)
	}

	stores := make(map[string]*mergetree.Store, len(tables))
	for _, table := range tables {
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

		store, err := mergetree.OpenStore(d, table, table, schema, mergetree.DefaultSettings())
		if err != nil {
			t.Fatalf("open store for %s: %v", table, err)
		}
		stores[table] = store
	}

	return New(stores)
}

// testApp wires the handler's routes the way the ingest service does.
func testApp(h *Handler) *fiber.App {
	app := fiber.New()
	app.Get("/health", h.Health)

	v1 := app.Group("/v1")
	v1.Post("/tables/:table/insert", h.Insert)
	v1.Get("/tables/:table/parts", h.ListParts)
	v1.Get("/tables/:table/parts/:name", h.GetPart)
	v1.Delete("/tables/:table/parts/:name", h.DropPart)
	v1.Get("/tables/:table/stats", h.TableStats)

	app.Use(h.NotFound)
	return app
}

// doRequest performs a request against the app, marshaling payload as JSON
// when it is non-nil.
func doRequest(t *testing.T, app *fiber.App, method, path string, payload any) *http.Response {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req, 10000)
	if err != nil {
		t.Fatalf("perform request: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// doRawRequest sends a raw body without marshaling, for malformed payloads.
func doRawRequest(t *testing.T, app *fiber.App, method, path, body string) *http.Response {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, 10000)
	if err != nil {
		t.Fatalf("perform request: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// decodeJSON unmarshals the response body into out.
func decodeJSON(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

// sampleRows returns n valid rows for the test schema.
func sampleRows(n int) []map[string]any {
	rows := make([]map[string]any, n)
	for i := range rows {
		rows[i] = map[string]any{
			"ts":    float64(1749945600 + i),
			"host":  "web-1",
			"value": float64(i) * 1.5,
		}
	}
	return rows
}
