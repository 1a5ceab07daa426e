package exporthttp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goliatone/go-sqlexport/adapters/exportapi"
	"github.com/goliatone/go-sqlexport/export"
)

func TestHandler_RunThroughServeMux(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "app.ini")
	if err := os.WriteFile(input, []byte("[db]\nhost=localhost\n"), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	output := filepath.Join(dir, "out", "settings.sql")

	runner := export.NewRunner()
	runner.Tracker = export.NewMemoryTracker()
	handler := NewHandler(Config{Runner: runner, BasePath: "/api/exports", OutputRoot: dir})

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	body := `{"config":{"dbtype":"mysql","filename":"out/settings.sql","table_name":"settings","create_table":true},` +
		`"source":{"type":"configfile","path":"app.ini"}}`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/exports", strings.NewReader(body)))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}
	var run exportapi.RunResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &run); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if run.Rows != 1 {
		t.Fatalf("expected 1 row, got %d", run.Rows)
	}

	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !strings.Contains(string(data), "CREATE TABLE IF NOT EXISTS `settings`") {
		t.Fatalf("expected DDL in output:\n%s", data)
	}

	status := httptest.NewRecorder()
	mux.ServeHTTP(status, httptest.NewRequest(http.MethodGet, "/api/exports/"+run.ID, nil))
	if status.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", status.Code)
	}
}

func TestHandler_NilController(t *testing.T) {
	var h *Handler
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/exports", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}
