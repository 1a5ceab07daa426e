package exportfiber

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goliatone/go-sqlexport/adapters/exportapi"
	"github.com/goliatone/go-sqlexport/export"
)

func TestApp_RunListStatus(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "people.csv")
	if err := os.WriteFile(input, []byte("id,name\n1,ana\n"), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	output := filepath.Join(dir, "people.sql")

	runner := export.NewRunner()
	runner.Tracker = export.NewMemoryTracker()
	app := NewApp(Config{Runner: runner, OutputRoot: dir})

	body := `{"config":{"dbtype":"postgresql","filename":"people.sql","table_name":"people"},` +
		`"source":{"type":"csv","path":"people.csv"}}`
	req := httptest.NewRequest(http.MethodPost, "/exports", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("run request: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		data, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 201, got %d: %s", resp.StatusCode, data)
	}
	var run exportapi.RunResponse
	if err := json.NewDecoder(resp.Body).Decode(&run); err != nil {
		t.Fatalf("decode run: %v", err)
	}
	if _, err := os.Stat(output); err != nil {
		t.Fatalf("expected output under root: %v", err)
	}

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/exports/"+run.ID, nil), -1)
	if err != nil {
		t.Fatalf("status request: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/exports?state=completed", nil), -1)
	if err != nil {
		t.Fatalf("list request: %v", err)
	}
	var listed exportapi.ListResponse
	if err := json.NewDecoder(resp.Body).Decode(&listed); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listed.Exports) != 1 || listed.Exports[0].ID != run.ID {
		t.Fatalf("unexpected list %+v", listed)
	}
}

func TestApp_NotFoundStatus(t *testing.T) {
	runner := export.NewRunner()
	runner.Tracker = export.NewMemoryTracker()
	app := NewApp(Config{Runner: runner})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/exports/missing", nil), -1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	var body exportapi.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Code != string(export.KindNotFound) {
		t.Fatalf("expected not_found code, got %q", body.Error.Code)
	}
}
