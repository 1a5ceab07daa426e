package exportapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goliatone/go-sqlexport/export"
)

type stubRequest struct {
	method  string
	path    string
	body    string
	headers map[string]string
	query   map[string]string
}

func (s stubRequest) Context() context.Context { return context.Background() }
func (s stubRequest) Method() string           { return s.method }
func (s stubRequest) Path() string             { return s.path }
func (s stubRequest) Header(name string) string {
	return s.headers[name]
}
func (s stubRequest) Query(name string) string { return s.query[name] }
func (s stubRequest) Body() io.ReadCloser {
	return io.NopCloser(strings.NewReader(s.body))
}

type recordedResponse struct {
	status  int
	headers map[string]string
	body    bytes.Buffer
}

func newRecordedResponse() *recordedResponse {
	return &recordedResponse{headers: map[string]string{}}
}

func (r *recordedResponse) SetHeader(name, value string) { r.headers[name] = value }
func (r *recordedResponse) WriteHeader(status int)       { r.status = status }
func (r *recordedResponse) Write(data []byte) (int, error) {
	return r.body.Write(data)
}
func (r *recordedResponse) WriteJSON(status int, payload any) error {
	r.status = status
	return json.NewEncoder(&r.body).Encode(payload)
}

func newTestController(t *testing.T) (*Controller, string, string) {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "people.csv"), []byte("id,name\n1,ana\n2,rui\n"), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	runner := export.NewRunner()
	runner.Tracker = export.NewMemoryTracker()
	ctrl := NewController(Config{
		Runner:           runner,
		OutputRoot:       dir,
		IdempotencyStore: NewMemoryIdempotencyStore(),
	})
	return ctrl, dir, filepath.Join(dir, "people.sql")
}

func runBody(input, output string) string {
	return `{"config":{"dbtype":"postgresql","filename":"` + output + `","table_name":"people","schema_poll_attempts":20},` +
		`"source":{"type":"csv","path":"` + input + `"}}`
}

func TestController_RunAndStatus(t *testing.T) {
	ctrl, _, output := newTestController(t)

	res := newRecordedResponse()
	ctrl.Serve(stubRequest{method: http.MethodPost, path: "/exports", body: runBody("people.csv", "people.sql")}, res)
	if res.status != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", res.status, res.body.String())
	}
	var run RunResponse
	if err := json.Unmarshal(res.body.Bytes(), &run); err != nil {
		t.Fatalf("decode run: %v", err)
	}
	if run.Rows != 2 || run.Table != "people" || run.StatusURL != "/exports/"+run.ID {
		t.Fatalf("unexpected run response %+v", run)
	}
	if _, err := os.Stat(output); err != nil {
		t.Fatalf("expected output file: %v", err)
	}

	status := newRecordedResponse()
	ctrl.Serve(stubRequest{method: http.MethodGet, path: "/exports/" + run.ID}, status)
	if status.status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status.status)
	}
	var record RecordResponse
	if err := json.Unmarshal(status.body.Bytes(), &record); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if record.State != string(export.RunCompleted) || record.Rows != 2 {
		t.Fatalf("unexpected record %+v", record)
	}

	list := newRecordedResponse()
	ctrl.Serve(stubRequest{method: http.MethodGet, path: "/exports", query: map[string]string{"table": "people"}}, list)
	var listed ListResponse
	if err := json.Unmarshal(list.body.Bytes(), &listed); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listed.Exports) != 1 {
		t.Fatalf("expected one listed export, got %d", len(listed.Exports))
	}
}

func TestController_FileExistsConflict(t *testing.T) {
	ctrl, _, output := newTestController(t)
	if err := os.WriteFile(output, []byte("old"), 0o644); err != nil {
		t.Fatalf("write existing: %v", err)
	}

	res := newRecordedResponse()
	ctrl.Serve(stubRequest{method: http.MethodPost, path: "/exports", body: runBody("people.csv", "people.sql")}, res)
	if res.status != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", res.status, res.body.String())
	}
	var body ErrorResponse
	if err := json.Unmarshal(res.body.Bytes(), &body); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if body.Error.Code != string(export.KindFileExists) {
		t.Fatalf("expected file_exists code, got %q", body.Error.Code)
	}
}

func TestController_IdempotentReplay(t *testing.T) {
	ctrl, _, _ := newTestController(t)
	headers := map[string]string{"Idempotency-Key": "abc"}

	first := newRecordedResponse()
	ctrl.Serve(stubRequest{method: http.MethodPost, path: "/exports", body: runBody("people.csv", "people.sql"), headers: headers}, first)
	if first.status != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", first.status, first.body.String())
	}
	var run RunResponse
	_ = json.Unmarshal(first.body.Bytes(), &run)

	second := newRecordedResponse()
	ctrl.Serve(stubRequest{method: http.MethodPost, path: "/exports", body: runBody("people.csv", "people.sql"), headers: headers}, second)
	if second.status != http.StatusOK {
		t.Fatalf("expected replay 200, got %d: %s", second.status, second.body.String())
	}
	var record RecordResponse
	_ = json.Unmarshal(second.body.Bytes(), &record)
	if record.ID != run.ID {
		t.Fatalf("expected replay of %s, got %s", run.ID, record.ID)
	}
}

func TestController_RejectsPathsOutsideRoot(t *testing.T) {
	ctrl, dir, _ := newTestController(t)
	outside := t.TempDir()
	victim := filepath.Join(outside, "victim.txt")
	if err := os.WriteFile(victim, []byte("keep"), 0o644); err != nil {
		t.Fatalf("write victim: %v", err)
	}
	escape, err := filepath.Rel(dir, victim)
	if err != nil {
		t.Fatalf("relative path: %v", err)
	}
	escape = filepath.ToSlash(escape)

	cases := []struct {
		name string
		body string
	}{
		{"climbing filename", `{"config":{"filename":"` + escape + `","table_name":"t","overwrite":true},"source":{"type":"csv","path":"people.csv"}}`},
		{"absolute filename", `{"config":{"filename":"` + filepath.ToSlash(victim) + `","table_name":"t","overwrite":true},"source":{"type":"csv","path":"people.csv"}}`},
		{"nested climb", `{"config":{"filename":"out/../../x.sql","table_name":"t"},"source":{"type":"csv","path":"people.csv"}}`},
		{"climbing source", `{"config":{"filename":"read.sql","table_name":"t"},"source":{"type":"csv","path":"` + escape + `"}}`},
		{"absolute source", `{"config":{"filename":"read.sql","table_name":"t"},"source":{"type":"configfile","path":"/etc/app.ini"}}`},
		{"request dsn", `{"config":{"filename":"db.sql","table_name":"t"},"source":{"type":"sql","driver":"sqlite","dsn":"file:other.db","query":"select 1"}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := newRecordedResponse()
			ctrl.Serve(stubRequest{method: http.MethodPost, path: "/exports", body: tc.body}, res)
			if res.status != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", res.status, res.body.String())
			}
		})
	}

	data, err := os.ReadFile(victim)
	if err != nil || string(data) != "keep" {
		t.Fatalf("victim file changed: %q, %v", data, err)
	}
	if _, err := os.Stat(filepath.Join(dir, "read.sql")); !os.IsNotExist(err) {
		t.Fatalf("expected no output for rejected source, got %v", err)
	}
}

func TestResolvePath(t *testing.T) {
	root := t.TempDir()
	got, err := resolvePath(root, "./nested/../out/people.sql")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != filepath.Join(root, "out", "people.sql") {
		t.Fatalf("unexpected path %q", got)
	}
	for _, name := range []string{"..", "../x", "a/../../x", "/abs/x", "."} {
		if _, err := resolvePath(root, name); !export.IsKind(err, export.KindConfiguration) {
			t.Fatalf("%q: expected configuration error, got %v", name, err)
		}
	}
}

func TestController_Errors(t *testing.T) {
	ctrl, _, _ := newTestController(t)
	cases := []struct {
		name   string
		req    stubRequest
		status int
	}{
		{"invalid body", stubRequest{method: http.MethodPost, path: "/exports", body: "{"}, http.StatusBadRequest},
		{"missing config", stubRequest{method: http.MethodPost, path: "/exports", body: `{"source":{"type":"csv"}}`}, http.StatusBadRequest},
		{"bad source", stubRequest{method: http.MethodPost, path: "/exports", body: `{"config":{"filename":"x.sql","table_name":"t"},"source":{"type":"parquet"}}`}, http.StatusBadRequest},
		{"unknown export", stubRequest{method: http.MethodGet, path: "/exports/missing"}, http.StatusNotFound},
		{"bad since", stubRequest{method: http.MethodGet, path: "/exports", query: map[string]string{"since": "yesterday"}}, http.StatusBadRequest},
		{"outside base", stubRequest{method: http.MethodGet, path: "/other"}, http.StatusNotFound},
		{"method", stubRequest{method: http.MethodDelete, path: "/exports/x"}, http.StatusMethodNotAllowed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := newRecordedResponse()
			ctrl.Serve(tc.req, res)
			if res.status != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, res.status, res.body.String())
			}
		})
	}
}

func TestStatusForError(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{export.NewError(export.KindConfiguration, "bad", nil), http.StatusBadRequest},
		{export.NewError(export.KindFileExists, "exists", nil), http.StatusConflict},
		{export.NewError(export.KindSchemaUnavailable, "late", nil), http.StatusGatewayTimeout},
		{export.NewError(export.KindIO, "disk", nil), http.StatusBadGateway},
		{export.NewError(export.KindNotFound, "gone", nil), http.StatusNotFound},
		{export.NewError(export.KindInternal, "boom", nil), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := StatusForError(export.AsGoError(tc.err)); got != tc.status {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.status, got)
		}
	}
}
