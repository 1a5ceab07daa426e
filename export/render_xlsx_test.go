package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"
)

func newTestXLSXConsumer(opts ...ConsumerOption) *XLSXConsumer {
	opts = append([]ConsumerOption{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewXLSXConsumer(opts...)
}

func readSheet(t *testing.T, path, sheet string) [][]string {
	t.Helper()
	book, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer func() {
		_ = book.Close()
	}()
	rows, err := book.GetRows(sheet)
	if err != nil {
		t.Fatalf("read sheet %s: %v", sheet, err)
	}
	return rows
}

func consumeXLSX(t *testing.T, raw map[string]any, schema Schema, payloads ...any) (ExportResult, error) {
	t.Helper()
	consumer := newTestXLSXConsumer()
	if err := consumer.Init(raw); err != nil {
		return ExportResult{}, err
	}
	ch := NewMemoryChannel()
	ch.SetSchema(schema)
	for _, p := range payloads {
		if err := ch.Publish(p); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	ch.Close()
	return consumer.Consume(context.Background(), ch)
}

func TestXLSXConsumer_WritesHeaderAndRows(t *testing.T) {
	dir := t.TempDir()
	result, err := consumeXLSX(t, map[string]any{
		KeyFilename:  filepath.Join(dir, "people_${date}.xlsx"),
		KeySheetName: "People",
	}, Schema{"id", "name"},
		Row{1, "ana"},
		Batch{Rows: []Row{{2, "rui"}, {3, nil}}},
		Row{"short"},
	)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}

	wantPath := filepath.Join(dir, "people_20240102.xlsx")
	if result.Filename != wantPath || result.Format != FormatXLSX || result.Table != "People" {
		t.Fatalf("unexpected result %+v", result)
	}
	if result.Rows != 3 || result.Bytes <= 0 || len(result.Checksum) != 16 {
		t.Fatalf("unexpected counters %+v", result)
	}
	info, err := os.Stat(wantPath)
	if err != nil || info.Size() != result.Bytes {
		t.Fatalf("expected %d bytes on disk, got %v (%v)", result.Bytes, info, err)
	}

	got := fmt.Sprint(readSheet(t, wantPath, "People"))
	if got != "[[id name] [1 ana] [2 rui] [3]]" {
		t.Fatalf("unexpected sheet %s", got)
	}
}

func TestXLSXConsumer_FieldsWithoutHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.xlsx")
	_, err := consumeXLSX(t, map[string]any{
		KeyFilename:  path,
		KeyFields:    "code,label",
		KeyHasHeader: false,
	}, nil, Row{"pt", "Portugal"})
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	got := fmt.Sprint(readSheet(t, path, DefaultSheetName))
	if got != "[[pt Portugal]]" {
		t.Fatalf("unexpected sheet %s", got)
	}
}

func TestXLSXConsumer_AppendAddsAfterLastRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.xlsx")
	raw := map[string]any{
		KeyFilename:  path,
		KeySheetName: "Runs",
		KeyAppend:    true,
	}
	if _, err := consumeXLSX(t, raw, Schema{"run", "rows"}, Row{"a", 1}); err != nil {
		t.Fatalf("first run: %v", err)
	}
	result, err := consumeXLSX(t, raw, Schema{"run", "rows"}, Row{"b", 2}, Row{"c", 3})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if result.Rows != 2 {
		t.Fatalf("expected 2 appended rows, got %d", result.Rows)
	}

	got := fmt.Sprint(readSheet(t, path, "Runs"))
	if got != "[[run rows] [a 1] [b 2] [c 3]]" {
		t.Fatalf("unexpected sheet %s", got)
	}
	matches, _ := filepath.Glob(filepath.Join(filepath.Dir(path), ".sqlexport-*"))
	if len(matches) != 0 {
		t.Fatalf("temporary workbooks left behind: %v", matches)
	}
}

func TestXLSXConsumer_AppendAddsMissingSheet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.xlsx")
	if _, err := consumeXLSX(t, map[string]any{KeyFilename: path}, Schema{"x"}, Row{"1"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := consumeXLSX(t, map[string]any{
		KeyFilename:  path,
		KeySheetName: "Extra",
		KeyAppend:    true,
	}, Schema{"y"}, Row{"2"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if got := fmt.Sprint(readSheet(t, path, DefaultSheetName)); got != "[[x] [1]]" {
		t.Fatalf("first sheet changed: %s", got)
	}
	if got := fmt.Sprint(readSheet(t, path, "Extra")); got != "[[y] [2]]" {
		t.Fatalf("unexpected new sheet %s", got)
	}
}

func TestXLSXConsumer_ExistingFileWithoutAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.xlsx")
	if err := os.WriteFile(path, []byte("keep"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := consumeXLSX(t, map[string]any{KeyFilename: path}, Schema{"a"}, Row{"1"})
	if !IsKind(err, KindFileExists) {
		t.Fatalf("expected file_exists, got %v", err)
	}
	if got := readFile(t, path); got != "keep" {
		t.Fatalf("existing file changed: %q", got)
	}
}

func TestXLSXConsumer_RejectsSQLFormat(t *testing.T) {
	consumer := newTestXLSXConsumer()
	err := consumer.Init(map[string]any{KeyFormat: "sql", KeyFilename: "x.xlsx"})
	if !IsKind(err, KindConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if consumer.State() != StateFailed {
		t.Fatalf("expected failed state, got %s", consumer.State())
	}
}

func TestRunner_RunXLSX(t *testing.T) {
	runner, tracker, _ := newTestRunner()
	path := filepath.Join(t.TempDir(), "people.xlsx")

	result, err := runner.Run(context.Background(), RunRequest{
		Config: map[string]any{
			KeyFormat:    "xlsx",
			KeyFilename:  path,
			KeySheetName: "People",
		},
		Source: rowsSource(Schema{"id", "name"}, Row{"1", "alice"}, Row{"2", "bob"}),
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Format != FormatXLSX || result.Rows != 2 || result.Table != "People" {
		t.Fatalf("unexpected result %+v", result)
	}
	record, err := tracker.Status(context.Background(), result.ID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if record.Table != "People" || record.Dialect != "xlsx" || record.State != RunCompleted {
		t.Fatalf("unexpected record %+v", record)
	}
	if got := fmt.Sprint(readSheet(t, path, "People")); got != "[[id name] [1 alice] [2 bob]]" {
		t.Fatalf("unexpected sheet %s", got)
	}
}
