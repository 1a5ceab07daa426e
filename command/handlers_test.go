package command

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	gcmd "github.com/goliatone/go-command"
	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-sqlexport/export"
	"github.com/goliatone/go-sqlexport/sources"
	exportsql "github.com/goliatone/go-sqlexport/sources/sql"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestRunExportHandler_StoresResults(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "app.properties", "a=1\nb=2\n")
	output := filepath.Join(dir, "out.sql")

	handler := NewRunExportHandler(export.NewRunner(), sources.Resources{})
	var got export.ExportResult
	result := gcmd.NewResult[export.ExportResult]()
	ctx := gcmd.ContextWithResult(context.Background(), result)

	err := handler.Execute(ctx, RunExport{
		Config: map[string]any{"dbtype": "mysql", "filename": output, "table_name": "props"},
		Source: sources.Spec{Type: sources.TypeConfigFile, Path: input},
		Result: &got,
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got.Rows != 2 {
		t.Fatalf("expected 2 rows, got %d", got.Rows)
	}

	stored, ok := result.Load()
	if !ok {
		t.Fatalf("expected context result")
	}
	if stored.ID != got.ID {
		t.Fatalf("expected context result %q, got %q", got.ID, stored.ID)
	}
}

func TestRunExportHandler_Validation(t *testing.T) {
	handler := NewRunExportHandler(export.NewRunner(), sources.Resources{})
	err := handler.Execute(context.Background(), RunExport{Source: sources.Spec{Type: "csv"}})
	var ge *goerrors.Error
	if !errors.As(err, &ge) || ge.TextCode != "CONFIG_REQUIRED" {
		t.Fatalf("expected CONFIG_REQUIRED, got %v", err)
	}

	err = handler.Execute(context.Background(), RunExport{
		Config: map[string]any{"filename": "x.sql", "table_name": "t"},
		Source: sources.Spec{Type: "parquet"},
	})
	if export.KindFromError(err) != export.KindConfiguration {
		t.Fatalf("expected configuration kind, got %v", err)
	}
}

func TestApplyFileHandler_AppliesScript(t *testing.T) {
	dir := t.TempDir()
	script := writeFile(t, dir, "dump.sql",
		"CREATE TABLE \"t\" (\"a\" TEXT);\nINSERT INTO \"t\" (\"a\") VALUES ('x;y');\nINSERT INTO \"t\" (\"a\") VALUES ('z');\n")
	dsn := filepath.Join(dir, "target.db")

	handler := NewApplyFileHandler()
	var count int
	err := handler.Execute(context.Background(), ApplyFile{
		Path:    script,
		Dialect: export.DialectPostgreSQL,
		Driver:  "sqlite",
		DSN:     dsn,
		Result:  &count,
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 statements, got %d", count)
	}

	db, err := exportsql.Open(context.Background(), "sqlite", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	var joined string
	if err := db.QueryRow(`SELECT group_concat(a, '|') FROM t`).Scan(&joined); err != nil {
		t.Fatalf("query: %v", err)
	}
	if !strings.Contains(joined, "x;y") {
		t.Fatalf("unexpected rows %q", joined)
	}
}

func TestApplyFile_Validate(t *testing.T) {
	if err := (ApplyFile{DSN: "x"}).Validate(); err == nil {
		t.Fatalf("expected path error")
	}
	if err := (ApplyFile{Path: "x"}).Validate(); err == nil {
		t.Fatalf("expected dsn error")
	}
}
