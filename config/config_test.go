package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/goliatone/go-sqlexport/export"
)

func TestLoad_OverridesDefaults(t *testing.T) {
	t.Setenv("SQLEXPORT_TEST_DIR", "/data/out")
	path := filepath.Join(t.TempDir(), "sqlexport.yaml")
	doc := `log:
  level: debug
  format: json
export:
  dbtype: postgresql
  filename: ${SQLEXPORT_TEST_DIR}/users_${date}.sql
  table_name: users
  create_table: true
source:
  type: csv
  path: users.csv
  delimiter: ";"
tracker:
  dsn: /var/lib/sqlexport/runs.db
schedule:
  expression: "*/5 * * * *"
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Fatalf("unexpected log config %+v", cfg.Log)
	}
	if cfg.Export["filename"] != "/data/out/users_${date}.sql" {
		t.Fatalf("unexpected filename %v", cfg.Export["filename"])
	}
	if cfg.Export["create_table"] != true {
		t.Fatalf("expected bool create_table, got %#v", cfg.Export["create_table"])
	}
	if cfg.Source.Type != "csv" || cfg.Source.Delimiter != ";" {
		t.Fatalf("unexpected source %+v", cfg.Source)
	}
	if !cfg.Tracker.Enabled || cfg.Tracker.DSN != "/var/lib/sqlexport/runs.db" {
		t.Fatalf("unexpected tracker %+v", cfg.Tracker)
	}
	if cfg.Server.Address != ":8080" || cfg.Server.OutputRoot != "exports" {
		t.Fatalf("expected default server settings, got %+v", cfg.Server)
	}
	if cfg.Schedule.Expression != "*/5 * * * *" {
		t.Fatalf("unexpected schedule %q", cfg.Schedule.Expression)
	}

	parsed, err := export.ParseConfig(cfg.Export)
	if err != nil {
		t.Fatalf("export config: %v", err)
	}
	if parsed.Dialect != export.DialectPostgreSQL || !parsed.CreateTable {
		t.Fatalf("unexpected parsed config %+v", parsed)
	}
}

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Log.Level != "info" || cfg.Export == nil {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(filepath.Join(dir, "missing.yaml")); !export.IsKind(err, export.KindIO) {
		t.Fatalf("expected io error, got %v", err)
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("log: [unclosed"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(bad); !export.IsKind(err, export.KindConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}

	format := filepath.Join(dir, "format.yaml")
	if err := os.WriteFile(format, []byte("log:\n  format: xml\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(format); !export.IsKind(err, export.KindConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestFile_ExportConfigOverrides(t *testing.T) {
	cfg := Defaults()
	cfg.Export = map[string]any{"dbtype": "mysql", "table_name": "a"}

	out := cfg.ExportConfig(map[string]any{"table_name": "b", "filename": "", "overwrite": true})
	if out["table_name"] != "b" || out["dbtype"] != "mysql" || out["overwrite"] != true {
		t.Fatalf("unexpected merged config %v", out)
	}
	if _, ok := out["filename"]; ok {
		t.Fatalf("empty override should be ignored")
	}
	if cfg.Export["table_name"] != "a" {
		t.Fatalf("overrides must not mutate the file config")
	}
}
