package export

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFilePreparer_CreatesParentDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "deeper", "out.sql")

	file, err := FilePreparer{}.Prepare(path, false, true)
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	_ = file.Close()

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected file to exist: %v", err)
	}
}

func TestFilePreparer_MissingParentDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "missing", "out.sql")

	_, err := FilePreparer{}.Prepare(path, false, false)
	if !IsKind(err, KindMissingParentDir) {
		t.Fatalf("expected missing_parent_directory, got %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(dir, "missing")); !os.IsNotExist(statErr) {
		t.Fatalf("expected directory not to be created")
	}
}

func TestFilePreparer_ExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.sql")
	if err := os.WriteFile(path, []byte("old content"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	_, err := FilePreparer{}.Prepare(path, false, true)
	if !IsKind(err, KindFileExists) {
		t.Fatalf("expected file_exists, got %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "old content" {
		t.Fatalf("expected existing file untouched, got %q", string(data))
	}

	file, err := FilePreparer{}.Prepare(path, true, true)
	if err != nil {
		t.Fatalf("prepare with overwrite: %v", err)
	}
	_ = file.Close()
	data, _ = os.ReadFile(path)
	if len(data) != 0 {
		t.Fatalf("expected truncated file, got %q", string(data))
	}
}

func TestFilePreparer_ParentIsFile(t *testing.T) {
	dir := t.TempDir()
	parent := filepath.Join(dir, "not-a-dir")
	if err := os.WriteFile(parent, nil, 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	_, err := FilePreparer{}.Prepare(filepath.Join(parent, "out.sql"), false, true)
	if !IsKind(err, KindIO) {
		t.Fatalf("expected io error, got %v", err)
	}
}
