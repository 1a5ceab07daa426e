package command

import (
	"strings"

	"github.com/goliatone/go-errors"

	"github.com/goliatone/go-sqlexport/export"
	"github.com/goliatone/go-sqlexport/sources"
)

// RunExport runs one export from a declarative source.
type RunExport struct {
	Config map[string]any
	Source sources.Spec
	Result *export.ExportResult
}

func (RunExport) Type() string { return "sqlexport:run" }

func (msg RunExport) Validate() error {
	if len(msg.Config) == 0 {
		return errors.New("export config is required", errors.CategoryValidation).
			WithTextCode("CONFIG_REQUIRED")
	}
	if strings.TrimSpace(msg.Source.Type) == "" {
		return errors.New("source type is required", errors.CategoryValidation).
			WithTextCode("SOURCE_REQUIRED")
	}
	return nil
}

// ApplyFile executes a generated SQL file against a database.
type ApplyFile struct {
	Path    string
	Dialect export.DialectName
	Driver  string
	DSN     string
	Result  *int
}

func (ApplyFile) Type() string { return "sqlexport:apply" }

func (msg ApplyFile) Validate() error {
	if strings.TrimSpace(msg.Path) == "" {
		return errors.New("file path is required", errors.CategoryValidation).
			WithTextCode("PATH_REQUIRED")
	}
	if strings.TrimSpace(msg.DSN) == "" {
		return errors.New("dsn is required", errors.CategoryValidation).
			WithTextCode("DSN_REQUIRED")
	}
	return nil
}
