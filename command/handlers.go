package command

import (
	"context"
	"database/sql"
	"os"

	gcmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-errors"

	"github.com/goliatone/go-sqlexport/export"
	"github.com/goliatone/go-sqlexport/sources"
	exportsql "github.com/goliatone/go-sqlexport/sources/sql"
)

// RunExportHandler runs exports through a Runner.
type RunExportHandler struct {
	Runner    *export.Runner
	Resources sources.Resources
	// Progress, when set, observes every written payload.
	Progress func(export.ProgressDelta)
}

func NewRunExportHandler(runner *export.Runner, res sources.Resources) *RunExportHandler {
	return &RunExportHandler{Runner: runner, Resources: res}
}

func (h *RunExportHandler) Execute(ctx context.Context, msg RunExport) error {
	if h == nil || h.Runner == nil {
		return errors.New("export runner is required", errors.CategoryInternal).
			WithTextCode("RUNNER_REQUIRED")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	src, err := sources.Build(ctx, msg.Source, h.Resources)
	if err != nil {
		return export.AsGoError(err)
	}
	result, err := h.Runner.Run(ctx, export.RunRequest{
		Config:   msg.Config,
		Source:   src,
		Progress: h.Progress,
	})
	if err != nil {
		return export.AsGoError(err)
	}
	if msg.Result != nil {
		*msg.Result = result
	}
	if res := gcmd.ResultFromContext[export.ExportResult](ctx); res != nil {
		res.Store(result)
	}
	return nil
}

// ApplyFileHandler executes generated files.
type ApplyFileHandler struct {
	Dialects *export.DialectRegistry
	Open     func(ctx context.Context, driver, dsn string) (*sql.DB, error)
}

func NewApplyFileHandler() *ApplyFileHandler {
	return &ApplyFileHandler{Dialects: export.DefaultDialects(), Open: exportsql.Open}
}

func (h *ApplyFileHandler) Execute(ctx context.Context, msg ApplyFile) error {
	if h == nil || h.Open == nil {
		return errors.New("database opener is required", errors.CategoryInternal).
			WithTextCode("OPENER_REQUIRED")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	dialects := h.Dialects
	if dialects == nil {
		dialects = export.DefaultDialects()
	}
	name := msg.Dialect
	if name == "" {
		name = export.DialectMySQL
	}
	dialect, err := dialects.Lookup(string(name))
	if err != nil {
		return export.AsGoError(err)
	}

	driver := msg.Driver
	if driver == "" {
		driver = string(dialect.Name)
	}
	db, err := h.Open(ctx, driver, msg.DSN)
	if err != nil {
		return export.AsGoError(err)
	}
	defer db.Close()

	file, err := os.Open(msg.Path)
	if err != nil {
		return errors.Wrap(err, errors.CategoryExternal, "open sql file failed").
			WithTextCode("FILE_OPEN")
	}
	defer file.Close()

	count, err := export.Apply(ctx, db, file, dialect)
	if err != nil {
		return export.AsGoError(err)
	}
	if msg.Result != nil {
		*msg.Result = count
	}
	if res := gcmd.ResultFromContext[int](ctx); res != nil {
		res.Store(count)
	}
	return nil
}
