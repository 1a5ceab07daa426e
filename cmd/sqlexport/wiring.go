package main

import (
	"context"
	"database/sql"
	"io"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/urfave/cli/v2"

	trackerbun "github.com/goliatone/go-sqlexport/adapters/tracker/bun"
	"github.com/goliatone/go-sqlexport/config"
	"github.com/goliatone/go-sqlexport/export"
	"github.com/goliatone/go-sqlexport/sources"
	exportsql "github.com/goliatone/go-sqlexport/sources/sql"
)

const memoryTrackerDSN = "file::memory:?cache=shared"

// env is the state shared by every subcommand.
type env struct {
	cfg    config.File
	logger *slogLogger
	stdout io.Writer
	stderr io.Writer
}

func loadEnv(c *cli.Context) (*env, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}
	if c.IsSet("log-format") {
		cfg.Log.Format = c.String("log-format")
	}
	logger, err := newLogger(cfg.Log.Level, cfg.Log.Format, c.App.ErrWriter)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, logger: logger, stdout: c.App.Writer, stderr: c.App.ErrWriter}, nil
}

// openTracker opens the bun run history. The returned close func is never nil.
func (e *env) openTracker(ctx context.Context) (*trackerbun.Tracker, func(), error) {
	if !e.cfg.Tracker.Enabled {
		return nil, func() {}, nil
	}
	dsn := strings.TrimSpace(e.cfg.Tracker.DSN)
	if dsn == "" {
		dsn = memoryTrackerDSN
	}
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, func() {}, export.NewError(export.KindIO, "open tracker database", err)
	}
	db := bun.NewDB(sqldb, sqlitedialect.New())
	tracker := trackerbun.NewTracker(db)
	if err := tracker.CreateSchema(ctx); err != nil {
		_ = db.Close()
		return nil, func() {}, err
	}
	return tracker, func() { _ = db.Close() }, nil
}

func (e *env) newRunner(tracker *trackerbun.Tracker, metrics export.MetricsHook) *export.Runner {
	runner := export.NewRunner()
	runner.Logger = e.logger
	runner.Metrics = metrics
	if tracker != nil {
		runner.Tracker = tracker
	}
	return runner
}

func (e *env) resources() (sources.Resources, error) {
	res := sources.Resources{Logger: e.logger}
	if len(e.cfg.Queries) > 0 {
		res.Queries = exportsql.NewRegistry()
		if err := res.Queries.LoadQueries(e.cfg.Queries); err != nil {
			return sources.Resources{}, err
		}
	}
	return res, nil
}

// exportRequest merges command flags over the config file export and
// source blocks.
func (e *env) exportRequest(c *cli.Context) (map[string]any, sources.Spec) {
	overrides := map[string]any{
		export.KeyFormat:     c.String("format"),
		export.KeyDialect:    c.String("dialect"),
		export.KeyFilename:   c.String("filename"),
		export.KeyTableName:  c.String("table"),
		export.KeyDateFormat: c.String("date-format"),
		export.KeySheetName:  c.String("output-sheet"),
	}
	if c.IsSet("create-table") {
		overrides[export.KeyCreateTable] = c.Bool("create-table")
	}
	if c.IsSet("overwrite") {
		overrides[export.KeyOverwrite] = c.Bool("overwrite")
	}
	if c.IsSet("append") {
		overrides[export.KeyAppend] = c.Bool("append")
	}
	if fields := c.StringSlice("field"); len(fields) > 0 {
		overrides[export.KeyFields] = fields
	}

	spec := e.cfg.Source
	setString(c, "source", &spec.Type)
	setString(c, "input", &spec.Path)
	setString(c, "delimiter", &spec.Delimiter)
	setString(c, "encoding", &spec.Encoding)
	setString(c, "sheet", &spec.SheetName)
	setString(c, "driver", &spec.Driver)
	setString(c, "dsn", &spec.DSN)
	setString(c, "query", &spec.Query)
	if spec.Type == "" && spec.Query != "" {
		spec.Type = sources.TypeSQL
	}
	return e.cfg.ExportConfig(overrides), spec
}

func setString(c *cli.Context, flag string, dst *string) {
	if c.IsSet(flag) {
		*dst = c.String(flag)
	}
}
