package sources

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/goliatone/go-sqlexport/export"
	exportconfigfile "github.com/goliatone/go-sqlexport/sources/configfile"
	exportcsv "github.com/goliatone/go-sqlexport/sources/csv"
	exportsql "github.com/goliatone/go-sqlexport/sources/sql"
	exportxlsx "github.com/goliatone/go-sqlexport/sources/xlsx"
)

// Source types accepted by Build.
const (
	TypeCSV        = "csv"
	TypeXLSX       = "xlsx"
	TypeConfigFile = "configfile"
	TypeSQL        = "sql"
)

// Spec is the declarative form of a producer, as found in config files and
// HTTP requests.
type Spec struct {
	Type string `yaml:"type" json:"type"`

	// file based sources
	Path      string `yaml:"path,omitempty" json:"path,omitempty"`
	HasHeader *bool  `yaml:"has_header,omitempty" json:"has_header,omitempty"`
	BatchSize int    `yaml:"batch_size,omitempty" json:"batch_size,omitempty"`

	// csv
	Delimiter        string `yaml:"delimiter,omitempty" json:"delimiter,omitempty"`
	Encoding         string `yaml:"encoding,omitempty" json:"encoding,omitempty"`
	NormalizeHeaders bool   `yaml:"normalize_headers,omitempty" json:"normalize_headers,omitempty"`

	// xlsx
	SheetName     string   `yaml:"sheet_name,omitempty" json:"sheet_name,omitempty"`
	SheetIndex    int      `yaml:"sheet_index,omitempty" json:"sheet_index,omitempty"`
	StartRow      int      `yaml:"start_row,omitempty" json:"start_row,omitempty"`
	EndRow        int      `yaml:"end_row,omitempty" json:"end_row,omitempty"`
	Columns       []string `yaml:"columns,omitempty" json:"columns,omitempty"`
	SkipEmptyRows bool     `yaml:"skip_empty_rows,omitempty" json:"skip_empty_rows,omitempty"`

	// sql
	Driver    string `yaml:"driver,omitempty" json:"driver,omitempty"`
	DSN       string `yaml:"dsn,omitempty" json:"dsn,omitempty"`
	Query     string `yaml:"query,omitempty" json:"query,omitempty"`
	QueryName string `yaml:"query_name,omitempty" json:"query_name,omitempty"`
	Args      []any  `yaml:"args,omitempty" json:"args,omitempty"`
}

// Resources are shared dependencies a built source may use.
type Resources struct {
	// DB serves sql specs that carry no DSN of their own.
	DB      *sql.DB
	Queries *exportsql.Registry
	Logger  export.Logger
}

// Build turns a spec into a runnable source.
func Build(ctx context.Context, spec Spec, res Resources) (export.Source, error) {
	logger := res.Logger
	if logger == nil {
		logger = export.NopLogger{}
	}
	hasHeader := true
	if spec.HasHeader != nil {
		hasHeader = *spec.HasHeader
	}

	switch strings.ToLower(strings.TrimSpace(spec.Type)) {
	case TypeCSV:
		delim, err := delimiter(spec.Delimiter)
		if err != nil {
			return nil, err
		}
		src := exportcsv.NewSource(exportcsv.Options{
			Path:             spec.Path,
			Delimiter:        delim,
			HasHeader:        hasHeader,
			Encoding:         spec.Encoding,
			NormalizeHeaders: spec.NormalizeHeaders,
			BatchSize:        spec.BatchSize,
		})
		src.Logger = logger
		return src, nil
	case TypeXLSX:
		src := exportxlsx.NewSource(exportxlsx.Options{
			Path:          spec.Path,
			SheetName:     spec.SheetName,
			SheetIndex:    spec.SheetIndex,
			HasHeader:     hasHeader,
			StartRow:      spec.StartRow,
			EndRow:        spec.EndRow,
			Columns:       spec.Columns,
			SkipEmptyRows: spec.SkipEmptyRows,
			BatchSize:     spec.BatchSize,
		})
		src.Logger = logger
		return src, nil
	case TypeConfigFile, "properties", "ini":
		src := exportconfigfile.NewSource(spec.Path)
		src.Logger = logger
		return src, nil
	case TypeSQL:
		return buildSQL(ctx, spec, res)
	case "":
		return nil, export.NewError(export.KindConfiguration, "source type is required", nil)
	default:
		return nil, export.NewError(export.KindConfiguration, fmt.Sprintf("unsupported source type %q", spec.Type), nil)
	}
}

func buildSQL(ctx context.Context, spec Spec, res Resources) (export.Source, error) {
	src := &exportsql.Source{
		DB:        res.DB,
		Registry:  res.Queries,
		QueryName: spec.QueryName,
		Query:     spec.Query,
		Args:      spec.Args,
		BatchSize: spec.BatchSize,
	}
	if strings.TrimSpace(spec.DSN) == "" {
		if src.DB == nil {
			return nil, export.NewError(export.KindConfiguration, "sql source needs a dsn", nil)
		}
		return src, nil
	}

	db, err := exportsql.Open(ctx, spec.Driver, spec.DSN)
	if err != nil {
		return nil, err
	}
	src.DB = db
	return &closingSource{Source: src, close: db.Close}, nil
}

// closingSource releases a connection the spec opened once production ends.
type closingSource struct {
	export.Source
	close func() error
}

func (s *closingSource) Produce(ctx context.Context, out export.Publisher) error {
	err := s.Source.Produce(ctx, out)
	if cerr := s.close(); err == nil && cerr != nil {
		return export.NewError(export.KindIO, "close source database", cerr)
	}
	return err
}

func delimiter(value string) (rune, error) {
	switch value {
	case "":
		return ',', nil
	case `\t`, "tab":
		return '\t', nil
	}
	r, size := utf8.DecodeRuneInString(value)
	if r == utf8.RuneError || size != len(value) {
		return 0, export.NewError(export.KindConfiguration, fmt.Sprintf("delimiter %q must be a single character", value), nil)
	}
	return r, nil
}
