package exportxlsx

import (
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/goliatone/go-sqlexport/export"
)

// Options configures a spreadsheet source. Row indexes are zero based and
// EndRow is inclusive.
type Options struct {
	Path string
	// SheetName wins over SheetIndex; with neither the first sheet is read.
	SheetName  string
	SheetIndex int
	// HasHeader takes field names from row 0; otherwise fields are named
	// Column1..N after the width of row 0.
	HasHeader bool
	// StartRow is the first data row; 0 means 1 with a header and 0 without.
	StartRow int
	// EndRow is the last data row; 0 reads to the end.
	EndRow int
	// Columns keeps only the named header columns, in the order given.
	Columns       []string
	SkipEmptyRows bool
	// BatchSize groups rows into batches; 0 publishes one Row at a time.
	BatchSize int
}

// DefaultOptions returns options for a sheet with a header row.
func DefaultOptions(path string) Options {
	return Options{Path: path, HasHeader: true}
}

// Source streams rows from an .xlsx workbook.
type Source struct {
	Options Options
	Logger  export.Logger
}

// NewSource creates a spreadsheet source.
func NewSource(opts Options) *Source {
	return &Source{Options: opts, Logger: export.NopLogger{}}
}

// Produce reads the selected sheet and publishes its rows.
func (s *Source) Produce(ctx context.Context, out export.Publisher) error {
	if s == nil || strings.TrimSpace(s.Options.Path) == "" {
		return export.NewError(export.KindConfiguration, "xlsx path is required", nil)
	}
	opts := s.Options
	logger := s.Logger
	if logger == nil {
		logger = export.NopLogger{}
	}

	file, err := excelize.OpenFile(opts.Path)
	if err != nil {
		return export.NewError(export.KindIO, fmt.Sprintf("open workbook %s", opts.Path), err)
	}
	defer func() {
		_ = file.Close()
	}()

	sheet, err := resolveSheet(file, opts)
	if err != nil {
		return err
	}
	rows, err := file.Rows(sheet)
	if err != nil {
		return export.NewError(export.KindIO, fmt.Sprintf("read sheet %q", sheet), err)
	}
	defer func() {
		_ = rows.Close()
	}()

	start := opts.StartRow
	if start <= 0 {
		start = 0
		if opts.HasHeader {
			start = 1
		}
	}

	var (
		schema   export.Schema
		selected []int
		batch    []export.Row
	)
	for index := 0; rows.Next(); index++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if opts.EndRow > 0 && index > opts.EndRow {
			break
		}
		cells, err := rows.Columns()
		if err != nil {
			return export.NewError(export.KindIO, fmt.Sprintf("read row %d", index), err)
		}

		if index == 0 {
			header := headerNames(cells, opts.HasHeader)
			selected, schema, err = selectColumns(header, opts.Columns)
			if err != nil {
				return err
			}
			out.SetSchema(schema)
			logger.Debugf("sheet %s: %d columns", sheet, len(schema))
		}
		if index < start {
			continue
		}

		row := make(export.Row, len(selected))
		empty := true
		for i, col := range selected {
			if col < len(cells) {
				row[i] = cells[col]
				if strings.TrimSpace(cells[col]) != "" {
					empty = false
				}
			} else {
				row[i] = ""
			}
		}
		if opts.SkipEmptyRows && empty {
			continue
		}

		if opts.BatchSize <= 0 {
			if err := out.Publish(row); err != nil {
				return err
			}
			continue
		}
		batch = append(batch, row)
		if len(batch) >= opts.BatchSize {
			if err := out.Publish(export.Batch{Schema: schema, Rows: batch}); err != nil {
				return err
			}
			batch = nil
		}
	}
	if err := rows.Error(); err != nil {
		return export.NewError(export.KindIO, fmt.Sprintf("iterate sheet %q", sheet), err)
	}
	if len(batch) > 0 {
		return out.Publish(export.Batch{Schema: schema, Rows: batch})
	}
	return nil
}

func resolveSheet(file *excelize.File, opts Options) (string, error) {
	sheets := file.GetSheetList()
	if name := strings.TrimSpace(opts.SheetName); name != "" {
		for _, sheet := range sheets {
			if sheet == name {
				return sheet, nil
			}
		}
		return "", export.NewError(export.KindConfiguration, fmt.Sprintf("sheet %q not found", name), nil)
	}
	if opts.SheetIndex < 0 || opts.SheetIndex >= len(sheets) {
		return "", export.NewError(export.KindConfiguration,
			fmt.Sprintf("sheet index %d out of range (%d sheets)", opts.SheetIndex, len(sheets)), nil)
	}
	return sheets[opts.SheetIndex], nil
}

func headerNames(cells []string, hasHeader bool) []string {
	names := make([]string, len(cells))
	for i, cell := range cells {
		name := strings.TrimSpace(cell)
		if !hasHeader || name == "" {
			name = fmt.Sprintf("Column%d", i+1)
		}
		names[i] = name
	}
	return names
}

// selectColumns maps the requested names to header positions, in request
// order. Unknown names are ignored; an empty selection keeps every column.
func selectColumns(header []string, want []string) ([]int, export.Schema, error) {
	if len(want) == 0 {
		idx := make([]int, len(header))
		for i := range header {
			idx[i] = i
		}
		return idx, export.Schema(header), nil
	}
	position := make(map[string]int, len(header))
	for i, name := range header {
		if _, seen := position[name]; !seen {
			position[name] = i
		}
	}
	var (
		idx    []int
		schema export.Schema
	)
	for _, name := range want {
		name = strings.TrimSpace(name)
		i, ok := position[name]
		if !ok {
			continue
		}
		idx = append(idx, i)
		schema = append(schema, name)
	}
	if len(idx) == 0 {
		return nil, nil, export.NewError(export.KindConfiguration,
			fmt.Sprintf("none of the columns %v found in header", want), nil)
	}
	return idx, schema, nil
}
