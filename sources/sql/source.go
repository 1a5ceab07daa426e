package exportsql

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/goliatone/go-sqlexport/export"
)

// DefaultBatchSize is the number of rows published per batch.
const DefaultBatchSize = 500

// Source runs a query and publishes its rows. Either QueryName (resolved
// through Registry) or Query must be set.
type Source struct {
	DB        *sql.DB
	Registry  *Registry
	QueryName string
	Query     string
	Args      []any
	BatchSize int
}

// NewSource creates a named query source.
func NewSource(db *sql.DB, reg *Registry, name string, args ...any) *Source {
	return &Source{DB: db, Registry: reg, QueryName: name, Args: args}
}

// Produce executes the query, publishes the column names as the schema and
// streams the rows in batches.
func (s *Source) Produce(ctx context.Context, out export.Publisher) error {
	if s == nil || s.DB == nil {
		return export.NewError(export.KindConfiguration, "database is required", nil)
	}
	if out == nil {
		return export.NewError(export.KindConfiguration, "publisher is required", nil)
	}
	query, err := s.resolve()
	if err != nil {
		return err
	}

	rows, err := s.DB.QueryContext(ctx, query, s.Args...)
	if err != nil {
		return export.NewError(export.KindIO, "query failed", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return export.NewError(export.KindIO, "read columns", err)
	}
	schema := export.Schema(cols)
	out.SetSchema(schema)

	size := s.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}
	batch := make([]export.Row, 0, size)
	publish := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := out.Publish(export.Batch{Schema: schema, Rows: batch}); err != nil {
			return err
		}
		batch = make([]export.Row, 0, size)
		return nil
	}

	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return export.NewError(export.KindIO, "scan row", err)
		}
		row := make(export.Row, len(values))
		for i, v := range values {
			row[i] = normalizeValue(v)
		}
		batch = append(batch, row)
		if len(batch) >= size {
			if err := publish(); err != nil {
				return err
			}
		}
	}
	if err := rows.Err(); err != nil {
		return export.NewError(export.KindIO, "iterate rows", err)
	}
	return publish()
}

func (s *Source) resolve() (string, error) {
	if s.QueryName == "" {
		if s.Query == "" {
			return "", export.NewError(export.KindConfiguration, "query or query name is required", nil)
		}
		return s.Query, nil
	}
	def, err := s.Registry.Lookup(s.QueryName)
	if err != nil {
		return "", err
	}
	if def.Validate != nil {
		if err := def.Validate(s.Args); err != nil {
			return "", export.NewError(export.KindConfiguration, fmt.Sprintf("query %q arguments", def.Name), err)
		}
	}
	return def.Query, nil
}

func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
