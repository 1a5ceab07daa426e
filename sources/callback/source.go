package exportcallback

import (
	"context"
	"errors"
	"io"

	"github.com/goliatone/go-sqlexport/export"
)

// RowIterator yields rows until io.EOF.
type RowIterator interface {
	Next(ctx context.Context) (export.Row, error)
	Close() error
}

// OpenFunc returns the schema and an iterator for one run.
type OpenFunc func(ctx context.Context) (export.Schema, RowIterator, error)

// Source wraps a callback as an export.Source.
type Source struct {
	fn OpenFunc
	// BatchSize groups rows into batches; 0 publishes one Row at a time.
	BatchSize int
}

// NewSource creates a callback-based source.
func NewSource(fn OpenFunc) *Source {
	return &Source{fn: fn}
}

// FromRows creates a source over a fixed set of rows.
func FromRows(schema export.Schema, rows ...export.Row) *Source {
	return NewSource(func(ctx context.Context) (export.Schema, RowIterator, error) {
		_ = ctx
		index := 0
		return schema, &FuncIterator{NextFunc: func(ctx context.Context) (export.Row, error) {
			_ = ctx
			if index >= len(rows) {
				return nil, io.EOF
			}
			row := rows[index]
			index++
			return row, nil
		}}, nil
	})
}

// Produce opens the iterator and publishes every row.
func (s *Source) Produce(ctx context.Context, out export.Publisher) error {
	if s == nil || s.fn == nil {
		return export.NewError(export.KindConfiguration, "callback source requires a function", nil)
	}
	if out == nil {
		return export.NewError(export.KindConfiguration, "publisher is required", nil)
	}
	schema, it, err := s.fn(ctx)
	if err != nil {
		return err
	}
	if it == nil {
		return export.NewError(export.KindConfiguration, "callback returned no iterator", nil)
	}
	defer func() {
		_ = it.Close()
	}()
	out.SetSchema(schema)

	var batch []export.Row
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		row, err := it.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if s.BatchSize <= 0 {
			if err := out.Publish(row); err != nil {
				return err
			}
			continue
		}
		batch = append(batch, row)
		if len(batch) >= s.BatchSize {
			if err := out.Publish(export.Batch{Schema: schema, Rows: batch}); err != nil {
				return err
			}
			batch = nil
		}
	}
	if len(batch) > 0 {
		return out.Publish(export.Batch{Schema: schema, Rows: batch})
	}
	return nil
}

// IteratorFunc yields a row or io.EOF.
type IteratorFunc func(ctx context.Context) (export.Row, error)

// FuncIterator wraps a function into a RowIterator.
type FuncIterator struct {
	NextFunc  IteratorFunc
	CloseFunc func() error
}

func (it *FuncIterator) Next(ctx context.Context) (export.Row, error) {
	if it == nil || it.NextFunc == nil {
		return nil, export.NewError(export.KindConfiguration, "iterator requires NextFunc", nil)
	}
	return it.NextFunc(ctx)
}

func (it *FuncIterator) Close() error {
	if it == nil || it.CloseFunc == nil {
		return nil
	}
	return it.CloseFunc()
}
