package exportcsv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/goliatone/go-sqlexport/export"
)

// Options configures a CSV source.
type Options struct {
	Path      string
	Delimiter rune
	// HasHeader takes field names from the first record; otherwise fields
	// are named Column1..N.
	HasHeader bool
	// Encoding names the input charset ("utf-8", "latin1", "windows-1252", ...).
	Encoding string
	// NormalizeHeaders lowercases header names and strips accents.
	NormalizeHeaders bool
	// BatchSize groups rows into batches; 0 publishes one Row at a time.
	BatchSize int
}

// Source reads a delimited text file.
type Source struct {
	Options Options
	Logger  export.Logger
}

// NewSource creates a CSV source.
func NewSource(opts Options) *Source {
	return &Source{Options: opts, Logger: export.NopLogger{}}
}

// Produce reads the file and publishes its rows.
func (s *Source) Produce(ctx context.Context, out export.Publisher) error {
	if s == nil || strings.TrimSpace(s.Options.Path) == "" {
		return export.NewError(export.KindConfiguration, "csv path is required", nil)
	}
	file, err := os.Open(s.Options.Path)
	if err != nil {
		return export.NewError(export.KindIO, fmt.Sprintf("open %s", s.Options.Path), err)
	}
	defer file.Close()
	return s.read(ctx, file, out)
}

func (s *Source) read(ctx context.Context, r io.Reader, out export.Publisher) error {
	logger := s.Logger
	if logger == nil {
		logger = export.NopLogger{}
	}
	decoded, err := decodeReader(r, s.Options.Encoding)
	if err != nil {
		return err
	}

	reader := csv.NewReader(decoded)
	if s.Options.Delimiter != 0 {
		reader.Comma = s.Options.Delimiter
	}
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	var (
		schema export.Schema
		batch  []export.Row
		line   int
	)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			var parseErr *csv.ParseError
			if !errors.As(err, &parseErr) {
				return export.NewError(export.KindIO, fmt.Sprintf("read csv record %d", line), err)
			}
			logger.Warnf("csv record %d skipped: %v", line, err)
			continue
		}

		if schema == nil {
			if s.Options.HasHeader {
				schema = headerSchema(rec, s.Options.NormalizeHeaders)
				out.SetSchema(schema)
				continue
			}
			schema = generatedSchema(len(rec))
			out.SetSchema(schema)
		}

		row := fitRowToWidth(rec, len(schema))
		if s.Options.BatchSize <= 0 {
			if err := out.Publish(row); err != nil {
				return err
			}
			continue
		}
		batch = append(batch, row)
		if len(batch) >= s.Options.BatchSize {
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

func decodeReader(r io.Reader, name string) (io.Reader, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.EqualFold(name, "utf-8") || strings.EqualFold(name, "utf8") {
		return r, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, export.NewError(export.KindConfiguration, fmt.Sprintf("unknown encoding %q", name), err)
	}
	return transform.NewReader(r, enc.NewDecoder()), nil
}

func headerSchema(rec []string, normalize bool) export.Schema {
	schema := make(export.Schema, len(rec))
	for i, name := range rec {
		if i == 0 {
			name = strings.TrimPrefix(name, "\uFEFF")
		}
		name = strings.TrimSpace(name)
		if normalize {
			name = normalizeFieldName(name)
		}
		if name == "" {
			name = fmt.Sprintf("Column%d", i+1)
		}
		schema[i] = name
	}
	return schema
}

func generatedSchema(n int) export.Schema {
	schema := make(export.Schema, n)
	for i := range schema {
		schema[i] = fmt.Sprintf("Column%d", i+1)
	}
	return schema
}

// fitRowToWidth truncates or pads a record to exactly n fields. Missing
// fields become NULL.
func fitRowToWidth(rec []string, n int) export.Row {
	row := make(export.Row, n)
	for i := 0; i < n; i++ {
		if i < len(rec) {
			row[i] = rec[i]
		}
	}
	return row
}

// normalizeFieldName lowercases, strips accents and keeps [a-z0-9_].
func normalizeFieldName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	ascii, _, _ := transform.String(t, s)

	var b strings.Builder
	prevUnderscore := false
	for _, r := range ascii {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			prevUnderscore = false
		case r == '_' || r == ' ' || r == '-' || r == '.':
			if !prevUnderscore {
				b.WriteRune('_')
				prevUnderscore = true
			}
		}
	}
	return strings.Trim(b.String(), "_")
}
