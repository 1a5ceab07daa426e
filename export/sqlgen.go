package export

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"
)

// SQLGenerator renders DDL and DML statements for one dialect.
type SQLGenerator struct {
	Dialect Dialect
}

// NewSQLGenerator creates a generator for the dialect.
func NewSQLGenerator(d Dialect) SQLGenerator {
	return SQLGenerator{Dialect: d}
}

// CreateTable renders a CREATE TABLE statement with one text column per field.
func (g SQLGenerator) CreateTable(schema Schema, table string, ifNotExists bool) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	if ifNotExists {
		b.WriteString("IF NOT EXISTS ")
	}
	b.WriteString(g.Dialect.QuoteIdentifier(table))
	b.WriteString(" (\n")
	for i, field := range schema {
		b.WriteString("  ")
		b.WriteString(g.Dialect.QuoteIdentifier(field))
		b.WriteByte(' ')
		b.WriteString(g.Dialect.TextType)
		if i < len(schema)-1 {
			b.WriteByte(',')
		}
		b.WriteByte('\n')
	}
	b.WriteString(");")
	return b.String()
}

// Insert renders a single-row INSERT statement. Every non-nil value is written
// as an escaped string literal.
func (g SQLGenerator) Insert(row Row, schema Schema, table string) (string, error) {
	if len(row) != len(schema) {
		return "", NewError(KindUnrecognizedPayload,
			fmt.Sprintf("row has %d values, schema has %d fields", len(row), len(schema)), nil)
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(g.Dialect.QuoteIdentifier(table))
	b.WriteString(" (")
	for i, field := range schema {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(g.Dialect.QuoteIdentifier(field))
	}
	b.WriteString(") VALUES (")
	for i, value := range row {
		if i > 0 {
			b.WriteString(", ")
		}
		text, ok, err := literalText(value)
		if err != nil {
			return "", NewError(KindUnrecognizedPayload, fmt.Sprintf("field %q", schema[i]), err)
		}
		if !ok {
			b.WriteString("NULL")
			continue
		}
		b.WriteString(g.Dialect.QuoteLiteral(text))
	}
	b.WriteString(");")
	return b.String(), nil
}

// literalText returns the text form of a value, or false when it is NULL.
func literalText(value any) (string, bool, error) {
	if valuer, ok := value.(driver.Valuer); ok {
		v, err := valuer.Value()
		if err != nil {
			return "", false, err
		}
		value = v
	}

	switch v := value.(type) {
	case nil:
		return "", false, nil
	case string:
		return v, true, nil
	case []byte:
		if v == nil {
			return "", false, nil
		}
		return string(v), true, nil
	case time.Time:
		return v.Format("2006-01-02 15:04:05"), true, nil
	case *string:
		if v == nil {
			return "", false, nil
		}
		return *v, true, nil
	default:
		return stringify(v), true, nil
	}
}
