package export

import "strings"

// DialectName identifies a target SQL engine.
type DialectName string

const (
	DialectMySQL      DialectName = "mysql"
	DialectPostgreSQL DialectName = "postgresql"
)

// Dialect holds the quoting, typing and escaping policy of one SQL engine.
type Dialect struct {
	Name DialectName
	// OpenQuote and CloseQuote delimit identifiers. An embedded CloseQuote is doubled.
	OpenQuote  string
	CloseQuote string
	// TextType is the column type used for every field in generated DDL.
	TextType string
	// BackslashEscapes reports whether a backslash escapes the next character
	// inside string literals.
	BackslashEscapes bool
	// Escape renders a value for use between single quotes.
	Escape func(string) string
}

// MySQL returns the MySQL dialect: backtick identifiers, VARCHAR(255) columns,
// backslash escaping.
func MySQL() Dialect {
	return Dialect{
		Name:             DialectMySQL,
		OpenQuote:        "`",
		CloseQuote:       "`",
		TextType:         "VARCHAR(255)",
		BackslashEscapes: true,
		Escape:           escapeMySQL,
	}
}

// PostgreSQL returns the PostgreSQL dialect: double-quoted identifiers, TEXT
// columns, doubled single quotes.
func PostgreSQL() Dialect {
	return Dialect{
		Name:       DialectPostgreSQL,
		OpenQuote:  `"`,
		CloseQuote: `"`,
		TextType:   "TEXT",
		Escape:     escapePostgreSQL,
	}
}

// QuoteIdentifier quotes a table or field name.
func (d Dialect) QuoteIdentifier(name string) string {
	if d.CloseQuote != "" {
		name = strings.ReplaceAll(name, d.CloseQuote, d.CloseQuote+d.CloseQuote)
	}
	return d.OpenQuote + name + d.CloseQuote
}

// QuoteLiteral renders an escaped, single-quoted string literal.
func (d Dialect) QuoteLiteral(value string) string {
	escape := d.Escape
	if escape == nil {
		escape = escapePostgreSQL
	}
	return "'" + escape(value) + "'"
}

var mysqlEscaper = strings.NewReplacer(
	`\`, `\\`,
	`'`, `\'`,
	`"`, `\"`,
	"\n", `\n`,
	"\r", `\r`,
)

func escapeMySQL(value string) string {
	return mysqlEscaper.Replace(value)
}

var postgresEscaper = strings.NewReplacer(
	`\`, `\\`,
	`'`, `''`,
)

func escapePostgreSQL(value string) string {
	return postgresEscaper.Replace(value)
}
