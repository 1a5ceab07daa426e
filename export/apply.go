package export

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"
)

// SplitStatements splits a generated SQL script into statements. Semicolons
// inside quoted literals, quoted identifiers and comments do not terminate a
// statement. Backslash escapes are honored when the dialect uses them.
func SplitStatements(script string, d Dialect) []string {
	var (
		out   []string
		b     strings.Builder
		quote byte
	)
	flush := func() {
		stmt := strings.TrimSpace(b.String())
		b.Reset()
		if stmt != "" {
			out = append(out, stmt)
		}
	}

	for i := 0; i < len(script); i++ {
		ch := script[i]

		if quote != 0 {
			b.WriteByte(ch)
			switch {
			case ch == '\\' && quote == '\'' && d.BackslashEscapes && i+1 < len(script):
				i++
				b.WriteByte(script[i])
			case ch == quote && i+1 < len(script) && script[i+1] == quote:
				i++
				b.WriteByte(script[i])
			case ch == quote:
				quote = 0
			}
			continue
		}

		switch {
		case ch == '\'' || ch == '"' || ch == '`':
			quote = ch
			b.WriteByte(ch)
		case ch == '-' && strings.HasPrefix(script[i:], "--"):
			end := strings.IndexByte(script[i:], '\n')
			if end < 0 {
				i = len(script)
			} else {
				i += end - 1
			}
		case ch == '/' && strings.HasPrefix(script[i:], "/*"):
			end := strings.Index(script[i+2:], "*/")
			if end < 0 {
				i = len(script)
			} else {
				i += end + 3
			}
		case ch == ';':
			b.WriteByte(ch)
			flush()
		default:
			b.WriteByte(ch)
		}
	}
	flush()
	return out
}

// Apply executes every statement read from r inside one transaction and
// returns the number of statements executed.
func Apply(ctx context.Context, db *sql.DB, r io.Reader, d Dialect) (int, error) {
	if db == nil {
		return 0, NewError(KindConfiguration, "database is required", nil)
	}
	if r == nil {
		return 0, NewError(KindConfiguration, "script reader is required", nil)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	raw, err := io.ReadAll(r)
	if err != nil {
		return 0, NewError(KindIO, "read script", err)
	}
	statements := SplitStatements(string(raw), d)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, NewError(KindIO, "begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for i, stmt := range statements {
		if err := ctx.Err(); err != nil {
			return i, NewError(KindCanceled, "apply canceled", err)
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return i, NewError(KindIO, fmt.Sprintf("statement %d failed", i+1), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, NewError(KindIO, "commit transaction", err)
	}
	return len(statements), nil
}
