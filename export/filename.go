package export

import (
	"strings"
	"time"

	"github.com/ncruces/go-strftime"
)

// DatePlaceholder is replaced by the formatted export date in filenames.
const DatePlaceholder = "${date}"

// DefaultDateFormat is a compact numeric date.
const DefaultDateFormat = "yyyyMMdd"

// ResolveFilename substitutes the date placeholder with now formatted per
// dateFormat. Templates without the placeholder are returned unchanged.
//
// dateFormat accepts strftime directives ("%Y%m%d"), a Go reference layout
// ("20060102") or a pattern in the yyyy/MM/dd/HH/mm/ss style.
func ResolveFilename(template string, now time.Time, dateFormat string) string {
	if !strings.Contains(template, DatePlaceholder) {
		return template
	}
	return strings.ReplaceAll(template, DatePlaceholder, FormatDate(now, dateFormat))
}

// FormatDate formats t with one of the accepted date format styles.
func FormatDate(t time.Time, dateFormat string) string {
	if dateFormat == "" {
		dateFormat = DefaultDateFormat
	}
	switch {
	case strings.Contains(dateFormat, "%"):
		return strftime.Format(dateFormat, t)
	case strings.Contains(dateFormat, "2006"):
		return t.Format(dateFormat)
	default:
		return formatPattern(t, dateFormat)
	}
}

// patternTokens maps date pattern letters to Go layout fragments, longest first.
var patternTokens = []struct {
	token  string
	layout string
}{
	{"yyyy", "2006"},
	{"yy", "06"},
	{"MMMM", "January"},
	{"MMM", "Jan"},
	{"MM", "01"},
	{"M", "1"},
	{"dd", "02"},
	{"d", "2"},
	{"HH", "15"},
	{"hh", "03"},
	{"h", "3"},
	{"mm", "04"},
	{"ss", "05"},
	{"SSS", ".000"},
	{"a", "PM"},
	{"EEEE", "Monday"},
	{"EEE", "Mon"},
}

// formatPattern formats t with a yyyyMMdd style pattern. Each token is
// formatted on its own so literal text never reaches the Go layout parser.
// Text between single quotes is copied literally; '' yields one quote.
func formatPattern(t time.Time, pattern string) string {
	var b strings.Builder
	for i := 0; i < len(pattern); {
		if pattern[i] == '\'' {
			end := strings.IndexByte(pattern[i+1:], '\'')
			if end == 0 {
				b.WriteByte('\'')
				i += 2
				continue
			}
			if end < 0 {
				b.WriteString(pattern[i+1:])
				break
			}
			b.WriteString(pattern[i+1 : i+1+end])
			i += end + 2
			continue
		}

		matched := false
		for _, tok := range patternTokens {
			if strings.HasPrefix(pattern[i:], tok.token) {
				b.WriteString(strings.TrimPrefix(t.Format(tok.layout), "."))
				i += len(tok.token)
				matched = true
				break
			}
		}
		if !matched {
			b.WriteByte(pattern[i])
			i++
		}
	}
	return b.String()
}
