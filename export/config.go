package export

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// OutputFormat names the kind of file an export writes.
type OutputFormat string

// Output formats.
const (
	FormatSQL  OutputFormat = "sql"
	FormatXLSX OutputFormat = "xlsx"
)

// DefaultSheetName is the sheet written when sheet_name is not set.
const DefaultSheetName = "Sheet1"

// Configuration keys.
const (
	KeyFormat             = "format"
	KeyDialect            = "dbtype"
	KeyFilename           = "filename"
	KeyDateFormat         = "date_format"
	KeyTableName          = "table_name"
	KeyCreateTable        = "create_table"
	KeyOverwrite          = "overwrite"
	KeyCreateParentDir    = "create_parent_dir"
	KeyFields             = "fields"
	KeyInitTimeout        = "init_timeout"
	KeySchemaPollInterval = "schema_poll_interval"
	KeySchemaPollAttempts = "schema_poll_attempts"
	KeyCompletionTimeout  = "completion_timeout"
	KeySheetName          = "sheet_name"
	KeyAppend             = "append"
	KeyHasHeader          = "has_header"
)

// ExportConfig is the validated, read-only configuration of one export.
type ExportConfig struct {
	Format          OutputFormat
	Dialect         DialectName
	Filename        string
	DateFormat      string
	TableName       string
	CreateTable     bool
	Overwrite       bool
	CreateParentDir bool
	// Fields is an explicit schema; when empty the schema comes from the channel.
	Fields Schema

	// SheetName, Append and HasHeader apply to xlsx output only. Append
	// extends an existing workbook instead of creating a new file.
	SheetName string
	Append    bool
	HasHeader bool

	InitTimeout        time.Duration
	SchemaPollInterval time.Duration
	SchemaPollAttempts int
	CompletionTimeout  time.Duration
}

// DefaultConfig returns a config with every optional value defaulted.
func DefaultConfig() ExportConfig {
	return ExportConfig{
		Format:             FormatSQL,
		Dialect:            DialectMySQL,
		DateFormat:         DefaultDateFormat,
		CreateParentDir:    true,
		SheetName:          DefaultSheetName,
		HasHeader:          true,
		InitTimeout:        DefaultInitTimeout,
		SchemaPollInterval: DefaultSchemaPollInterval,
		SchemaPollAttempts: DefaultSchemaPollAttempts,
		CompletionTimeout:  DefaultCompletionTimeout,
	}
}

// Validate checks required values and resolves the dialect. xlsx output
// has no dialect and returns the zero Dialect.
func (c ExportConfig) Validate(dialects *DialectRegistry) (Dialect, error) {
	if c.Format == FormatXLSX {
		return Dialect{}, c.validateCommon()
	}
	if c.Format != FormatSQL && c.Format != "" {
		return Dialect{}, NewError(KindConfiguration,
			fmt.Sprintf("unsupported output format %q, supported: [%s, %s]", c.Format, FormatSQL, FormatXLSX), nil)
	}
	if dialects == nil {
		dialects = DefaultDialects()
	}
	d, err := dialects.Lookup(string(c.Dialect))
	if err != nil {
		return Dialect{}, err
	}
	if err := c.validateCommon(); err != nil {
		return Dialect{}, err
	}
	if strings.TrimSpace(c.TableName) == "" {
		return Dialect{}, NewError(KindConfiguration, "table_name is required", nil)
	}
	return d, nil
}

func (c ExportConfig) validateCommon() error {
	if strings.TrimSpace(c.Filename) == "" {
		return NewError(KindConfiguration, "filename is required", nil)
	}
	if c.Format == FormatXLSX && strings.TrimSpace(c.SheetName) == "" {
		return NewError(KindConfiguration, "sheet_name is required", nil)
	}
	if c.SchemaPollAttempts < 0 {
		return NewError(KindConfiguration, "schema_poll_attempts must not be negative", nil)
	}
	if c.InitTimeout < 0 || c.SchemaPollInterval < 0 || c.CompletionTimeout < 0 {
		return NewError(KindConfiguration, "timeouts must not be negative", nil)
	}
	return nil
}

// Target names what the export writes into: the table for sql output and
// the sheet for xlsx.
func (c ExportConfig) Target() string {
	if c.Format == FormatXLSX {
		return c.SheetName
	}
	return c.TableName
}

// ParseConfig builds an ExportConfig from a raw key/value map.
func ParseConfig(raw map[string]any) (ExportConfig, error) {
	cfg := DefaultConfig()
	if raw == nil {
		return cfg, NewError(KindConfiguration, "configuration is required", nil)
	}

	var err error
	if v, ok := raw[KeyFormat]; ok {
		s, perr := stringValue(KeyFormat, v)
		if perr != nil {
			return cfg, perr
		}
		if s != "" {
			cfg.Format = OutputFormat(strings.ToLower(s))
		}
	}
	if v, ok := raw[KeyDialect]; ok {
		s, perr := stringValue(KeyDialect, v)
		if perr != nil {
			return cfg, perr
		}
		cfg.Dialect = normalizeDialectName(s)
	}
	if cfg.Filename, err = optionalString(raw, KeyFilename, ""); err != nil {
		return cfg, err
	}
	if cfg.TableName, err = optionalString(raw, KeyTableName, ""); err != nil {
		return cfg, err
	}
	if cfg.DateFormat, err = optionalString(raw, KeyDateFormat, cfg.DateFormat); err != nil {
		return cfg, err
	}
	if cfg.CreateTable, err = optionalBool(raw, KeyCreateTable, cfg.CreateTable); err != nil {
		return cfg, err
	}
	if cfg.Overwrite, err = optionalBool(raw, KeyOverwrite, cfg.Overwrite); err != nil {
		return cfg, err
	}
	if cfg.CreateParentDir, err = optionalBool(raw, KeyCreateParentDir, cfg.CreateParentDir); err != nil {
		return cfg, err
	}
	if cfg.Fields, err = optionalFields(raw, KeyFields); err != nil {
		return cfg, err
	}
	if cfg.SheetName, err = optionalString(raw, KeySheetName, cfg.SheetName); err != nil {
		return cfg, err
	}
	if cfg.Append, err = optionalBool(raw, KeyAppend, cfg.Append); err != nil {
		return cfg, err
	}
	if cfg.HasHeader, err = optionalBool(raw, KeyHasHeader, cfg.HasHeader); err != nil {
		return cfg, err
	}
	if cfg.InitTimeout, err = optionalDuration(raw, KeyInitTimeout, cfg.InitTimeout); err != nil {
		return cfg, err
	}
	if cfg.SchemaPollInterval, err = optionalDuration(raw, KeySchemaPollInterval, cfg.SchemaPollInterval); err != nil {
		return cfg, err
	}
	if cfg.SchemaPollAttempts, err = optionalInt(raw, KeySchemaPollAttempts, cfg.SchemaPollAttempts); err != nil {
		return cfg, err
	}
	if cfg.CompletionTimeout, err = optionalDuration(raw, KeyCompletionTimeout, cfg.CompletionTimeout); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func invalidKey(key string, v any) error {
	return NewError(KindConfiguration, fmt.Sprintf("invalid value for %s: %v (%T)", key, v, v), nil)
}

func stringValue(key string, v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", invalidKey(key, v)
	}
	return strings.TrimSpace(s), nil
}

func optionalString(raw map[string]any, key, def string) (string, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return def, nil
	}
	return stringValue(key, v)
}

func optionalBool(raw map[string]any, key string, def bool) (bool, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return def, nil
	}
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		if err != nil {
			return def, invalidKey(key, v)
		}
		return parsed, nil
	default:
		return def, invalidKey(key, v)
	}
}

func optionalInt(raw map[string]any, key string, def int) (int, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return def, invalidKey(key, v)
		}
		return int(n), nil
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return def, invalidKey(key, v)
		}
		return parsed, nil
	default:
		return def, invalidKey(key, v)
	}
}

// optionalDuration accepts a time.Duration, a Go duration string or a number
// of milliseconds.
func optionalDuration(raw map[string]any, key string, def time.Duration) (time.Duration, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return def, nil
	}
	switch d := v.(type) {
	case time.Duration:
		return d, nil
	case int:
		return time.Duration(d) * time.Millisecond, nil
	case int64:
		return time.Duration(d) * time.Millisecond, nil
	case float64:
		return time.Duration(d * float64(time.Millisecond)), nil
	case string:
		s := strings.TrimSpace(d)
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.Duration(ms) * time.Millisecond, nil
		}
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return def, invalidKey(key, v)
		}
		return parsed, nil
	default:
		return def, invalidKey(key, v)
	}
}

func optionalFields(raw map[string]any, key string) (Schema, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch fields := v.(type) {
	case Schema:
		return fields.Clone(), nil
	case []string:
		return Schema(fields).Clone(), nil
	case []any:
		out := make(Schema, 0, len(fields))
		for _, f := range fields {
			s, ok := f.(string)
			if !ok {
				return nil, invalidKey(key, v)
			}
			out = append(out, s)
		}
		return out, nil
	case string:
		if strings.TrimSpace(fields) == "" {
			return nil, nil
		}
		parts := strings.Split(fields, ",")
		out := make(Schema, len(parts))
		for i, p := range parts {
			out[i] = strings.TrimSpace(p)
		}
		return out, nil
	default:
		return nil, invalidKey(key, v)
	}
}
