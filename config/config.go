package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-sqlexport/export"
	"github.com/goliatone/go-sqlexport/sources"
)

// File is the sqlexport configuration file.
type File struct {
	Log    LogConfig      `yaml:"log"`
	Export map[string]any `yaml:"export"`
	Source sources.Spec   `yaml:"source"`
	// Queries names SQL that sql sources select with query_name.
	Queries  map[string]string `yaml:"queries"`
	Tracker  TrackerConfig     `yaml:"tracker"`
	Server   ServerConfig      `yaml:"server"`
	Schedule ScheduleConfig    `yaml:"schedule"`
}

// LogConfig selects the log handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TrackerConfig points at the run history database.
type TrackerConfig struct {
	Enabled bool `yaml:"enabled"`
	// DSN is a sqlite path or URI; empty keeps history in memory.
	DSN string `yaml:"dsn"`
}

// ServerConfig holds HTTP settings for `serve`.
type ServerConfig struct {
	Address     string `yaml:"address"`
	BasePath    string `yaml:"base_path"`
	MetricsPath string `yaml:"metrics_path"`
	// OutputRoot and InputRoot confine the paths a request may name.
	OutputRoot string `yaml:"output_root"`
	InputRoot  string `yaml:"input_root"`
}

// ScheduleConfig holds settings for `schedule`.
type ScheduleConfig struct {
	Expression string `yaml:"expression"`
	// Manifest lists several exports to run on each tick; when empty the
	// top-level export and source run instead.
	Manifest        string `yaml:"manifest"`
	ContinueOnError bool   `yaml:"continue_on_error"`
}

// Defaults returns a File with sensible defaults.
func Defaults() File {
	return File{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Export: map[string]any{},
		Tracker: TrackerConfig{
			Enabled: true,
			DSN:     "sqlexport.db",
		},
		Server: ServerConfig{
			Address:     ":8080",
			BasePath:    "/exports",
			MetricsPath: "/metrics",
			OutputRoot:  "exports",
		},
		Schedule: ScheduleConfig{
			Expression: "0 * * * *",
		},
	}
}

// Load reads a YAML file over the defaults. Environment references such as
// ${DB_PASSWORD} are expanded first.
func Load(path string) (File, error) {
	cfg := Defaults()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, export.NewError(export.KindIO, fmt.Sprintf("read config %s", path), err)
	}
	if err := Parse([]byte(expandEnv(string(data))), &cfg); err != nil {
		return File{}, err
	}
	return cfg, nil
}

// Parse decodes YAML into cfg and validates the result.
func Parse(data []byte, cfg *File) error {
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return export.NewError(export.KindConfiguration, "parse config", err)
	}
	if cfg.Export == nil {
		cfg.Export = map[string]any{}
	}
	return cfg.Validate()
}

// Validate checks the values that are not validated by the export engine.
func (f File) Validate() error {
	switch strings.ToLower(f.Log.Format) {
	case "", "text", "json":
	default:
		return export.NewError(export.KindConfiguration, fmt.Sprintf("unsupported log format %q", f.Log.Format), nil)
	}
	switch strings.ToLower(f.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return export.NewError(export.KindConfiguration, fmt.Sprintf("unsupported log level %q", f.Log.Level), nil)
	}
	return nil
}

// ExportConfig returns a copy of the export block with overrides applied.
// Empty override values are ignored.
func (f File) ExportConfig(overrides map[string]any) map[string]any {
	out := make(map[string]any, len(f.Export)+len(overrides))
	for key, value := range f.Export {
		out[key] = value
	}
	for key, value := range overrides {
		if s, ok := value.(string); ok && s == "" {
			continue
		}
		out[key] = value
	}
	return out
}

// expandEnv replaces ${VAR} references that name a set variable. Unset
// references and ${date} are kept for the filename templater.
func expandEnv(s string) string {
	var b strings.Builder
	for {
		start := strings.Index(s, "${")
		if start < 0 {
			b.WriteString(s)
			return b.String()
		}
		end := strings.Index(s[start:], "}")
		if end < 0 {
			b.WriteString(s)
			return b.String()
		}
		name := s[start+2 : start+end]
		b.WriteString(s[:start])
		if value, ok := os.LookupEnv(name); ok && s[start:start+end+1] != export.DatePlaceholder {
			b.WriteString(value)
		} else {
			b.WriteString(s[start : start+end+1])
		}
		s = s[start+end+1:]
	}
}
