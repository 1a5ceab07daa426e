package exportconfigfile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/magiconair/properties"
	"gopkg.in/ini.v1"

	"github.com/goliatone/go-sqlexport/export"
)

var (
	propertiesSchema = export.Schema{"key", "value"}
	iniSchema        = export.Schema{"section", "key", "value"}
)

// Source publishes the entries of a .properties or .ini file, one row per
// entry in file order. Later duplicates replace the value of earlier ones.
type Source struct {
	Path   string
	Logger export.Logger
}

// NewSource creates a config file source.
func NewSource(path string) *Source {
	return &Source{Path: path, Logger: export.NopLogger{}}
}

// Produce parses the file and publishes its entries.
func (s *Source) Produce(ctx context.Context, out export.Publisher) error {
	if s == nil || strings.TrimSpace(s.Path) == "" {
		return export.NewError(export.KindConfiguration, "config file path is required", nil)
	}
	logger := s.Logger
	if logger == nil {
		logger = export.NopLogger{}
	}

	var parse func([]byte) ([]export.Row, error)
	var schema export.Schema
	switch strings.ToLower(filepath.Ext(s.Path)) {
	case ".properties":
		parse, schema = parseProperties, propertiesSchema
	case ".ini":
		parse, schema = parseINI, iniSchema
	default:
		return export.NewError(export.KindConfiguration,
			fmt.Sprintf("unsupported config file %q, expected .properties or .ini", s.Path), nil)
	}

	data, err := os.ReadFile(s.Path)
	if err != nil {
		return export.NewError(export.KindIO, fmt.Sprintf("open %s", s.Path), err)
	}
	rows, err := parse(data)
	if err != nil {
		return export.NewError(export.KindIO, fmt.Sprintf("read %s", s.Path), err)
	}
	out.SetSchema(schema)
	logger.Debugf("config file %s: %d entries", s.Path, len(rows))

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := out.Publish(row); err != nil {
			return err
		}
	}
	return nil
}

// parseProperties decodes Java properties. Values are published raw, so
// ${name} references are not expanded.
func parseProperties(data []byte) ([]export.Row, error) {
	loader := &properties.Loader{Encoding: properties.UTF8, DisableExpansion: true}
	props, err := loader.LoadBytes(data)
	if err != nil {
		return nil, err
	}
	keys := props.Keys()
	rows := make([]export.Row, 0, len(keys))
	for _, key := range keys {
		value, _ := props.Get(key)
		rows = append(rows, export.Row{key, value})
	}
	return rows, nil
}

// parseINI reads sectioned entries. Keys outside a section land in the
// default section and are skipped.
func parseINI(data []byte) ([]export.Row, error) {
	file, err := ini.LoadSources(ini.LoadOptions{
		SpaceBeforeInlineComment: true,
		KeyValueDelimiters:       "=",
	}, data)
	if err != nil {
		return nil, err
	}
	var rows []export.Row
	for _, section := range file.Sections() {
		if section.Name() == ini.DefaultSection {
			continue
		}
		for _, key := range section.Keys() {
			rows = append(rows, export.Row{section.Name(), key.Name(), key.Value()})
		}
	}
	return rows, nil
}
