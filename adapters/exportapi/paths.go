package exportapi

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/goliatone/go-sqlexport/export"
	"github.com/goliatone/go-sqlexport/sources"
)

// confine rewrites the file paths named by a run request so they resolve
// under the configured roots. Requests never carry their own DSN.
func (c *Controller) confine(payload *RunPayload) error {
	if raw, ok := payload.Config[export.KeyFilename]; ok {
		name, isString := raw.(string)
		if !isString {
			return export.NewError(export.KindConfiguration, "filename must be a string", nil)
		}
		target, err := resolvePath(c.cfg.OutputRoot, name)
		if err != nil {
			return err
		}
		payload.Config[export.KeyFilename] = target
	}

	switch strings.ToLower(strings.TrimSpace(payload.Source.Type)) {
	case sources.TypeCSV, sources.TypeXLSX, sources.TypeConfigFile:
		if strings.TrimSpace(payload.Source.Path) == "" {
			return nil
		}
		target, err := resolvePath(c.cfg.InputRoot, payload.Source.Path)
		if err != nil {
			return err
		}
		payload.Source.Path = target
	case sources.TypeSQL:
		if strings.TrimSpace(payload.Source.DSN) != "" {
			return export.NewError(export.KindConfiguration,
				"sql sources over HTTP use the server database; dsn is not accepted", nil)
		}
	}
	return nil
}

// resolvePath joins a request supplied relative name under root. Absolute
// names and names that climb out of root are rejected.
func resolvePath(root, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", nil
	}
	if filepath.IsAbs(name) || filepath.VolumeName(name) != "" || strings.HasPrefix(filepath.ToSlash(name), "/") {
		return "", export.NewError(export.KindConfiguration, fmt.Sprintf("path %q must be relative", name), nil)
	}
	rel := path.Clean(filepath.ToSlash(name))
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", export.NewError(export.KindConfiguration, fmt.Sprintf("path %q escapes root", name), nil)
	}

	if root == "" {
		root = "."
	}
	base, err := filepath.Abs(root)
	if err != nil {
		return "", export.NewError(export.KindInternal, "resolve root", err)
	}
	target := filepath.Join(base, filepath.FromSlash(rel))
	if !strings.HasPrefix(target, base+string(os.PathSeparator)) {
		return "", export.NewError(export.KindConfiguration, fmt.Sprintf("path %q escapes root", name), nil)
	}
	return target, nil
}
