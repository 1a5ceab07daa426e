package exportapi

import (
	"context"
	"encoding/json"
	"io"

	"github.com/goliatone/go-sqlexport/export"
	"github.com/goliatone/go-sqlexport/sources"
)

// Request provides minimal request access for transport adapters.
type Request interface {
	Context() context.Context
	Method() string
	Path() string
	Header(name string) string
	Query(name string) string
	Body() io.ReadCloser
}

// RunPayload is the body of a run request.
type RunPayload struct {
	// Config carries the export configuration keys (dbtype, filename, ...).
	Config map[string]any `json:"config"`
	Source sources.Spec   `json:"source"`
}

// RequestDecoder parses a request into a run payload.
type RequestDecoder interface {
	Decode(req Request) (RunPayload, error)
}

// JSONRequestDecoder decodes JSON bodies.
type JSONRequestDecoder struct{}

// Decode decodes a JSON request body into a run payload.
func (JSONRequestDecoder) Decode(req Request) (RunPayload, error) {
	if req == nil {
		return RunPayload{}, export.NewError(export.KindInternal, "request is nil", nil)
	}
	body := req.Body()
	if body == nil {
		return RunPayload{}, export.NewError(export.KindConfiguration, "request body is required", nil)
	}
	defer body.Close()

	var payload RunPayload
	decoder := json.NewDecoder(body)
	decoder.UseNumber()
	if err := decoder.Decode(&payload); err != nil {
		return RunPayload{}, export.NewError(export.KindConfiguration, "invalid request body", err)
	}
	if len(payload.Config) == 0 {
		return RunPayload{}, export.NewError(export.KindConfiguration, "config is required", nil)
	}
	payload.Config = normalizeNumbers(payload.Config)
	return payload, nil
}

// normalizeNumbers turns json.Number values into int64 or float64 so the
// configuration parser sees plain numbers.
func normalizeNumbers(cfg map[string]any) map[string]any {
	out := make(map[string]any, len(cfg))
	for key, value := range cfg {
		if n, ok := value.(json.Number); ok {
			if i, err := n.Int64(); err == nil {
				out[key] = i
				continue
			}
			if f, err := n.Float64(); err == nil {
				out[key] = f
				continue
			}
		}
		out[key] = value
	}
	return out
}
