package exportapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	errorslib "github.com/goliatone/go-errors"

	"github.com/goliatone/go-sqlexport/export"
	"github.com/goliatone/go-sqlexport/sources"
)

// DefaultBasePath is the mount point when Config.BasePath is empty.
const DefaultBasePath = "/exports"

// Config configures the shared export API controller.
type Config struct {
	Runner *export.Runner
	// Tracker serves status and list; it defaults to Runner.Tracker.
	Tracker   export.ProgressTracker
	Resources sources.Resources
	BasePath  string
	// OutputRoot confines request filenames; empty means the working
	// directory.
	OutputRoot string
	// InputRoot confines file source paths; it defaults to OutputRoot.
	InputRoot        string
	IdempotencyStore IdempotencyStore
	IdempotencyTTL   time.Duration
	Logger           export.Logger
	RequestDecoder   RequestDecoder
}

// Controller serves the export routes for any transport that implements
// Request and Response.
type Controller struct {
	cfg Config
}

// NewController fills Config defaults and returns a controller.
func NewController(cfg Config) *Controller {
	cfg.BasePath = strings.TrimRight(cfg.BasePath, "/")
	if cfg.BasePath == "" {
		cfg.BasePath = DefaultBasePath
	}
	if cfg.Logger == nil {
		cfg.Logger = export.NopLogger{}
	}
	if cfg.RequestDecoder == nil {
		cfg.RequestDecoder = JSONRequestDecoder{}
	}
	if cfg.Tracker == nil && cfg.Runner != nil {
		cfg.Tracker = cfg.Runner.Tracker
	}
	if cfg.InputRoot == "" {
		cfg.InputRoot = cfg.OutputRoot
	}
	if cfg.Resources.Logger == nil {
		cfg.Resources.Logger = cfg.Logger
	}
	return &Controller{cfg: cfg}
}

// BasePath returns the configured base path.
func (c *Controller) BasePath() string {
	if c == nil {
		return ""
	}
	return c.cfg.BasePath
}

// Serve routes export endpoints.
func (c *Controller) Serve(req Request, res Response) {
	if res == nil {
		return
	}
	if c == nil {
		WriteError(res, export.NewError(export.KindInternal, "handler is nil", nil))
		return
	}
	if req == nil {
		WriteError(res, export.NewError(export.KindInternal, "request is nil", nil))
		return
	}
	if !strings.HasPrefix(req.Path(), c.cfg.BasePath) {
		writeNotFound(res)
		return
	}

	suffix := strings.Trim(strings.TrimPrefix(req.Path(), c.cfg.BasePath), "/")
	parts := []string{}
	if suffix != "" {
		parts = strings.Split(suffix, "/")
	}

	switch req.Method() {
	case http.MethodPost:
		if len(parts) != 0 {
			writeNotFound(res)
			return
		}
		c.HandleRun(req, res)
	case http.MethodGet:
		switch len(parts) {
		case 0:
			c.HandleList(req, res)
		case 1:
			c.HandleStatus(req, res, parts[0])
		default:
			writeNotFound(res)
		}
	default:
		res.SetHeader("Allow", "GET,POST")
		res.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// HandleRun runs an export synchronously and writes its result.
func (c *Controller) HandleRun(req Request, res Response) {
	if c.cfg.Runner == nil {
		WriteError(res, export.NewError(export.KindInternal, "export runner not configured", nil))
		return
	}
	payload, err := c.cfg.RequestDecoder.Decode(req)
	if err != nil {
		WriteError(res, err)
		return
	}
	if err := c.confine(&payload); err != nil {
		WriteError(res, err)
		return
	}

	ctx := req.Context()
	key := strings.TrimSpace(req.Header("Idempotency-Key"))
	if key != "" && c.cfg.IdempotencyStore != nil && c.cfg.Tracker != nil {
		if id, ok, err := c.cfg.IdempotencyStore.Get(ctx, key); err == nil && ok {
			record, err := c.cfg.Tracker.Status(ctx, id)
			if err == nil {
				writeJSON(res, http.StatusOK, newRecordResponse(record))
				return
			}
			c.cfg.Logger.Warnf("idempotent replay of %s: %v", id, err)
		}
	}

	src, err := sources.Build(ctx, payload.Source, c.cfg.Resources)
	if err != nil {
		WriteError(res, err)
		return
	}
	result, err := c.cfg.Runner.Run(ctx, export.RunRequest{Config: payload.Config, Source: src})
	if err != nil {
		c.cfg.Logger.Errorf("export run failed: %v", err)
		WriteError(res, err)
		return
	}

	if key != "" && c.cfg.IdempotencyStore != nil {
		if err := c.cfg.IdempotencyStore.Set(ctx, key, result.ID, c.cfg.IdempotencyTTL); err != nil {
			c.cfg.Logger.Warnf("store idempotency key: %v", err)
		}
	}
	writeJSON(res, http.StatusCreated, newRunResponse(result, c.statusURL(result.ID)))
}

// HandleList writes tracked runs matching the query filter.
func (c *Controller) HandleList(req Request, res Response) {
	if c.cfg.Tracker == nil {
		WriteError(res, export.NewError(export.KindInternal, "export tracker not configured", nil))
		return
	}
	filter, err := parseFilter(req)
	if err != nil {
		WriteError(res, err)
		return
	}
	records, err := c.cfg.Tracker.List(req.Context(), filter)
	if err != nil {
		WriteError(res, err)
		return
	}
	out := ListResponse{Exports: make([]RecordResponse, 0, len(records))}
	for _, record := range records {
		out.Exports = append(out.Exports, newRecordResponse(record))
	}
	writeJSON(res, http.StatusOK, out)
}

// HandleStatus writes a single tracked run.
func (c *Controller) HandleStatus(req Request, res Response, exportID string) {
	if c.cfg.Tracker == nil {
		WriteError(res, export.NewError(export.KindInternal, "export tracker not configured", nil))
		return
	}
	record, err := c.cfg.Tracker.Status(req.Context(), exportID)
	if err != nil {
		WriteError(res, err)
		return
	}
	writeJSON(res, http.StatusOK, newRecordResponse(record))
}

func (c *Controller) statusURL(exportID string) string {
	return c.cfg.BasePath + "/" + exportID
}

func writeNotFound(res Response) {
	res.SetHeader("Content-Type", "text/plain; charset=utf-8")
	res.SetHeader("X-Content-Type-Options", "nosniff")
	res.WriteHeader(http.StatusNotFound)
	_, _ = res.Write([]byte("404 page not found\n"))
}

// WriteError writes err as a JSON error body with a mapped status code.
func WriteError(res Response, err error) {
	if err == nil {
		res.WriteHeader(http.StatusNoContent)
		return
	}
	ge := export.AsGoError(err)
	writeJSON(res, StatusForError(ge), ErrorResponse{
		Error: ErrorBody{
			Code:     ge.TextCode,
			Category: fmt.Sprint(ge.Category),
			Message:  ge.Message,
		},
	})
}

func writeJSON(res Response, status int, payload any) {
	_ = res.WriteJSON(status, payload)
}

// StatusForError maps an error category and text code to an HTTP status.
func StatusForError(err *errorslib.Error) int {
	if err == nil {
		return http.StatusInternalServerError
	}
	switch err.Category {
	case errorslib.CategoryValidation:
		return http.StatusBadRequest
	case errorslib.CategoryNotFound:
		return http.StatusNotFound
	case errorslib.CategoryExternal:
		return http.StatusBadGateway
	case errorslib.CategoryOperation:
		switch export.ErrorKind(err.TextCode) {
		case export.KindFileExists, export.KindMissingParentDir:
			return http.StatusConflict
		case export.KindInitializationTimeout, export.KindSchemaUnavailable, export.KindProcessingTimeout:
			return http.StatusGatewayTimeout
		case export.KindCanceled:
			return http.StatusRequestTimeout
		}
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func parseFilter(req Request) (export.ProgressFilter, error) {
	filter := export.ProgressFilter{
		Table: req.Query("table"),
		State: export.ExportState(req.Query("state")),
	}
	if since := req.Query("since"); since != "" {
		ts, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return export.ProgressFilter{}, export.NewError(export.KindConfiguration, "invalid since timestamp", err)
		}
		filter.Since = ts
	}
	if until := req.Query("until"); until != "" {
		ts, err := time.Parse(time.RFC3339, until)
		if err != nil {
			return export.ProgressFilter{}, export.NewError(export.KindConfiguration, "invalid until timestamp", err)
		}
		filter.Until = ts
	}
	return filter, nil
}
