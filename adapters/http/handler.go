package exporthttp

import (
	"net/http"

	"github.com/goliatone/go-sqlexport/adapters/exportapi"
	"github.com/goliatone/go-sqlexport/export"
)

// Config configures the HTTP adapter.
type Config = exportapi.Config

// Handler exposes export endpoints on net/http.
type Handler struct {
	controller *exportapi.Controller
}

// NewHandler creates a new HTTP handler.
func NewHandler(cfg Config) *Handler {
	return &Handler{controller: exportapi.NewController(cfg)}
}

// Mux is the subset of http.ServeMux the handler mounts on.
type Mux interface {
	Handle(pattern string, handler http.Handler)
}

// RegisterRoutes mounts the collection and item routes.
func (h *Handler) RegisterRoutes(mux Mux) {
	base := h.basePath()
	mux.Handle(base, h)
	mux.Handle(base+"/", h)
}

// ServeHTTP routes export endpoints.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if w == nil {
		return
	}
	ex := newExchange(w, r)
	if h == nil || h.controller == nil {
		exportapi.WriteError(ex, export.NewError(export.KindInternal, "handler is nil", nil))
		return
	}
	h.controller.Serve(ex, ex)
}

func (h *Handler) basePath() string {
	if h == nil || h.controller == nil || h.controller.BasePath() == "" {
		return exportapi.DefaultBasePath
	}
	return h.controller.BasePath()
}
