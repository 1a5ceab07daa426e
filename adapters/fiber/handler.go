package exportfiber

import (
	"github.com/gofiber/fiber/v2"

	"github.com/goliatone/go-sqlexport/adapters/exportapi"
	"github.com/goliatone/go-sqlexport/export"
)

// Config configures the Fiber adapter.
type Config = exportapi.Config

// Handler exposes export routes on a Fiber router.
type Handler struct {
	controller *exportapi.Controller
}

// NewHandler creates a Fiber handler.
func NewHandler(cfg Config) *Handler {
	return &Handler{controller: exportapi.NewController(cfg)}
}

// RegisterRoutes registers the export routes.
func (h *Handler) RegisterRoutes(router fiber.Router) {
	base := h.basePath()
	router.Post(base, h.Handle)
	router.Get(base, h.Handle)
	router.Get(base+"/:id", h.Handle)
}

// Handle executes the shared export workflow.
func (h *Handler) Handle(c *fiber.Ctx) error {
	if c == nil {
		return nil
	}
	ex := exchange{c: c}
	if h == nil || h.controller == nil {
		exportapi.WriteError(ex, export.NewError(export.KindInternal, "handler is nil", nil))
		return nil
	}
	h.controller.Serve(ex, ex)
	return nil
}

// NewApp returns a Fiber app serving the export routes.
func NewApp(cfg Config) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	NewHandler(cfg).RegisterRoutes(app)
	return app
}

func (h *Handler) basePath() string {
	if h == nil || h.controller == nil || h.controller.BasePath() == "" {
		return exportapi.DefaultBasePath
	}
	return h.controller.BasePath()
}
