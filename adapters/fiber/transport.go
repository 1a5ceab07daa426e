package exportfiber

import (
	"bytes"
	"context"
	"io"

	"github.com/gofiber/fiber/v2"

	"github.com/goliatone/go-sqlexport/adapters/exportapi"
)

// exchange adapts a non-nil fiber.Ctx to the controller's request and
// response views.
type exchange struct {
	c *fiber.Ctx
}

func (ex exchange) Context() context.Context {
	if ctx := ex.c.UserContext(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func (ex exchange) Method() string            { return ex.c.Method() }
func (ex exchange) Path() string              { return ex.c.Path() }
func (ex exchange) Header(name string) string { return ex.c.Get(name) }
func (ex exchange) Query(name string) string  { return ex.c.Query(name) }

// Body copies the request body; fasthttp reuses its buffer after the handler returns.
func (ex exchange) Body() io.ReadCloser {
	return io.NopCloser(bytes.NewReader(append([]byte(nil), ex.c.Body()...)))
}

func (ex exchange) SetHeader(name, value string)   { ex.c.Set(name, value) }
func (ex exchange) WriteHeader(status int)         { ex.c.Status(status) }
func (ex exchange) Write(data []byte) (int, error) { return ex.c.Write(data) }
func (ex exchange) WriteJSON(status int, payload any) error {
	return ex.c.Status(status).JSON(payload)
}

var (
	_ exportapi.Request  = exchange{}
	_ exportapi.Response = exchange{}
)
