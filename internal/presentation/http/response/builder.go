package response

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/ordertrack/pkg/errorbank"
)

// Envelope is the JSON body of every order endpoint response except 204.
type Envelope struct {
	Success bool           `json:"success"`
	Data    any            `json:"data,omitempty"`
	Error   *ErrorBody     `json:"error,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// ErrorBody describes a failed request. Details carry the offending field when known.
type ErrorBody struct {
	Kind    string         `json:"kind"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Builder accumulates status, payload and meta for one echo request.
type Builder struct {
	c      echo.Context
	status int
	data   any
	err    error
	meta   map[string]any
}

// New starts a 200 response for c.
func New(c echo.Context) *Builder {
	return &Builder{c: c, status: http.StatusOK}
}

// WithStatus sets the success status. Error responses take their status from the error kind
// unless an explicit 4xx/5xx was set.
func (b *Builder) WithStatus(status int) *Builder {
	if status > 0 {
		b.status = status
	}
	return b
}

// WithData sets the success payload.
func (b *Builder) WithData(data any) *Builder {
	b.data = data
	return b
}

// WithError switches the response to the error envelope.
func (b *Builder) WithError(err error) *Builder {
	b.err = err
	return b
}

// WithMeta adds a meta entry; empty keys are ignored.
func (b *Builder) WithMeta(key string, value any) *Builder {
	if key != "" {
		if b.meta == nil {
			b.meta = make(map[string]any)
		}
		b.meta[key] = value
	}
	return b
}

// Build writes the response. A 204 without an error sends no body.
func (b *Builder) Build() error {
	if b.err == nil && b.status == http.StatusNoContent {
		return b.c.NoContent(http.StatusNoContent)
	}

	if sc := trace.SpanContextFromContext(b.c.Request().Context()); sc.HasTraceID() {
		b.WithMeta("trace_id", sc.TraceID().String())
	}

	if b.err == nil {
		return b.c.JSON(b.status, Envelope{Success: true, Data: b.data, Meta: b.meta})
	}

	appErr := errorbank.From(b.err)
	status := b.status
	if status < http.StatusBadRequest {
		status = appErr.StatusCode()
	}
	return b.c.JSON(status, Envelope{
		Error: &ErrorBody{
			Kind:    string(appErr.Kind()),
			Message: appErr.Message(),
			Details: appErr.Details(),
		},
		Meta: b.meta,
	})
}
