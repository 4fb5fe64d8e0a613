// Package errorbank classifies order-service failures once so every transport reports them the same
// way: HTTP status, gRPC code, message and structured details.
package errorbank

import (
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"
)

// Kind is the category of an application error.
type Kind string

const (
	KindBadRequest Kind = "bad_request"
	KindConflict   Kind = "conflict"
	KindNotFound   Kind = "not_found"
	KindInternal   Kind = "internal"
)

type transportCodes struct {
	http int
	grpc codes.Code
}

var kindCodes = map[Kind]transportCodes{
	KindBadRequest: {http: http.StatusBadRequest, grpc: codes.InvalidArgument},
	KindConflict:   {http: http.StatusConflict, grpc: codes.FailedPrecondition},
	KindNotFound:   {http: http.StatusNotFound, grpc: codes.NotFound},
	KindInternal:   {http: http.StatusInternalServerError, grpc: codes.Internal},
}

// AppError is a classified error. Details are rendered to clients; the cause is not.
type AppError struct {
	kind    Kind
	message string
	details map[string]any
	cause   error
}

// Option decorates an AppError at construction.
type Option func(*AppError)

// WithCause records the underlying error for logs and errors.Is.
func WithCause(err error) Option {
	return func(e *AppError) { e.cause = err }
}

// WithDetail adds a named value to the client-visible details.
func WithDetail(key string, value any) Option {
	return func(e *AppError) {
		if e.details == nil {
			e.details = make(map[string]any, 1)
		}
		e.details[key] = value
	}
}

// WithField names the request field the error refers to, e.g. "userid" or "items[1].quantity".
func WithField(field string) Option {
	return WithDetail("field", field)
}

// New builds an AppError. An empty message falls back to the kind.
func New(kind Kind, message string, opts ...Option) *AppError {
	if message == "" {
		message = string(kind)
	}
	e := &AppError{kind: kind, message: message}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// BadRequest reports input that cannot become a valid order.
func BadRequest(message string, opts ...Option) *AppError {
	return New(KindBadRequest, message, opts...)
}

// Conflict reports a write that clashes with stored state.
func Conflict(message string, opts ...Option) *AppError {
	return New(KindConflict, message, opts...)
}

// NotFound reports a missing order.
func NotFound(message string, opts ...Option) *AppError {
	return New(KindNotFound, message, opts...)
}

// Internal reports a storage or infrastructure failure.
func Internal(message string, opts ...Option) *AppError {
	return New(KindInternal, message, opts...)
}

func (e *AppError) Error() string {
	switch {
	case e == nil:
		return "<nil>"
	case e.cause != nil:
		return e.message + ": " + e.cause.Error()
	default:
		return e.message
	}
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Kind returns the category; a nil error counts as internal.
func (e *AppError) Kind() Kind {
	if e == nil {
		return KindInternal
	}
	return e.kind
}

// Message returns the client-facing message without the cause.
func (e *AppError) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

// Details returns the client-visible metadata, nil when there is none.
func (e *AppError) Details() map[string]any {
	if e == nil {
		return nil
	}
	return e.details
}

// StatusCode maps the kind onto an HTTP status.
func (e *AppError) StatusCode() int {
	return e.codes().http
}

// GRPCCode maps the kind onto a gRPC status code.
func (e *AppError) GRPCCode() codes.Code {
	return e.codes().grpc
}

func (e *AppError) codes() transportCodes {
	if c, ok := kindCodes[e.Kind()]; ok {
		return c
	}
	return kindCodes[KindInternal]
}

// From returns the first AppError in err's chain, or wraps err as internal.
func From(err error) *AppError {
	if err == nil {
		return nil
	}
	var e *AppError
	if errors.As(err, &e) {
		return e
	}
	return Internal("internal error", WithCause(err))
}

// KindOf reports the kind of the first AppError in err's chain, or KindInternal when there is none.
func KindOf(err error) Kind {
	return From(err).Kind()
}
