package server

import (
	"errors"
	"fmt"
	"maps"
	"net/http"
	"strings"

	"github.com/gaborage/apidoc/validation"
)

// IAPIError is an error rendered into the response envelope.
type IAPIError interface {
	ErrorCode() string
	Message() string
	HTTPStatus() int
	Details() map[string]any
}

// BaseAPIError provides a basic implementation of IAPIError.
type BaseAPIError struct {
	code       string
	message    string
	httpStatus int
	details    map[string]any
}

// NewBaseAPIError creates a new base API error.
func NewBaseAPIError(code, message string, httpStatus int) *BaseAPIError {
	return &BaseAPIError{
		code:       code,
		message:    message,
		httpStatus: httpStatus,
		details:    make(map[string]any),
	}
}

// ErrorCode returns the error code.
func (e *BaseAPIError) ErrorCode() string { return e.code }

// Message returns the error message.
func (e *BaseAPIError) Message() string { return e.message }

// HTTPStatus returns the HTTP status code.
func (e *BaseAPIError) HTTPStatus() int { return e.httpStatus }

// Details returns a copy of the error details, nil when there are none.
func (e *BaseAPIError) Details() map[string]any {
	if len(e.details) == 0 {
		return nil
	}
	return maps.Clone(e.details)
}

// WithDetails adds one detail entry.
func (e *BaseAPIError) WithDetails(key string, value any) *BaseAPIError {
	if e.details == nil {
		e.details = make(map[string]any)
	}
	e.details[key] = value
	return e
}

func (e *BaseAPIError) Error() string {
	if e == nil {
		return ""
	}
	if e.code == "" {
		return e.message
	}
	return e.code + ": " + e.message
}

// BadRequestError is returned for requests that fail parameter validation.
type BadRequestError struct {
	*BaseAPIError
}

// NewBadRequestError creates a 400 error.
func NewBadRequestError(message string) *BadRequestError {
	return &BadRequestError{BaseAPIError: NewBaseAPIError("BAD_REQUEST", message, http.StatusBadRequest)}
}

// NewValidationFailure turns a validation error into a 400 whose message is
// the rendered violation list and whose details carry the violations.
func NewValidationFailure(ve *validation.ValidationError) *BadRequestError {
	err := NewBadRequestError(ve.Error())
	if ve.Param != "" {
		err.WithDetails("param", ve.Param)
	}
	err.WithDetails("violations", ve.Violations)
	return err
}

// NotFoundError represents a missing resource.
type NotFoundError struct {
	*BaseAPIError
}

// NewNotFoundError creates a 404 error for resource.
func NewNotFoundError(resource string) *NotFoundError {
	return &NotFoundError{BaseAPIError: NewBaseAPIError("NOT_FOUND", resource+" not found", http.StatusNotFound)}
}

// UnauthorizedError represents a missing or invalid credential.
type UnauthorizedError struct {
	*BaseAPIError
}

// NewUnauthorizedError creates a 401 error.
func NewUnauthorizedError(message string) *UnauthorizedError {
	if message == "" {
		message = "Authentication required"
	}
	return &UnauthorizedError{BaseAPIError: NewBaseAPIError("UNAUTHORIZED", message, http.StatusUnauthorized)}
}

// ConflictError represents a conflicting write.
type ConflictError struct {
	*BaseAPIError
}

// NewConflictError creates a 409 error.
func NewConflictError(message string) *ConflictError {
	return &ConflictError{BaseAPIError: NewBaseAPIError("CONFLICT", message, http.StatusConflict)}
}

// InternalServerError hides an unexpected failure from the client.
type InternalServerError struct {
	*BaseAPIError
}

// NewInternalServerError creates a 500 error.
func NewInternalServerError(message string) *InternalServerError {
	if message == "" {
		message = "An internal error occurred"
	}
	return &InternalServerError{BaseAPIError: NewBaseAPIError("INTERNAL_ERROR", message, http.StatusInternalServerError)}
}

// ConfigError reports a registration mistake found while validating the
// registry or building the document. Err carries the underlying cause, so
// errors.Is matches schema and validation sentinels through it.
type ConfigError struct {
	Controller string
	Action     string
	Param      string
	Message    string
	Err        error
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	b.WriteString("apidoc config")
	if e.Controller != "" {
		fmt.Fprintf(&b, ": controller %s", e.Controller)
	}
	if e.Action != "" {
		fmt.Fprintf(&b, " action %s", e.Action)
	}
	if e.Param != "" {
		fmt.Fprintf(&b, " param %s", e.Param)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ConfigError) Unwrap() error { return e.Err }

// IsConfigError reports whether err contains a *ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
