package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/gaborage/apidoc/config"
)

// APIResponse is the error envelope written for every failed request.
type APIResponse struct {
	Error *APIErrorResponse `json:"error,omitempty"`
	Meta  map[string]any    `json:"meta"`
}

// APIErrorResponse is the error portion of an APIResponse.
type APIErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// ResultLike lets an action choose the status and headers of a success
// response. Returning any other value writes it as JSON with 200, and nil
// writes 204.
type ResultLike interface {
	ResultMeta() (status int, headers http.Header, data any)
}

// Result is a generic success wrapper.
type Result[R any] struct {
	Data    R
	Status  int
	Headers http.Header
}

// ResultMeta implements ResultLike.
func (r Result[R]) ResultMeta() (status int, headers http.Header, data any) {
	return r.Status, r.Headers, r.Data
}

// NewResult wraps data with an explicit status.
func NewResult[R any](status int, data R) Result[R] {
	return Result[R]{Data: data, Status: status}
}

// Created returns a 201 result.
func Created[R any](data R) Result[R] {
	return Result[R]{Data: data, Status: http.StatusCreated}
}

// NoContentResult is a 204 without body.
type NoContentResult struct{}

// ResultMeta implements ResultLike.
func (NoContentResult) ResultMeta() (status int, headers http.Header, data any) {
	return http.StatusNoContent, nil, nil
}

// NoContent returns a 204 result.
func NoContent() NoContentResult { return NoContentResult{} }

func writeResult(c echo.Context, out any) error {
	if out == nil {
		return c.NoContent(http.StatusNoContent)
	}

	rl, ok := out.(ResultLike)
	if !ok {
		return c.JSON(http.StatusOK, out)
	}

	status, headers, data := rl.ResultMeta()
	if status == 0 {
		status = http.StatusOK
	}
	for k, vals := range headers {
		for _, v := range vals {
			c.Response().Header().Add(k, v)
		}
	}
	if status == http.StatusNoContent || data == nil {
		return c.NoContent(status)
	}
	return c.JSON(status, data)
}

func formatErrorResponse(c echo.Context, apiErr IAPIError, cfg *config.Config) error {
	errorResp := &APIErrorResponse{
		Code:    apiErr.ErrorCode(),
		Message: apiErr.Message(),
	}

	// details only leave the process in development
	if cfg != nil && cfg.IsDevelopment() {
		errorResp.Details = apiErr.Details()
	}

	return c.JSON(apiErr.HTTPStatus(), APIResponse{
		Error: errorResp,
		Meta: map[string]any{
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"traceId":   getTraceID(c),
		},
	})
}

func getTraceID(c echo.Context) string {
	if id := c.Request().Header.Get(echo.HeaderXRequestID); id != "" {
		return id
	}
	if id := c.Response().Header().Get(echo.HeaderXRequestID); id != "" {
		return id
	}
	id := uuid.New().String()
	c.Response().Header().Set(echo.HeaderXRequestID, id)
	return id
}

func customErrorHandler(err error, c echo.Context, cfg *config.Config) {
	if c.Response().Committed {
		return
	}

	var apiErr IAPIError
	if errors.As(err, &apiErr) {
		_ = formatErrorResponse(c, apiErr, cfg)
		return
	}

	status := http.StatusInternalServerError
	msg := "Internal server error"
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		switch m := he.Message.(type) {
		case string:
			msg = m
		case error:
			msg = m.Error()
		}
	}

	if status == http.StatusInternalServerError && (cfg == nil || !cfg.App.Debug) {
		msg = "An error occurred while processing your request"
	}

	base := NewBaseAPIError(statusToErrorCode(status), msg, status)
	if cfg != nil && cfg.IsDevelopment() {
		base.WithDetails("error", err.Error())
	}
	_ = formatErrorResponse(c, base, cfg)
}

func statusToErrorCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "BAD_REQUEST"
	case http.StatusUnauthorized:
		return "UNAUTHORIZED"
	case http.StatusForbidden:
		return "FORBIDDEN"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case http.StatusConflict:
		return "CONFLICT"
	case http.StatusRequestEntityTooLarge:
		return "PAYLOAD_TOO_LARGE"
	case http.StatusTooManyRequests:
		return "TOO_MANY_REQUESTS"
	case http.StatusServiceUnavailable:
		return "SERVICE_UNAVAILABLE"
	default:
		return "INTERNAL_ERROR"
	}
}
