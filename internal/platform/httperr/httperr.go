// Package httperr defines the typed error taxonomy shared by all domain
// services and the echo error handler that renders it. Services return these
// errors directly; nothing retries them internally.
package httperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// FieldError names a single invalid request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is a typed API failure carrying the HTTP status it maps to.
type Error struct {
	Status  int          `json:"status"`
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Fields  []FieldError `json:"errors,omitempty"`
	err     error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.err }

// Codes returned alongside the HTTP status so clients can branch without
// string-matching messages.
const (
	CodeInvalidInput     = "invalid_input"
	CodeUnauthenticated  = "unauthenticated"
	CodeForbidden        = "forbidden"
	CodeNotFound         = "not_found"
	CodeConflict         = "conflict"
	CodeAlreadyDispensed = "already_dispensed"
	CodeEncodingFailed   = "encoding_failed"
	CodeInternal         = "internal"
)

func InvalidInput(message string, fields ...FieldError) *Error {
	return &Error{Status: http.StatusBadRequest, Code: CodeInvalidInput, Message: message, Fields: fields}
}

func Unauthenticated(message string) *Error {
	return &Error{Status: http.StatusUnauthorized, Code: CodeUnauthenticated, Message: message}
}

func Forbidden(message string) *Error {
	return &Error{Status: http.StatusForbidden, Code: CodeForbidden, Message: message}
}

func NotFound(message string) *Error {
	return &Error{Status: http.StatusNotFound, Code: CodeNotFound, Message: message}
}

func Conflict(message string) *Error {
	return &Error{Status: http.StatusConflict, Code: CodeConflict, Message: message}
}

// AlreadyDispensed is a client error: dispensing is one-shot and a repeat is
// the caller's mistake, not a server fault.
func AlreadyDispensed() *Error {
	return &Error{Status: http.StatusBadRequest, Code: CodeAlreadyDispensed, Message: "prescription has already been dispensed"}
}

// EncodingFailed marks a scan artifact rendering failure. The record the
// artifact belongs to stays persisted; only the attachment failed.
func EncodingFailed(err error) *Error {
	return &Error{Status: http.StatusInternalServerError, Code: CodeEncodingFailed, Message: "failed to generate scan code", err: err}
}

// Internal wraps an unexpected failure. The wrapped error is logged server-side
// only; clients see the generic message.
func Internal(message string, err error) *Error {
	return &Error{Status: http.StatusInternalServerError, Code: CodeInternal, Message: message, err: err}
}

// response is the error envelope every failure shares:
// {success:false, status, message, errors?}.
type response struct {
	Success bool         `json:"success"`
	Status  int          `json:"status"`
	Message string       `json:"message"`
	Errors  []FieldError `json:"errors,omitempty"`
}

// Handler returns an echo.HTTPErrorHandler that maps typed errors to the shared
// envelope. Unexpected errors are logged (with the underlying cause) and
// surfaced as a generic 500; in production the message never exposes internals.
func Handler(logger zerolog.Logger, production bool) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		message := "internal server error"
		var fields []FieldError

		var apiErr *Error
		var echoErr *echo.HTTPError
		switch {
		case errors.As(err, &apiErr):
			status = apiErr.Status
			message = apiErr.Message
			fields = apiErr.Fields
			if status >= http.StatusInternalServerError {
				logger.Error().Err(err).
					Str("path", c.Request().URL.Path).
					Msg("request failed")
				if production {
					message = "internal server error"
				}
			}
		case errors.As(err, &echoErr):
			status = echoErr.Code
			if m, ok := echoErr.Message.(string); ok {
				message = m
			}
		default:
			logger.Error().Err(err).
				Str("path", c.Request().URL.Path).
				Msg("unhandled error")
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(status)
			return
		}
		_ = c.JSON(status, response{Status: status, Message: message, Errors: fields})
	}
}
