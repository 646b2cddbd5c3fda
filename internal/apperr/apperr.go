// Package apperr implements the typed error taxonomy of spec.md §7.
// Business failures are returned as *Error values, never panics — only
// truly unexpected faults should reach a panic/recover boundary.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is one of the taxonomy entries of spec.md §7.
type Code string

const (
	CodeValidation        Code = "VALIDATION_ERROR"
	CodeNotFound          Code = "NOT_FOUND"
	CodeConflict          Code = "CONFLICT"
	CodeIllegalTransition Code = "ILLEGAL_TRANSITION"
	CodeUnauthorized      Code = "UNAUTHORIZED"
	CodeForbidden         Code = "FORBIDDEN"
	CodeAccountLocked     Code = "ACCOUNT_LOCKED"
	CodeOverloaded        Code = "OVERLOADED"
	CodeTimeout           Code = "TIMEOUT"
	CodeInternal          Code = "INTERNAL"
)

// httpStatus maps each Code to its wire status per spec.md §7.
var httpStatus = map[Code]int{
	CodeValidation:        http.StatusBadRequest,
	CodeNotFound:          http.StatusNotFound,
	CodeConflict:          http.StatusConflict,
	CodeIllegalTransition: http.StatusConflict,
	CodeUnauthorized:      http.StatusUnauthorized,
	CodeForbidden:         http.StatusForbidden,
	CodeAccountLocked:     http.StatusLocked,
	CodeOverloaded:        http.StatusServiceUnavailable,
	CodeTimeout:           http.StatusGatewayTimeout,
	CodeInternal:          http.StatusInternalServerError,
}

// Error is the structured {code, httpStatus, message, details} shape of spec.md §7.
type Error struct {
	Code    Code                   `json:"code"`
	Status  int                    `json:"-"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds an *Error for the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Status: httpStatus[code], Message: message}
}

// Newf is New with fmt.Sprintf-style formatting.
func Newf(code Code, format string, args ...interface{}) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap attaches an underlying cause without changing Message.
func (e *Error) Wrap(cause error) *Error {
	e.cause = cause
	return e
}

// WithDetails attaches structured details (e.g. per-field validation notes).
func (e *Error) WithDetails(d map[string]interface{}) *Error {
	e.Details = d
	return e
}

func Validation(format string, args ...interface{}) *Error {
	return Newf(CodeValidation, format, args...)
}

func NotFound(format string, args ...interface{}) *Error {
	return Newf(CodeNotFound, format, args...)
}

func Conflict(format string, args ...interface{}) *Error {
	return Newf(CodeConflict, format, args...)
}

func IllegalTransition(format string, args ...interface{}) *Error {
	return Newf(CodeIllegalTransition, format, args...)
}

func Unauthorized(format string, args ...interface{}) *Error {
	return Newf(CodeUnauthorized, format, args...)
}

func Forbidden(format string, args ...interface{}) *Error {
	return Newf(CodeForbidden, format, args...)
}

func Overloaded(format string, args ...interface{}) *Error {
	return Newf(CodeOverloaded, format, args...)
}

func Timeout(format string, args ...interface{}) *Error {
	return Newf(CodeTimeout, format, args...)
}

func Internal(cause error) *Error {
	return New(CodeInternal, "internal error").Wrap(cause)
}

// As extracts an *Error from err, if any is in its chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// HTTPStatus returns the wire status for err, defaulting to 500 for
// unclassified errors (spec.md §7's "Unclassified -> 500").
func HTTPStatus(err error) int {
	if e, ok := As(err); ok {
		return e.Status
	}
	return http.StatusInternalServerError
}
