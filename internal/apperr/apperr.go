// Package apperr is the error taxonomy shared by the chat components.
// Every failure that crosses a component boundary is an *Error carrying a Code,
// which the transport layers map to HTTP statuses or socket error events.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeNotFound        Code = "NOT_FOUND"
	CodeUnauthorized    Code = "UNAUTHORIZED"
	CodeTransient       Code = "TRANSIENT"
	CodeInternal        Code = "INTERNAL"
)

type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by code so errors.Is(err, apperr.ErrNotFound) works on wrapped values.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Message == "" && t.Err == nil && t.Code == e.Code
}

// Code sentinels for errors.Is.
var (
	ErrInvalidArgument = &Error{Code: CodeInvalidArgument}
	ErrNotFound        = &Error{Code: CodeNotFound}
	ErrUnauthorized    = &Error{Code: CodeUnauthorized}
	ErrTransient       = &Error{Code: CodeTransient}
)

func InvalidArgument(format string, args ...any) *Error {
	return &Error{Code: CodeInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

func Unauthorized(format string, args ...any) *Error {
	return &Error{Code: CodeUnauthorized, Message: fmt.Sprintf(format, args...)}
}

func Transient(msg string, err error) *Error {
	return &Error{Code: CodeTransient, Message: msg, Err: err}
}

func Internal(msg string, err error) *Error {
	return &Error{Code: CodeInternal, Message: msg, Err: err}
}

// FromStore classifies a storage failure: deadline and cancellation become Transient,
// anything else Internal. Errors that already carry a code pass through.
func FromStore(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || isConnError(err) {
		return Transient(op+": storage unavailable", err)
	}
	return Internal(op, err)
}

// connError is implemented by driver errors that describe a broken connection.
type connError interface {
	SafeToRetry() bool
}

func isConnError(err error) bool {
	var ce connError
	return errors.As(err, &ce) && ce.SafeToRetry()
}

// CodeOf returns the code carried by err, CodeInternal for foreign errors.
func CodeOf(err error) Code {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeInternal
}

// HTTPStatus maps an error to the status code the REST layer answers with.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the text safe to surface to a caller. Internal details are hidden.
func PublicMessage(err error) string {
	var ae *Error
	if !errors.As(err, &ae) {
		return "internal server error"
	}
	switch ae.Code {
	case CodeInternal:
		return "internal server error"
	case CodeTransient:
		return "service temporarily unavailable, retry later"
	default:
		return ae.Message
	}
}

// FromHTTPStatus rebuilds an error from a REST response. Used by the client façade.
func FromHTTPStatus(status int, msg string) *Error {
	code := CodeInternal
	switch {
	case status == http.StatusBadRequest:
		code = CodeInvalidArgument
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		code = CodeUnauthorized
	case status == http.StatusNotFound:
		code = CodeNotFound
	case status == http.StatusServiceUnavailable || status == http.StatusTooManyRequests:
		code = CodeTransient
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &Error{Code: code, Message: msg}
}
