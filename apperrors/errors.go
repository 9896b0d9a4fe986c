package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for the HTTP layer.
type Kind string

const (
	KindUnauthenticated     Kind = "UNAUTHENTICATED"
	KindForbidden           Kind = "FORBIDDEN"
	KindNotFound            Kind = "NOT_FOUND"
	KindQuotaExceeded       Kind = "QUOTA_EXCEEDED"
	KindConflict            Kind = "CONFLICT"
	KindInvalidArgument     Kind = "INVALID_ARGUMENT"
	KindPaymentNotCompleted Kind = "PAYMENT_NOT_COMPLETED"
	KindExternal            Kind = "EXTERNAL_SERVICE_ERROR"
)

var statusByKind = map[Kind]int{
	KindUnauthenticated:     http.StatusUnauthorized,
	KindForbidden:           http.StatusForbidden,
	KindNotFound:            http.StatusNotFound,
	KindQuotaExceeded:       http.StatusForbidden,
	KindConflict:            http.StatusBadRequest,
	KindInvalidArgument:     http.StatusBadRequest,
	KindPaymentNotCompleted: http.StatusBadRequest,
	KindExternal:            http.StatusInternalServerError,
}

// Error is a business error that carries the message shown to the client.
// Err holds internal detail and is never rendered.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StatusCode maps the error kind to an HTTP status.
func (e *Error) StatusCode() int {
	if code, ok := statusByKind[e.Kind]; ok {
		return code
	}
	return http.StatusInternalServerError
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Unauthenticated(message string) *Error { return New(KindUnauthenticated, message) }
func Forbidden(message string) *Error       { return New(KindForbidden, message) }
func NotFound(message string) *Error        { return New(KindNotFound, message) }
func QuotaExceeded(message string) *Error   { return New(KindQuotaExceeded, message) }
func Conflict(message string) *Error        { return New(KindConflict, message) }
func InvalidArgument(message string) *Error { return New(KindInvalidArgument, message) }

func PaymentNotCompleted(message string) *Error {
	return New(KindPaymentNotCompleted, message)
}

// External wraps a database or gateway failure. The client only ever sees a
// generic message.
func External(err error) *Error {
	return Wrap(KindExternal, "Something went wrong", err)
}

// As extracts an *Error from err.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// KindOf returns the kind of err, treating unknown errors as external failures.
func KindOf(err error) Kind {
	if appErr, ok := As(err); ok {
		return appErr.Kind
	}
	return KindExternal
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	appErr, ok := As(err)
	return ok && appErr.Kind == kind
}
