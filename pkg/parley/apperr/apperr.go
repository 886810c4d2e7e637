// Package apperr defines the closed set of failure kinds the API reports and
// the HTTP status each kind maps to.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"gorm.io/gorm"
)

// Kind classifies a failure
type Kind string

const (
	KindValidation Kind = "validation"
	KindAuth       Kind = "auth"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindInvariant  Kind = "invariant"
	KindInternal   Kind = "internal"
)

var statusByKind = map[Kind]int{
	KindValidation: http.StatusBadRequest,
	KindAuth:       http.StatusForbidden,
	KindNotFound:   http.StatusNotFound,
	KindConflict:   http.StatusConflict,
	KindInvariant:  http.StatusUnprocessableEntity,
	KindInternal:   http.StatusInternalServerError,
}

// Error is a typed failure. Status, when non-zero, overrides the status the
// kind maps to.
type Error struct {
	Kind    Kind
	Message string
	Status  int
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

// StatusCode returns the HTTP status for the error
func (e *Error) StatusCode() int {
	if e.Status != 0 {
		return e.Status
	}
	if status, ok := statusByKind[e.Kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Forbidden is an authorization failure for an authenticated caller
func Forbidden(format string, args ...any) *Error {
	return &Error{Kind: KindAuth, Message: fmt.Sprintf(format, args...)}
}

// Unauthenticated is an authorization failure for a missing or bad identity
func Unauthenticated(format string, args ...any) *Error {
	return &Error{Kind: KindAuth, Message: fmt.Sprintf(format, args...), Status: http.StatusUnauthorized}
}

func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func Invariant(format string, args ...any) *Error {
	return &Error{Kind: KindInvariant, Message: fmt.Sprintf(format, args...)}
}

// Internal wraps an unexpected failure. The message is what clients see.
func Internal(err error, message string) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// From converts any error into an *Error. Unknown errors become internal
// failures; a missing GORM record becomes not-found.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &Error{Kind: KindNotFound, Message: "Resource not found", Err: err}
	}
	return Internal(err, "Internal server error")
}

// Is reports whether err carries the given kind
func Is(err error, kind Kind) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Kind == kind
}
