package types

import (
	"errors"
	"fmt"
	"net/http"
)

// Error kinds. Operations wrap one of these so transports can pick a status.
var (
	ErrNotFound      = errors.New("not found")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrInvalid       = errors.New("invalid request")
	ErrUnprocessable = errors.New("unprocessable request")
	ErrUnsupported   = errors.New("unsupported")
	ErrConflict      = errors.New("conflict")
)

// DetailError pairs an error kind with the message shown to clients.
type DetailError struct {
	Kind   error
	Detail string
}

func (e *DetailError) Error() string { return e.Detail }

func (e *DetailError) Unwrap() error { return e.Kind }

func detail(kind error, format string, args ...interface{}) error {
	return &DetailError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// NotFound builds an ErrNotFound error with a client-facing detail.
func NotFound(format string, args ...interface{}) error {
	return detail(ErrNotFound, format, args...)
}

// Unauthorized builds an ErrUnauthorized error with a client-facing detail.
func Unauthorized(format string, args ...interface{}) error {
	return detail(ErrUnauthorized, format, args...)
}

// Invalid builds an ErrInvalid error with a client-facing detail.
func Invalid(format string, args ...interface{}) error {
	return detail(ErrInvalid, format, args...)
}

// Unprocessable builds an ErrUnprocessable error with a client-facing detail.
func Unprocessable(format string, args ...interface{}) error {
	return detail(ErrUnprocessable, format, args...)
}

// Unsupported builds an ErrUnsupported error with a client-facing detail.
func Unsupported(format string, args ...interface{}) error {
	return detail(ErrUnsupported, format, args...)
}

// Conflict builds an ErrConflict error with a client-facing detail.
func Conflict(format string, args ...interface{}) error {
	return detail(ErrConflict, format, args...)
}

// StatusCode maps an error to the HTTP status used by the API.
// Unknown errors map to 500.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrUnsupported):
		return http.StatusNotFound
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrInvalid), errors.Is(err, ErrConflict):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnprocessable):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// DetailOf returns the client-facing message of err. Errors without a
// detail get a generic message so internal failures are not leaked.
func DetailOf(err error) string {
	var de *DetailError
	if errors.As(err, &de) {
		return de.Detail
	}
	return "Internal server error"
}
