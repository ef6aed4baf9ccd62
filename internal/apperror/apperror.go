package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error kinds. Match with errors.Is.
var (
	ErrValidation        = errors.New("validation error")
	ErrConflict          = errors.New("conflict")
	ErrForbidden         = errors.New("forbidden")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrNotFound          = errors.New("not found")
	ErrTransport         = errors.New("transport error")
	ErrUnauthorized      = errors.New("unauthorized")
)

// Error carries a kind, a human readable message and an optional cause.
type Error struct {
	Kind error
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newf(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) error { return newf(ErrValidation, format, args...) }
func Conflict(format string, args ...any) error   { return newf(ErrConflict, format, args...) }
func Forbidden(format string, args ...any) error  { return newf(ErrForbidden, format, args...) }
func NotFound(format string, args ...any) error   { return newf(ErrNotFound, format, args...) }

func Unauthorized(format string, args ...any) error {
	return newf(ErrUnauthorized, format, args...)
}

func InsufficientStock(format string, args ...any) error {
	return newf(ErrInsufficientStock, format, args...)
}

// Transport wraps a collaborator failure. The cause stays reachable through errors.Unwrap.
func Transport(err error, format string, args ...any) error {
	e := newf(ErrTransport, format, args...)
	e.Err = err
	return e
}

// HTTPStatus maps an error kind onto the status code the API responds with.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrInsufficientStock):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// FromStatus rebuilds an error kind from an API status code and message.
func FromStatus(status int, msg string) error {
	switch status {
	case http.StatusBadRequest:
		return Validation("%s", msg)
	case http.StatusUnauthorized:
		return Unauthorized("%s", msg)
	case http.StatusForbidden:
		return Forbidden("%s", msg)
	case http.StatusNotFound:
		return NotFound("%s", msg)
	case http.StatusConflict:
		return Conflict("%s", msg)
	case http.StatusUnprocessableEntity:
		return InsufficientStock("%s", msg)
	default:
		return Transport(fmt.Errorf("status %d", status), "%s", msg)
	}
}
