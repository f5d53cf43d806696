package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"gorm.io/gorm"
)

type Kind int

const (
	Internal Kind = iota
	NotFound
	Invalid
	Conflict
	Unauthorized
	Forbidden
	Locked
	TooManyRequests
)

// Error is a failure the client should see, with the message it should read.
type Error struct {
	Kind    Kind
	Message string
	// Fields maps input names to problems, for validation failures.
	Fields map[string]string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func NotFoundf(format string, args ...any) *Error {
	return New(NotFound, format, args...)
}

func Invalidf(format string, args ...any) *Error {
	return New(Invalid, format, args...)
}

func Conflictf(format string, args ...any) *Error {
	return New(Conflict, format, args...)
}

func Forbiddenf(format string, args ...any) *Error {
	return New(Forbidden, format, args...)
}

func Unauthorizedf(format string, args ...any) *Error {
	return New(Unauthorized, format, args...)
}

// InvalidFields reports per-field validation problems.
func InvalidFields(message string, fields map[string]string) *Error {
	return &Error{Kind: Invalid, Message: message, Fields: fields}
}

// Wrap marks err as internal while keeping it for logs.
func Wrap(err error, message string) *Error {
	return &Error{Kind: Internal, Message: message, Err: err}
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf classifies err. Missing gorm records count as NotFound and
// duplicate keys as Conflict.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return NotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return Conflict
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return Conflict
	}
	return Internal
}

// StatusOf maps err to an HTTP status code.
func StatusOf(err error) int {
	switch KindOf(err) {
	case NotFound:
		return http.StatusNotFound
	case Invalid:
		return http.StatusUnprocessableEntity
	case Conflict:
		return http.StatusConflict
	case Unauthorized:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case Locked:
		return http.StatusLocked
	case TooManyRequests:
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

// MessageOf returns what the client may read about err.
func MessageOf(err error) string {
	if e, ok := As(err); ok && e.Kind != Internal {
		return e.Message
	}
	switch KindOf(err) {
	case NotFound:
		return "Record not found"
	case Conflict:
		return "Record conflicts with an existing one"
	}
	return "Something went wrong"
}
