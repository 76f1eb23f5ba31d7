// Package apperr — доменные ошибки и их отображение в HTTP-статусы.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindForbidden
	KindUnauthenticated
	KindInvalidState
	KindAuthFailed
	KindConflict
	KindValidation
	KindRateLimited
)

var kindNames = map[Kind]string{
	KindInternal:        "internal",
	KindNotFound:        "not_found",
	KindForbidden:       "forbidden",
	KindUnauthenticated: "unauthenticated",
	KindInvalidState:    "invalid_state",
	KindAuthFailed:      "auth_failed",
	KindConflict:        "conflict",
	KindValidation:      "validation",
	KindRateLimited:     "rate_limited",
}

func (k Kind) String() string { return kindNames[k] }

// Status: HTTP-код для вида ошибки.
func (k Kind) Status() int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindInvalidState, KindConflict:
		return http.StatusConflict
	case KindAuthFailed, KindValidation:
		return http.StatusBadRequest
	case KindRateLimited:
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is сравнивает только вид, чтобы работало errors.Is(err, apperr.ErrNotFound).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind && t.Msg == ""
}

// Сентинелы для errors.Is.
var (
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrForbidden       = &Error{Kind: KindForbidden}
	ErrUnauthenticated = &Error{Kind: KindUnauthenticated}
	ErrInvalidState    = &Error{Kind: KindInvalidState}
	ErrAuthFailed      = &Error{Kind: KindAuthFailed}
	ErrConflict        = &Error{Kind: KindConflict}
	ErrValidation      = &Error{Kind: KindValidation}
)

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) *Error { return New(KindNotFound, format, args...) }
func Forbidden(format string, args ...any) *Error { return New(KindForbidden, format, args...) }
func Unauthenticated(format string, args ...any) *Error {
	return New(KindUnauthenticated, format, args...)
}
func InvalidState(format string, args ...any) *Error { return New(KindInvalidState, format, args...) }
func AuthFailed(format string, args ...any) *Error { return New(KindAuthFailed, format, args...) }
func Conflict(format string, args ...any) *Error { return New(KindConflict, format, args...) }
func Validation(format string, args ...any) *Error { return New(KindValidation, format, args...) }
func RateLimited(format string, args ...any) *Error {
	return New(KindRateLimited, format, args...)
}

// KindOf возвращает вид ошибки; для чужих ошибок — KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Message: текст для клиента; внутренние детали не раскрываются.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal {
		return e.Msg
	}
	return "internal error"
}
