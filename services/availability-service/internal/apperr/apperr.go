// Package apperr classifies failures so transports can map them to status
// codes. Conflict is expected under normal load and must stay distinct from
// Internal.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindValidation     Kind = "validation"
	KindUnauthorized   Kind = "unauthorized"
	KindForbidden      Kind = "forbidden"
	KindNotFound       Kind = "not_found"
	KindConflict       Kind = "conflict"
	KindGuardViolation Kind = "guard_violation"
	KindInternal       Kind = "internal"
)

// HTTPStatus maps a kind to its response status.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation, KindGuardViolation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

type Error struct {
	Kind      Kind
	Msg       string
	Err       error
	Retryable bool
}

func (e *Error) Error() string {
	if e.Err != nil && e.Msg != "" {
		return e.Msg + ": " + e.Err.Error()
	}
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

func Unauthorized(msg string) error {
	return &Error{Kind: KindUnauthorized, Msg: msg}
}

func Forbidden(msg string) error {
	return &Error{Kind: KindForbidden, Msg: msg}
}

func NotFound(msg string) error {
	return &Error{Kind: KindNotFound, Msg: msg}
}

func Conflict(msg string) error {
	return &Error{Kind: KindConflict, Msg: msg}
}

func Guard(msg string) error {
	return &Error{Kind: KindGuardViolation, Msg: msg}
}

// Internal wraps a store or transport failure. Deadline and cancellation
// errors are flagged retryable.
func Internal(msg string, err error) error {
	return &Error{
		Kind:      KindInternal,
		Msg:       msg,
		Err:       err,
		Retryable: errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled),
	}
}

// KindOf returns the kind of err, defaulting to Internal for unclassified errors.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// PublicMessage is what may be sent to a caller. Internal causes are hidden.
func PublicMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return "internal error"
	}
	if e.Kind == KindInternal {
		if e.Retryable {
			return "temporarily unavailable, retry later"
		}
		return "internal error"
	}
	if e.Msg != "" {
		return e.Msg
	}
	return string(e.Kind)
}

func IsRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Retryable
}
