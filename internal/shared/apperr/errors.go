// Package apperr defines the error taxonomy shared by every component.
//
// Each error carries a Kind that the HTTP layer maps to a status code.
// Components wrap lower-level failures with the kind that best describes
// them to the caller:
//
//	if err := repo.Save(ctx, rec); err != nil {
//		return apperr.Wrap(err, apperr.Internal, "save build record")
//	}
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers.
type Kind string

const (
	InputInvalid    Kind = "input-invalid"
	NotFound        Kind = "not-found"
	Forbidden       Kind = "forbidden"
	Conflict        Kind = "conflict"
	RateLimited     Kind = "rate-limited"
	UpstreamFailure Kind = "upstream-failure"
	BuildFailed     Kind = "build-failed"
	Internal        Kind = "internal"
)

// Error is a classified error with an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	if e.Message == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap returns the cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error with the same kind and no message, so that
// errors.Is(err, apperr.E(apperr.NotFound, "")) works as a kind check.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

// E creates a new classified error.
func E(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err with kind and a context message. A nil err yields nil.
func Wrap(err error, kind Kind, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of the outermost classified error in the chain,
// or Internal when the chain carries none.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns the caller-facing message for err. Internal errors never
// leak their cause; input errors always carry it.
func Message(err error) string {
	var e *Error
	if !errors.As(err, &e) || e.Kind == Internal {
		return "internal error"
	}
	if e.Kind == InputInvalid && e.Err != nil {
		return e.Error()
	}
	if e.Message != "" {
		return e.Message
	}
	return e.Error()
}
