// Package errclass defines the stable error classes returned by the hazard
// workflow. Callers match with errors.Is against the package-level values;
// the Code is what travels over the API.
package errclass

import (
	"errors"
	"fmt"
)

// Error is a machine-readable error class with an optional message and cause.
type Error struct {
	Code    string
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e.Code == t.Code
}

func (e *Error) Unwrap() error { return e.cause }

// WithMessage returns a new Error with the same Code but a specific message.
func (e *Error) WithMessage(msg string) *Error {
	return &Error{Code: e.Code, Message: msg}
}

// WithMessagef returns a new Error with a formatted message.
func (e *Error) WithMessagef(format string, args ...any) *Error {
	return &Error{Code: e.Code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches cause to a copy of e. The message is taken from the cause
// when e carries none.
func (e *Error) Wrap(cause error) *Error {
	msg := e.Message
	if msg == "" && cause != nil {
		msg = cause.Error()
	}
	return &Error{Code: e.Code, Message: msg, cause: cause}
}

var (
	ErrNotFound          = &Error{Code: "E_NOT_FOUND"}
	ErrValidation        = &Error{Code: "E_VALIDATION"}
	ErrInvalidTransition = &Error{Code: "E_INVALID_TRANSITION"}
	ErrInvalidState      = &Error{Code: "E_INVALID_STATE"}
	ErrForbidden         = &Error{Code: "E_FORBIDDEN"}
	ErrConflict          = &Error{Code: "E_CONFLICT"}
	ErrStorage           = &Error{Code: "E_STORAGE"}
)

// Code returns the class code of err, or "" when err carries none.
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Storage wraps an underlying persistence failure. Errors that already carry
// a class are returned untouched.
func Storage(err error) error {
	if err == nil {
		return nil
	}
	if Code(err) != "" {
		return err
	}
	return ErrStorage.Wrap(err)
}
