// Package apperr defines the error kinds shared by the catalog, tracker, users and webhook layers.
package apperr

import (
	"errors"
	"fmt"
)

// Error kinds. Transport code maps these to HTTP statuses with errors.Is.
var (
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrPersistence  = errors.New("persistence failure")
	ErrUnavailable  = errors.New("data unavailable")
	ErrSignature    = errors.New("signature invalid")
)

// Error carries an operation code ("tracker.add.entity_not_found") together with its kind.
type Error struct {
	kind    error
	code    string
	details any
	err     error
}

// New builds an Error for the operation and reason, classified under kind.
func New(kind error, operation, reason string, cause error) *Error {
	return &Error{
		kind: kind,
		code: fmt.Sprintf("%s.%s", operation, reason),
		err:  cause,
	}
}

// Validation builds a validation Error that exposes details to the client.
func Validation(operation, reason string, details any) *Error {
	e := New(ErrValidation, operation, reason, nil)
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error {
	return e.err
}

// Is reports whether target is the kind of this error.
func (e *Error) Is(target error) bool {
	return e.kind != nil && target == e.kind
}

// Code returns the operation.reason code.
func (e *Error) Code() string {
	return e.code
}

// Details returns client-facing details, if any.
func (e *Error) Details() any {
	return e.details
}

// Kind returns the sentinel the error is classified under.
func (e *Error) Kind() error {
	return e.kind
}

// CodeOf returns the code of the first *Error in the chain, or "".
func CodeOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.code
	}
	return ""
}

// DetailsOf returns the details of the first *Error in the chain, or nil.
func DetailsOf(err error) any {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.details
	}
	return nil
}

// KindOf returns the kind of the outermost *Error in the chain, or nil.
// Wrapping errors re-classify their causes, so only the outermost kind counts.
func KindOf(err error) error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.kind
	}
	return nil
}
