package service

import (
	"errors"
	"fmt"
)

// Code classifies a service failure for the transport layer. The API
// maps codes to HTTP statuses; callers that drive a chat front end can
// use them to decide whether to re-prompt.
type Code string

const (
	CodeInvalidArgument    Code = "invalid_argument"
	CodeFailedPrecondition Code = "failed_precondition"
	CodeNotFound           Code = "not_found"
	CodeUnauthenticated    Code = "unauthenticated"
	CodeInternal           Code = "internal"
)

// Error carries a code alongside the underlying failure.
type Error struct {
	Code Code
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// newError wraps err with the given code. A nil err is replaced with a
// generic message so Error() never prints "<nil>".
func newError(code Code, err error) *Error {
	if err == nil {
		err = errors.New("unknown error")
	}
	return &Error{Code: code, Err: err}
}

func invalidArgument(format string, args ...any) *Error {
	return newError(CodeInvalidArgument, fmt.Errorf(format, args...))
}

func internalError(err error) *Error {
	return newError(CodeInternal, err)
}

// Unauthenticated wraps err as an unauthenticated failure. Exported for
// the transport layer's token checks.
func Unauthenticated(err error) *Error {
	return newError(CodeUnauthenticated, err)
}

// CodeOf extracts the service code from err, or CodeInternal when the
// error did not originate in this package.
func CodeOf(err error) Code {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return CodeInternal
}

// Sentinel failures the front end is expected to branch on.
var (
	// ErrNoObligations means the context has no recorded obligations,
	// so there is nothing to balance or settle.
	ErrNoObligations = errors.New("no obligations recorded in this context")

	// ErrNotEnoughUsers rejects an equal split in a context with fewer
	// than two registered users.
	ErrNotEnoughUsers = errors.New("equal split needs at least two registered users")

	// ErrNameTaken rejects a registration whose name collides with
	// another user in the same context.
	ErrNameTaken = errors.New("name already taken in this context")

	// ErrUnknownCurrency rejects a currency code outside the configured
	// catalogue.
	ErrUnknownCurrency = errors.New("unknown currency")

	// ErrNothingToRecord rejects a payment whose split resolves to zero
	// obligations, e.g. a direct payment to oneself.
	ErrNothingToRecord = errors.New("payment resolves to no obligations")
)
