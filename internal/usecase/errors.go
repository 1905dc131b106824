package usecase

import (
	"errors"
	"fmt"
)

// ErrorCode classifies why a turn failed. Every failed turn gets the same
// apology; the code and reason only reach logs and the turn archive.
type ErrorCode string

const (
	ErrorInvalidInput ErrorCode = "INVALID_INPUT"
	ErrorRateLimited  ErrorCode = "RATE_LIMITED"
	ErrorUpstream     ErrorCode = "UPSTREAM_ERROR"
	ErrorInternal     ErrorCode = "INTERNAL_ERROR"
)

type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

// classify reports the code and reason of err, treating anything that is
// not an *Error as an internal failure.
func classify(err error) (ErrorCode, string) {
	var ucErr *Error
	if errors.As(err, &ucErr) {
		return ucErr.Code, ucErr.Reason
	}
	return ErrorInternal, "unclassified"
}
