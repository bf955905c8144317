package core

import "fmt"

// Error represents a structured error with code and optional cause.
type Error struct {
	Code    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is matching by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WrapError creates a new error with the same code but with a cause.
func WrapError(base *Error, cause error) *Error {
	return &Error{
		Code:    base.Code,
		Message: base.Message,
		Cause:   cause,
	}
}

// Predefined errors.
//
// Note the deliberate absences: a pick with no price data, a pick the account
// cannot afford, and a pick excluded by the regime filter are normal outcomes
// of a run (a guaranteed-loss trade or a recorded skip), never errors.
var (
	// Data errors
	ErrNoPicksFound = &Error{Code: "NO_PICKS_FOUND", Message: "no picks matched the requested filter"}
	ErrNoBars       = &Error{Code: "NO_BARS", Message: "no price bars loaded for ticker"}
	ErrBadBarOrder  = &Error{Code: "BAD_BAR_ORDER", Message: "price bars out of date order"}

	// Config errors
	ErrConfigInvalid = &Error{Code: "CONFIG_INVALID", Message: "configuration invalid"}
	ErrConfigMissing = &Error{Code: "CONFIG_MISSING", Message: "required configuration missing"}

	// Grid scheduler errors
	ErrStoreFailed     = &Error{Code: "STORE_FAILED", Message: "grid store operation failed"}
	ErrBatchOutOfRange = &Error{Code: "BATCH_OUT_OF_RANGE", Message: "batch index beyond planned combination space"}
	ErrBatchNotReady   = &Error{Code: "BATCH_NOT_READY", Message: "an earlier batch still has pending combinations"}
	ErrRunNotFound     = &Error{Code: "RUN_NOT_FOUND", Message: "no simulation run state recorded"}
	ErrArchiveFailed   = &Error{Code: "ARCHIVE_FAILED", Message: "archiving grid run failed"}
	ErrJobNotFound     = &Error{Code: "JOB_NOT_FOUND", Message: "job not found"}
)
