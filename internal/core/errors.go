// internal/core/errors.go
package core

import (
	"errors"
	"fmt"
)

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

// Predefined errors
var (
	// Data errors
	ErrSymbolNotFound   = &Error{Code: "SYMBOL_NOT_FOUND", Message: "symbol not found"}
	ErrNoData           = &Error{Code: "NO_DATA", Message: "no data available"}
	ErrFetchFailed      = &Error{Code: "FETCH_FAILED", Message: "price fetch failed"}
	ErrInsufficientData = &Error{Code: "INSUFFICIENT_DATA", Message: "insufficient data for valuation"}

	// Invariant violations. These abort a run.
	ErrLookAhead      = &Error{Code: "LOOK_AHEAD", Message: "data dated after as-of date"}
	ErrAsOfOutOfRange = &Error{Code: "ASOF_OUT_OF_RANGE", Message: "as-of date outside period bucket"}
	ErrOutOfOrder     = &Error{Code: "OUT_OF_ORDER", Message: "observation stream not in ascending order"}

	// Engine errors
	ErrStrategyFailed = &Error{Code: "STRATEGY_FAILED", Message: "strategy evaluation failed"}
	ErrSinkFailed     = &Error{Code: "SINK_FAILED", Message: "sink write failed"}

	// Config errors
	ErrConfigInvalid = &Error{Code: "CONFIG_INVALID", Message: "configuration invalid"}
	ErrConfigMissing = &Error{Code: "CONFIG_MISSING", Message: "required configuration missing"}
)

// IsInvariantViolation reports whether err breaks the no-look-ahead or
// ordering contract. Such errors are never recovered.
func IsInvariantViolation(err error) bool {
	return errors.Is(err, ErrLookAhead) ||
		errors.Is(err, ErrAsOfOutOfRange) ||
		errors.Is(err, ErrOutOfOrder)
}
