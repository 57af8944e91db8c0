package topichub

import (
	"errors"
	"fmt"
)

// Error is a categorized engine error.
type Error struct {
	// Code is a machine-readable error code
	Code string

	// Message is a human-readable error message
	Message string

	// Err is the underlying error (if any)
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Error codes for engine operations.
const (
	// ErrCodeNoData indicates no data was found.
	ErrCodeNoData = "NO_DATA"

	// ErrCodeNotFound indicates a lookup for a named entity failed.
	ErrCodeNotFound = "NOT_FOUND"

	// ErrCodeValidation indicates validation failed.
	ErrCodeValidation = "VALIDATION_ERROR"

	// ErrCodeConfiguration indicates invalid configuration.
	ErrCodeConfiguration = "CONFIGURATION_ERROR"

	// ErrCodeDatabase indicates a database operation failed.
	ErrCodeDatabase = "DATABASE_ERROR"

	// ErrCodeForbidden indicates an endpoint or client attempted an
	// operation its permissions do not allow.
	ErrCodeForbidden = "FORBIDDEN"
)

// ErrNoData is returned when a query returns no results.
// This is not necessarily an error condition in all cases.
var ErrNoData = &Error{
	Code:    ErrCodeNoData,
	Message: "no data found",
}

// NewError creates a new Error with the given code and message.
func NewError(code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// NewErrorWithCause creates a new Error wrapping an underlying error.
func NewErrorWithCause(code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     cause,
	}
}

func hasCode(err error, code string) bool {
	var engineErr *Error
	if errors.As(err, &engineErr) {
		return engineErr.Code == code
	}
	return false
}

// IsNoData checks if an error is ErrNoData.
func IsNoData(err error) bool {
	return hasCode(err, ErrCodeNoData) || errors.Is(err, ErrNoData)
}

// IsNotFound checks if an error carries the NOT_FOUND code.
func IsNotFound(err error) bool {
	return hasCode(err, ErrCodeNotFound)
}
