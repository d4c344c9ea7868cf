package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode identifies a class of calendar error.
type ErrorCode string

const (
	ErrParse          ErrorCode = "PARSE_ERROR"     // 400
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST" // 400
	ErrNotFound       ErrorCode = "NOT_FOUND"       // 404
	ErrInvalidRange   ErrorCode = "INVALID_RANGE"   // 422
	ErrPersistence    ErrorCode = "PERSISTENCE"     // 503
)

// CalError is a structured error with a code, an HTTP-ish status and details.
type CalError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *CalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause to errors.Is / errors.As.
func (e *CalError) Unwrap() error {
	return e.Err
}

// NewParse creates a 400 error for malformed time or date input.
func NewParse(input, msg string) *CalError {
	return &CalError{
		Code:    ErrParse,
		Status:  400,
		Message: fmt.Sprintf("cannot parse %q: %s", input, msg),
		Details: map[string]any{"input": input},
	}
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *CalError {
	return &CalError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for an unknown event id.
func NewNotFound(id string) *CalError {
	return &CalError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("event not found: %s", id),
		Details: map[string]any{"id": id},
	}
}

// NewInvalidRange creates a 422 error for a span that violates end > start or
// the minimum duration.
func NewInvalidRange(start, end, minDuration int) *CalError {
	return &CalError{
		Code:    ErrInvalidRange,
		Status:  422,
		Message: fmt.Sprintf("invalid time range %d-%d (minimum duration %d minutes)", start, end, minDuration),
		Details: map[string]any{"start_minute": start, "end_minute": end, "min_duration": minDuration},
	}
}

// NewPersistence creates a 503 error wrapping a storage failure.
func NewPersistence(err error) *CalError {
	return &CalError{
		Code:    ErrPersistence,
		Status:  503,
		Message: "changes may not survive reload",
		Err:     err,
	}
}

// Is reports whether err (or anything it wraps) is a CalError with the given code.
func Is(err error, code ErrorCode) bool {
	var cErr *CalError
	if stderrors.As(err, &cErr) {
		return cErr.Code == code
	}
	return false
}

// StatusOf returns the status carried by a CalError, or 500 for anything else.
func StatusOf(err error) int {
	var cErr *CalError
	if stderrors.As(err, &cErr) {
		return cErr.Status
	}
	return 500
}
