// SPDX-License-Identifier: Apache-2.0
// Package errors provides typed error handling with rich context for onramp.
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrorCode classifies onramp errors for monitoring and recovery.
type ErrorCode string

const (
	// CodeInternal indicates an internal system error.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeInvalidInput indicates the input was invalid.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeNotFound indicates a resource was not found.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeAlreadyExists indicates a create lost a first-writer-wins race.
	CodeAlreadyExists ErrorCode = "ALREADY_EXISTS"

	// CodeUnauthorized indicates an authorization verdict was negative.
	CodeUnauthorized ErrorCode = "UNAUTHORIZED"

	// CodeUnreachable indicates a collaborator could not be reached.
	CodeUnreachable ErrorCode = "UNREACHABLE"

	// CodeStepFailed indicates a provisioning step failed downstream.
	CodeStepFailed ErrorCode = "STEP_FAILED"

	// CodeTimeout indicates an operation exceeded its time limit.
	CodeTimeout ErrorCode = "TIMEOUT"
)

// OnrampError is a typed error with rich context for observability.
// It implements the error interface and can be unwrapped with errors.As().
type OnrampError struct {
	Code        ErrorCode
	Message     string
	Err         error
	Context     map[string]interface{}
	Recoverable bool
	StatusCode  int // For HTTP responses
}

// Error implements the error interface.
func (e *OnrampError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap for error chain traversal.
func (e *OnrampError) Unwrap() error {
	return e.Err
}

// MarshalJSON implements json.Marshaler for structured logging.
func (e *OnrampError) MarshalJSON() ([]byte, error) {
	type Alias OnrampError
	return json.Marshal(&struct {
		Message     string `json:"message"`
		Code        string `json:"code"`
		Err         string `json:"error,omitempty"`
		Recoverable bool   `json:"recoverable"`
		*Alias
	}{
		Message:     e.Error(),
		Code:        string(e.Code),
		Err:         fmt.Sprintf("%v", e.Err),
		Recoverable: e.Recoverable,
		Alias:       (*Alias)(e),
	})
}

// New creates a new OnrampError with the given code, message, and cause.
func New(code ErrorCode, msg string, cause error) *OnrampError {
	return &OnrampError{
		Code:       code,
		Message:    msg,
		Err:        cause,
		Context:    make(map[string]interface{}),
		StatusCode: codeToStatusCode(code),
	}
}

// WithContext adds a key-value pair to the error context.
// Returns the error for method chaining.
func (e *OnrampError) WithContext(key string, value interface{}) *OnrampError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithRecoverable sets whether the error can be recovered from.
// Returns the error for method chaining.
func (e *OnrampError) WithRecoverable(recoverable bool) *OnrampError {
	e.Recoverable = recoverable
	return e
}

// AsOnrampError attempts to convert an error to an OnrampError.
// Returns the error as OnrampError if it is one, or wraps it otherwise.
func AsOnrampError(err error) *OnrampError {
	if err == nil {
		return nil
	}
	var oe *OnrampError
	if errors.As(err, &oe) {
		return oe
	}
	return New(CodeInternal, "wrapped error", err)
}

// Code returns the error code, or CodeInternal for untyped errors.
func Code(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var oe *OnrampError
	if errors.As(err, &oe) {
		return oe.Code
	}
	return CodeInternal
}

// Is reports whether err carries the given code.
func Is(err error, code ErrorCode) bool {
	return err != nil && Code(err) == code
}

// IsNotFound reports whether err is a NOT_FOUND error.
func IsNotFound(err error) bool { return Is(err, CodeNotFound) }

// IsAlreadyExists reports whether err is an ALREADY_EXISTS error.
func IsAlreadyExists(err error) bool { return Is(err, CodeAlreadyExists) }

// IsRecoverable reports whether err is marked recoverable. Untyped errors
// are not considered recoverable.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	var oe *OnrampError
	if errors.As(err, &oe) {
		return oe.Recoverable
	}
	return false
}

// codeToStatusCode maps error codes to HTTP status codes.
func codeToStatusCode(code ErrorCode) int {
	switch code {
	case CodeNotFound:
		return 404
	case CodeAlreadyExists:
		return 409
	case CodeUnauthorized:
		return 403
	case CodeInvalidInput:
		return 400
	case CodeTimeout:
		return 408
	case CodeUnreachable:
		return 503
	default:
		return 500
	}
}
