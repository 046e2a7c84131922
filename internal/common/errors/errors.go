// Package errors provides standardized error handling for the AI extension backend.
package errors

import (
	"fmt"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeEndpointNotFound   ErrorCode = "ENDPOINT_NOT_FOUND"
	ErrCodeMalformedPayload   ErrorCode = "MALFORMED_PAYLOAD"
	ErrCodeFormatParseFailure ErrorCode = "FORMAT_PARSE_FAILURE"

	ErrCodeLLMQueryFailed ErrorCode = "LLM_QUERY_FAILED"
	ErrCodeLLMTimeout     ErrorCode = "LLM_TIMEOUT"

	ErrCodeTableauAuthFailed  ErrorCode = "TABLEAU_AUTH_FAILED"
	ErrCodeTableauFetchFailed ErrorCode = "TABLEAU_FETCH_FAILED"

	ErrCodeSessionNotFound ErrorCode = "SESSION_NOT_FOUND"

	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeDatabaseQueryFailed      ErrorCode = "DATABASE_QUERY_FAILED"

	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// HTTPStatus maps an error code to the response status the API surfaces.
func (e *StandardError) HTTPStatus() int {
	switch e.Code {
	case ErrCodeEndpointNotFound, ErrCodeSessionNotFound:
		return 404
	case ErrCodeMalformedPayload, ErrCodeValidationFailed:
		return 400
	case ErrCodeLLMTimeout:
		return 504
	default:
		return 500
	}
}

// ==========================
// 2. Error Constructors
// ==========================

// NewEndpointNotFoundError creates a non-retryable routing error.
func NewEndpointNotFoundError(endpoint string) *StandardError {
	return &StandardError{
		Code:      ErrCodeEndpointNotFound,
		Message:   "Endpoint profile not found",
		Details:   fmt.Sprintf("endpoint: %s", endpoint),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewMalformedPayloadError creates a non-retryable input error.
func NewMalformedPayloadError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeMalformedPayload,
		Message:   "Request payload could not be parsed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewFormatParseFailureError creates a non-retryable formatting error.
func NewFormatParseFailureError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeFormatParseFailure,
		Message:   "Response text could not be parsed for formatting",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewLLMQueryFailedError creates a retryable model invocation error.
func NewLLMQueryFailedError(model string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeLLMQueryFailed,
		Message:   "LLM completion query failed",
		Details:   fmt.Sprintf("model: %s, error: %s", model, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewLLMTimeoutError creates a retryable model timeout error.
func NewLLMTimeoutError(model string) *StandardError {
	return &StandardError{
		Code:      ErrCodeLLMTimeout,
		Message:   "LLM completion timed out",
		Details:   fmt.Sprintf("model: %s", model),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewTableauAuthFailedError creates a non-retryable Tableau sign-in error.
func NewTableauAuthFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeTableauAuthFailed,
		Message:   "Tableau authentication failed",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewTableauFetchFailedError creates a retryable Tableau data fetch error.
func NewTableauFetchFailedError(viewID string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeTableauFetchFailed,
		Message:   "Tableau view data fetch failed",
		Details:   fmt.Sprintf("viewId: %s, error: %s", viewID, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewSessionNotFoundError creates a non-retryable session lookup error.
func NewSessionNotFoundError(sessionID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeSessionNotFound,
		Message:   "Session not found",
		Details:   fmt.Sprintf("sessionId: %s", sessionID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewDatabaseConnectionFailedError creates a retryable database connection error.
func NewDatabaseConnectionFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabaseConnectionFailed,
		Message:   "Database connection error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewDatabaseQueryFailedError creates a retryable query execution error.
func NewDatabaseQueryFailedError(operation string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabaseQueryFailed,
		Message:   "Database query execution error",
		Details:   fmt.Sprintf("operation: %s, error: %s", operation, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewValidationFailedError creates a non-retryable validation error.
func NewValidationFailedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeValidationFailed,
		Message:   "Request validation failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// AsStandardError returns err as a *StandardError when it is one.
func AsStandardError(err error) (*StandardError, bool) {
	se, ok := err.(*StandardError)
	return se, ok
}
