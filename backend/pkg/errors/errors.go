package errors

import (
	"fmt"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeProtocol represents malformed or unrecognized inbound envelopes
	ErrorTypeProtocol ErrorType = "protocol"
	// ErrorTypeKnowledge represents Knowledge Service call failures
	ErrorTypeKnowledge ErrorType = "knowledge"
	// ErrorTypeCompletion represents Completion Service call failures
	ErrorTypeCompletion ErrorType = "completion"
	// ErrorTypeSession represents session lifecycle errors
	ErrorTypeSession ErrorType = "session"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeContext represents context cancellation/timeout errors
	ErrorTypeContext ErrorType = "context"
)

// BaseError is the base error type with common fields
type BaseError struct {
	Type      ErrorType
	Message   string
	Timestamp time.Time
	Err       error // Wrapped error
}

// Error implements the error interface
func (e *BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error for error unwrapping
func (e *BaseError) Unwrap() error {
	return e.Err
}

// Base exposes the embedded BaseError; typed wrappers inherit it, which is
// what lets IsErrorType classify them
func (e *BaseError) Base() *BaseError {
	return e
}

// NewBaseError creates a new base error
func NewBaseError(errType ErrorType, message string, err error) *BaseError {
	return &BaseError{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// Protocol Errors

// ErrUnknownKind is returned when an inbound envelope carries an unrecognized kind
type ErrUnknownKind struct {
	*BaseError
	Kind string
}

func NewUnknownKind(kind string) *ErrUnknownKind {
	return &ErrUnknownKind{
		BaseError: NewBaseError(ErrorTypeProtocol, fmt.Sprintf("unknown message kind: %s", kind), nil),
		Kind:      kind,
	}
}

// ErrMalformedPayload is returned when an envelope payload fails validation for its kind
type ErrMalformedPayload struct {
	*BaseError
	Kind string
}

func NewMalformedPayload(kind string, err error) *ErrMalformedPayload {
	return &ErrMalformedPayload{
		BaseError: NewBaseError(ErrorTypeProtocol, fmt.Sprintf("malformed %s payload", kind), err),
		Kind:      kind,
	}
}

// Knowledge Errors

// ErrKnowledgeUnavailable is returned when the Knowledge Service cannot be reached
type ErrKnowledgeUnavailable struct {
	*BaseError
	Operation string
}

func NewKnowledgeUnavailable(operation string, err error) *ErrKnowledgeUnavailable {
	return &ErrKnowledgeUnavailable{
		BaseError: NewBaseError(ErrorTypeKnowledge, fmt.Sprintf("knowledge service call failed: %s", operation), err),
		Operation: operation,
	}
}

// ErrKnowledgeBadStatus is returned when the Knowledge Service answers with a non-2xx status
type ErrKnowledgeBadStatus struct {
	*BaseError
	Operation  string
	StatusCode int
}

func NewKnowledgeBadStatus(operation string, statusCode int) *ErrKnowledgeBadStatus {
	return &ErrKnowledgeBadStatus{
		BaseError:  NewBaseError(ErrorTypeKnowledge, fmt.Sprintf("knowledge service returned %d for %s", statusCode, operation), nil),
		Operation:  operation,
		StatusCode: statusCode,
	}
}

// Completion Errors

// ErrCompletionFailed is returned when the Completion Service request fails after retries
type ErrCompletionFailed struct {
	*BaseError
	Model    string
	Attempts int
}

func NewCompletionFailed(model string, attempts int, err error) *ErrCompletionFailed {
	return &ErrCompletionFailed{
		BaseError: NewBaseError(ErrorTypeCompletion, fmt.Sprintf("completion request failed after %d attempts", attempts), err),
		Model:     model,
		Attempts:  attempts,
	}
}

// ErrCompletionEmpty is returned when the Completion Service returns no choices
var ErrCompletionEmpty = NewBaseError(ErrorTypeCompletion, "no choices in completion response", nil)

// Session Errors

// ErrSessionNotFound is returned when a session id is not in the registry
type ErrSessionNotFound struct {
	*BaseError
	SessionID string
}

func NewSessionNotFound(sessionID string) *ErrSessionNotFound {
	return &ErrSessionNotFound{
		BaseError: NewBaseError(ErrorTypeSession, fmt.Sprintf("session not found: %s", sessionID), nil),
		SessionID: sessionID,
	}
}

// ErrSessionClosed is returned when writing to a session whose connection is gone
var ErrSessionClosed = NewBaseError(ErrorTypeSession, "session closed", nil)

// Config Errors

// ErrConfigMissingRequired is returned when a required config value is missing
type ErrConfigMissingRequired struct {
	*BaseError
	Field string
}

func NewConfigMissingRequired(field string) *ErrConfigMissingRequired {
	return &ErrConfigMissingRequired{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("missing required config: %s", field), nil),
		Field:     field,
	}
}

// Context Errors

// ErrContextCancelled is returned when context is cancelled mid-operation
type ErrContextCancelled struct {
	*BaseError
	Operation string
}

func NewContextCancelled(operation string, err error) *ErrContextCancelled {
	return &ErrContextCancelled{
		BaseError: NewBaseError(ErrorTypeContext, fmt.Sprintf("context cancelled: %s", operation), err),
		Operation: operation,
	}
}

// Helper functions

// IsErrorType checks if an error is of a specific type
func IsErrorType(err error, errType ErrorType) bool {
	if based, ok := err.(interface{ Base() *BaseError }); ok {
		return based.Base().Type == errType
	}
	// Check wrapped errors
	if wrapper, ok := err.(interface{ Unwrap() error }); ok {
		if inner := wrapper.Unwrap(); inner != nil {
			return IsErrorType(inner, errType)
		}
	}
	return false
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	// Context errors are not retryable
	if IsErrorType(err, ErrorTypeContext) {
		return false
	}
	// Protocol errors are caller mistakes, retrying won't help
	if IsErrorType(err, ErrorTypeProtocol) {
		return false
	}
	// Gateway calls may hit transient network issues
	if IsErrorType(err, ErrorTypeKnowledge) || IsErrorType(err, ErrorTypeCompletion) {
		return true
	}
	return false
}
