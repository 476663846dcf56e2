package errors

import (
	"fmt"
)

// ErrorCode represents a specific error type for chat operations.
type ErrorCode string

const (
	// ErrCodeUnauthenticated indicates no valid user session.
	ErrCodeUnauthenticated ErrorCode = "UNAUTHENTICATED"
	// ErrCodeUnauthorized indicates the caller does not own the resource.
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	// ErrCodeInvalidArgument indicates invalid input parameters.
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"
	// ErrCodeInvalidModel indicates a model identifier outside the allow-list.
	ErrCodeInvalidModel ErrorCode = "INVALID_MODEL"
	// ErrCodeNotFound indicates the referenced record does not exist.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeNothingToRetry indicates no failed generation exists to retry.
	ErrCodeNothingToRetry ErrorCode = "NOTHING_TO_RETRY"
	// ErrCodeGenerationInProgress indicates a generation is already streaming
	// for the conversation.
	ErrCodeGenerationInProgress ErrorCode = "GENERATION_IN_PROGRESS"
	// ErrCodeRateLimitExceeded indicates the caller is sending too fast.
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"
	// ErrCodeProviderError indicates a remote provider failure.
	ErrCodeProviderError ErrorCode = "PROVIDER_ERROR"
	// ErrCodeInternal indicates an unexpected internal failure.
	ErrCodeInternal ErrorCode = "INTERNAL"
)

// ChatError represents a structured error for chat operations.
type ChatError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ChatError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *ChatError) Unwrap() error {
	return e.Cause
}

// Convenience constructors for common error types.

// Unauthenticated creates an unauthenticated error.
func Unauthenticated(msg string) *ChatError {
	return &ChatError{Code: ErrCodeUnauthenticated, Message: msg}
}

// Unauthorized creates an unauthorized error.
func Unauthorized(msg string) *ChatError {
	return &ChatError{Code: ErrCodeUnauthorized, Message: msg}
}

// InvalidArgument creates an invalid argument error.
func InvalidArgument(msg string) *ChatError {
	return &ChatError{Code: ErrCodeInvalidArgument, Message: msg}
}

// InvalidModel creates an invalid model error.
func InvalidModel(modelID string) *ChatError {
	return &ChatError{
		Code:    ErrCodeInvalidModel,
		Message: fmt.Sprintf("model not allowed: %s", modelID),
	}
}

// NotFound creates a not found error.
func NotFound(msg string) *ChatError {
	return &ChatError{Code: ErrCodeNotFound, Message: msg}
}

// NothingToRetry creates a nothing-to-retry error.
func NothingToRetry() *ChatError {
	return &ChatError{Code: ErrCodeNothingToRetry, Message: "no failed generation to retry"}
}

// GenerationInProgress creates a generation-in-progress error.
func GenerationInProgress() *ChatError {
	return &ChatError{Code: ErrCodeGenerationInProgress, Message: "a generation is already in progress for this conversation"}
}

// RateLimitExceeded creates a rate limit exceeded error.
func RateLimitExceeded(msg string) *ChatError {
	return &ChatError{Code: ErrCodeRateLimitExceeded, Message: msg}
}

// ProviderError wraps a remote provider failure.
func ProviderError(msg string, cause error) *ChatError {
	return &ChatError{Code: ErrCodeProviderError, Message: msg, Cause: cause}
}

// Internal wraps an unexpected internal failure.
func Internal(msg string, cause error) *ChatError {
	return &ChatError{Code: ErrCodeInternal, Message: msg, Cause: cause}
}

// IsCode checks if an error is of a specific code.
func IsCode(err error, code ErrorCode) bool {
	if chatErr, ok := err.(*ChatError); ok {
		return chatErr.Code == code
	}
	return false
}

// GetCodeFromError extracts the error code from any error.
// Returns the provided default code if the error is not a ChatError.
func GetCodeFromError(err error, defaultCode ErrorCode) ErrorCode {
	if chatErr, ok := err.(*ChatError); ok {
		return chatErr.Code
	}
	return defaultCode
}
