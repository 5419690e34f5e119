package pipeline

import "net/http"

// Code classifies a pipeline failure. Every stage failure short-circuits
// with exactly one of these; only notifier failures are absorbed.
type Code string

const (
	CodeRateLimited          Code = "rate_limited"
	CodeAuthDenied           Code = "auth_denied"
	CodeValidationFailed     Code = "validation_failed"
	CodeSpamRejected         Code = "spam_rejected"
	CodeNotFound             Code = "not_found"
	CodeUnsupportedOperation Code = "unsupported_operation"
	CodeStorageFailure       Code = "storage_failure"
	CodeInternal             Code = "internal"
)

// Error is the caller-facing failure of a pipeline stage. Message never
// leaks internals; the full cause is logged server-side.
type Error struct {
	Code              Code
	Status            int
	Message           string
	RetryAfterSeconds int
	Suggestion        string
}

func (e *Error) Error() string {
	return e.Message
}

func rateLimited(retryAfterSeconds int) *Error {
	return &Error{
		Code:              CodeRateLimited,
		Status:            http.StatusTooManyRequests,
		Message:           "Too many requests",
		RetryAfterSeconds: retryAfterSeconds,
	}
}

func authDenied(status int, reason string) *Error {
	return &Error{Code: CodeAuthDenied, Status: status, Message: reason}
}

func validationFailed(reason string) *Error {
	return &Error{Code: CodeValidationFailed, Status: http.StatusBadRequest, Message: reason}
}

func spamRejected(reason string) *Error {
	return &Error{Code: CodeSpamRejected, Status: http.StatusBadRequest, Message: reason}
}

func formNotFound() *Error {
	return &Error{Code: CodeNotFound, Status: http.StatusNotFound, Message: "Form not found"}
}

func unsupportedOperation(message, suggestion string) *Error {
	return &Error{
		Code:       CodeUnsupportedOperation,
		Status:     http.StatusBadRequest,
		Message:    message,
		Suggestion: suggestion,
	}
}

func storageFailure() *Error {
	return &Error{Code: CodeStorageFailure, Status: http.StatusInternalServerError, Message: "Failed to save submission"}
}

func internalError() *Error {
	return &Error{Code: CodeInternal, Status: http.StatusInternalServerError, Message: "Internal server error"}
}
