package errors

import "fmt"

// ErrorCode represents a Loft error code.
type ErrorCode string

const (
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"      // 400
	ErrNotFound           ErrorCode = "NOT_FOUND"            // 404
	ErrChatBusy           ErrorCode = "CHAT_BUSY"            // 409
	ErrAttachmentTooLarge ErrorCode = "ATTACHMENT_TOO_LARGE" // 413
	ErrMissingAPIKey      ErrorCode = "MISSING_API_KEY"      // 401
	ErrUpstream           ErrorCode = "UPSTREAM"             // 502
	ErrInternal           ErrorCode = "INTERNAL"             // 500
)

// LoftError represents a structured error with code, status, and details.
type LoftError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *LoftError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *LoftError {
	return &LoftError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for a missing chat or project.
func NewNotFound(kind, id string) *LoftError {
	return &LoftError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s not found: %s", kind, id),
		Details: map[string]any{"kind": kind, "id": id},
	}
}

// NewChatBusy creates a 409 error for a send while a stream is already in flight.
func NewChatBusy(chatID string) *LoftError {
	return &LoftError{
		Code:    ErrChatBusy,
		Status:  409,
		Message: fmt.Sprintf("chat %s already has a response streaming", chatID),
		Details: map[string]any{"chat_id": chatID},
	}
}

// NewAttachmentTooLarge creates a 413 error when an attachment exceeds the size limit.
func NewAttachmentTooLarge(max, actual int) *LoftError {
	return &LoftError{
		Code:    ErrAttachmentTooLarge,
		Status:  413,
		Message: fmt.Sprintf("attachment exceeds maximum size: %d bytes (max %d)", actual, max),
		Details: map[string]any{"max_bytes": max, "actual_bytes": actual},
	}
}

// NewMissingAPIKey creates a 401 error for a missing completion-service credential.
func NewMissingAPIKey(envVar string) *LoftError {
	return &LoftError{
		Code:    ErrMissingAPIKey,
		Status:  401,
		Message: fmt.Sprintf("no API key configured (set %s)", envVar),
		Details: map[string]any{"env": envVar},
	}
}

// NewUpstream creates a 502 error for completion-service failures.
func NewUpstream(err error) *LoftError {
	msg := "completion service error"
	if err != nil {
		msg = err.Error()
	}
	return &LoftError{
		Code:    ErrUpstream,
		Status:  502,
		Message: msg,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *LoftError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &LoftError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
	}
}

// Is checks if an error is a LoftError with the given code.
func Is(err error, code ErrorCode) bool {
	if lErr, ok := err.(*LoftError); ok {
		return lErr.Code == code
	}
	return false
}
