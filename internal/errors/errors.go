package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeNetwork      ErrorType = "network"
	ErrorTypeTimeout      ErrorType = "timeout"
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeInternal     ErrorType = "internal"

	// Capture pipeline kinds.
	ErrorTypeCameraUnavailable ErrorType = "camera_unavailable"
	ErrorTypeEngineUnavailable ErrorType = "engine_unavailable"
	ErrorTypeRecognition       ErrorType = "recognition_failed"
	ErrorTypeCaptureInProgress ErrorType = "capture_in_progress"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	Details    string    `json:"details,omitempty"`
	StatusCode int       `json:"status_code"`
	Cause      error     `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails returns a copy of the error carrying a user-facing hint.
func (e *AppError) WithDetails(details string) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

func newError(t ErrorType, status int, message string, cause error) *AppError {
	return &AppError{
		Type:       t,
		Message:    message,
		StatusCode: status,
		Cause:      cause,
	}
}

// NewValidationError creates a new validation error
func NewValidationError(message string, cause error) *AppError {
	return newError(ErrorTypeValidation, http.StatusBadRequest, message, cause)
}

// NewNetworkError creates a new network error
func NewNetworkError(message string, cause error) *AppError {
	return newError(ErrorTypeNetwork, http.StatusBadGateway, message, cause)
}

// NewTimeoutError creates a new timeout error
func NewTimeoutError(message string, cause error) *AppError {
	return newError(ErrorTypeTimeout, http.StatusGatewayTimeout, message, cause)
}

// NewUnauthorizedError creates a new unauthorized error
func NewUnauthorizedError(message string, cause error) *AppError {
	return newError(ErrorTypeUnauthorized, http.StatusUnauthorized, message, cause)
}

// NewInternalError creates a new internal error
func NewInternalError(message string, cause error) *AppError {
	return newError(ErrorTypeInternal, http.StatusInternalServerError, message, cause)
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string, cause error) *AppError {
	return newError(ErrorTypeNotFound, http.StatusNotFound, message, cause)
}

// NewCameraUnavailableError is returned when the camera cannot be opened:
// permission denied, no device, or the source stopped producing frames.
func NewCameraUnavailableError(message string, cause error) *AppError {
	return newError(ErrorTypeCameraUnavailable, http.StatusServiceUnavailable, message, cause).
		WithDetails("check that a camera is connected and that access is allowed")
}

// NewEngineUnavailableError is returned when the recognition engine cannot be
// constructed or loaded.
func NewEngineUnavailableError(message string, cause error) *AppError {
	return newError(ErrorTypeEngineUnavailable, http.StatusServiceUnavailable, message, cause)
}

// NewRecognitionError wraps a failure of a single recognition call.
func NewRecognitionError(message string, cause error) *AppError {
	return newError(ErrorTypeRecognition, http.StatusUnprocessableEntity, message, cause)
}

// NewCaptureInProgressError rejects a start request while another run owns the camera.
func NewCaptureInProgressError(sessionID string) *AppError {
	return newError(ErrorTypeCaptureInProgress, http.StatusConflict, "a capture session is already running", nil).
		WithDetails("session " + sessionID)
}

// IsType checks if the error, or any error it wraps, is of a specific type
func IsType(err error, errorType ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errorType
	}
	return false
}

// KindOf returns the error type of err, or ErrorTypeInternal for foreign errors.
func KindOf(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ErrorTypeInternal
}

// GetStatusCode extracts the HTTP status code from an error
func GetStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}
