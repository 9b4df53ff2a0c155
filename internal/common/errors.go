package common

import (
	"errors"
	"net/http"
)

// Error codes shared by every endpoint.
const (
	CodeBadRequest      = "BAD_REQUEST"
	CodeValidation      = "VALIDATION_ERROR"
	CodeNotFound        = "NOT_FOUND"
	CodePayloadTooLarge = "PAYLOAD_TOO_LARGE"
	CodeRateLimited     = "RATE_LIMITED"
	CodeInternal        = "INTERNAL"
)

// AppError carries the code, message and status an error is rendered with.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]string
	Err        error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

// WithDetails returns e with details attached.
func (e *AppError) WithDetails(details map[string]string) *AppError {
	e.Details = details
	return e
}

// NewAppError constructs an AppError.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// BadRequest reports a malformed request.
func BadRequest(message string, err error) *AppError {
	return NewAppError(CodeBadRequest, message, http.StatusBadRequest, err)
}

// Internal hides err behind a generic message.
func Internal(err error) *AppError {
	return NewAppError(CodeInternal, "internal error", http.StatusInternalServerError, err)
}

// AsAppError unwraps err to an AppError, treating anything else as internal.
func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal(err)
}

// WriteError renders err using the canonical error shape.
func WriteError(w http.ResponseWriter, err error) {
	appErr := AsAppError(err)
	var details any
	if len(appErr.Details) > 0 {
		details = appErr.Details
	}
	JSONError(w, appErr.HTTPStatus, appErr.Code, appErr.Message, details)
}
