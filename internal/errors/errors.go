package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a SAV Assist error code.
type ErrorCode string

const (
	ErrInvalidRequest  ErrorCode = "INVALID_REQUEST"   // 400
	ErrEmptyCollection ErrorCode = "EMPTY_COLLECTION"  // 400
	ErrInvalidSyncCode ErrorCode = "INVALID_SYNC_CODE" // 400
	ErrNotFound        ErrorCode = "NOT_FOUND"         // 404
	ErrBusy            ErrorCode = "BUSY"              // 409
	ErrCorruptData     ErrorCode = "CORRUPT_DATA"      // 422
	ErrCancelled       ErrorCode = "CANCELLED"         // 499
	ErrInternal        ErrorCode = "INTERNAL"          // 500
	ErrRemoteFailure   ErrorCode = "REMOTE_FAILURE"    // 502
	ErrMicUnavailable  ErrorCode = "MIC_UNAVAILABLE"   // 503
)

// AppError represents a structured error with code, status, and details.
type AppError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
	cause   error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *AppError) Unwrap() error {
	return e.cause
}

// NewInvalidRequest creates a 400 error for invalid input or missing required fields.
func NewInvalidRequest(msg string) *AppError {
	return &AppError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewEmptyCollection creates a 400 error when there is nothing to export.
func NewEmptyCollection() *AppError {
	return &AppError{
		Code:    ErrEmptyCollection,
		Status:  400,
		Message: "aucun appel à partager",
	}
}

// NewInvalidSyncCode creates a 400 error for a sync code that is not valid base64.
func NewInvalidSyncCode(err error) *AppError {
	return &AppError{
		Code:    ErrInvalidSyncCode,
		Status:  400,
		Message: "code invalide",
		cause:   err,
	}
}

// NewNotFound creates a 404 error for when a call log cannot be found.
func NewNotFound(id string) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("call log not found: %s", id),
		Details: map[string]any{"id": id},
	}
}

// NewBusy creates a 409 error when an operation is already in flight.
func NewBusy(what string) *AppError {
	return &AppError{
		Code:    ErrBusy,
		Status:  409,
		Message: fmt.Sprintf("%s already in progress", what),
	}
}

// NewCorruptData creates a 422 error for a payload that decodes but does not parse.
func NewCorruptData(err error) *AppError {
	return &AppError{
		Code:    ErrCorruptData,
		Status:  422,
		Message: "données corrompues",
		cause:   err,
	}
}

// NewCancelled creates a 499 error for operations interrupted by context cancellation.
func NewCancelled(op string) *AppError {
	return &AppError{
		Code:    ErrCancelled,
		Status:  499,
		Message: fmt.Sprintf("%s cancelled", op),
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *AppError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &AppError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
		cause:   err,
	}
}

// NewRemoteFailure creates a 502 error for failed AI provider calls.
// The message stays generic; the cause is kept for logging.
func NewRemoteFailure(err error) *AppError {
	return &AppError{
		Code:    ErrRemoteFailure,
		Status:  502,
		Message: "erreur lors de la génération",
		cause:   err,
	}
}

// NewMicUnavailable creates a 503 error when the audio source cannot be acquired.
func NewMicUnavailable(err error) *AppError {
	return &AppError{
		Code:    ErrMicUnavailable,
		Status:  503,
		Message: "microphone inaccessible",
		cause:   err,
	}
}

// Is checks if an error is (or wraps) an AppError with the given code.
func Is(err error, code ErrorCode) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}
