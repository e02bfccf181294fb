package apperror

import (
	"errors"
	"net/http"
)

// AppError carries a machine-readable code, a human-readable message and the
// HTTP status the boundary should answer with. Wrapped causes stay available
// for logging but are never serialized to clients.
type AppError struct {
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string { return e.Message }

func (e *AppError) Unwrap() error { return e.Err }

var (
	ErrInvalidRequest = &AppError{http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body", nil}
	ErrUnauthorized   = &AppError{http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required", nil}
	ErrForbidden      = &AppError{http.StatusForbidden, "FORBIDDEN", "Caller lacks the required role or ownership", nil}
	ErrNotFound       = &AppError{http.StatusNotFound, "NOT_FOUND", "Resource not found", nil}
	ErrInternal       = &AppError{http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil}
)

// Validation rejects malformed input before any state change.
func Validation(message string) *AppError {
	return &AppError{http.StatusBadRequest, "VALIDATION_FAILED", message, nil}
}

// BadState rejects an operation that is invalid for the entity's current
// lifecycle state, e.g. releasing a payment that is not held.
func BadState(message string) *AppError {
	return &AppError{http.StatusBadRequest, "BAD_STATE", message, nil}
}

// NotFound marks a referenced entity as absent.
func NotFound(message string) *AppError {
	return &AppError{http.StatusNotFound, "NOT_FOUND", message, nil}
}

// Gateway wraps a synchronous payment-gateway failure. The gateway's message
// is preserved for operators; secrets never appear in gateway errors.
func Gateway(err error) *AppError {
	msg := "Payment gateway request failed"
	if err != nil {
		msg = err.Error()
	}
	return &AppError{http.StatusInternalServerError, "GATEWAY_ERROR", msg, err}
}

// Config marks an operation that cannot run because a feature is disabled or
// credentials are absent. Fatal to the operation, not to the process.
func Config(message string) *AppError {
	return &AppError{http.StatusInternalServerError, "NOT_CONFIGURED", message, nil}
}

// Duplicate marks an idempotent no-op; callers usually answer 2xx anyway.
func Duplicate(message string) *AppError {
	return &AppError{http.StatusConflict, "DUPLICATE", message, nil}
}

// From returns the AppError inside err, or wraps err as an internal error.
func From(err error) *AppError {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae
	}
	return &AppError{http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", err}
}

// IsCode reports whether err is an AppError with the given code.
func IsCode(err error, code string) bool {
	var ae *AppError
	return errors.As(err, &ae) && ae.Code == code
}
