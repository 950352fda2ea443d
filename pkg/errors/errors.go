package errors

import (
	"errors"
	"fmt"
)

// ErrorCode classifies an application error.
type ErrorCode int

const (
	ErrInvalidInput ErrorCode = iota + 1000
	ErrUnauthorized
	ErrForbidden
	ErrNotFound
	ErrStorageFault
	ErrInternal
)

// AppError carries an error kind alongside the wrapped cause.
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the caller may retry the failed operation.
func (e *AppError) Retryable() bool {
	return e.Code == ErrStorageFault
}

// InvalidInput signals a malformed or unknown input value.
func InvalidInput(message string, err error) *AppError {
	return &AppError{Code: ErrInvalidInput, Message: message, Err: err}
}

// Unauthorized signals a caller outside the recipient's network.
func Unauthorized(message string, err error) *AppError {
	if message == "" {
		message = "unauthorized"
	}
	return &AppError{Code: ErrUnauthorized, Message: message, Err: err}
}

// Forbidden signals a caller attempting to mutate a record it does not own.
func Forbidden(message string, err error) *AppError {
	if message == "" {
		message = "forbidden"
	}
	return &AppError{Code: ErrForbidden, Message: message, Err: err}
}

// NotFound signals an absent notification or subject user.
func NotFound(resource string, err error) *AppError {
	return &AppError{Code: ErrNotFound, Message: fmt.Sprintf("%s not found", resource), Err: err}
}

// StorageFault signals a relational or PHI store I/O failure; retryable.
func StorageFault(err error) *AppError {
	return &AppError{Code: ErrStorageFault, Message: "storage failure", Err: err}
}

// Internal signals an unexpected failure.
func Internal(err error) *AppError {
	return &AppError{Code: ErrInternal, Message: "internal server error", Err: err}
}

// AsAppError unwraps err to an *AppError if one is in the chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
