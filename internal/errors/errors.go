package errors

import (
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	ConfigurationError ErrorCode = "configuration_error"
	InvalidAmount      ErrorCode = "invalid_amount"
	InvalidInput       ErrorCode = "invalid_input"
	InvalidOperation   ErrorCode = "invalid_operation"
	InsufficientFunds  ErrorCode = "insufficient_funds"
	StorageUnavailable ErrorCode = "storage_unavailable"
	TransferIncomplete ErrorCode = "transfer_incomplete"
	NotReady           ErrorCode = "not_ready"
	InternalError      ErrorCode = "internal_error"
)

type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
}

func (e AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is reports whether target carries the same code, so detailed copies of a
// predefined error still match it under errors.Is.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func NewAppError(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

func NewAppErrorf(code ErrorCode, format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// WithDetails returns a copy of e carrying details. The receiver is left
// untouched because predefined errors are shared.
func (e *AppError) WithDetails(details string) *AppError {
	c := *e
	c.Details = details
	return &c
}

// HTTPStatus maps the error code to the status returned by the HTTP API.
func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case InvalidAmount, InvalidInput, InvalidOperation:
		return http.StatusBadRequest
	case InsufficientFunds:
		return http.StatusUnprocessableEntity
	case StorageUnavailable, NotReady:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Fatal reports whether the error must stop the process instead of being
// returned to a single caller.
func (e *AppError) Fatal() bool {
	return e.Code == ConfigurationError
}

// Predefined errors for common cases
var (
	ErrInvalidAmount      = NewAppError(InvalidAmount, "amount must be greater than zero")
	ErrInvalidUserID      = NewAppError(InvalidInput, "user id must not be empty")
	ErrSelfTransfer       = NewAppError(InvalidOperation, "cannot transfer to the same account")
	ErrInsufficientFunds  = NewAppError(InsufficientFunds, "insufficient funds")
	ErrStorageUnavailable = NewAppError(StorageUnavailable, "storage unavailable, try again later")
	ErrTransferIncomplete = NewAppError(TransferIncomplete, "transfer could not be completed or reverted")
	ErrInvalidLimit       = NewAppError(InvalidInput, "limit must be between 1 and 100")
	ErrNotReady           = NewAppError(NotReady, "ledger is not ready")
)
