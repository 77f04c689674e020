package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type ErrorType string

const (
	ErrorTypeValidation      ErrorType = "VALIDATION_ERROR"
	ErrorTypeNotFound        ErrorType = "NOT_FOUND"
	ErrorTypeUnauthorized    ErrorType = "UNAUTHORIZED"
	ErrorTypeForbidden       ErrorType = "FORBIDDEN"
	ErrorTypeConflict        ErrorType = "CONFLICT"
	ErrorTypePaymentRequired ErrorType = "PAYMENT_REQUIRED"
	ErrorTypeRateLimited     ErrorType = "RATE_LIMITED"
	ErrorTypeUnavailable     ErrorType = "UNAVAILABLE"
	ErrorTypeInternal        ErrorType = "INTERNAL_ERROR"
	ErrorTypeExternal        ErrorType = "EXTERNAL_ERROR"
)

type ErrorCode string

const (
	ErrCodeValidationFailed  ErrorCode = "VALIDATION_FAILED"
	ErrCodeInvalidAmount     ErrorCode = "INVALID_AMOUNT"
	ErrCodeInvalidCurrency   ErrorCode = "INVALID_CURRENCY"
	ErrCodeInvalidExternalID ErrorCode = "INVALID_EXTERNAL_PAYMENT_ID"
	ErrCodeInvalidStatus     ErrorCode = "INVALID_STATUS"

	ErrCodeAuthenticationFailed ErrorCode = "AUTHENTICATION_FAILED"
	ErrCodeInvalidSesskey       ErrorCode = "INVALID_SESSKEY"
	ErrCodeInvalidToken         ErrorCode = "INVALID_TOKEN"
	ErrCodeTokenExpired         ErrorCode = "TOKEN_EXPIRED"
	ErrCodeInsufficientAccess   ErrorCode = "INSUFFICIENT_PERMISSIONS"

	ErrCodePaymentNotFound       ErrorCode = "PAYMENT_NOT_FOUND"
	ErrCodePaymentConflict       ErrorCode = "PAYMENT_CONFLICT"
	ErrCodeDuplicateConfirmation ErrorCode = "DUPLICATE_CONFIRMATION"
	ErrCodeInvalidConfirmation   ErrorCode = "INVALID_CONFIRMATION"
	ErrCodeProcessorMismatch     ErrorCode = "PROCESSOR_MISMATCH"
	ErrCodePaymentRequired       ErrorCode = "PAYMENT_REQUIRED"

	ErrCodeRateLimited      ErrorCode = "RATE_LIMITED"
	ErrCodeStoreUnavailable ErrorCode = "STORE_UNAVAILABLE"
	ErrCodeUpstreamFailed   ErrorCode = "UPSTREAM_FAILED"
	ErrCodeInternal         ErrorCode = "INTERNAL_ERROR"
)

type AppError struct {
	Type       ErrorType   `json:"type"`
	Code       ErrorCode   `json:"code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
	StatusCode int         `json:"-"`
	Cause      error       `json:"-"`
}

func (e *AppError) Error() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok && len(validationErrors.Errors) > 0 {
			return validationErrors.Errors[0].Message
		}
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) GetDetailedMessage() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok {
			if len(validationErrors.Errors) == 1 {
				return validationErrors.Errors[0].Message
			} else if len(validationErrors.Errors) > 1 {
				messages := make([]string, len(validationErrors.Errors))
				for i, err := range validationErrors.Errors {
					messages[i] = err.Message
				}
				return strings.Join(messages, "; ")
			}
		}
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches on Code so errors.Is works against the sentinel values below
// even when the error was built fresh with a cause attached.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func (e *AppError) WithCause(cause error) *AppError {
	clone := *e
	clone.Cause = cause
	return &clone
}

func (e *AppError) WithDetails(details interface{}) *AppError {
	clone := *e
	clone.Details = details
	return &clone
}

func (e *AppError) WithMessage(message string) *AppError {
	clone := *e
	clone.Message = message
	return &clone
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func NewValidationError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func NewValidationFieldError(field, message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       ErrCodeValidationFailed,
		Message:    "Validation failed",
		StatusCode: http.StatusBadRequest,
		Details: ValidationErrors{
			Errors: []ValidationError{
				{Field: field, Message: message, Code: string(code)},
			},
		},
	}
}

func NewNotFoundError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

func NewUnauthorizedError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeUnauthorized,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

func NewForbiddenError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeForbidden,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusForbidden,
	}
}

func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       ErrCodeInternal,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

func NewConflictError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func NewPaymentRequiredError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypePaymentRequired,
		Code:       ErrCodePaymentRequired,
		Message:    message,
		StatusCode: http.StatusPaymentRequired,
	}
}

func NewRateLimitedError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeRateLimited,
		Code:       ErrCodeRateLimited,
		Message:    message,
		StatusCode: http.StatusTooManyRequests,
	}
}

func NewUnavailableError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeUnavailable,
		Code:       ErrCodeStoreUnavailable,
		Message:    message,
		StatusCode: http.StatusServiceUnavailable,
		Cause:      cause,
	}
}

func NewExternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeExternal,
		Code:       ErrCodeUpstreamFailed,
		Message:    message,
		StatusCode: http.StatusBadGateway,
		Cause:      cause,
	}
}

// Sentinels are templates; attach causes through WithCause, which copies.
var (
	ErrAuthenticationFailed  = NewUnauthorizedError("authentication required", ErrCodeAuthenticationFailed)
	ErrInvalidSesskey        = NewUnauthorizedError("invalid session key", ErrCodeInvalidSesskey)
	ErrInvalidToken          = NewUnauthorizedError("Invalid token", ErrCodeInvalidToken)
	ErrTokenExpired          = NewUnauthorizedError("Token has expired", ErrCodeTokenExpired)
	ErrInsufficientAccess    = NewForbiddenError("insufficient permissions", ErrCodeInsufficientAccess)
	ErrPaymentNotFound       = NewNotFoundError("payment record not found", ErrCodePaymentNotFound)
	ErrPaymentConflict       = NewConflictError("external payment id is bound to another account", ErrCodePaymentConflict)
	ErrDuplicateConfirmation = NewConflictError("payment already completed with a different transaction", ErrCodeDuplicateConfirmation)
	ErrInvalidConfirmation   = NewValidationError("invalid payment confirmation", ErrCodeInvalidConfirmation)
	ErrProcessorMismatch     = NewValidationError("payment does not match processor records", ErrCodeProcessorMismatch)
	ErrPaymentRequired       = NewPaymentRequiredError("payment required")
	ErrRateLimited           = NewRateLimitedError("too many requests")
	ErrStoreUnavailable      = NewUnavailableError("payment store unavailable", nil)
)

func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

type Response struct {
	Error *AppError `json:"error"`
}

func (e *AppError) ToHTTPResponse() (int, interface{}) {
	return e.StatusCode, Response{Error: e}
}

func (e *AppError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    ErrorType   `json:"type"`
		Code    ErrorCode   `json:"code"`
		Message string      `json:"message"`
		Details interface{} `json:"details,omitempty"`
	}{
		Type:    e.Type,
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	})
}
