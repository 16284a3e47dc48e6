// Package apierror defines the error body returned by the HTTP API.
package apierror

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/MrEthical07/shieldauth"
)

// APIError is the JSON error object. StatusCode is not serialized.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Details    any    `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return e.Message
}

// WithMessage returns a copy of the error with a custom message.
func (e *APIError) WithMessage(message string) *APIError {
	return &APIError{
		Code:       e.Code,
		Message:    message,
		StatusCode: e.StatusCode,
		Details:    e.Details,
	}
}

func (e *APIError) WithDetails(details any) *APIError {
	return &APIError{
		Code:       e.Code,
		Message:    e.Message,
		StatusCode: e.StatusCode,
		Details:    details,
	}
}

var (
	ErrUnauthorized = &APIError{
		Code:       "unauthorized",
		Message:    "Authentication required",
		StatusCode: http.StatusUnauthorized,
	}

	ErrForbidden = &APIError{
		Code:       "forbidden",
		Message:    "You don't have permission to perform this action",
		StatusCode: http.StatusForbidden,
	}

	ErrNotFound = &APIError{
		Code:       "not_found",
		Message:    "Resource not found",
		StatusCode: http.StatusNotFound,
	}

	ErrBadRequest = &APIError{
		Code:       "bad_request",
		Message:    "Invalid request",
		StatusCode: http.StatusBadRequest,
	}

	ErrConflict = &APIError{
		Code:       "conflict",
		Message:    "Resource already exists",
		StatusCode: http.StatusConflict,
	}

	// ErrExpired is used for expired codes and tokens.
	ErrExpired = &APIError{
		Code:       "expired",
		Message:    "The code or token has expired",
		StatusCode: http.StatusGone,
	}

	ErrRateLimited = &APIError{
		Code:       "rate_limited",
		Message:    "Too many requests. Please try again later.",
		StatusCode: http.StatusTooManyRequests,
	}

	ErrNotificationFailed = &APIError{
		Code:       "notification_failed",
		Message:    "The message could not be delivered. Please try again.",
		StatusCode: http.StatusBadGateway,
	}

	ErrInternal = &APIError{
		Code:       "internal_error",
		Message:    "An internal error occurred",
		StatusCode: http.StatusInternalServerError,
	}

	ErrServiceUnavailable = &APIError{
		Code:       "service_unavailable",
		Message:    "Service temporarily unavailable",
		StatusCode: http.StatusServiceUnavailable,
	}
)

func NewValidationError(field, message string) *APIError {
	return &APIError{
		Code:       "validation_error",
		Message:    fmt.Sprintf("Validation failed: %s", message),
		StatusCode: http.StatusBadRequest,
		Details: map[string]string{
			"field": field,
			"error": message,
		},
	}
}

func NewValidationErrors(errs map[string]string) *APIError {
	return &APIError{
		Code:       "validation_error",
		Message:    "One or more fields failed validation",
		StatusCode: http.StatusBadRequest,
		Details:    errs,
	}
}

// AsAPIError converts err to an APIError. Engine errors are mapped by
// kind; the message of a classified error is the sentinel text, which
// never carries secrets. Anything else becomes ErrInternal.
func AsAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	if errors.Is(err, shieldauth.ErrSessionBackendUnavailable) {
		return ErrServiceUnavailable
	}

	var base *APIError
	switch shieldauth.KindOf(err) {
	case shieldauth.KindInvalidInput:
		base = ErrBadRequest
	case shieldauth.KindNotFound:
		base = ErrNotFound
	case shieldauth.KindUnauthorized:
		base = ErrUnauthorized
	case shieldauth.KindConflict:
		base = ErrConflict
	case shieldauth.KindExpired:
		base = ErrExpired
	case shieldauth.KindNotificationFailed:
		return ErrNotificationFailed
	case shieldauth.KindRateLimited:
		base = ErrRateLimited
	case shieldauth.KindForbidden:
		base = ErrForbidden
	default:
		return ErrInternal
	}
	return base.WithMessage(publicMessage(err))
}

// publicMessage returns the text of the engine sentinel wrapped by err.
func publicMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}
