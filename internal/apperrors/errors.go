// Package apperrors defines the typed failure conditions surfaced to
// callers. Gating violations abort the whole operation before any state
// mutation; nothing in the engine is recovered silently.
package apperrors

import (
	"fmt"
	"net/http"
)

type ErrorType string

const (
	// Gating violations.
	ErrCoverageExceeded       ErrorType = "COVERAGE_EXCEEDED"
	ErrFixedTermLocked        ErrorType = "FIXED_TERM_LOCKED"
	ErrInsufficientRedeemable ErrorType = "INSUFFICIENT_REDEEMABLE_SHARES"
	ErrInsufficientBalance    ErrorType = "INSUFFICIENT_BALANCE"
	ErrRequestNotClaimable    ErrorType = "REQUEST_NOT_CLAIMABLE"
	ErrRequestCancelled       ErrorType = "REQUEST_CANCELLED"

	// Configuration violations, rejected before any operation runs.
	ErrConfigInvalid ErrorType = "CONFIG_INVALID"

	ErrInvalidRequest ErrorType = "INVALID_REQUEST"
	ErrNotFound       ErrorType = "NOT_FOUND"
	ErrVenue          ErrorType = "VENUE_ERROR"
	ErrInternal       ErrorType = "INTERNAL_ERROR"
)

// AppError carries a machine-readable condition plus the HTTP status the
// transport layer should answer with.
type AppError struct {
	Type       ErrorType `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"-"`
	Cause      error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Cause }

func New(errType ErrorType, msg string, cause error) *AppError {
	return &AppError{
		Type:       errType,
		Message:    msg,
		Cause:      cause,
		HTTPStatus: statusFor(errType),
	}
}

func Newf(errType ErrorType, format string, args ...interface{}) *AppError {
	return New(errType, fmt.Sprintf(format, args...), nil)
}

// Wrap coerces any error into an AppError, defaulting to INTERNAL_ERROR.
func Wrap(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return New(ErrInternal, err.Error(), err)
}

func statusFor(t ErrorType) int {
	switch t {
	case ErrCoverageExceeded, ErrInsufficientRedeemable, ErrInsufficientBalance, ErrInvalidRequest, ErrConfigInvalid:
		return http.StatusBadRequest
	case ErrFixedTermLocked, ErrRequestNotClaimable, ErrRequestCancelled:
		return http.StatusConflict
	case ErrNotFound:
		return http.StatusNotFound
	case ErrVenue:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
