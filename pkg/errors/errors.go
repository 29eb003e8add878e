package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
)

// Standard error types
var (
	ErrNotFound               = errors.New("resource not found")
	ErrBadRequest             = errors.New("bad request")
	ErrConflict               = errors.New("resource conflict")
	ErrInternal               = errors.New("internal server error")
	ErrValidation             = errors.New("validation error")
	ErrUnknownUnit            = errors.New("unknown unit")
	ErrIncompatibleUnits      = errors.New("incompatible units")
	ErrInsufficientStock      = errors.New("insufficient stock")
	ErrExpiredStock           = errors.New("expired stock")
	ErrConcurrentModification = errors.New("concurrent modification")
)

// AppError represents an application error with context
type AppError struct {
	Err        error             `json:"-"`
	Message    string            `json:"message"`
	Code       string            `json:"code"`
	StatusCode int               `json:"status_code"`
	Details    map[string]string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError
func New(code string, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, code string, message string, statusCode int) *AppError {
	return &AppError{
		Err:        err,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// WithDetails adds details to an AppError
func (e *AppError) WithDetails(details map[string]string) *AppError {
	e.Details = details
	return e
}

// Common error constructors

func NotFound(resource string) *AppError {
	return &AppError{
		Err:        ErrNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: http.StatusNotFound,
	}
}

func BadRequest(message string) *AppError {
	return &AppError{
		Err:        ErrBadRequest,
		Code:       "BAD_REQUEST",
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Err:        ErrConflict,
		Code:       "CONFLICT",
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func Internal(message string) *AppError {
	return &AppError{
		Err:        ErrInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}

func Validation(details map[string]string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Code:       "VALIDATION_ERROR",
		Message:    "validation failed",
		StatusCode: http.StatusBadRequest,
		Details:    details,
	}
}

// Domain error constructors

// UnknownUnit reports a unit token that is not in the conversion table.
func UnknownUnit(unit string) *AppError {
	return &AppError{
		Err:        ErrUnknownUnit,
		Code:       "UNKNOWN_UNIT",
		Message:    fmt.Sprintf("unknown unit: %s", unit),
		StatusCode: http.StatusBadRequest,
		Details:    map[string]string{"unit": unit},
	}
}

// IncompatibleUnits reports a conversion across measurement categories.
func IncompatibleUnits(from, to string) *AppError {
	return &AppError{
		Err:        ErrIncompatibleUnits,
		Code:       "INCOMPATIBLE_UNITS",
		Message:    fmt.Sprintf("cannot convert %s to %s", from, to),
		StatusCode: http.StatusBadRequest,
		Details:    map[string]string{"from_unit": from, "to_unit": to},
	}
}

// InsufficientStock carries the structured quantities so callers can build
// both a human message and a programmatic decision from the same error.
func InsufficientStock(itemName, unit string, required, available decimal.Decimal) *AppError {
	shortage := required.Sub(available)
	return &AppError{
		Err:  ErrInsufficientStock,
		Code: "INSUFFICIENT_STOCK",
		Message: fmt.Sprintf("insufficient %s: required %s %s, available %s %s",
			itemName, required.String(), unit, available.String(), unit),
		StatusCode: http.StatusConflict,
		Details: map[string]string{
			"item":      itemName,
			"unit":      unit,
			"required":  required.String(),
			"available": available.String(),
			"shortage":  shortage.String(),
		},
	}
}

// ExpiredStock reports an attempted consumption of expired standalone stock.
func ExpiredStock(itemName string, daysExpired int) *AppError {
	return &AppError{
		Err:        ErrExpiredStock,
		Code:       "EXPIRED_STOCK",
		Message:    fmt.Sprintf("cannot use %s: expired %d day(s) ago", itemName, daysExpired),
		StatusCode: http.StatusConflict,
		Details: map[string]string{
			"item":         itemName,
			"days_expired": fmt.Sprintf("%d", daysExpired),
		},
	}
}

// ConcurrentModification signals lock contention or stale state. Retryable.
func ConcurrentModification(resource string) *AppError {
	return &AppError{
		Err:        ErrConcurrentModification,
		Code:       "CONCURRENT_MODIFICATION",
		Message:    fmt.Sprintf("%s is being modified by another operation, retry", resource),
		StatusCode: http.StatusConflict,
	}
}

// Is checks if the error matches a target error
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As attempts to convert an error to a specific type
func As(err error, target any) bool {
	return errors.As(err, target)
}
