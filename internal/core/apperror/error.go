// Package apperror provides the typed error taxonomy of the engine.
// Every business error is an AppError so callers can switch on Code.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// Error codes following domain-driven design
const (
	// Infrastructure errors (5xx)
	CodeInternal = "INTERNAL_ERROR"
	CodeDatabase = "DATABASE_ERROR"
	CodeTimeout  = "TIMEOUT_ERROR"

	// Validation errors (400)
	CodeValidation   = "VALIDATION_ERROR"
	CodeInvalidInput = "INVALID_INPUT"

	// Business rule violations (422)
	CodeBusinessRule             = "BUSINESS_RULE_VIOLATION"
	CodeInsufficientStock        = "INSUFFICIENT_STOCK"
	CodePeriodClosed             = "PERIOD_CLOSED"
	CodeRetroactiveLimitExceeded = "RETROACTIVE_LIMIT_EXCEEDED"
	CodeCascadeFailure           = "CASCADE_FAILURE"

	// Not found (404)
	CodeNotFound          = "NOT_FOUND"
	CodeLotNotFound       = "LOT_NOT_FOUND"
	CodeStockUnitNotFound = "STOCK_UNIT_NOT_FOUND"

	// Conflict (409)
	CodeConflict    = "CONFLICT"
	CodeDuplicate   = "DUPLICATE_ENTRY"
	CodeIdempotency = "IDEMPOTENCY_CONFLICT"
)

// AppError is the standard error type for the engine.
// It implements error interface and provides structured details for callers.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (stock unit, quantities, dates)
	Details map[string]any `json:"details,omitempty"`

	// HTTPStatus is the suggested HTTP status code
	HTTPStatus int `json:"-"`

	// Err is the underlying error (not exposed in JSON)
	Err error `json:"-"`
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a key-value pair to error details
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// --- Factory functions for common errors ---

// NewValidation creates a validation error (400)
func NewValidation(message string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewNotFound creates a not found error (404)
func NewNotFound(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", entity),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewBusinessRule creates a business rule violation error (422)
func NewBusinessRule(code, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

// NewInsufficientStock is returned when the active lots of a stock unit cannot
// cover the requested quantity at the relevant historical point.
func NewInsufficientStock(stockUnitID string, requested, available decimal.Decimal) *AppError {
	return &AppError{
		Code:       CodeInsufficientStock,
		Message:    "Insufficient stock",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details: map[string]any{
			"stock_unit_id": stockUnitID,
			"requested":     requested.String(),
			"available":     available.String(),
		},
	}
}

// NewPeriodClosed creates error when the date falls outside the open accounting window.
func NewPeriodClosed(date time.Time, reason string) *AppError {
	return &AppError{
		Code:       CodePeriodClosed,
		Message:    fmt.Sprintf("Period of %s is closed for modifications", date.Format(time.DateOnly)),
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"effective_date": date.Format(time.DateOnly), "reason": reason},
	}
}

// NewRetroactiveLimitExceeded is returned when a movement date lies deeper in
// the past than the retroactive policy allows.
func NewRetroactiveLimitExceeded(date time.Time, reason string) *AppError {
	return &AppError{
		Code:       CodeRetroactiveLimitExceeded,
		Message:    "Retroactive depth limit exceeded",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"effective_date": date.Format(time.DateOnly), "reason": reason},
	}
}

// NewLotNotFound creates a lot integrity error.
func NewLotNotFound(lotID any) *AppError {
	return &AppError{
		Code:       CodeLotNotFound,
		Message:    "Lot not found",
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"lot_id": lotID},
	}
}

// NewStockUnitNotFound creates a stock unit integrity error.
func NewStockUnitNotFound(stockUnitID any) *AppError {
	return &AppError{
		Code:       CodeStockUnitNotFound,
		Message:    "Stock unit not found",
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"stock_unit_id": stockUnitID},
	}
}

// NewCascadeFailure wraps the error that aborted one stock unit's cascade.
func NewCascadeFailure(stockUnitID any, cause error) *AppError {
	e := &AppError{
		Code:       CodeCascadeFailure,
		Message:    "Cascade failed for stock unit",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"stock_unit_id": stockUnitID},
		Err:        cause,
	}
	if inner, ok := AsAppError(cause); ok {
		e.Details["cause_code"] = inner.Code
	}
	return e
}

// NewInternal creates an internal server error (hides details from client)
func NewInternal(err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewIdempotencyConflict creates error when operation is already in progress
func NewIdempotencyConflict(key string) *AppError {
	return &AppError{
		Code:       CodeIdempotency,
		Message:    "Operation already in progress or completed",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"idempotency_key": key},
	}
}

// NewIdempotencyMismatch is returned when the same idempotency key is reused for
// a different request (different operation/body hash).
func NewIdempotencyMismatch(key string) *AppError {
	return &AppError{
		Code:       CodeIdempotency,
		Message:    "Idempotency key mismatch",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"idempotency_key": key},
	}
}

// NewConflict creates a conflict error (409)
func NewConflict(message string) *AppError {
	return &AppError{
		Code:       CodeConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// --- Helper functions ---

// IsAppError checks if error is AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError extracts AppError from error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetHTTPStatus returns appropriate HTTP status for any error
func GetHTTPStatus(err error) int {
	if appErr, ok := AsAppError(err); ok {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// IsNotFound checks if error is CodeNotFound
func IsNotFound(err error) bool {
	return IsCode(err, CodeNotFound)
}

// IsCode reports whether err carries an AppError with the given code.
// The outermost AppError in the chain decides.
func IsCode(err error, code string) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}
