package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const (
	CodeNotFound     = "NOT_FOUND"
	CodeValidation   = "VALIDATION_ERROR"
	CodeConflict     = "CONFLICT"
	CodeInternal     = "INTERNAL_ERROR"
	CodeBadRequest   = "BAD_REQUEST"
	CodeTimeout      = "TIMEOUT"
	CodeUnavailable  = "SERVICE_UNAVAILABLE"
	CodeInvalidInput = "INVALID_INPUT"

	// Contention faults: expected under load, retryable by the caller.
	CodeAlreadyQueued      = "ALREADY_QUEUED"
	CodeAlreadyCheckingOut = "ALREADY_CHECKING_OUT"
	CodeCapacityExceeded   = "CAPACITY_EXCEEDED"
	CodeInsufficientStock  = "INSUFFICIENT_STOCK"
	CodeLockContention     = "LOCK_CONTENTION"

	// State faults: non-retryable without a change of input.
	CodeSaleWindowClosed = "SALE_WINDOW_CLOSED"
	CodeCoolingDown      = "COOLING_DOWN"
)

type AppError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	HTTPStatus int            `json:"-"`
	Details    map[string]any `json:"details,omitempty"`
	Err        error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) StatusCode() int {
	return e.HTTPStatus
}

func (e *AppError) ToJSON() []byte {
	response := ErrorResponse{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
	data, _ := json.Marshal(response)
	return data
}

type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func New(code, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

func Wrap(err error, code, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

func (e *AppError) WithDetails(details map[string]any) *AppError {
	e.Details = details
	return e
}

// Retryable reports whether the error is a contention fault the caller is
// expected to retry with backoff.
func (e *AppError) Retryable() bool {
	switch e.Code {
	case CodeCapacityExceeded, CodeLockContention, CodeUnavailable, CodeTimeout:
		return true
	}
	return false
}

func NotFound(resource string) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
	}
}

func NotFoundWithID(resource, id string) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details: map[string]any{
			"resource": resource,
			"id":       id,
		},
	}
}

func Validation(message string, details map[string]any) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    details,
	}
}

func InvalidInput(message string) *AppError {
	return &AppError{
		Code:       CodeInvalidInput,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Code:       CodeConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

func Internal(message string, err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func Timeout(message string) *AppError {
	return &AppError{
		Code:       CodeTimeout,
		Message:    message,
		HTTPStatus: http.StatusGatewayTimeout,
	}
}

func Unavailable(service string) *AppError {
	return &AppError{
		Code:       CodeUnavailable,
		Message:    fmt.Sprintf("%s is temporarily unavailable", service),
		HTTPStatus: http.StatusServiceUnavailable,
	}
}

func AlreadyQueued(resourceID string) *AppError {
	return &AppError{
		Code:       CodeAlreadyQueued,
		Message:    "participant already has a live queue entry for this resource",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"resource_id": resourceID},
	}
}

func AlreadyCheckingOut(resourceID string) *AppError {
	return &AppError{
		Code:       CodeAlreadyCheckingOut,
		Message:    "participant already has a live checkout session for this resource",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"resource_id": resourceID},
	}
}

func CapacityExceeded(resourceID string, limit int) *AppError {
	return &AppError{
		Code:       CodeCapacityExceeded,
		Message:    "all checkout slots for this resource are in use",
		HTTPStatus: http.StatusConflict,
		Details: map[string]any{
			"resource_id": resourceID,
			"limit":       limit,
		},
	}
}

func InsufficientStock(unitID string, requested, available int) *AppError {
	return &AppError{
		Code:       CodeInsufficientStock,
		Message:    "requested quantity exceeds available stock",
		HTTPStatus: http.StatusConflict,
		Details: map[string]any{
			"unit_id":   unitID,
			"requested": requested,
			"available": available,
		},
	}
}

func SaleWindowClosed(resourceID, saleStatus string) *AppError {
	return &AppError{
		Code:       CodeSaleWindowClosed,
		Message:    "resource is not open for queueing",
		HTTPStatus: http.StatusConflict,
		Details: map[string]any{
			"resource_id": resourceID,
			"sale_status": saleStatus,
		},
	}
}

func CoolingDown(resourceID string, remaining time.Duration) *AppError {
	return &AppError{
		Code:       CodeCoolingDown,
		Message:    "participant recently left this queue and must wait before rejoining",
		HTTPStatus: http.StatusTooManyRequests,
		Details: map[string]any{
			"resource_id":      resourceID,
			"retry_after_secs": int64(remaining.Seconds()),
			"cooldown_remains": remaining.String(),
		},
	}
}

func LockContention(resourceID string) *AppError {
	return &AppError{
		Code:       CodeLockContention,
		Message:    "resource is being updated by another request, retry shortly",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"resource_id": resourceID},
	}
}

func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}

func AsAppError(err error) *AppError {
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return Internal("An unexpected error occurred", err)
}
