package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"
)

func TestAppError_Error(t *testing.T) {
	plain := New(CodeConflict, "slot already taken", http.StatusConflict)
	if plain.Error() != "CONFLICT: slot already taken" {
		t.Errorf("unexpected message: %s", plain.Error())
	}

	cause := fmt.Errorf("write conflict")
	wrapped := Wrap(cause, CodeInternal, "transaction failed", http.StatusInternalServerError)
	if wrapped.Error() != "INTERNAL_ERROR: transaction failed (caused by: write conflict)" {
		t.Errorf("unexpected message: %s", wrapped.Error())
	}
	if !errors.Is(wrapped, cause) {
		t.Error("wrapped error should unwrap to its cause")
	}
}

func TestDomainConstructors(t *testing.T) {
	tests := []struct {
		name       string
		err        *AppError
		wantCode   string
		wantStatus int
	}{
		{"already queued", AlreadyQueued("res-1"), CodeAlreadyQueued, http.StatusConflict},
		{"already checking out", AlreadyCheckingOut("res-1"), CodeAlreadyCheckingOut, http.StatusConflict},
		{"capacity exceeded", CapacityExceeded("res-1", 5), CodeCapacityExceeded, http.StatusConflict},
		{"insufficient stock", InsufficientStock("u1", 3, 1), CodeInsufficientStock, http.StatusConflict},
		{"lock contention", LockContention("res-1"), CodeLockContention, http.StatusConflict},
		{"sale window closed", SaleWindowClosed("res-1", "closed"), CodeSaleWindowClosed, http.StatusConflict},
		{"cooling down", CoolingDown("res-1", time.Minute), CodeCoolingDown, http.StatusTooManyRequests},
		{"not found", NotFoundWithID("Resource", "res-1"), CodeNotFound, http.StatusNotFound},
		{"validation", Validation("bad payload", nil), CodeValidation, http.StatusUnprocessableEntity},
		{"invalid input", InvalidInput("resource_id is required"), CodeInvalidInput, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.wantCode {
				t.Errorf("Code = %s, want %s", tt.err.Code, tt.wantCode)
			}
			if tt.err.StatusCode() != tt.wantStatus {
				t.Errorf("StatusCode() = %d, want %d", tt.err.StatusCode(), tt.wantStatus)
			}
		})
	}
}

func TestConstructorDetails(t *testing.T) {
	stock := InsufficientStock("u1", 5, 2)
	if stock.Details["requested"] != 5 || stock.Details["available"] != 2 {
		t.Errorf("unexpected details: %v", stock.Details)
	}

	cooldown := CoolingDown("res-1", 90*time.Second)
	if cooldown.Details["retry_after_secs"] != int64(90) {
		t.Errorf("unexpected retry_after_secs: %v", cooldown.Details["retry_after_secs"])
	}
}

func TestRetryable(t *testing.T) {
	if !CapacityExceeded("res-1", 5).Retryable() {
		t.Error("capacity exhaustion should be retryable")
	}
	if !LockContention("res-1").Retryable() {
		t.Error("lock contention should be retryable")
	}
	if AlreadyQueued("res-1").Retryable() {
		t.Error("a duplicate join is not retryable without leaving first")
	}
	if SaleWindowClosed("res-1", "closed").Retryable() {
		t.Error("a closed sale is not retryable")
	}
}

func TestAsAppError(t *testing.T) {
	appErr := NotFound("Resource")
	if AsAppError(appErr) != appErr {
		t.Error("AsAppError should return the original AppError")
	}

	masked := AsAppError(fmt.Errorf("mongo: connection refused"))
	if masked.Code != CodeInternal {
		t.Errorf("expected CodeInternal for an unknown error, got %s", masked.Code)
	}
	if masked.StatusCode() != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", masked.StatusCode())
	}
}

func TestIsAppError(t *testing.T) {
	if !IsAppError(Conflict("duplicate")) {
		t.Error("IsAppError should recognize an AppError")
	}
	if IsAppError(fmt.Errorf("plain")) {
		t.Error("IsAppError should reject a plain error")
	}
}
