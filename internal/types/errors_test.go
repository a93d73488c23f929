package types

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestAppErrorErrorFormat(t *testing.T) {
	appErr := &AppError{
		Code:    ErrCodeValidationInvalidUser,
		Message: "user id is required",
	}

	expected := "validation_invalid_user_id: user id is required"
	if appErr.Error() != expected {
		t.Errorf("Error() = %q, want %q", appErr.Error(), expected)
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	underlying := errors.New("connection refused")
	appErr := NewAppError(ErrCodeUpstreamStore, "store unavailable", underlying)

	if !errors.Is(appErr, underlying) {
		t.Errorf("errors.Is should find the wrapped error")
	}
}

func TestAppErrorErrorsAs(t *testing.T) {
	appErr := NewAppError(ErrCodeAuthTokenMissing, "missing identity", nil)
	wrapped := fmt.Errorf("handler failed: %w", appErr)

	var target *AppError
	if !errors.As(wrapped, &target) {
		t.Fatal("errors.As should extract *AppError from a wrapped chain")
	}
	if target.Code != ErrCodeAuthTokenMissing {
		t.Errorf("Code = %q, want %q", target.Code, ErrCodeAuthTokenMissing)
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{ErrCodeValidationInvalidUser, http.StatusBadRequest},
		{ErrCodeValidationInvalidPlan, http.StatusBadRequest},
		{ErrCodeAuthTokenMissing, http.StatusUnauthorized},
		{ErrCodeLimitFreeQuota, http.StatusForbidden},
		{ErrCodeNotFoundUser, http.StatusNotFound},
		{ErrCodePaymentDeclined, http.StatusPaymentRequired},
		{ErrCodeUpstreamRateLimited, http.StatusServiceUnavailable},
		{ErrCodeUpstreamStore, http.StatusBadGateway},
		{ErrCodeUpstreamAnalysis, http.StatusBadGateway},
		{ErrCodeInternalDB, http.StatusInternalServerError},
		{ErrorCode("something_unknown"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := tt.code.HTTPStatus(); got != tt.want {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestHasCode(t *testing.T) {
	err := fmt.Errorf("recording usage: %w", NewAppError(ErrCodeUpstreamStore, "down", nil))

	if !HasCode(err, ErrCodeUpstreamStore) {
		t.Error("HasCode should find the code through a wrapped chain")
	}
	if HasCode(err, ErrCodeInternalDB) {
		t.Error("HasCode matched the wrong code")
	}
	if HasCode(errors.New("plain"), ErrCodeUpstreamStore) {
		t.Error("HasCode matched a plain error")
	}
	if HasCode(nil, ErrCodeUpstreamStore) {
		t.Error("HasCode matched nil")
	}
}
