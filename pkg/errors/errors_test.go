package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	err := NewAppError(ErrCodeInvalidInput, "test error", 400)
	expected := "INVALID_INPUT: test error"
	if err.Error() != expected {
		t.Errorf("Error() = %v, want %v", err.Error(), expected)
	}
}

func TestAppError_WithCause(t *testing.T) {
	original := errors.New("original error")
	err := WrapError(original, ErrCodeInternal, "wrapped error", 500)

	if !errors.Is(err, original) {
		t.Errorf("errors.Is should find the cause through Unwrap")
	}
	if msg := err.Error(); msg != "INTERNAL_ERROR: wrapped error (caused by: original error)" {
		t.Errorf("unexpected message: %v", msg)
	}
}

func TestAppError_WithContext(t *testing.T) {
	err := NewAppError(ErrCodeInvalidInput, "test error", 400)
	err.WithContext("field", "token").WithContext("count", 42)

	if err.Context["field"] != "token" {
		t.Errorf("Context[field] = %v, want 'token'", err.Context["field"])
	}
	if err.Context["count"] != 42 {
		t.Errorf("Context[count] = %v, want 42", err.Context["count"])
	}
}

func TestConstructors(t *testing.T) {
	cases := []struct {
		err    *AppError
		code   ErrorCode
		status int
	}{
		{NewInvalidInputError("bad"), ErrCodeInvalidInput, http.StatusBadRequest},
		{NewNotFoundError("user"), ErrCodeNotFound, http.StatusNotFound},
		{NewUnauthorizedError("nope"), ErrCodeUnauthorized, http.StatusUnauthorized},
		{NewConflictError("dup"), ErrCodeConflict, http.StatusConflict},
		{NewInternalError("boom"), ErrCodeInternal, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if tc.err.Code != tc.code {
			t.Errorf("Code = %v, want %v", tc.err.Code, tc.code)
		}
		if tc.err.HTTPStatus != tc.status {
			t.Errorf("HTTPStatus = %v, want %v", tc.err.HTTPStatus, tc.status)
		}
	}
}

func TestGetAppError_Wrapped(t *testing.T) {
	inner := NewNotFoundError("user")
	wrapped := fmt.Errorf("handler: %w", inner)

	got := GetAppError(wrapped)
	if got == nil || got.Code != ErrCodeNotFound {
		t.Errorf("GetAppError should unwrap to the AppError, got %v", got)
	}

	if GetAppError(errors.New("plain")) != nil {
		t.Errorf("GetAppError on plain error should be nil")
	}
}
