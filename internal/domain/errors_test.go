package domain

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{
			name: "error without cause",
			err: &AppError{
				Code:    ErrCodeSessionNotFound,
				Message: "session not found",
			},
			want: "[SESSION_NOT_FOUND] session not found",
		},
		{
			name: "error with cause",
			err: &AppError{
				Code:    ErrCodeFatalBackend,
				Message: "claude rejected the request",
				Cause:   errors.New("status 401"),
			},
			want: "[FATAL_BACKEND] claude rejected the request: status 401",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("AppError.Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	inner := errors.New("inner error")
	err := ErrMalformedResponse("no JSON object", inner)

	if !errors.Is(err, inner) {
		t.Error("AppError.Unwrap() should allow errors.Is to find inner error")
	}
}

func TestErrTransientBackend(t *testing.T) {
	err := ErrTransientBackend("claude", 0, errors.New("529 overloaded"))

	if !err.Retryable {
		t.Error("transient errors must be retryable")
	}
	if err.RetryAfter != DefaultRetryAfter {
		t.Errorf("RetryAfter = %v, want %v", err.RetryAfter, DefaultRetryAfter)
	}
	if err.HTTPStatus != http.StatusServiceUnavailable {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusServiceUnavailable)
	}

	hinted := ErrTransientBackend("gemini", 7*time.Second, nil)
	if hinted.RetryAfter != 7*time.Second {
		t.Errorf("RetryAfter = %v, want 7s", hinted.RetryAfter)
	}
}

func TestErrFatalBackend(t *testing.T) {
	err := ErrFatalBackend("gemini", errors.New("API key invalid"))

	if err.Retryable {
		t.Error("fatal errors must not be retryable")
	}
	if !err.Fatal {
		t.Error("fatal errors must be flagged for operator attention")
	}
	if err.Metadata["backend"] != "gemini" {
		t.Errorf("Metadata[backend] = %v, want gemini", err.Metadata["backend"])
	}
}

func TestSentinelMatching(t *testing.T) {
	wrapped := fmt.Errorf("dispatch: %w", ErrTransientBackend("claude", time.Second, nil))

	if !IsTransient(wrapped) {
		t.Error("IsTransient should see through wrapping")
	}
	if IsFatal(wrapped) {
		t.Error("IsFatal should not match a transient error")
	}
	if !IsMalformed(ErrMalformedResponse("missing testCases", nil)) {
		t.Error("IsMalformed should match ErrMalformedResponse")
	}
	if !errors.Is(ErrSessionNotFound("abc"), ErrSessionSentinel) {
		t.Error("ErrSessionNotFound should match ErrSessionSentinel")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Action
	}{
		{"nil", nil, ""},
		{"transient", ErrTransientBackend("claude", 0, nil), ActionRetryLater},
		{"malformed", ErrMalformedResponse("bad", nil), ActionRetryNow},
		{"fatal", ErrFatalBackend("claude", nil), ActionFatal},
		{"plain error", errors.New("boom"), ActionFatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGetHTTPStatus(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"session not found", ErrSessionNotFound("123"), http.StatusNotFound},
		{"validation error", ErrValidation("Invalid input"), http.StatusBadRequest},
		{"malformed response", ErrMalformedResponse("x", nil), http.StatusUnprocessableEntity},
		{"non-app error", errors.New("random error"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetHTTPStatus(tt.err); got != tt.wantStatus {
				t.Errorf("GetHTTPStatus() = %d, want %d", got, tt.wantStatus)
			}
		})
	}
}

func TestGetErrorCode(t *testing.T) {
	if got := GetErrorCode(ErrUnknownBackend("gpt")); got != ErrCodeUnknownBackend {
		t.Errorf("GetErrorCode() = %s, want %s", got, ErrCodeUnknownBackend)
	}
	if got := GetErrorCode(errors.New("x")); got != ErrCodeInternal {
		t.Errorf("GetErrorCode() = %s, want %s", got, ErrCodeInternal)
	}
}
