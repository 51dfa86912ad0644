package domain

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Error codes. Each maps to one HTTP status through statusByCode.
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeSessionNotFound  = "SESSION_NOT_FOUND"
	ErrCodeUnknownBackend   = "UNKNOWN_BACKEND"
	ErrCodeMalformed        = "MALFORMED_RESPONSE"
	ErrCodeInternal         = "INTERNAL_ERROR"
	ErrCodeTransientBackend = "TRANSIENT_BACKEND"
	ErrCodeFatalBackend     = "FATAL_BACKEND"
)

var statusByCode = map[string]int{
	ErrCodeValidation:       http.StatusBadRequest,
	ErrCodeSessionNotFound:  http.StatusNotFound,
	ErrCodeUnknownBackend:   http.StatusBadRequest,
	ErrCodeMalformed:        http.StatusUnprocessableEntity,
	ErrCodeInternal:         http.StatusInternalServerError,
	ErrCodeTransientBackend: http.StatusServiceUnavailable,
	ErrCodeFatalBackend:     http.StatusBadGateway,
}

// DefaultRetryAfter is suggested to callers when a backend gave no hint.
const DefaultRetryAfter = 30 * time.Second

// AppError carries a stable code, the HTTP status it maps to and the
// retry guidance a caller needs.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Cause      error

	// Metadata holds structured context such as the field or backend name.
	// Only a fixed set of keys ever reaches an HTTP client.
	Metadata map[string]any

	Retryable  bool
	RetryAfter time.Duration
	// Fatal marks failures that need operator attention, e.g. a bad API key.
	Fatal bool
}

func (e *AppError) Error() string {
	if e.Cause == nil {
		return "[" + e.Code + "] " + e.Message
	}
	return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
}

func (e *AppError) Unwrap() error { return e.Cause }

// Is matches any *AppError with the same code, so the sentinels below work
// with errors.Is.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// WithMetadata sets one metadata key and returns e
func (e *AppError) WithMetadata(key string, value any) *AppError {
	if e.Metadata == nil {
		e.Metadata = map[string]any{}
	}
	e.Metadata[key] = value
	return e
}

// NewError builds an AppError. A zero status is looked up from the code.
func NewError(code, message string, httpStatus int) *AppError {
	if httpStatus == 0 {
		httpStatus = statusByCode[code]
	}
	if httpStatus == 0 {
		httpStatus = http.StatusInternalServerError
	}
	return &AppError{Code: code, Message: message, HTTPStatus: httpStatus}
}

func newCoded(code, message string, cause error) *AppError {
	e := NewError(code, message, 0)
	e.Cause = cause
	return e
}

func ErrValidation(message string) *AppError {
	return newCoded(ErrCodeValidation, message, nil)
}

func ErrValidationField(field, message string) *AppError {
	return ErrValidation(message).WithMetadata("field", field)
}

func ErrSessionNotFound(id string) *AppError {
	return newCoded(ErrCodeSessionNotFound, "session not found: "+id, nil).
		WithMetadata("session_id", id)
}

func ErrUnknownBackend(name string) *AppError {
	return newCoded(ErrCodeUnknownBackend, fmt.Sprintf("unknown model backend: %q", name), nil).
		WithMetadata("backend", name)
}

// ErrTransientBackend reports an overloaded or rate-limited backend. A zero
// retryAfter falls back to DefaultRetryAfter.
func ErrTransientBackend(backend string, retryAfter time.Duration, err error) *AppError {
	if retryAfter <= 0 {
		retryAfter = DefaultRetryAfter
	}
	e := newCoded(ErrCodeTransientBackend, backend+" is temporarily unavailable, please retry later", err).
		WithMetadata("backend", backend)
	e.Retryable = true
	e.RetryAfter = retryAfter
	return e
}

// ErrFatalBackend reports an authentication or invalid-request failure
func ErrFatalBackend(backend string, err error) *AppError {
	e := newCoded(ErrCodeFatalBackend, backend+" rejected the request", err).
		WithMetadata("backend", backend)
	e.Fatal = true
	return e
}

// ErrMalformedResponse reports model output that does not fit the test case schema.
func ErrMalformedResponse(reason string, err error) *AppError {
	return newCoded(ErrCodeMalformed, "model response could not be parsed: "+reason, err)
}

func ErrInternal(message string) *AppError {
	if message == "" {
		message = "Internal server error"
	}
	return newCoded(ErrCodeInternal, message, nil)
}

// Sentinels for errors.Is
var (
	ErrTransientSentinel = NewError(ErrCodeTransientBackend, "transient backend error", 0)
	ErrFatalSentinel     = NewError(ErrCodeFatalBackend, "fatal backend error", 0)
	ErrMalformedSentinel = NewError(ErrCodeMalformed, "malformed response", 0)
	ErrSessionSentinel   = NewError(ErrCodeSessionNotFound, "session not found", 0)
)

// AsAppError unwraps err to its *AppError, if any
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	ok := errors.As(err, &appErr)
	return appErr, ok
}

func IsTransient(err error) bool { return errors.Is(err, ErrTransientSentinel) }
func IsFatal(err error) bool     { return errors.Is(err, ErrFatalSentinel) }
func IsMalformed(err error) bool { return errors.Is(err, ErrMalformedSentinel) }

// Action tells a caller what to do with a failed generation.
type Action string

const (
	ActionRetryNow   Action = "retry-now"
	ActionRetryLater Action = "retry-later"
	ActionFatal      Action = "fatal"
)

// Classify maps an error onto the caller's next step. Malformed output may
// be resubmitted immediately; transient backend failures should wait.
func Classify(err error) Action {
	switch {
	case err == nil:
		return ""
	case IsTransient(err):
		return ActionRetryLater
	case IsMalformed(err):
		return ActionRetryNow
	default:
		return ActionFatal
	}
}

// GetHTTPStatus returns the status for err; plain errors are 500
func GetHTTPStatus(err error) int {
	if appErr, ok := AsAppError(err); ok {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// GetErrorCode returns the code for err; plain errors are INTERNAL_ERROR
func GetErrorCode(err error) string {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ErrCodeInternal
}
