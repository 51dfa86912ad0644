package httputil

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/testforge/casegen/internal/domain"
)

// Response represents a standard API response
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   *Error `json:"error,omitempty"`
}

// Error represents an API error. Action tells the client whether to retry
// now, retry later, or give up.
type Error struct {
	Code              string         `json:"code"`
	Message           string         `json:"message"`
	Action            string         `json:"action,omitempty"`
	RetryAfterSeconds int            `json:"retry_after_seconds,omitempty"`
	Details           map[string]any `json:"details,omitempty"`
}

// JSON writes a JSON response
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := Response{
		Success: status >= 200 && status < 300,
		Data:    data,
	}

	json.NewEncoder(w).Encode(resp)
}

// JSONError writes a JSON error response
func JSONError(w http.ResponseWriter, status int, code, message string, details map[string]any) {
	writeError(w, status, &Error{Code: code, Message: message, Details: details})
}

func writeError(w http.ResponseWriter, status int, e *Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	json.NewEncoder(w).Encode(Response{Success: false, Error: e})
}

// ErrorFromDomain converts a domain error to HTTP response. Retryable
// errors also set the Retry-After header.
func ErrorFromDomain(w http.ResponseWriter, err error) {
	var appErr *domain.AppError
	if !errors.As(err, &appErr) {
		writeError(w, http.StatusInternalServerError, &Error{
			Code:    domain.ErrCodeInternal,
			Message: "Internal server error",
			Action:  string(domain.ActionFatal),
		})
		return
	}

	e := &Error{
		Code:    appErr.Code,
		Message: appErr.Message,
		Action:  string(domain.Classify(appErr)),
		Details: publicDetails(appErr),
	}
	if appErr.Retryable && appErr.RetryAfter > 0 {
		secs := int(math.Ceil(appErr.RetryAfter.Seconds()))
		e.RetryAfterSeconds = secs
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}

	status := appErr.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}
	writeError(w, status, e)
}

// publicDetails keeps metadata that is safe to show a client
func publicDetails(e *domain.AppError) map[string]any {
	out := make(map[string]any)
	for _, k := range []string{"field", "backend", "session_id", "status"} {
		if v, ok := e.Metadata[k]; ok {
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// DecodeJSON decodes JSON from request body
func DecodeJSON(r *http.Request, v any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return domain.ErrValidationField("body", "request body is required")
	}

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return domain.NewError(domain.ErrCodeValidation, "request body too large", http.StatusRequestEntityTooLarge)
		}
		return domain.ErrValidationField("body", "invalid JSON: "+err.Error())
	}

	return nil
}
