package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testforge/casegen/internal/domain"
)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) *Error {
	t.Helper()
	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	return resp.Error
}

func TestErrorFromDomain(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantAction string
		wantRetry  string
	}{
		{
			name:       "transient",
			err:        domain.ErrTransientBackend("claude", 12500*time.Millisecond, errors.New("status 429")),
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   domain.ErrCodeTransientBackend,
			wantAction: "retry-later",
			wantRetry:  "13",
		},
		{
			name:       "fatal",
			err:        domain.ErrFatalBackend("gemini", errors.New("status 401")),
			wantStatus: http.StatusBadGateway,
			wantCode:   domain.ErrCodeFatalBackend,
			wantAction: "fatal",
		},
		{
			name:       "malformed",
			err:        domain.ErrMalformedResponse("no testCases array", nil),
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   domain.ErrCodeMalformed,
			wantAction: "retry-now",
		},
		{
			name:       "validation",
			err:        domain.ErrValidationField("screenshots", "between 1 and 25 screenshots required"),
			wantStatus: http.StatusBadRequest,
			wantCode:   domain.ErrCodeValidation,
			wantAction: "fatal",
		},
		{
			name:       "session not found",
			err:        domain.ErrSessionNotFound("abc"),
			wantStatus: http.StatusNotFound,
			wantCode:   domain.ErrCodeSessionNotFound,
			wantAction: "fatal",
		},
		{
			name:       "plain error",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   domain.ErrCodeInternal,
			wantAction: "fatal",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			ErrorFromDomain(rec, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantRetry, rec.Header().Get("Retry-After"))

			e := decodeError(t, rec)
			assert.Equal(t, tt.wantCode, e.Code)
			assert.Equal(t, tt.wantAction, e.Action)
		})
	}
}

func TestErrorFromDomain_DetailsAreFiltered(t *testing.T) {
	err := domain.ErrSessionNotFound("abc").WithMetadata("internal_path", "/var/lib")
	rec := httptest.NewRecorder()
	ErrorFromDomain(rec, err)

	e := decodeError(t, rec)
	assert.Equal(t, map[string]any{"session_id": "abc"}, e.Details)
}

func TestDecodeJSON(t *testing.T) {
	var v struct {
		Name string `json:"name"`
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"login"}`))
	require.NoError(t, DecodeJSON(req, &v))
	assert.Equal(t, "login", v.Name)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"unknown":1}`))
	assert.Equal(t, domain.ErrCodeValidation, domain.GetErrorCode(DecodeJSON(req, &v)))

	req = httptest.NewRequest(http.MethodPost, "/", nil)
	assert.Error(t, DecodeJSON(req, &v))

	rec := httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"`+strings.Repeat("x", 100)+`"}`))
	req.Body = http.MaxBytesReader(rec, req.Body, 10)
	err := DecodeJSON(req, &v)
	assert.Equal(t, http.StatusRequestEntityTooLarge, domain.GetHTTPStatus(err))
}

func TestJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, http.StatusOK, map[string]int{"estimatedCount": 21})

	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"success":true,"data":{"estimatedCount":21}}`, rec.Body.String())
}
