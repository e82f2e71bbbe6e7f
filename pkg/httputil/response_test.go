package httputil

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"message": "success"}

	err := WriteJSON(w, http.StatusOK, data)

	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "success")
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()

	WriteError(w, http.StatusBadRequest, errors.New("test error"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"test error"}`, w.Body.String())
}

func TestWriteInternalError(t *testing.T) {
	w := httptest.NewRecorder()

	WriteInternalError(w)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "internal server error")
}

func TestWriteCreated(t *testing.T) {
	w := httptest.NewRecorder()

	err := WriteCreated(w, map[string]int{"id": 123})

	assert.NoError(t, err)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "123")
}

func TestWriteNoContent(t *testing.T) {
	w := httptest.NewRecorder()
	WriteNoContent(w)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestWriteServiceError(t *testing.T) {
	errDenied := errors.New("denied")
	errBusy := errors.New("busy")
	errGone := errors.New("gone")

	first := []ErrorStatus{
		{Err: errDenied, Status: http.StatusForbidden},
		{Err: errBusy, Status: http.StatusServiceUnavailable, RetryAfter: 2},
	}
	second := []ErrorStatus{
		{Err: errGone, Status: http.StatusGone},
	}

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantRetry  string
		wantCause  bool
	}{
		{name: "direct match", err: errDenied, wantStatus: http.StatusForbidden},
		{name: "wrapped match", err: fmt.Errorf("accept: %w", errGone), wantStatus: http.StatusGone},
		{name: "retry after", err: errBusy, wantStatus: http.StatusServiceUnavailable, wantRetry: "2"},
		{name: "unmapped", err: errors.New("db down"), wantStatus: http.StatusInternalServerError, wantCause: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			cause := WriteServiceError(w, tt.err, first, second)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantRetry, w.Header().Get("Retry-After"))
			if tt.wantCause {
				assert.Equal(t, tt.err, cause)
				assert.NotContains(t, w.Body.String(), "db down")
			} else {
				assert.NoError(t, cause)
			}
		})
	}
}
