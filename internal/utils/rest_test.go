package utils

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Error
}

func TestRespondWithError(t *testing.T) {
	tests := []struct {
		code     int
		wantType string
	}{
		{http.StatusBadRequest, "bad_request"},
		{http.StatusUnauthorized, "unauthorized"},
		{http.StatusRequestEntityTooLarge, "request_entity_too_large"},
		{http.StatusServiceUnavailable, "service_unavailable"},
		{599, "error"},
	}
	for _, tt := range tests {
		t.Run(tt.wantType, func(t *testing.T) {
			w := httptest.NewRecorder()
			RespondWithError(w, tt.code, "something happened")

			assert.Equal(t, tt.code, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			assert.Empty(t, w.Header().Get("Retry-After"))

			body := decodeError(t, w)
			assert.Equal(t, tt.wantType, body.Type)
			assert.Equal(t, "something happened", body.Message)
			assert.Zero(t, body.RetryAfterSeconds)
		})
	}
}

func TestRespondWithTypedError(t *testing.T) {
	w := httptest.NewRecorder()
	RespondWithTypedError(w, http.StatusTooManyRequests, "rate_limited", "slow down", 12)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "12", w.Header().Get("Retry-After"))
	assert.Equal(t, ErrorBody{Type: "rate_limited", Message: "slow down", RetryAfterSeconds: 12}, decodeError(t, w))
}

func TestRespondWithTypedError_OmitsZeroRetry(t *testing.T) {
	w := httptest.NewRecorder()
	RespondWithTypedError(w, http.StatusBadRequest, "validation", "image 1: unsupported format", 0)

	assert.Empty(t, w.Header().Get("Retry-After"))
	assert.NotContains(t, w.Body.String(), "retry_after_seconds")
}

func TestRespondWithJSON(t *testing.T) {
	t.Run("encodes payload", func(t *testing.T) {
		w := httptest.NewRecorder()
		require.NoError(t, RespondWithJSON(w, http.StatusCreated, map[string]any{"status": "ok", "count": 2}))

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.JSONEq(t, `{"status":"ok","count":2}`, w.Body.String())
	})

	t.Run("nil payload", func(t *testing.T) {
		w := httptest.NewRecorder()
		require.NoError(t, RespondWithJSON(w, http.StatusOK, nil))
		assert.Equal(t, "null\n", w.Body.String())
	})

	t.Run("unencodable payload", func(t *testing.T) {
		w := httptest.NewRecorder()
		assert.Error(t, RespondWithJSON(w, http.StatusOK, math.Inf(1)))
	})
}
