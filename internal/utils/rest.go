package utils

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
)

// ErrorBody is the error payload returned by every endpoint.
type ErrorBody struct {
	Type              string `json:"type"`
	Message           string `json:"message"`
	RetryAfterSeconds int    `json:"retry_after_seconds,omitempty"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// RespondWithError sends an error response typed after the status code.
func RespondWithError(w http.ResponseWriter, code int, message string) {
	RespondWithTypedError(w, code, statusType(code), message, 0)
}

// RespondWithTypedError sends an error response with an explicit type and an optional Retry-After hint.
func RespondWithTypedError(w http.ResponseWriter, code int, errType, message string, retryAfterSeconds int) {
	if retryAfterSeconds > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	}
	RespondWithJSON(w, code, ErrorResponse{Error: ErrorBody{
		Type:              errType,
		Message:           message,
		RetryAfterSeconds: retryAfterSeconds,
	}})
}

// RespondWithJSON sends a JSON response
func RespondWithJSON(w http.ResponseWriter, code int, payload interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, "Failed to encode response: "+err.Error(), http.StatusInternalServerError)
		return err
	}
	return nil
}

func statusType(code int) string {
	text := http.StatusText(code)
	if text == "" {
		return "error"
	}
	return strings.ReplaceAll(strings.ToLower(text), " ", "_")
}
