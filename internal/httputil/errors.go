package httputil

import (
	"encoding/json"
	"net/http"
)

// APIError is the error body returned to webhook callers. The field names
// follow what the messaging platform integration already parses.
type APIError struct {
	Erro      string `json:"erro"`
	Detalhes  any    `json:"detalhes,omitempty"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

// WriteJSON writes v with the given status code.
func WriteJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, requestID string, statusCode int, code, message string, details any) {
	w.Header().Set("X-Request-ID", requestID)
	WriteJSON(w, statusCode, APIError{
		Erro:      message,
		Detalhes:  details,
		Code:      code,
		RequestID: requestID,
	})
}

func WriteAuthError(w http.ResponseWriter, requestID, message string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	WriteError(w, requestID, http.StatusUnauthorized, "invalid_token", message, nil)
}

func WriteRateLimitError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusTooManyRequests, "rate_limit_exceeded", message, nil)
}

func WriteBadRequestError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusBadRequest, "invalid_request", message, nil)
}

// WriteValidationError reports field-level diagnoses under "detalhes".
func WriteValidationError(w http.ResponseWriter, requestID string, details any) {
	WriteError(w, requestID, http.StatusBadRequest, "invalid_payload", "Dados inválidos", details)
}

func WriteNotFoundError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusNotFound, "not_found", message, nil)
}

func WriteInternalError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusInternalServerError, "internal_error", message, nil)
}

func WriteServiceUnavailableError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusServiceUnavailable, "service_unavailable", message, nil)
}
