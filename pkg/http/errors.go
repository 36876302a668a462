package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/BradenHooton/gatekeeper/internal/models"
)

// Messages shown to denied clients. They never say which threshold fired.
const (
	AccessDeniedMessage    = "Access denied."
	TooManyAttemptsMessage = "Too many failed attempts. Please try again later."
)

// ErrorResponse represents a standard API error response
type ErrorResponse struct {
	Error   string `json:"error"`             // Machine-readable error code
	Message string `json:"message"`           // Human-readable message
	Details string `json:"details,omitempty"` // Optional additional context
}

// WriteJSON writes v as a JSON body with the given status code
func WriteJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes a JSON error response with the given status code
func WriteError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	WriteErrorWithDetails(w, statusCode, errorCode, message, "")
}

// WriteErrorWithDetails writes a JSON error response with additional details
func WriteErrorWithDetails(w http.ResponseWriter, statusCode int, errorCode, message, details string) {
	WriteJSON(w, statusCode, ErrorResponse{
		Error:   errorCode,
		Message: message,
		Details: details,
	})
}

func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, "bad_request", message)
}

func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, "unauthorized", message)
}

func WriteForbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, "forbidden", message)
}

// WriteAccessDenied is the uniform admission refusal
func WriteAccessDenied(w http.ResponseWriter) {
	WriteForbidden(w, AccessDeniedMessage)
}

func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, "not_found", message)
}

// WriteRequestTooLarge writes a 413 response
func WriteRequestTooLarge(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusRequestEntityTooLarge, "request_too_large", message)
}

func WriteTooManyRequests(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusTooManyRequests, "rate_limit_exceeded", message)
}

func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, "internal_error", message)
}

func WriteServiceUnavailable(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusServiceUnavailable, "service_unavailable", message)
}

// WriteModelError maps a models sentinel to its HTTP status. Unknown errors
// become a generic 500 so driver text never reaches the client.
func WriteModelError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		WriteNotFound(w, "Resource not found")
	case errors.Is(err, models.ErrInvalidIdentity), errors.Is(err, models.ErrBadRequest):
		WriteBadRequest(w, "Invalid request")
	case errors.Is(err, models.ErrUnauthorized), errors.Is(err, models.ErrSessionExpired),
		errors.Is(err, models.ErrSessionRevoked):
		WriteUnauthorized(w, "Authentication required")
	case errors.Is(err, models.ErrForbidden):
		WriteAccessDenied(w)
	case errors.Is(err, models.ErrStorageUnavailable):
		WriteServiceUnavailable(w, "Service temporarily unavailable")
	default:
		WriteInternalError(w, "Internal server error")
	}
}
