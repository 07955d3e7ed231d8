// Package api holds the JSON envelope shared by every handler.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cloo-solutions/coursetutor/internal/domain"
)

// retryAfterSeconds is advertised when the ingestion queue is saturated.
const retryAfterSeconds = "5"

// SuccessResponse wraps successful API responses.
type SuccessResponse struct {
	Data any `json:"data"`
}

// ErrorResponse is the body of every non-2xx JSON reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

var statusByCode = map[string]int{
	domain.ErrCodeValidation:       http.StatusBadRequest,
	domain.ErrCodeNotFound:         http.StatusNotFound,
	domain.ErrCodeStoreNotFound:    http.StatusNotFound,
	domain.ErrCodeAlreadyExists:    http.StatusConflict,
	domain.ErrCodeInvalidOperation: http.StatusConflict,
	domain.ErrCodeUnauthorized:     http.StatusUnauthorized,
	domain.ErrCodeForbidden:        http.StatusForbidden,
	domain.ErrCodeExtraction:       http.StatusUnprocessableEntity,
	domain.ErrCodeEmbedding:        http.StatusBadGateway,
	domain.ErrCodeUnavailable:      http.StatusServiceUnavailable,
	domain.ErrCodeInternalError:    http.StatusInternalServerError,
}

// JSON writes data with the given status. A 204 or nil data sends no body.
func JSON(w http.ResponseWriter, status int, data any) {
	if status == http.StatusNoContent || data == nil {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func Success(w http.ResponseWriter, status int, data any) {
	JSON(w, status, SuccessResponse{Data: data})
}

func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorResponse{Error: message})
}

// DomainErrorToHTTP maps a domain error, wrapped or not, to its status.
// Anything else is a 500.
func DomainErrorToHTTP(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var de *domain.DomainError
	if !errors.As(err, &de) {
		return http.StatusInternalServerError
	}
	if status, ok := statusByCode[de.Code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// HandleError writes the error envelope for err. Messages of 500s and of
// non-domain errors never reach the client.
func HandleError(w http.ResponseWriter, err error) {
	var de *domain.DomainError
	if !errors.As(err, &de) {
		Error(w, http.StatusInternalServerError, "internal server error")
		return
	}

	status := DomainErrorToHTTP(de)
	body := ErrorResponse{Error: de.Message, Code: de.Code}
	switch {
	case status == http.StatusServiceUnavailable:
		w.Header().Set("Retry-After", retryAfterSeconds)
	case status >= http.StatusInternalServerError && status != http.StatusBadGateway:
		body.Error = "internal server error"
	}
	JSON(w, status, body)
}
