package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/atelierops/pipeline-engine/pkg/apperrors"
)

// ApiResponse wraps data in the format expected by the review frontend.
type ApiResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// MutationResponse is the envelope every mutating endpoint returns. The
// training_logged field tells the caller the feedback entry was committed
// with the mutation.
type MutationResponse struct {
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	TrainingLogged bool   `json:"training_logged"`
	Data           any    `json:"data,omitempty"`
}

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// WriteServiceError maps service-layer sentinels to HTTP statuses and writes
// the error response.
func WriteServiceError(w http.ResponseWriter, logger *zap.Logger, err error) {
	status := http.StatusInternalServerError
	code := "internal_error"

	switch {
	case errors.Is(err, apperrors.ErrSourceNotFound),
		errors.Is(err, apperrors.ErrEntityNotFound),
		errors.Is(err, apperrors.ErrLinkNotFound),
		errors.Is(err, apperrors.ErrSuggestionNotFound):
		status = http.StatusNotFound
		code = "not_found"
	case errors.Is(err, apperrors.ErrMissingActor),
		errors.Is(err, apperrors.ErrMissingReason),
		errors.Is(err, apperrors.ErrBelowThreshold):
		status = http.StatusBadRequest
		code = "invalid_request"
	case errors.Is(err, apperrors.ErrManualLink),
		errors.Is(err, apperrors.ErrSuggestionResolved),
		errors.Is(err, apperrors.ErrDuplicateSuggestion):
		status = http.StatusConflict
		code = "conflict"
	}

	if status == http.StatusInternalServerError {
		logger.Error("request failed", zap.Error(err))
	}
	if werr := ErrorResponse(w, status, code, err.Error()); werr != nil {
		logger.Error("Failed to write error response", zap.Error(werr))
	}
}
