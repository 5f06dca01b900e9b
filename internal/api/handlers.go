package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/terra-clan/gmfm-scoring/internal/assessment"
	"github.com/terra-clan/gmfm-scoring/internal/catalog"
	"github.com/terra-clan/gmfm-scoring/internal/scoring"
	"github.com/terra-clan/gmfm-scoring/internal/storage"
)

// Response helpers

type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *apiError   `json:"error,omitempty"`
}

type apiError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondErrorDetails(w, status, code, message, nil)
}

func respondErrorDetails(w http.ResponseWriter, status int, code, message string, details interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: false,
		Error: &apiError{
			Code:    code,
			Message: message,
			Details: details,
		},
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}

// respondServiceError maps domain errors to HTTP statuses
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var ratingErr *scoring.RatingError
	switch {
	case errors.As(err, &ratingErr):
		respondErrorDetails(w, http.StatusBadRequest, "invalid_rating", err.Error(), map[string]int{
			"item":  int(ratingErr.Item),
			"value": ratingErr.Value,
		})
	case errors.Is(err, scoring.ErrInvalidRating):
		respondError(w, http.StatusBadRequest, "invalid_rating", err.Error())
	case errors.Is(err, catalog.ErrUnknownScaleVariant):
		respondError(w, http.StatusBadRequest, "unknown_scale", err.Error())
	case errors.Is(err, assessment.ErrValidation):
		respondError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, assessment.ErrPatientNotFound):
		respondError(w, http.StatusNotFound, "patient_not_found", "patient not found")
	case errors.Is(err, assessment.ErrSessionNotFound), errors.Is(err, storage.ErrNotFound):
		respondError(w, http.StatusNotFound, "session_not_found", "session not found")
	case errors.Is(err, catalog.ErrCatalogUnavailable):
		slog.Error("catalog unavailable", "path", r.URL.Path, "error", err)
		respondError(w, http.StatusServiceUnavailable, "catalog_unavailable", "item catalog unavailable")
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

// listOptions reads limit and offset query parameters
func listOptions(r *http.Request) (storage.ListOptions, error) {
	var opts storage.ListOptions
	q := r.URL.Query()

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return opts, errors.New("limit must be a non-negative integer")
		}
		opts.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return opts, errors.New("offset must be a non-negative integer")
		}
		opts.Offset = n
	}
	return opts, nil
}

// Health handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status, healthy := s.registry.Status(r.Context())
	if !healthy {
		respondErrorDetails(w, http.StatusServiceUnavailable, "not_ready", "service not ready", status)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "ready",
		"dependencies": status,
	})
}
