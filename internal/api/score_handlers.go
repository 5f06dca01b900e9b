package api

import (
	"net/http"

	"github.com/terra-clan/gmfm-scoring/internal/models"
)

// handleScore scores ratings without storing anything
func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	var req models.ScoreRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	result, err := s.service.Score(req.Scale, req.Ratings)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// handleMissingItems lists the items of the scale still without a rating
func (s *Server) handleMissingItems(w http.ResponseWriter, r *http.Request) {
	var req models.ScoreRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	missing, err := s.service.Missing(req.Scale, req.Ratings)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"missing": missing,
		"count":   len(missing),
	})
}
