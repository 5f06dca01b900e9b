package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/terra-clan/gmfm-scoring/internal/models"
)

func (s *Server) handleListPatientSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.service.ListSessions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

func (s *Server) handleLatestSession(w http.ResponseWriter, r *http.Request) {
	view, err := s.service.LatestSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, view)
}

// handleRecordSession scores and stores a new session for the patient
func (s *Server) handleRecordSession(w http.ResponseWriter, r *http.Request) {
	var req models.SessionRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	view, err := s.service.RecordSession(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, view)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	view, err := s.service.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleUpdateSession(w http.ResponseWriter, r *http.Request) {
	var req models.SessionRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	view, err := s.service.UpdateSession(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.service.DeleteSession(r.Context(), id); err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "session deleted",
		"id":      id,
	})
}

// handleCompareSessions diffs two sessions: ?from=<id>&to=<id>
func (s *Server) handleCompareSessions(w http.ResponseWriter, r *http.Request) {
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	if from == "" || to == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "from and to session ids are required")
		return
	}

	cmp, err := s.service.Compare(r.Context(), from, to)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, cmp)
}
