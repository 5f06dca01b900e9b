package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/terra-clan/gmfm-scoring/internal/models"
)

// handleListPatients pages through patients
func (s *Server) handleListPatients(w http.ResponseWriter, r *http.Request) {
	opts, err := listOptions(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	patients, err := s.service.ListPatients(r.Context(), opts)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"patients": patients,
		"count":    len(patients),
	})
}

func (s *Server) handleCreatePatient(w http.ResponseWriter, r *http.Request) {
	var req models.PatientRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	patient, err := s.service.CreatePatient(r.Context(), req)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, patient)
}

func (s *Server) handleGetPatient(w http.ResponseWriter, r *http.Request) {
	patient, err := s.service.GetPatient(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, patient)
}

func (s *Server) handleUpdatePatient(w http.ResponseWriter, r *http.Request) {
	var req models.PatientRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	patient, err := s.service.UpdatePatient(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, patient)
}

// handleDeletePatient removes the patient and all of their sessions
func (s *Server) handleDeletePatient(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.service.DeletePatient(r.Context(), id); err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "patient deleted",
		"id":      id,
	})
}

// handlePatientHistory returns the per-domain trend over all sessions
func (s *Server) handlePatientHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.service.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, history)
}
