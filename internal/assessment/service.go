// Package assessment records GMFM sessions for patients and derives scores,
// score history and session comparisons from them.
package assessment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/terra-clan/gmfm-scoring/internal/cache"
	"github.com/terra-clan/gmfm-scoring/internal/catalog"
	"github.com/terra-clan/gmfm-scoring/internal/models"
	"github.com/terra-clan/gmfm-scoring/internal/scoring"
	"github.com/terra-clan/gmfm-scoring/internal/storage"
)

// Common errors
var (
	ErrPatientNotFound = errors.New("patient not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrValidation      = errors.New("validation failed")
)

// ScoreRecorder counts engine runs (see metrics.Collector)
type ScoreRecorder interface {
	ScoreComputed(scale string)
}

// Service is the application layer over storage and the scoring engine
type Service struct {
	repo     storage.Repository
	engine   *scoring.Engine
	scores   *cache.Loader
	recorder ScoreRecorder
	now      func() time.Time
}

// NewService wires a service. scores and recorder may be nil.
func NewService(repo storage.Repository, engine *scoring.Engine, scores *cache.Loader, recorder ScoreRecorder) *Service {
	if scores == nil {
		scores = cache.NewLoader(nil, nil)
	}
	return &Service{
		repo:     repo,
		engine:   engine,
		scores:   scores,
		recorder: recorder,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Engine returns the scoring engine
func (s *Service) Engine() *scoring.Engine {
	return s.engine
}

// --- Stateless scoring ---

// Score parses the scale name and raw ratings and scores them
func (s *Service) Score(scaleName string, raw map[int]int) (*scoring.ScoreResult, error) {
	scale, ratings, err := parseInput(scaleName, raw)
	if err != nil {
		return nil, err
	}
	return s.score(scale, ratings)
}

// Missing lists the variant's unrated items
func (s *Service) Missing(scaleName string, raw map[int]int) ([]catalog.ItemID, error) {
	scale, ratings, err := parseInput(scaleName, raw)
	if err != nil {
		return nil, err
	}
	return s.engine.Missing(scale, ratings)
}

func (s *Service) score(scale catalog.ScaleVariant, ratings scoring.RatingMap) (*scoring.ScoreResult, error) {
	result, err := s.engine.Score(scale, ratings)
	if err != nil {
		return nil, err
	}
	if s.recorder != nil {
		s.recorder.ScoreComputed(string(scale))
	}
	return result, nil
}

func parseInput(scaleName string, raw map[int]int) (catalog.ScaleVariant, scoring.RatingMap, error) {
	scale, err := catalog.ParseScaleVariant(scaleName)
	if err != nil {
		return "", nil, err
	}
	ratings, err := scoring.ParseRatings(raw)
	if err != nil {
		return "", nil, err
	}
	return scale, ratings, nil
}

// --- Patients ---

// CreatePatient stores a new patient
func (s *Service) CreatePatient(ctx context.Context, req models.PatientRequest) (*models.Patient, error) {
	if err := validatePatient(req); err != nil {
		return nil, err
	}

	now := s.now()
	p := &models.Patient{
		ID:          uuid.NewString(),
		GivenName:   strings.TrimSpace(req.GivenName),
		FamilyName:  strings.TrimSpace(req.FamilyName),
		DateOfBirth: req.DateOfBirth,
		Identifier:  strings.TrimSpace(req.Identifier),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.CreatePatient(ctx, p); err != nil {
		return nil, err
	}

	slog.Info("patient created", "patient_id", p.ID)
	return p, nil
}

// GetPatient returns a patient or ErrPatientNotFound
func (s *Service) GetPatient(ctx context.Context, id string) (*models.Patient, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrPatientNotFound, id)
	}

	p, err := s.repo.GetPatient(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("%w: %s", ErrPatientNotFound, id)
	}
	return p, nil
}

// UpdatePatient replaces a patient's personal data
func (s *Service) UpdatePatient(ctx context.Context, id string, req models.PatientRequest) (*models.Patient, error) {
	if err := validatePatient(req); err != nil {
		return nil, err
	}

	p, err := s.GetPatient(ctx, id)
	if err != nil {
		return nil, err
	}

	p.GivenName = strings.TrimSpace(req.GivenName)
	p.FamilyName = strings.TrimSpace(req.FamilyName)
	p.DateOfBirth = req.DateOfBirth
	p.Identifier = strings.TrimSpace(req.Identifier)
	p.UpdatedAt = s.now()

	if err := s.repo.UpdatePatient(ctx, p); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrPatientNotFound, id)
		}
		return nil, err
	}
	return p, nil
}

// DeletePatient removes a patient with all sessions
func (s *Service) DeletePatient(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: %s", ErrPatientNotFound, id)
	}

	sessions, err := s.repo.ListSessionsForPatient(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.DeletePatient(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrPatientNotFound, id)
		}
		return err
	}

	for _, sess := range sessions {
		s.scores.Invalidate(ctx, sess.ID)
	}

	slog.Info("patient deleted", "patient_id", id, "sessions", len(sessions))
	return nil
}

// ListPatients pages through patients
func (s *Service) ListPatients(ctx context.Context, opts storage.ListOptions) ([]*models.Patient, error) {
	return s.repo.ListPatients(ctx, opts)
}

func validatePatient(req models.PatientRequest) error {
	if strings.TrimSpace(req.GivenName) == "" || strings.TrimSpace(req.FamilyName) == "" {
		return fmt.Errorf("%w: given and family name are required", ErrValidation)
	}
	if req.DateOfBirth != nil && req.DateOfBirth.After(time.Now()) {
		return fmt.Errorf("%w: date of birth is in the future", ErrValidation)
	}
	return nil
}
