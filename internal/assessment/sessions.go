package assessment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/terra-clan/gmfm-scoring/internal/catalog"
	"github.com/terra-clan/gmfm-scoring/internal/models"
	"github.com/terra-clan/gmfm-scoring/internal/scoring"
	"github.com/terra-clan/gmfm-scoring/internal/storage"
)

// SessionView is a stored session together with its score
type SessionView struct {
	Session *models.Session      `json:"session"`
	Result  *scoring.ScoreResult `json:"result"`
}

// RecordSession scores the ratings and stores them as a new session
func (s *Service) RecordSession(ctx context.Context, patientID string, req models.SessionRequest) (*SessionView, error) {
	if _, err := s.GetPatient(ctx, patientID); err != nil {
		return nil, err
	}

	scale, ratings, err := parseInput(req.Scale, req.Ratings)
	if err != nil {
		return nil, err
	}
	result, err := s.score(scale, ratings)
	if err != nil {
		return nil, err
	}

	now := s.now()
	sess := &models.Session{
		ID:         uuid.NewString(),
		PatientID:  patientID,
		Scale:      string(scale),
		Ratings:    ratings.Raw(),
		TotalScore: result.TotalPercent,
		Notes:      req.Notes,
		AssessedAt: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if req.AssessedAt != nil {
		sess.AssessedAt = req.AssessedAt.UTC()
	}

	if err := s.repo.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	s.scores.Prime(ctx, sess.ID, result)

	slog.Info("session recorded",
		"session_id", sess.ID,
		"patient_id", patientID,
		"scale", sess.Scale,
		"items_scored", result.ItemsScored,
		"total_percent", result.TotalPercent,
	)

	return &SessionView{Session: sess, Result: result}, nil
}

// UpdateSession replaces ratings and notes and rescores the session
func (s *Service) UpdateSession(ctx context.Context, id string, req models.SessionRequest) (*SessionView, error) {
	sess, err := s.getSession(ctx, id)
	if err != nil {
		return nil, err
	}

	scale, ratings, err := parseInput(req.Scale, req.Ratings)
	if err != nil {
		return nil, err
	}
	result, err := s.score(scale, ratings)
	if err != nil {
		return nil, err
	}

	sess.Scale = string(scale)
	sess.Ratings = ratings.Raw()
	sess.TotalScore = result.TotalPercent
	sess.Notes = req.Notes
	if req.AssessedAt != nil {
		sess.AssessedAt = req.AssessedAt.UTC()
	}
	sess.UpdatedAt = s.now()

	if err := s.repo.UpdateSession(ctx, sess); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		return nil, err
	}
	s.scores.Prime(ctx, sess.ID, result)

	slog.Info("session rescored", "session_id", id, "total_percent", result.TotalPercent)
	return &SessionView{Session: sess, Result: result}, nil
}

// GetSession returns a session with its (possibly cached) score
func (s *Service) GetSession(ctx context.Context, id string) (*SessionView, error) {
	sess, err := s.getSession(ctx, id)
	if err != nil {
		return nil, err
	}

	result, err := s.resultFor(ctx, sess)
	if err != nil {
		return nil, err
	}
	return &SessionView{Session: sess, Result: result}, nil
}

// DeleteSession removes a session
func (s *Service) DeleteSession(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	if err := s.repo.DeleteSession(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		return err
	}
	s.scores.Invalidate(ctx, id)

	slog.Info("session deleted", "session_id", id)
	return nil
}

// ListSessions returns a patient's sessions, newest first
func (s *Service) ListSessions(ctx context.Context, patientID string) ([]*models.Session, error) {
	if _, err := s.GetPatient(ctx, patientID); err != nil {
		return nil, err
	}
	return s.repo.ListSessionsForPatient(ctx, patientID)
}

// LatestSession returns the patient's most recent session with its score
func (s *Service) LatestSession(ctx context.Context, patientID string) (*SessionView, error) {
	if _, err := s.GetPatient(ctx, patientID); err != nil {
		return nil, err
	}

	sess, err := s.repo.LatestSessionForPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, fmt.Errorf("%w: patient %s has no sessions", ErrSessionNotFound, patientID)
	}

	result, err := s.resultFor(ctx, sess)
	if err != nil {
		return nil, err
	}
	return &SessionView{Session: sess, Result: result}, nil
}

func (s *Service) getSession(ctx context.Context, id string) (*models.Session, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	sess, err := s.repo.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess, nil
}

// resultFor scores a stored session through the cache
func (s *Service) resultFor(ctx context.Context, sess *models.Session) (*scoring.ScoreResult, error) {
	return s.scores.GetOrCompute(ctx, sess.ID, func() (*scoring.ScoreResult, error) {
		scale, err := catalog.ParseScaleVariant(sess.Scale)
		if err != nil {
			return nil, fmt.Errorf("session %s: %w", sess.ID, err)
		}
		ratings, err := scoring.ParseRatings(sess.Ratings)
		if err != nil {
			return nil, fmt.Errorf("session %s: %w", sess.ID, err)
		}
		return s.score(scale, ratings)
	})
}
