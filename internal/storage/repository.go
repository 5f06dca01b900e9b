package storage

import (
	"context"
	"errors"

	"github.com/terra-clan/gmfm-scoring/internal/models"
)

// ErrNotFound is returned by Update and Delete when no row matches.
// Get methods return (nil, nil) instead.
var ErrNotFound = errors.New("record not found")

// ListOptions pages list queries. Zero Limit means the default page size.
type ListOptions struct {
	Limit  int
	Offset int
}

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

func (o ListOptions) normalized() ListOptions {
	if o.Limit <= 0 {
		o.Limit = defaultListLimit
	}
	if o.Limit > maxListLimit {
		o.Limit = maxListLimit
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}

// Repository defines the interface for patient and session persistence.
// Personal patient fields are encrypted by the implementation.
type Repository interface {
	// Patients
	CreatePatient(ctx context.Context, p *models.Patient) error
	GetPatient(ctx context.Context, id string) (*models.Patient, error)
	UpdatePatient(ctx context.Context, p *models.Patient) error
	DeletePatient(ctx context.Context, id string) error
	ListPatients(ctx context.Context, opts ListOptions) ([]*models.Patient, error)

	// Sessions
	CreateSession(ctx context.Context, s *models.Session) error
	GetSession(ctx context.Context, id string) (*models.Session, error)
	UpdateSession(ctx context.Context, s *models.Session) error
	DeleteSession(ctx context.Context, id string) error
	ListSessionsForPatient(ctx context.Context, patientID string) ([]*models.Session, error)
	LatestSessionForPatient(ctx context.Context, patientID string) (*models.Session, error)

	// API Clients
	CreateApiClient(ctx context.Context, c *models.ApiClient) error
	GetClientByApiKey(ctx context.Context, apiKey string) (*models.ApiClient, error)
	UpdateClientLastUsed(ctx context.Context, apiKey string) error

	// Health
	Ping(ctx context.Context) error
	Close() error
}
