package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/terra-clan/gmfm-scoring/internal/models"
	"github.com/terra-clan/gmfm-scoring/internal/security"
)

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	pool   *pgxpool.Pool
	cipher security.FieldCipher
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	DSN          string
	MaxOpenConns int32
	MaxIdleConns int32
	MaxLifetime  time.Duration
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(ctx context.Context, cfg PostgresConfig, cipher security.FieldCipher) (*PostgresRepository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}

	// Set pool configuration
	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = cfg.MaxOpenConns
	} else {
		poolConfig.MaxConns = 25 // default
	}

	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = cfg.MaxIdleConns
	} else {
		poolConfig.MinConns = 5 // default
	}

	if cfg.MaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxLifetime
	} else {
		poolConfig.MaxConnLifetime = 30 * time.Minute
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if cipher == nil {
		cipher = security.NopCipher{}
	}

	return &PostgresRepository{pool: pool, cipher: cipher}, nil
}

// Ping checks database connectivity
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the database connection pool
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// --- Patients ---

const patientColumns = `id, given_name, family_name, date_of_birth, identifier, created_at, updated_at`

// CreatePatient inserts a patient with its personal fields encrypted
func (r *PostgresRepository) CreatePatient(ctx context.Context, p *models.Patient) error {
	sealed, err := sealPatient(r.cipher, p)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO patients (` + patientColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err = r.pool.Exec(ctx, query,
		p.ID,
		sealed.givenName,
		sealed.familyName,
		nullTime(p.DateOfBirth),
		nullString(sealed.identifier),
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create patient: %w", err)
	}

	return nil
}

// GetPatient retrieves a patient by ID
func (r *PostgresRepository) GetPatient(ctx context.Context, id string) (*models.Patient, error) {
	query := `SELECT ` + patientColumns + ` FROM patients WHERE id = $1`

	p, err := r.scanPatient(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get patient: %w", err)
	}
	return p, nil
}

// UpdatePatient overwrites the patient's fields
func (r *PostgresRepository) UpdatePatient(ctx context.Context, p *models.Patient) error {
	sealed, err := sealPatient(r.cipher, p)
	if err != nil {
		return err
	}

	query := `
		UPDATE patients
		SET given_name = $2, family_name = $3, date_of_birth = $4, identifier = $5, updated_at = $6
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query,
		p.ID,
		sealed.givenName,
		sealed.familyName,
		nullTime(p.DateOfBirth),
		nullString(sealed.identifier),
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update patient: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("patient %s: %w", p.ID, ErrNotFound)
	}

	return nil
}

// DeletePatient deletes a patient and, through the foreign key, its sessions
func (r *PostgresRepository) DeletePatient(ctx context.Context, id string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM patients WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete patient: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("patient %s: %w", id, ErrNotFound)
	}

	return nil
}

// ListPatients returns patients in creation order
func (r *PostgresRepository) ListPatients(ctx context.Context, opts ListOptions) ([]*models.Patient, error) {
	opts = opts.normalized()

	query := `
		SELECT ` + patientColumns + `
		FROM patients
		ORDER BY created_at ASC, id ASC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.pool.Query(ctx, query, opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list patients: %w", err)
	}
	defer rows.Close()

	patients := make([]*models.Patient, 0)
	for rows.Next() {
		p, err := r.scanPatient(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan patient: %w", err)
		}
		patients = append(patients, p)
	}

	return patients, rows.Err()
}

func (r *PostgresRepository) scanPatient(row pgx.Row) (*models.Patient, error) {
	var p models.Patient
	var sealed sealedPatient
	var dob sql.NullTime
	var identifier sql.NullString

	err := row.Scan(
		&p.ID,
		&sealed.givenName,
		&sealed.familyName,
		&dob,
		&identifier,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	sealed.identifier = identifier.String
	if dob.Valid {
		p.DateOfBirth = &dob.Time
	}

	if err := sealed.open(r.cipher, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// --- Sessions ---

const sessionColumns = `id, patient_id, scale, ratings, total_score, notes, assessed_at, created_at, updated_at`

// CreateSession creates a new session record
func (r *PostgresRepository) CreateSession(ctx context.Context, s *models.Session) error {
	ratingsJSON, err := marshalRatings(s.Ratings)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = r.pool.Exec(ctx, query,
		s.ID,
		s.PatientID,
		s.Scale,
		ratingsJSON,
		s.TotalScore,
		nullString(s.Notes),
		s.AssessedAt,
		s.CreatedAt,
		s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	return nil
}

// GetSession retrieves a session by ID
func (r *PostgresRepository) GetSession(ctx context.Context, id string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`

	s, err := scanPostgresSession(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

// UpdateSession updates ratings, score and notes of a session
func (r *PostgresRepository) UpdateSession(ctx context.Context, s *models.Session) error {
	ratingsJSON, err := marshalRatings(s.Ratings)
	if err != nil {
		return err
	}

	query := `
		UPDATE sessions
		SET scale = $2, ratings = $3, total_score = $4, notes = $5, assessed_at = $6, updated_at = $7
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query,
		s.ID,
		s.Scale,
		ratingsJSON,
		s.TotalScore,
		nullString(s.Notes),
		s.AssessedAt,
		s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("session %s: %w", s.ID, ErrNotFound)
	}

	return nil
}

// DeleteSession deletes a session by ID
func (r *PostgresRepository) DeleteSession(ctx context.Context, id string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}

	return nil
}

// ListSessionsForPatient returns the patient's sessions, newest first
func (r *PostgresRepository) ListSessionsForPatient(ctx context.Context, patientID string) ([]*models.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE patient_id = $1
		ORDER BY assessed_at DESC, created_at DESC
	`

	rows, err := r.pool.Query(ctx, query, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]*models.Session, 0)
	for rows.Next() {
		s, err := scanPostgresSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}

	return sessions, rows.Err()
}

// LatestSessionForPatient returns the most recent session or nil
func (r *PostgresRepository) LatestSessionForPatient(ctx context.Context, patientID string) (*models.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE patient_id = $1
		ORDER BY assessed_at DESC, created_at DESC
		LIMIT 1
	`

	s, err := scanPostgresSession(r.pool.QueryRow(ctx, query, patientID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest session: %w", err)
	}
	return s, nil
}

func scanPostgresSession(row pgx.Row) (*models.Session, error) {
	var s models.Session
	var notes sql.NullString
	var ratingsJSON []byte

	err := row.Scan(
		&s.ID,
		&s.PatientID,
		&s.Scale,
		&ratingsJSON,
		&s.TotalScore,
		&notes,
		&s.AssessedAt,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	s.Notes = notes.String
	if s.Ratings, err = unmarshalRatings(ratingsJSON); err != nil {
		return nil, err
	}
	return &s, nil
}

// --- API Clients ---

// CreateApiClient registers a client key
func (r *PostgresRepository) CreateApiClient(ctx context.Context, c *models.ApiClient) error {
	permissionsJSON, err := json.Marshal(c.Permissions)
	if err != nil {
		return fmt.Errorf("failed to marshal permissions: %w", err)
	}
	metadataJSON, err := json.Marshal(c.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO api_clients (name, api_key, is_active, created_at, permissions, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	err = r.pool.QueryRow(ctx, query,
		c.Name,
		c.ApiKey,
		c.IsActive,
		c.CreatedAt,
		permissionsJSON,
		metadataJSON,
	).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("failed to create api client: %w", err)
	}

	return nil
}

// GetClientByApiKey retrieves an API client by its key
func (r *PostgresRepository) GetClientByApiKey(ctx context.Context, apiKey string) (*models.ApiClient, error) {
	query := `
		SELECT id, name, api_key, is_active, created_at, last_used_at, permissions, metadata
		FROM api_clients
		WHERE api_key = $1
	`

	var client models.ApiClient
	var lastUsedAt sql.NullTime
	var permissionsJSON, metadataJSON []byte

	err := r.pool.QueryRow(ctx, query, apiKey).Scan(
		&client.ID,
		&client.Name,
		&client.ApiKey,
		&client.IsActive,
		&client.CreatedAt,
		&lastUsedAt,
		&permissionsJSON,
		&metadataJSON,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get api client: %w", err)
	}

	if lastUsedAt.Valid {
		client.LastUsedAt = &lastUsedAt.Time
	}

	if err := decodeClientJSON(&client, permissionsJSON, metadataJSON); err != nil {
		return nil, err
	}

	return &client, nil
}

// UpdateClientLastUsed updates the last_used_at timestamp for a client
func (r *PostgresRepository) UpdateClientLastUsed(ctx context.Context, apiKey string) error {
	query := `UPDATE api_clients SET last_used_at = NOW() WHERE api_key = $1`

	_, err := r.pool.Exec(ctx, query, apiKey)
	if err != nil {
		return fmt.Errorf("failed to update client last_used_at: %w", err)
	}

	return nil
}

func decodeClientJSON(c *models.ApiClient, permissionsJSON, metadataJSON []byte) error {
	if len(permissionsJSON) > 0 {
		if err := json.Unmarshal(permissionsJSON, &c.Permissions); err != nil {
			return fmt.Errorf("failed to unmarshal permissions: %w", err)
		}
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &c.Metadata); err != nil {
			return fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return nil
}
