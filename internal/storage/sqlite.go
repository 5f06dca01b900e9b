package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // driver: sqlite

	"github.com/terra-clan/gmfm-scoring/internal/models"
	"github.com/terra-clan/gmfm-scoring/internal/security"
)

// SQLiteRepository implements Repository on a local SQLite file, for
// single-workstation clinics without a database server.
type SQLiteRepository struct {
	db     *sql.DB
	cipher security.FieldCipher
}

// NewSQLiteRepository opens (or creates) the database at path and applies
// the embedded migrations. ":memory:" gives a private in-memory database.
func NewSQLiteRepository(ctx context.Context, path string, cipher security.FieldCipher) (*SQLiteRepository, error) {
	dsn := path
	inMemory := path == ":memory:"
	if !inMemory {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	} else {
		dsn = "file::memory:?_pragma=foreign_keys(1)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if inMemory {
		// every connection would get its own empty database
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runSQLiteMigrations(ctx, db, sqliteMigrations()); err != nil {
		db.Close()
		return nil, err
	}

	if cipher == nil {
		cipher = security.NopCipher{}
	}

	return &SQLiteRepository{db: db, cipher: cipher}, nil
}

// Ping checks database connectivity
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func toUnix(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromUnix(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func nullUnix(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toUnix(*t), Valid: true}
}

// --- Patients ---

// CreatePatient inserts a patient with its personal fields encrypted
func (r *SQLiteRepository) CreatePatient(ctx context.Context, p *models.Patient) error {
	sealed, err := sealPatient(r.cipher, p)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO patients (`+patientColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		p.ID,
		sealed.givenName,
		sealed.familyName,
		nullUnix(p.DateOfBirth),
		nullString(sealed.identifier),
		toUnix(p.CreatedAt),
		toUnix(p.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create patient: %w", err)
	}
	return nil
}

// GetPatient retrieves a patient by ID
func (r *SQLiteRepository) GetPatient(ctx context.Context, id string) (*models.Patient, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+patientColumns+` FROM patients WHERE id = ?`, id)

	p, err := r.scanPatient(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get patient: %w", err)
	}
	return p, nil
}

// UpdatePatient overwrites the patient's fields
func (r *SQLiteRepository) UpdatePatient(ctx context.Context, p *models.Patient) error {
	sealed, err := sealPatient(r.cipher, p)
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE patients
		SET given_name = ?, family_name = ?, date_of_birth = ?, identifier = ?, updated_at = ?
		WHERE id = ?
	`,
		sealed.givenName,
		sealed.familyName,
		nullUnix(p.DateOfBirth),
		nullString(sealed.identifier),
		toUnix(p.UpdatedAt),
		p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update patient: %w", err)
	}
	return expectAffected(result, "patient", p.ID)
}

// DeletePatient deletes a patient and its sessions
func (r *SQLiteRepository) DeletePatient(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM patients WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete patient: %w", err)
	}
	return expectAffected(result, "patient", id)
}

// ListPatients returns patients in creation order
func (r *SQLiteRepository) ListPatients(ctx context.Context, opts ListOptions) ([]*models.Patient, error) {
	opts = opts.normalized()

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+patientColumns+`
		FROM patients
		ORDER BY created_at ASC, id ASC
		LIMIT ? OFFSET ?
	`, opts.Limit, opts.Offset)
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

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *SQLiteRepository) scanPatient(row rowScanner) (*models.Patient, error) {
	var p models.Patient
	var sealed sealedPatient
	var dob sql.NullInt64
	var identifier sql.NullString
	var createdAt, updatedAt int64

	err := row.Scan(&p.ID, &sealed.givenName, &sealed.familyName, &dob, &identifier, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	sealed.identifier = identifier.String
	p.CreatedAt = fromUnix(createdAt)
	p.UpdatedAt = fromUnix(updatedAt)
	if dob.Valid {
		t := fromUnix(dob.Int64)
		p.DateOfBirth = &t
	}

	if err := sealed.open(r.cipher, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// --- Sessions ---

// CreateSession creates a new session record
func (r *SQLiteRepository) CreateSession(ctx context.Context, s *models.Session) error {
	ratingsJSON, err := marshalRatings(s.Ratings)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		s.ID,
		s.PatientID,
		s.Scale,
		string(ratingsJSON),
		s.TotalScore,
		nullString(s.Notes),
		toUnix(s.AssessedAt),
		toUnix(s.CreatedAt),
		toUnix(s.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID
func (r *SQLiteRepository) GetSession(ctx context.Context, id string) (*models.Session, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)

	s, err := scanSQLiteSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

// UpdateSession updates ratings, score and notes of a session
func (r *SQLiteRepository) UpdateSession(ctx context.Context, s *models.Session) error {
	ratingsJSON, err := marshalRatings(s.Ratings)
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE sessions
		SET scale = ?, ratings = ?, total_score = ?, notes = ?, assessed_at = ?, updated_at = ?
		WHERE id = ?
	`,
		s.Scale,
		string(ratingsJSON),
		s.TotalScore,
		nullString(s.Notes),
		toUnix(s.AssessedAt),
		toUnix(s.UpdatedAt),
		s.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	return expectAffected(result, "session", s.ID)
}

// DeleteSession deletes a session by ID
func (r *SQLiteRepository) DeleteSession(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return expectAffected(result, "session", id)
}

// ListSessionsForPatient returns the patient's sessions, newest first
func (r *SQLiteRepository) ListSessionsForPatient(ctx context.Context, patientID string) ([]*models.Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE patient_id = ?
		ORDER BY assessed_at DESC, created_at DESC
	`, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]*models.Session, 0)
	for rows.Next() {
		s, err := scanSQLiteSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// LatestSessionForPatient returns the most recent session or nil
func (r *SQLiteRepository) LatestSessionForPatient(ctx context.Context, patientID string) (*models.Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE patient_id = ?
		ORDER BY assessed_at DESC, created_at DESC
		LIMIT 1
	`, patientID)

	s, err := scanSQLiteSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest session: %w", err)
	}
	return s, nil
}

func scanSQLiteSession(row rowScanner) (*models.Session, error) {
	var s models.Session
	var notes sql.NullString
	var ratingsJSON string
	var assessedAt, createdAt, updatedAt int64

	err := row.Scan(&s.ID, &s.PatientID, &s.Scale, &ratingsJSON, &s.TotalScore, &notes, &assessedAt, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	s.Notes = notes.String
	s.AssessedAt = fromUnix(assessedAt)
	s.CreatedAt = fromUnix(createdAt)
	s.UpdatedAt = fromUnix(updatedAt)
	if s.Ratings, err = unmarshalRatings([]byte(ratingsJSON)); err != nil {
		return nil, err
	}
	return &s, nil
}

// --- API Clients ---

// CreateApiClient registers a client key
func (r *SQLiteRepository) CreateApiClient(ctx context.Context, c *models.ApiClient) error {
	permissionsJSON, err := json.Marshal(c.Permissions)
	if err != nil {
		return fmt.Errorf("failed to marshal permissions: %w", err)
	}
	metadataJSON, err := json.Marshal(c.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO api_clients (name, api_key, is_active, created_at, permissions, metadata)
		VALUES (?, ?, ?, ?, ?, ?)
	`, c.Name, c.ApiKey, c.IsActive, toUnix(c.CreatedAt), string(permissionsJSON), string(metadataJSON))
	if err != nil {
		return fmt.Errorf("failed to create api client: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read api client id: %w", err)
	}
	c.ID = int(id)
	return nil
}

// GetClientByApiKey retrieves an API client by its key
func (r *SQLiteRepository) GetClientByApiKey(ctx context.Context, apiKey string) (*models.ApiClient, error) {
	var client models.ApiClient
	var createdAt int64
	var lastUsedAt sql.NullInt64
	var permissionsJSON string
	var metadataJSON sql.NullString

	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, api_key, is_active, created_at, last_used_at, permissions, metadata
		FROM api_clients
		WHERE api_key = ?
	`, apiKey).Scan(
		&client.ID,
		&client.Name,
		&client.ApiKey,
		&client.IsActive,
		&createdAt,
		&lastUsedAt,
		&permissionsJSON,
		&metadataJSON,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get api client: %w", err)
	}

	client.CreatedAt = fromUnix(createdAt)
	if lastUsedAt.Valid {
		t := fromUnix(lastUsedAt.Int64)
		client.LastUsedAt = &t
	}

	if err := decodeClientJSON(&client, []byte(permissionsJSON), []byte(metadataJSON.String)); err != nil {
		return nil, err
	}
	return &client, nil
}

// UpdateClientLastUsed updates the last_used_at timestamp for a client
func (r *SQLiteRepository) UpdateClientLastUsed(ctx context.Context, apiKey string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE api_clients SET last_used_at = ? WHERE api_key = ?`, toUnix(time.Now()), apiKey)
	if err != nil {
		return fmt.Errorf("failed to update client last_used_at: %w", err)
	}
	return nil
}

func expectAffected(result sql.Result, kind, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}
