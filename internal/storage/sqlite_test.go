package storage

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/gmfm-scoring/internal/models"
	"github.com/terra-clan/gmfm-scoring/internal/security"
)

var (
	_ Repository = (*SQLiteRepository)(nil)
	_ Repository = (*PostgresRepository)(nil)
)

func newTestRepo(t *testing.T, cipher security.FieldCipher) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(context.Background(), ":memory:", cipher)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func testCipher(t *testing.T) *security.Cipher {
	t.Helper()
	key, err := security.GenerateKey()
	require.NoError(t, err)
	c, err := security.NewCipher(key)
	require.NoError(t, err)
	return c
}

func newPatient(given, family string) *models.Patient {
	now := time.Now().UTC().Truncate(time.Millisecond)
	dob := time.Date(2018, 3, 14, 0, 0, 0, 0, time.UTC)
	return &models.Patient{
		ID:          uuid.NewString(),
		GivenName:   given,
		FamilyName:  family,
		DateOfBirth: &dob,
		Identifier:  "MRN-" + given,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func newSession(patientID string, assessed time.Time, ratings map[int]int) *models.Session {
	now := time.Now().UTC()
	return &models.Session{
		ID:         uuid.NewString(),
		PatientID:  patientID,
		Scale:      "full",
		Ratings:    ratings,
		TotalScore: 12.5,
		AssessedAt: assessed,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestPatientCRUD(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t, testCipher(t))

	p := newPatient("Ana", "Silva")
	require.NoError(t, repo.CreatePatient(ctx, p))

	got, err := repo.GetPatient(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Ana", got.GivenName)
	assert.Equal(t, "Silva", got.FamilyName)
	assert.Equal(t, "MRN-Ana", got.Identifier)
	require.NotNil(t, got.DateOfBirth)
	assert.True(t, p.DateOfBirth.Equal(*got.DateOfBirth))
	assert.True(t, p.CreatedAt.Equal(got.CreatedAt))

	got.FamilyName = "Souza"
	got.Identifier = ""
	got.DateOfBirth = nil
	require.NoError(t, repo.UpdatePatient(ctx, got))

	updated, err := repo.GetPatient(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Souza", updated.FamilyName)
	assert.Empty(t, updated.Identifier)
	assert.Nil(t, updated.DateOfBirth)

	require.NoError(t, repo.DeletePatient(ctx, p.ID))
	missing, err := repo.GetPatient(ctx, p.ID)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestPersonalFieldsAreEncrypted(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t, testCipher(t))

	p := newPatient("Beatriz", "Oliveira")
	require.NoError(t, repo.CreatePatient(ctx, p))

	var given, family, identifier string
	err := repo.db.QueryRowContext(ctx,
		`SELECT given_name, family_name, identifier FROM patients WHERE id = ?`, p.ID,
	).Scan(&given, &family, &identifier)
	require.NoError(t, err)

	assert.NotContains(t, given, "Beatriz")
	assert.NotContains(t, family, "Oliveira")
	assert.False(t, strings.Contains(identifier, "MRN"))
}

func TestDecryptWithWrongKeyFails(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "gmfm.db")

	writer, err := NewSQLiteRepository(ctx, path, testCipher(t))
	require.NoError(t, err)
	p := newPatient("Caio", "Lima")
	require.NoError(t, writer.CreatePatient(ctx, p))
	require.NoError(t, writer.Close())

	reader, err := NewSQLiteRepository(ctx, path, testCipher(t))
	require.NoError(t, err)
	defer reader.Close()

	_, err = reader.GetPatient(ctx, p.ID)
	assert.ErrorIs(t, err, security.ErrDecryptionFailure)
}

func TestUpdateAndDeleteMissingRows(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t, nil)

	assert.ErrorIs(t, repo.UpdatePatient(ctx, newPatient("X", "Y")), ErrNotFound)
	assert.ErrorIs(t, repo.DeletePatient(ctx, uuid.NewString()), ErrNotFound)
	assert.ErrorIs(t, repo.UpdateSession(ctx, newSession(uuid.NewString(), time.Now(), nil)), ErrNotFound)
	assert.ErrorIs(t, repo.DeleteSession(ctx, uuid.NewString()), ErrNotFound)

	s, err := repo.GetSession(ctx, uuid.NewString())
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestListPatientsPaging(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t, nil)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		p := newPatient(string(rune('A'+i)), "Test")
		p.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, repo.CreatePatient(ctx, p))
	}

	page, err := repo.ListPatients(ctx, ListOptions{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "B", page[0].GivenName)
	assert.Equal(t, "C", page[1].GivenName)

	all, err := repo.ListPatients(ctx, ListOptions{})
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestSessions(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t, nil)

	p := newPatient("Davi", "Costa")
	require.NoError(t, repo.CreatePatient(ctx, p))

	first := newSession(p.ID, time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC), map[int]int{1: 3, 2: 0})
	second := newSession(p.ID, time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC), map[int]int{1: 3, 2: 2, 56: 1})
	second.Notes = "walks with support"
	require.NoError(t, repo.CreateSession(ctx, first))
	require.NoError(t, repo.CreateSession(ctx, second))

	got, err := repo.GetSession(ctx, second.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, map[int]int{1: 3, 2: 2, 56: 1}, got.Ratings)
	assert.Equal(t, "walks with support", got.Notes)
	assert.Equal(t, 12.5, got.TotalScore)
	assert.True(t, second.AssessedAt.Equal(got.AssessedAt))

	list, err := repo.ListSessionsForPatient(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID, "newest first")
	assert.Equal(t, first.ID, list[1].ID)

	latest, err := repo.LatestSessionForPatient(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)

	first.Ratings = map[int]int{1: 1}
	first.TotalScore = 1.1
	require.NoError(t, repo.UpdateSession(ctx, first))
	reloaded, err := repo.GetSession(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, map[int]int{1: 1}, reloaded.Ratings)
	assert.Equal(t, 1.1, reloaded.TotalScore)

	require.NoError(t, repo.DeleteSession(ctx, second.ID))
	latest, err = repo.LatestSessionForPatient(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, latest.ID)

	none, err := repo.LatestSessionForPatient(ctx, uuid.NewString())
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestDeletePatientCascadesSessions(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t, nil)

	p := newPatient("Eva", "Rocha")
	require.NoError(t, repo.CreatePatient(ctx, p))
	s := newSession(p.ID, time.Now(), map[int]int{3: 2})
	require.NoError(t, repo.CreateSession(ctx, s))

	require.NoError(t, repo.DeletePatient(ctx, p.ID))

	got, err := repo.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestApiClients(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t, nil)

	c := &models.ApiClient{
		Name:        "clinic-laptop",
		ApiKey:      "key-0123456789",
		IsActive:    true,
		CreatedAt:   time.Now(),
		Permissions: []string{"sessions:*", models.PermCatalogRead},
	}
	require.NoError(t, repo.CreateApiClient(ctx, c))
	assert.NotZero(t, c.ID)

	got, err := repo.GetClientByApiKey(ctx, c.ApiKey)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "clinic-laptop", got.Name)
	assert.True(t, got.IsActive)
	assert.Equal(t, c.Permissions, got.Permissions)
	assert.Nil(t, got.LastUsedAt)

	require.NoError(t, repo.UpdateClientLastUsed(ctx, c.ApiKey))
	got, err = repo.GetClientByApiKey(ctx, c.ApiKey)
	require.NoError(t, err)
	assert.NotNil(t, got.LastUsedAt)

	unknown, err := repo.GetClientByApiKey(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, unknown)
}

func TestMigrationsAreIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t, nil)

	require.NoError(t, runSQLiteMigrations(ctx, repo.db, sqliteMigrations()))

	var count int
	require.NoError(t, repo.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&count))
	assert.Equal(t, 1, count)

	pg, err := loadMigrations(PostgresMigrations())
	require.NoError(t, err)
	require.NotEmpty(t, pg)
	assert.Equal(t, "001_init.sql", pg[0].name)
}
