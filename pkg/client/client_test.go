package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/gmfm-scoring/internal/api"
	"github.com/terra-clan/gmfm-scoring/internal/assessment"
	"github.com/terra-clan/gmfm-scoring/internal/cache"
	"github.com/terra-clan/gmfm-scoring/internal/catalog"
	"github.com/terra-clan/gmfm-scoring/internal/config"
	"github.com/terra-clan/gmfm-scoring/internal/models"
	"github.com/terra-clan/gmfm-scoring/internal/scoring"
	"github.com/terra-clan/gmfm-scoring/internal/storage"
)

const testKey = "sdk-test-key-0123456789"

func newTestClient(t *testing.T) *Client {
	t.Helper()
	ctx := context.Background()

	repo, err := storage.NewSQLiteRepository(ctx, ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	require.NoError(t, repo.CreateApiClient(ctx, &models.ApiClient{
		Name:        "sdk",
		ApiKey:      testKey,
		IsActive:    true,
		CreatedAt:   time.Now(),
		Permissions: []string{"*"},
	}))

	cat := catalog.New(catalog.EmbeddedSource())
	require.NoError(t, cat.Load())

	svc := assessment.NewService(repo, scoring.NewEngine(cat), cache.NewLoader(cache.NopCache{}, nil), nil)
	srv := api.NewServer(config.ServerConfig{}, svc, repo, nil, nil)
	t.Cleanup(srv.Close)

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	return NewClient(ts.URL, testKey, WithTimeout(5*time.Second))
}

func TestClientScoring(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.Health(ctx))

	domains, err := c.Domains(ctx, "66")
	require.NoError(t, err)
	require.Len(t, domains, 5)
	assert.Equal(t, "A", domains[0].Code)

	result, err := c.Score(ctx, "full", map[int]int{1: 3, 2: 0})
	require.NoError(t, err)
	assert.Equal(t, 50.0, result.Domains[0].Percent)
	assert.Equal(t, 88, result.ItemsTotal)

	missing, err := c.Missing(ctx, "88", map[int]int{1: 3})
	require.NoError(t, err)
	assert.Len(t, missing, 87)

	_, err = c.Score(ctx, "full", map[int]int{1: 9})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "invalid_rating", apiErr.Code)
}

func TestClientPatientsAndSessions(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	patient, err := c.CreatePatient(ctx, models.PatientRequest{GivenName: "Ana", FamilyName: "Souza"})
	require.NoError(t, err)

	got, err := c.GetPatient(ctx, patient.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ana", got.GivenName)

	list, err := c.ListPatients(ctx, ListOptions{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	first := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	second := first.AddDate(0, 3, 0)

	a, err := c.RecordSession(ctx, patient.ID, models.SessionRequest{
		Scale:      "88",
		Ratings:    map[int]int{1: 1, 2: 1},
		AssessedAt: &first,
	})
	require.NoError(t, err)
	b, err := c.RecordSession(ctx, patient.ID, models.SessionRequest{
		Scale:      "88",
		Ratings:    map[int]int{1: 3, 2: 3},
		AssessedAt: &second,
	})
	require.NoError(t, err)

	view, err := c.GetSession(ctx, a.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, a.Result.TotalPercent, view.Result.TotalPercent)

	latest, err := c.LatestSession(ctx, patient.ID)
	require.NoError(t, err)
	assert.Equal(t, b.Session.ID, latest.Session.ID)

	history, err := c.History(ctx, patient.ID)
	require.NoError(t, err)
	require.Len(t, history.Entries, 2)
	assert.Equal(t, a.Session.ID, history.Entries[0].SessionID)

	cmp, err := c.Compare(ctx, a.Session.ID, b.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, 66.67, cmp.Domains[0].Delta)

	require.NoError(t, c.DeleteSession(ctx, a.Session.ID))

	_, err = c.GetSession(ctx, a.Session.ID)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.True(t, apiErr.NotFound())
}

func TestClientRejectsBadKey(t *testing.T) {
	c := newTestClient(t)
	bad := NewClient(c.baseURL, "not-a-key-000000")

	_, err := bad.Domains(context.Background(), "66")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "invalid_api_key", apiErr.Code)
}
