package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasPermission(t *testing.T) {
	c := &ApiClient{IsActive: true, Permissions: []string{PermCatalogRead, "sessions:*"}}

	assert.True(t, c.HasPermission(PermCatalogRead))
	assert.True(t, c.HasPermission(PermSessionsRead))
	assert.True(t, c.HasPermission(PermSessionsWrite))
	assert.False(t, c.HasPermission(PermPatientsWrite))

	c.IsActive = false
	assert.False(t, c.HasPermission(PermCatalogRead))

	var nilClient *ApiClient
	assert.False(t, nilClient.HasPermission(PermCatalogRead))

	admin := &ApiClient{IsActive: true, Permissions: []string{"*"}}
	assert.True(t, admin.HasPermission(PermPatientsWrite))
}

func TestMaskedApiKey(t *testing.T) {
	assert.Equal(t, "***", (&ApiClient{ApiKey: "short"}).MaskedApiKey())
	assert.Equal(t, "abcdefgh...", (&ApiClient{ApiKey: "abcdefghijkl"}).MaskedApiKey())

	key, err := GenerateApiKey()
	require.NoError(t, err)
	assert.Len(t, key, 64)
}

func TestPatientHelpers(t *testing.T) {
	dob := time.Date(2019, 5, 20, 0, 0, 0, 0, time.UTC)
	p := &Patient{GivenName: "Ana", FamilyName: "Silva", DateOfBirth: &dob}

	assert.Equal(t, "Silva, Ana", p.DisplayName())
	assert.Equal(t, 59, p.AgeAt(time.Date(2024, 5, 19, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 60, p.AgeAt(time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, -1, p.AgeAt(time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC)))

	assert.Equal(t, "Ana", (&Patient{GivenName: "Ana"}).DisplayName())
	assert.Equal(t, -1, (&Patient{}).AgeAt(time.Now()))
}
