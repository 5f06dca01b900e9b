package models

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"
)

// Permissions granted to API clients
const (
	PermCatalogRead   = "catalog:read"
	PermScoreCompute  = "score:compute"
	PermPatientsRead  = "patients:read"
	PermPatientsWrite = "patients:write"
	PermSessionsRead  = "sessions:read"
	PermSessionsWrite = "sessions:write"
)

// ApiClient represents an authenticated API client (a clinic workstation or reporting tool)
type ApiClient struct {
	ID          int               `json:"id"`
	Name        string            `json:"name"`
	ApiKey      string            `json:"-"` // Never serialize
	IsActive    bool              `json:"is_active"`
	CreatedAt   time.Time         `json:"created_at"`
	LastUsedAt  *time.Time        `json:"last_used_at,omitempty"`
	Permissions []string          `json:"permissions"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// HasPermission checks if client has specific permission.
// "sessions:*" grants every sessions permission, "*" grants all.
func (c *ApiClient) HasPermission(required string) bool {
	if c == nil || !c.IsActive {
		return false
	}

	for _, perm := range c.Permissions {
		if perm == "*" || perm == required {
			return true
		}

		if strings.HasSuffix(perm, ":*") {
			prefix := strings.TrimSuffix(perm, "*")
			if strings.HasPrefix(required, prefix) {
				return true
			}
		}
	}

	return false
}

// MaskedApiKey returns first 8 characters of API key for logging
func (c *ApiClient) MaskedApiKey() string {
	if len(c.ApiKey) < 8 {
		return "***"
	}
	return c.ApiKey[:8] + "..."
}

// GenerateApiKey creates a random 64-char hex key
func GenerateApiKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
