package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/terra-clan/gmfm-scoring/internal/models"
	"github.com/terra-clan/gmfm-scoring/internal/security"
)

// sealedPatient holds the encrypted personal columns of a patient row
type sealedPatient struct {
	givenName  string
	familyName string
	identifier string
}

func sealPatient(c security.FieldCipher, p *models.Patient) (sealedPatient, error) {
	var out sealedPatient
	var err error

	if out.givenName, err = c.Encrypt(p.GivenName); err != nil {
		return out, fmt.Errorf("failed to encrypt given name: %w", err)
	}
	if out.familyName, err = c.Encrypt(p.FamilyName); err != nil {
		return out, fmt.Errorf("failed to encrypt family name: %w", err)
	}
	if out.identifier, err = c.Encrypt(p.Identifier); err != nil {
		return out, fmt.Errorf("failed to encrypt identifier: %w", err)
	}
	return out, nil
}

func (s sealedPatient) open(c security.FieldCipher, p *models.Patient) error {
	var err error

	if p.GivenName, err = c.Decrypt(s.givenName); err != nil {
		return fmt.Errorf("failed to decrypt given name of patient %s: %w", p.ID, err)
	}
	if p.FamilyName, err = c.Decrypt(s.familyName); err != nil {
		return fmt.Errorf("failed to decrypt family name of patient %s: %w", p.ID, err)
	}
	if p.Identifier, err = c.Decrypt(s.identifier); err != nil {
		return fmt.Errorf("failed to decrypt identifier of patient %s: %w", p.ID, err)
	}
	return nil
}

func marshalRatings(r map[int]int) ([]byte, error) {
	if r == nil {
		r = map[int]int{}
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ratings: %w", err)
	}
	return data, nil
}

func unmarshalRatings(data []byte) (map[int]int, error) {
	r := make(map[int]int)
	if len(data) == 0 {
		return r, nil
	}
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ratings: %w", err)
	}
	return r, nil
}

// Helper functions for nullable values

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
