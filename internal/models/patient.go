package models

import (
	"strings"
	"time"
)

// Patient is a child assessed with the GMFM.
// GivenName, FamilyName and Identifier are personal data and are stored encrypted.
type Patient struct {
	ID          string     `json:"id"`
	GivenName   string     `json:"given_name"`
	FamilyName  string     `json:"family_name"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
	Identifier  string     `json:"identifier,omitempty"` // e.g. hospital record number
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// DisplayName returns "Family, Given" or whichever part is set
func (p *Patient) DisplayName() string {
	given := strings.TrimSpace(p.GivenName)
	family := strings.TrimSpace(p.FamilyName)
	switch {
	case given == "":
		return family
	case family == "":
		return given
	}
	return family + ", " + given
}

// AgeAt returns the patient's age in whole months at t, or -1 when unknown
func (p *Patient) AgeAt(t time.Time) int {
	if p.DateOfBirth == nil || t.Before(*p.DateOfBirth) {
		return -1
	}
	dob := *p.DateOfBirth
	months := (t.Year()-dob.Year())*12 + int(t.Month()) - int(dob.Month())
	if t.Day() < dob.Day() {
		months--
	}
	return months
}

// PatientRequest is the body of create and update patient calls
type PatientRequest struct {
	GivenName   string     `json:"given_name" validate:"required,max=200"`
	FamilyName  string     `json:"family_name" validate:"required,max=200"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
	Identifier  string     `json:"identifier,omitempty" validate:"max=100"`
}
