package models

import (
	"time"
)

// Session is one assessment of a patient: the raw item ratings recorded by
// the clinician plus the total computed when the session was saved.
type Session struct {
	ID         string      `json:"id"`
	PatientID  string      `json:"patient_id"`
	Scale      string      `json:"scale"`
	Ratings    map[int]int `json:"ratings"`
	TotalScore float64     `json:"total_score"`
	Notes      string      `json:"notes,omitempty"`
	AssessedAt time.Time   `json:"assessed_at"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// SessionRequest is the body of record and update session calls.
// Scale accepts the same spellings as the catalog ("reduced", "66", "gmfm-88", ...).
type SessionRequest struct {
	Scale      string      `json:"scale" validate:"required"`
	Ratings    map[int]int `json:"ratings" validate:"required"`
	Notes      string      `json:"notes,omitempty" validate:"max=4000"`
	AssessedAt *time.Time  `json:"assessed_at,omitempty"`
}

// ScoreRequest is the body of the stateless scoring call
type ScoreRequest struct {
	Scale   string      `json:"scale" validate:"required"`
	Ratings map[int]int `json:"ratings"`
}
