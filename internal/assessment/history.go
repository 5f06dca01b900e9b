package assessment

import (
	"context"
	"math"
	"time"

	"github.com/terra-clan/gmfm-scoring/internal/catalog"
	"github.com/terra-clan/gmfm-scoring/internal/scoring"
)

// HistoryEntry summarises one session of a patient
type HistoryEntry struct {
	SessionID    string               `json:"session_id"`
	AssessedAt   time.Time            `json:"assessed_at"`
	Scale        catalog.ScaleVariant `json:"scale"`
	TotalPercent float64              `json:"total_percent"`
	ItemsScored  int                  `json:"items_scored"`
	Domains      map[string]float64   `json:"domains"`
}

// SeriesPoint is one value of a per-domain trend
type SeriesPoint struct {
	SessionID  string    `json:"session_id"`
	AssessedAt time.Time `json:"assessed_at"`
	Percent    float64   `json:"percent"`
}

// History is the chronological score record of a patient.
// Series holds one trend per domain title; a session that did not include a
// domain contributes no point to that trend and no key to its entry.
type History struct {
	PatientID string                   `json:"patient_id"`
	Entries   []HistoryEntry           `json:"entries"`
	Series    map[string][]SeriesPoint `json:"series"`
	Total     []SeriesPoint            `json:"total"`
}

// History scores every session of the patient, oldest first
func (s *Service) History(ctx context.Context, patientID string) (*History, error) {
	sessions, err := s.ListSessions(ctx, patientID)
	if err != nil {
		return nil, err
	}

	h := &History{
		PatientID: patientID,
		Entries:   make([]HistoryEntry, 0, len(sessions)),
		Series:    make(map[string][]SeriesPoint),
		Total:     make([]SeriesPoint, 0, len(sessions)),
	}

	// repository order is newest first
	for i := len(sessions) - 1; i >= 0; i-- {
		sess := sessions[i]
		result, err := s.resultFor(ctx, sess)
		if err != nil {
			return nil, err
		}

		h.Entries = append(h.Entries, HistoryEntry{
			SessionID:    sess.ID,
			AssessedAt:   sess.AssessedAt,
			Scale:        result.Scale,
			TotalPercent: result.TotalPercent,
			ItemsScored:  result.ItemsScored,
			Domains:      result.PercentByTitle(),
		})
		h.Total = append(h.Total, SeriesPoint{SessionID: sess.ID, AssessedAt: sess.AssessedAt, Percent: result.TotalPercent})

		for _, d := range result.Domains {
			if d.ItemsScored == 0 {
				continue
			}
			h.Series[d.Title] = append(h.Series[d.Title], SeriesPoint{
				SessionID:  sess.ID,
				AssessedAt: sess.AssessedAt,
				Percent:    d.Percent,
			})
		}
	}

	return h, nil
}

// DomainDelta is the change of one domain between two sessions
type DomainDelta struct {
	Code  string  `json:"code"`
	Title string  `json:"title"`
	From  float64 `json:"from"`
	To    float64 `json:"to"`
	Delta float64 `json:"delta"`

	// Comparable is false when either session has no rated item in the domain
	Comparable bool `json:"comparable"`
}

// Comparison is the change from session From to session To
type Comparison struct {
	From       *SessionView  `json:"from"`
	To         *SessionView  `json:"to"`
	TotalDelta float64       `json:"total_delta"`
	Domains    []DomainDelta `json:"domains"`
}

// Compare computes per-domain and total deltas from session a to session b.
// Domains are listed in the order of b, followed by any only present in a.
func (s *Service) Compare(ctx context.Context, fromID, toID string) (*Comparison, error) {
	from, err := s.GetSession(ctx, fromID)
	if err != nil {
		return nil, err
	}
	to, err := s.GetSession(ctx, toID)
	if err != nil {
		return nil, err
	}

	cmp := &Comparison{
		From:       from,
		To:         to,
		TotalDelta: round2(to.Result.TotalPercent - from.Result.TotalPercent),
	}

	seen := make(map[string]bool)
	for _, d := range to.Result.Domains {
		seen[d.Title] = true
		prev, ok := from.Result.Domain(d.Title)
		cmp.Domains = append(cmp.Domains, delta(d.Code, d.Title, prev, ok, d, true))
	}
	for _, d := range from.Result.Domains {
		if seen[d.Title] {
			continue
		}
		cmp.Domains = append(cmp.Domains, delta(d.Code, d.Title, d, true, scoring.DomainScore{}, false))
	}

	return cmp, nil
}

func delta(code, title string, from scoring.DomainScore, inFrom bool, to scoring.DomainScore, inTo bool) DomainDelta {
	dd := DomainDelta{Code: code, Title: title, From: from.Percent, To: to.Percent}
	dd.Comparable = inFrom && inTo && from.ItemsScored > 0 && to.ItemsScored > 0
	if dd.Comparable {
		dd.Delta = round2(to.Percent - from.Percent)
	}
	return dd
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
