package scoring

import (
	"github.com/terra-clan/gmfm-scoring/internal/catalog"
)

// DomainScore is the outcome for one domain
type DomainScore struct {
	Code        string  `json:"code"`
	Title       string  `json:"title"`
	Percent     float64 `json:"percent"`
	ItemsScored int     `json:"items_scored"`
	ItemsTotal  int     `json:"items_total"`
}

// ScoreResult is produced fresh on every Score call. Domains keep catalog order.
type ScoreResult struct {
	Scale        catalog.ScaleVariant `json:"scale"`
	Domains      []DomainScore        `json:"domains"`
	TotalPercent float64              `json:"total_percent"`
	ItemsScored  int                  `json:"items_scored"`
	ItemsTotal   int                  `json:"items_total"`
}

// Domain looks up a domain score by title
func (r *ScoreResult) Domain(title string) (DomainScore, bool) {
	for _, d := range r.Domains {
		if d.Title == title {
			return d, true
		}
	}
	return DomainScore{}, false
}

// PercentByTitle flattens the per-domain percentages.
// Domains without a single rated item are left out.
func (r *ScoreResult) PercentByTitle() map[string]float64 {
	out := make(map[string]float64, len(r.Domains))
	for _, d := range r.Domains {
		if d.ItemsScored == 0 {
			continue
		}
		out[d.Title] = d.Percent
	}
	return out
}
