// Package scoring turns per-item ratings into GMFM domain and total percentages.
package scoring

import (
	"math"

	"github.com/terra-clan/gmfm-scoring/internal/catalog"
)

// MaxItemScore is the top rating of every item
const MaxItemScore = int(MaxRating)

// ErrUnknownScaleVariant is returned for a variant the catalog does not know
var ErrUnknownScaleVariant = catalog.ErrUnknownScaleVariant

// Engine scores rating maps against a catalog. It holds no mutable state and
// is safe for concurrent use.
type Engine struct {
	catalog *catalog.Catalog
}

// NewEngine creates an engine reading domains from cat
func NewEngine(cat *catalog.Catalog) *Engine {
	return &Engine{catalog: cat}
}

// Catalog returns the catalog the engine scores against
func (e *Engine) Catalog() *catalog.Catalog {
	return e.catalog
}

// Score computes per-domain and total percentages.
//
// A domain percent covers only the rated items of the domain. The total is
// the sum of raw points over the maximum achievable for the whole variant, so
// larger domains weigh more. Ratings for items outside the variant are ignored.
// Any out-of-range rating rejects the whole call with a *RatingError.
func (e *Engine) Score(scale catalog.ScaleVariant, ratings RatingMap) (*ScoreResult, error) {
	domains, err := e.catalog.DomainsFor(scale)
	if err != nil {
		return nil, err
	}
	if err := ratings.validate(); err != nil {
		return nil, err
	}

	result := &ScoreResult{
		Scale:   scale,
		Domains: make([]DomainScore, 0, len(domains)),
	}

	var rawSum, maxPossible int
	for _, d := range domains {
		ds := DomainScore{Code: d.Code, Title: d.Title, ItemsTotal: len(d.Items)}

		sum := 0
		for _, item := range d.Items {
			r, ok := ratings[item.Number]
			if !ok {
				continue
			}
			ds.ItemsScored++
			sum += clamp(int(r))
		}
		if ds.ItemsScored > 0 {
			ds.Percent = round2(100 * float64(sum) / float64(ds.ItemsScored*MaxItemScore))
		}

		rawSum += sum
		maxPossible += ds.ItemsTotal * MaxItemScore
		result.ItemsScored += ds.ItemsScored
		result.ItemsTotal += ds.ItemsTotal
		result.Domains = append(result.Domains, ds)
	}

	if maxPossible == 0 {
		maxPossible = 1
	}
	result.TotalPercent = round2(100 * float64(rawSum) / float64(maxPossible))

	return result, nil
}

// Missing lists the variant's items without a rating, in catalog order
func (e *Engine) Missing(scale catalog.ScaleVariant, ratings RatingMap) ([]catalog.ItemID, error) {
	ids, err := e.catalog.ItemIDsFor(scale)
	if err != nil {
		return nil, err
	}

	missing := make([]catalog.ItemID, 0)
	for _, id := range ids {
		if _, ok := ratings[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

// clamp keeps a rating within [0,3]. Ratings are validated before scoring,
// this only guards the arithmetic.
func clamp(v int) int {
	if v < int(MinRating) {
		return int(MinRating)
	}
	if v > int(MaxRating) {
		return int(MaxRating)
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
