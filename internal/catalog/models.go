package catalog

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors
var (
	ErrCatalogUnavailable  = errors.New("item catalog unavailable")
	ErrUnknownScaleVariant = errors.New("unknown scale variant")
)

// ItemID is the stable number of an assessment item on the score sheet
type ItemID int

// ScaleVariant selects which subset of the catalog applies
type ScaleVariant string

const (
	Reduced ScaleVariant = "reduced" // 66-item scale
	Full    ScaleVariant = "full"    // 88-item scale
)

// Valid reports whether v is one of the defined variants
func (v ScaleVariant) Valid() bool {
	return v == Reduced || v == Full
}

// ShortName returns the item count label used on score sheets ("66" or "88")
func (v ScaleVariant) ShortName() string {
	switch v {
	case Reduced:
		return "66"
	case Full:
		return "88"
	}
	return string(v)
}

// ParseScaleVariant accepts the canonical names as well as the score sheet labels.
func ParseScaleVariant(s string) (ScaleVariant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "reduced", "66", "gmfm-66", "gmfm66":
		return Reduced, nil
	case "full", "88", "gmfm-88", "gmfm88":
		return Full, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownScaleVariant, s)
}

// AssessmentItem is a single task on the score sheet
type AssessmentItem struct {
	Number      ItemID `json:"number"`
	Description string `json:"description"`
	Reduced     bool   `json:"reduced"`
}

// Domain is an ordered group of items (a GMFM dimension)
type Domain struct {
	Code  string           `json:"code"`
	Title string           `json:"title"`
	Items []AssessmentItem `json:"items"`
}

// Label returns "A: Lying & Rolling" style heading
func (d Domain) Label() string {
	return d.Code + ": " + d.Title
}

// ItemIDs returns the item numbers of the domain in order
func (d Domain) ItemIDs() []ItemID {
	ids := make([]ItemID, len(d.Items))
	for i, item := range d.Items {
		ids[i] = item.Number
	}
	return ids
}

// forVariant returns a copy of the domain restricted to the variant's items.
func (d Domain) forVariant(v ScaleVariant) Domain {
	out := Domain{Code: d.Code, Title: d.Title, Items: make([]AssessmentItem, 0, len(d.Items))}
	for _, item := range d.Items {
		if v == Reduced && !item.Reduced {
			continue
		}
		out.Items = append(out.Items, item)
	}
	return out
}
