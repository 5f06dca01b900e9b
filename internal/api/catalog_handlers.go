package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/terra-clan/gmfm-scoring/internal/catalog"
)

type domainResponse struct {
	Code      string           `json:"code"`
	Title     string           `json:"title"`
	Label     string           `json:"label"`
	ItemCount int              `json:"item_count"`
	Items     []catalog.ItemID `json:"items"`
}

type itemResponse struct {
	Number      catalog.ItemID `json:"number"`
	Domain      string         `json:"domain"`
	Description string         `json:"description"`
	Reduced     bool           `json:"gmfm66"`
}

func (s *Server) scaleParam(w http.ResponseWriter, r *http.Request) (catalog.ScaleVariant, bool) {
	scale, err := catalog.ParseScaleVariant(chi.URLParam(r, "scale"))
	if err != nil {
		respondServiceError(w, r, err)
		return "", false
	}
	return scale, true
}

// handleListDomains lists the domains of a scale with their item numbers
func (s *Server) handleListDomains(w http.ResponseWriter, r *http.Request) {
	scale, ok := s.scaleParam(w, r)
	if !ok {
		return
	}

	domains, err := s.service.Engine().Catalog().DomainsFor(scale)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	resp := make([]domainResponse, 0, len(domains))
	for _, d := range domains {
		resp = append(resp, domainResponse{
			Code:      d.Code,
			Title:     d.Title,
			Label:     d.Label(),
			ItemCount: len(d.Items),
			Items:     d.ItemIDs(),
		})
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"scale":   scale,
		"domains": resp,
	})
}

// handleListItems lists every item of a scale in catalog order
func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	scale, ok := s.scaleParam(w, r)
	if !ok {
		return
	}

	domains, err := s.service.Engine().Catalog().DomainsFor(scale)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	items := make([]itemResponse, 0)
	for _, d := range domains {
		for _, it := range d.Items {
			items = append(items, itemResponse{
				Number:      it.Number,
				Domain:      d.Code,
				Description: it.Description,
				Reduced:     it.Reduced,
			})
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"scale": scale,
		"items": items,
		"total": len(items),
	})
}
