// Package catalog holds the fixed set of GMFM assessment items grouped into
// ordered domains, and the subset of items that belongs to each scale variant.
//
// A Catalog is loaded once and is read-only afterwards; all accessors return
// fresh copies so they are safe for concurrent use.
package catalog

import (
	"fmt"
	"log/slog"
	"sync"
)

// Catalog is the single source of truth for items, domains and scale membership
type Catalog struct {
	source Source

	once    sync.Once
	err     error
	domains []Domain
	items   map[ItemID]AssessmentItem
}

// New creates a catalog backed by src. Nothing is read until Load.
func New(src Source) *Catalog {
	return &Catalog{source: src}
}

// Load reads and indexes the definition. Only the first call does any work;
// later calls return the cached outcome.
func (c *Catalog) Load() error {
	c.once.Do(func() {
		if c.source == nil {
			c.err = fmt.Errorf("%w: no source configured", ErrCatalogUnavailable)
			return
		}

		data, err := c.source.Read()
		if err != nil {
			c.err = fmt.Errorf("%w: %s: %w", ErrCatalogUnavailable, c.source.Name(), err)
			return
		}

		domains, err := parseDefinition(data)
		if err != nil {
			c.err = fmt.Errorf("%w: %s: %w", ErrCatalogUnavailable, c.source.Name(), err)
			return
		}

		items := make(map[ItemID]AssessmentItem)
		reduced := 0
		for _, d := range domains {
			for _, item := range d.Items {
				items[item.Number] = item
				if item.Reduced {
					reduced++
				}
			}
		}

		c.domains = domains
		c.items = items

		slog.Info("item catalog loaded",
			"source", c.source.Name(),
			"domains", len(domains),
			"items", len(items),
			"reduced_items", reduced,
		)
	})
	return c.err
}

// DomainsFor returns the domains applicable to the variant in catalog order.
// Domains without any item for the variant are omitted.
func (c *Catalog) DomainsFor(v ScaleVariant) ([]Domain, error) {
	if err := c.Load(); err != nil {
		return nil, err
	}
	if !v.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownScaleVariant, string(v))
	}

	result := make([]Domain, 0, len(c.domains))
	for _, d := range c.domains {
		filtered := d.forVariant(v)
		if len(filtered.Items) == 0 {
			continue
		}
		result = append(result, filtered)
	}
	return result, nil
}

// ItemIDsFor returns every item number of the variant, in domain then item order
func (c *Catalog) ItemIDsFor(v ScaleVariant) ([]ItemID, error) {
	domains, err := c.DomainsFor(v)
	if err != nil {
		return nil, err
	}

	var ids []ItemID
	for _, d := range domains {
		ids = append(ids, d.ItemIDs()...)
	}
	return ids, nil
}

// DomainItemIDs maps each domain title to its item numbers for the variant
func (c *Catalog) DomainItemIDs(v ScaleVariant) (map[string][]ItemID, error) {
	domains, err := c.DomainsFor(v)
	if err != nil {
		return nil, err
	}

	result := make(map[string][]ItemID, len(domains))
	for _, d := range domains {
		result[d.Title] = d.ItemIDs()
	}
	return result, nil
}

// Item looks up a single item by number
func (c *Catalog) Item(id ItemID) (AssessmentItem, bool) {
	if c.Load() != nil {
		return AssessmentItem{}, false
	}
	item, ok := c.items[id]
	return item, ok
}

// Size returns the number of items in the variant
func (c *Catalog) Size(v ScaleVariant) (int, error) {
	ids, err := c.ItemIDsFor(v)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}
