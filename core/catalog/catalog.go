// Package catalog loads the property listings shown by the search and info flows.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed listings.yaml
var defaultListings []byte

// Listing is a single property offered for sale or rent.
type Listing struct {
	ID          string `yaml:"id"`
	Title       string `yaml:"title"`
	City        string `yaml:"city"`
	Locality    string `yaml:"locality"`
	Deal        string `yaml:"deal"`
	Price       string `yaml:"price"`
	Bedrooms    int    `yaml:"bedrooms"`
	AreaSqft    int    `yaml:"area_sqft"`
	Description string `yaml:"description"`
}

// Headline renders the one-line summary used in search results.
func (l Listing) Headline() string {
	place := l.City
	if l.Locality != "" {
		place = l.Locality + ", " + l.City
	}
	return fmt.Sprintf("%s · %s · %s (%s)", l.ID, l.Title, place, l.Price)
}

type file struct {
	Listings []Listing `yaml:"listings"`
}

// Catalog is an immutable, concurrency-safe set of listings.
type Catalog struct {
	listings []Listing
	byID     map[string]int
}

// Load reads listings from path; an empty path selects the embedded sample catalog.
func Load(path string) (*Catalog, error) {
	data := defaultListings
	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("catalog: read %s: %w", path, err)
		}
		data = raw
	}
	return Parse(data)
}

// Parse decodes a YAML listings document.
func Parse(data []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("catalog: parse: %w", err)
	}
	return New(f.Listings)
}

// New builds a catalog, rejecting listings without id and duplicate ids.
func New(listings []Listing) (*Catalog, error) {
	c := &Catalog{
		listings: make([]Listing, 0, len(listings)),
		byID:     make(map[string]int, len(listings)),
	}
	for _, l := range listings {
		l.ID = strings.TrimSpace(l.ID)
		if l.ID == "" {
			return nil, fmt.Errorf("catalog: listing %q has no id", l.Title)
		}
		key := strings.ToUpper(l.ID)
		if _, dup := c.byID[key]; dup {
			return nil, fmt.Errorf("catalog: duplicate listing id %s", l.ID)
		}
		c.byID[key] = len(c.listings)
		c.listings = append(c.listings, l)
	}
	return c, nil
}

// Len reports the number of listings.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.listings)
}

// Find looks a listing up by id, ignoring case and surrounding spaces.
func (c *Catalog) Find(id string) (Listing, bool) {
	if c == nil {
		return Listing{}, false
	}
	i, ok := c.byID[strings.ToUpper(strings.TrimSpace(id))]
	if !ok {
		return Listing{}, false
	}
	return c.listings[i], true
}

// Search returns up to limit listings whose city or locality occurs in location
// (or vice versa). Exact city matches come first, the rest keep file order.
func (c *Catalog) Search(location string, limit int) []Listing {
	if c == nil {
		return nil
	}
	q := strings.ToLower(strings.TrimSpace(location))
	if q == "" {
		return nil
	}
	var out []Listing
	for _, l := range c.listings {
		if matchesPlace(q, l.City) || matchesPlace(q, l.Locality) {
			out = append(out, l)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return strings.EqualFold(out[i].City, location) && !strings.EqualFold(out[j].City, location)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func matchesPlace(query, place string) bool {
	place = strings.ToLower(strings.TrimSpace(place))
	if place == "" {
		return false
	}
	return strings.Contains(query, place) || strings.Contains(place, query)
}
