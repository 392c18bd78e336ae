// Package catalog defines the product-catalog collaborators used by the
// resolution pipeline: exact lookup by barcode and ranked free-text search.
//
// Concrete backends live in sub-packages (see catalog/off). [Cached] adds a
// shared TTL cache with request collapsing and a circuit breaker in front of
// any backend.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

// ErrNotFound is returned by backends when a barcode is unknown.
var ErrNotFound = errors.New("catalog: product not found")

// Domain selects the product universe.
type Domain string

const (
	DomainFood   Domain = "food"
	DomainBeauty Domain = "beauty"
)

// ParseDomain maps a client-supplied domain name to a [Domain]. Anything
// other than "beauty" is treated as food.
func ParseDomain(s string) Domain {
	if strings.EqualFold(strings.TrimSpace(s), string(DomainBeauty)) {
		return DomainBeauty
	}
	return DomainFood
}

// Locale scopes catalog queries to a country and language.
type Locale struct {
	Country  string
	Language string
}

// LookupConfidence is the fixed confidence of an exact barcode hit.
const LookupConfidence = 0.95

// SearchConfidence is the decaying confidence assigned to the search result
// at rank (0-based): 0.82, 0.73, 0.64, ... floored at 0.35.
func SearchConfidence(rank int) float64 {
	return max(0.35, 0.82-float64(rank)*0.09)
}

// Identity names a resolved product. It is always replaced as a whole.
type Identity struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Brand string `json:"brand"`
}

// UnknownIdentity is the placeholder identity before resolution.
var UnknownIdentity = Identity{ID: "unknown", Name: "Unknown product", Brand: "Unknown brand"}

// Candidate is one ranked fuzzy-search hit.
type Candidate struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// Product is the structured payload of a catalog record. Field names follow
// the Open Food Facts product schema.
type Product struct {
	Code            string         `json:"code"`
	ProductName     string         `json:"product_name"`
	ProductNameDE   string         `json:"product_name_de,omitempty"`
	Brands          string         `json:"brands"`
	Nutriments      map[string]any `json:"nutriments,omitempty"`
	NutriscoreGrade string         `json:"nutriscore_grade,omitempty"`
	EcoscoreGrade   string         `json:"ecoscore_grade,omitempty"`
	AdditivesTags   []string       `json:"additives_tags"`
	AllergensTags   []string       `json:"allergens_tags,omitempty"`
	IngredientsText string         `json:"ingredients_text"`
	IngredientsTags []string       `json:"ingredients_tags"`
	LabelsTags      []string       `json:"labels_tags,omitempty"`
}

// DisplayName returns the best available product name, or fallback.
func (p *Product) DisplayName(fallback string) string {
	if p == nil {
		return fallback
	}
	if n := strings.TrimSpace(p.ProductName); n != "" {
		return n
	}
	if n := strings.TrimSpace(p.ProductNameDE); n != "" {
		return n
	}
	return fallback
}

// Nutrient returns the numeric value of a nutriment key such as
// "sugars_100g". Catalog data mixes numbers and numeric strings; anything
// else reports ok=false.
func (p *Product) Nutrient(key string) (float64, bool) {
	if p == nil || p.Nutriments == nil {
		return 0, false
	}
	switch v := p.Nutriments[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// MinimalProduct synthesizes a payload from a search candidate alone so that
// scoring always receives a well-formed shape.
func MinimalProduct(c Candidate) *Product {
	return &Product{
		Code:            c.ID,
		ProductName:     c.Name,
		Brands:          "Catalog match",
		AdditivesTags:   []string{},
		IngredientsTags: []string{},
	}
}

// LookupResult is the outcome of an exact barcode lookup.
type LookupResult struct {
	Found      bool
	ProductID  string
	Name       string
	Confidence float64
	Product    *Product
}

// Lookuper retrieves a product by barcode. A miss is reported as
// Found=false with a nil error; errors are reserved for transport failures.
type Lookuper interface {
	Lookup(ctx context.Context, barcode string, domain Domain, loc Locale) (LookupResult, error)
}

// Searcher ranks catalog products against free text. Results are ordered by
// descending confidence; an empty slice means no match.
type Searcher interface {
	Search(ctx context.Context, query string, domain Domain, loc Locale, limit int) ([]Candidate, error)
}

// Catalog combines [Lookuper] and [Searcher].
type Catalog interface {
	Lookuper
	Searcher
}
