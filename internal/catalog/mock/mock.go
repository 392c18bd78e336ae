// Package mock provides an in-memory [catalog.Catalog] for tests.
//
// Products are registered by barcode and searches are answered from a
// query-keyed table. Every call is recorded so tests can assert which stage
// of the resolution pipeline touched the catalog.
package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/MrWong99/nutrivision/internal/catalog"
)

// LookupCall records a single Lookup invocation.
type LookupCall struct {
	Barcode string
	Domain  catalog.Domain
	Locale  catalog.Locale
}

// SearchCall records a single Search invocation.
type SearchCall struct {
	Query  string
	Domain catalog.Domain
	Locale catalog.Locale
	Limit  int
}

// Catalog is a configurable in-memory catalog. The zero value is an empty
// catalog that finds nothing.
type Catalog struct {
	mu sync.Mutex

	// Products maps barcode/product id to payload.
	Products map[string]*catalog.Product

	// Results maps a lower-cased query to its ranked candidates.
	Results map[string][]catalog.Candidate

	// LookupErr and SearchErr, if set, are returned from every call.
	LookupErr error
	SearchErr error

	LookupCalls []LookupCall
	SearchCalls []SearchCall
}

var _ catalog.Catalog = (*Catalog)(nil)

// AddProduct registers p under its code.
func (c *Catalog) AddProduct(p *catalog.Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Products == nil {
		c.Products = make(map[string]*catalog.Product)
	}
	c.Products[p.Code] = p
}

// AddResults registers the candidates returned for query.
func (c *Catalog) AddResults(query string, candidates ...catalog.Candidate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Results == nil {
		c.Results = make(map[string][]catalog.Candidate)
	}
	c.Results[strings.ToLower(query)] = candidates
}

// Lookup implements [catalog.Lookuper].
func (c *Catalog) Lookup(_ context.Context, barcode string, domain catalog.Domain, loc catalog.Locale) (catalog.LookupResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.LookupCalls = append(c.LookupCalls, LookupCall{Barcode: barcode, Domain: domain, Locale: loc})
	if c.LookupErr != nil {
		return catalog.LookupResult{}, c.LookupErr
	}
	p, ok := c.Products[barcode]
	if !ok {
		return catalog.LookupResult{}, nil
	}
	return catalog.LookupResult{
		Found:      true,
		ProductID:  barcode,
		Name:       p.DisplayName("Unknown product"),
		Confidence: catalog.LookupConfidence,
		Product:    p,
	}, nil
}

// Search implements [catalog.Searcher].
func (c *Catalog) Search(_ context.Context, query string, domain catalog.Domain, loc catalog.Locale, limit int) ([]catalog.Candidate, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SearchCalls = append(c.SearchCalls, SearchCall{Query: query, Domain: domain, Locale: loc, Limit: limit})
	if c.SearchErr != nil {
		return nil, c.SearchErr
	}
	res := c.Results[strings.ToLower(query)]
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	out := make([]catalog.Candidate, len(res))
	copy(out, res)
	return out, nil
}

// Calls returns the number of lookups and searches made so far.
func (c *Catalog) Calls() (lookups, searches int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.LookupCalls), len(c.SearchCalls)
}
