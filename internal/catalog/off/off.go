// Package off implements [catalog.Catalog] against the Open Food Facts and
// Open Beauty Facts public REST APIs.
//
// Lookups use GET /api/v2/product/{barcode}.json; searches use the legacy
// GET /cgi/search.pl endpoint, which supports plain full-text queries. Both
// are scoped by the cc/lc locale parameters and request only the fields the
// scoring rules consume.
//
//	c := off.New(off.WithTimeout(5 * time.Second))
//	res, err := c.Lookup(ctx, "4000417025005", catalog.DomainFood, catalog.Locale{Country: "de", Language: "de"})
package off

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/nutrivision/internal/catalog"
)

// Compile-time interface assertion.
var _ catalog.Catalog = (*Client)(nil)

const (
	DefaultFoodBaseURL   = "https://world.openfoodfacts.org"
	DefaultBeautyBaseURL = "https://world.openbeautyfacts.org"

	defaultTimeout   = 5 * time.Second
	defaultUserAgent = "NutriVision/1.0 (+https://github.com/MrWong99/nutrivision)"

	productEndpoint = "/api/v2/product/"
	searchEndpoint  = "/cgi/search.pl"

	// maxBodyBytes caps how much of a response body is decoded.
	maxBodyBytes = 4 << 20
)

const (
	foodFields = "code,product_name,brands,nutriments,nutriscore_grade,nova_group,ecoscore_grade," +
		"additives_tags,allergens_tags,ingredients_text,ingredients_tags"
	beautyFields = "code,product_name,brands,ingredients_text,ingredients_tags,labels_tags"
)

// Option is a functional option for [Client].
type Option func(*Client)

// WithFoodBaseURL overrides the Open Food Facts base URL.
func WithFoodBaseURL(u string) Option {
	return func(c *Client) { c.foodBaseURL = strings.TrimRight(u, "/") }
}

// WithBeautyBaseURL overrides the Open Beauty Facts base URL.
func WithBeautyBaseURL(u string) Option {
	return func(c *Client) { c.beautyBaseURL = strings.TrimRight(u, "/") }
}

// WithTimeout sets the per-request HTTP timeout. Default: 5s.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithUserAgent sets the User-Agent header. The Open Food Facts API asks
// clients to identify themselves.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// Client talks to the Open Food Facts family of APIs. It is safe for
// concurrent use.
type Client struct {
	foodBaseURL   string
	beautyBaseURL string
	userAgent     string
	httpClient    *http.Client
}

// New creates a [Client].
func New(opts ...Option) *Client {
	c := &Client{
		foodBaseURL:   DefaultFoodBaseURL,
		beautyBaseURL: DefaultBeautyBaseURL,
		userAgent:     defaultUserAgent,
		httpClient:    &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) baseURL(d catalog.Domain) string {
	if d == catalog.DomainBeauty {
		return c.beautyBaseURL
	}
	return c.foodBaseURL
}

func fields(d catalog.Domain) string {
	if d == catalog.DomainBeauty {
		return beautyFields
	}
	return foodFields
}

// ── Lookup ───────────────────────────────────────────────────────────────────

type productResponse struct {
	Status  int              `json:"status"`
	Product *catalog.Product `json:"product"`
}

// Lookup implements [catalog.Lookuper]. An unknown barcode yields Found=false
// and a nil error.
func (c *Client) Lookup(ctx context.Context, barcode string, domain catalog.Domain, loc catalog.Locale) (catalog.LookupResult, error) {
	barcode = strings.TrimSpace(barcode)
	if barcode == "" {
		return catalog.LookupResult{}, nil
	}

	params := url.Values{}
	params.Set("cc", loc.Country)
	params.Set("lc", loc.Language)
	params.Set("fields", fields(domain))
	reqURL := c.baseURL(domain) + productEndpoint + url.PathEscape(barcode) + ".json?" + params.Encode()

	var body productResponse
	err := c.getJSON(ctx, reqURL, &body)
	if errors.Is(err, catalog.ErrNotFound) {
		return catalog.LookupResult{}, nil
	}
	if err != nil {
		return catalog.LookupResult{}, err
	}
	if body.Status != 1 || body.Product == nil {
		return catalog.LookupResult{}, nil
	}

	return catalog.LookupResult{
		Found:      true,
		ProductID:  barcode,
		Name:       body.Product.DisplayName(barcode),
		Confidence: catalog.LookupConfidence,
		Product:    body.Product,
	}, nil
}

// ── Search ───────────────────────────────────────────────────────────────────

type searchResponse struct {
	Products []catalog.Product `json:"products"`
}

// Search implements [catalog.Searcher].
func (c *Client) Search(ctx context.Context, query string, domain catalog.Domain, loc catalog.Locale, limit int) ([]catalog.Candidate, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 5
	}

	params := url.Values{}
	params.Set("search_terms", query)
	params.Set("search_simple", "1")
	params.Set("action", "process")
	params.Set("json", "1")
	params.Set("cc", loc.Country)
	params.Set("lc", loc.Language)
	params.Set("page_size", strconv.Itoa(limit))
	params.Set("fields", fields(domain))
	reqURL := c.baseURL(domain) + searchEndpoint + "?" + params.Encode()

	var body searchResponse
	if err := c.getJSON(ctx, reqURL, &body); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	products := body.Products
	if len(products) > limit {
		products = products[:limit]
	}
	out := make([]catalog.Candidate, 0, len(products))
	for i, p := range products {
		id := strings.TrimSpace(p.Code)
		if id == "" {
			id = fmt.Sprintf("candidate-%d", i)
		}
		out = append(out, catalog.Candidate{
			ID:         id,
			Name:       p.DisplayName("Unknown product"),
			Confidence: catalog.SearchConfidence(i),
		})
	}
	return out, nil
}

// getJSON performs a GET and decodes the JSON body into v. A 404 maps to
// [catalog.ErrNotFound].
func (c *Client) getJSON(ctx context.Context, reqURL string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("off: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("off: GET %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return catalog.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("off: GET %s returned status %d", req.URL.Path, resp.StatusCode)
	}

	dec := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("off: decode %s: %w", req.URL.Path, err)
	}
	return nil
}
