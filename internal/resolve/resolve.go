// Package resolve turns a normalized user request into a catalog product.
//
// The [Pipeline] tries an exact barcode lookup first, then ranked free-text
// search, then one search retry with a query read off the latest camera
// frame. A chosen candidate is looked up again for its full record. Close
// search results end the turn with a [Disambiguation] outcome instead of a
// guess.
package resolve

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/nutrivision/internal/catalog"
	"github.com/MrWong99/nutrivision/internal/intent"
	"github.com/MrWong99/nutrivision/internal/observe"
	"github.com/MrWong99/nutrivision/internal/vision"
)

// DefaultMaxResults caps the number of search candidates considered.
const DefaultMaxResults = 5

// Initial confidence of a turn before anything resolved.
const unresolvedConfidence = 0.45

// Status is the terminal state of a resolution.
type Status int

const (
	Unresolved Status = iota
	Resolved
	Disambiguation
)

// String returns the lower-case status name.
func (s Status) String() string {
	switch s {
	case Resolved:
		return "resolved"
	case Disambiguation:
		return "disambiguation"
	default:
		return "unresolved"
	}
}

// Tracer receives a human-readable trace of pipeline stages. The session
// forwards these to the client as tool_call events.
type Tracer func(ctx context.Context, message string, details map[string]any)

// FrameHinter reads a search query or barcode off a camera frame, returning
// "" when nothing usable was seen. *vision.Service implements it.
type FrameHinter interface {
	Hint(ctx context.Context, f vision.Frame, domain catalog.Domain, lang string) string
}

// Request is one resolution.
type Request struct {
	Barcode  string
	Query    string
	Domain   catalog.Domain
	Language string

	// Frame is the latest buffered camera frame, or nil.
	Frame *vision.Frame

	// Margin and MaxQueryTokens override the pipeline defaults when
	// positive. Sessions set them from their turn policy.
	Margin         float64
	MaxQueryTokens int
}

// Outcome is the result of [Pipeline.Resolve].
type Outcome struct {
	Status Status

	// Identity and Product are set for Resolved outcomes. Product is never
	// nil then.
	Identity   catalog.Identity
	Product    *catalog.Product
	Confidence float64

	// Candidates holds the two near-tied candidates of a Disambiguation
	// outcome and Prompt the question to ask.
	Candidates []catalog.Candidate
	Prompt     string

	// Query is the search query in effect at the end, which differs from the
	// request when a frame hint replaced it.
	Query string
}

// Pipeline resolves products against a catalog. It is safe for concurrent
// use; all per-turn state lives in the [Request].
type Pipeline struct {
	catalog    catalog.Catalog
	hints      FrameHinter
	locale     catalog.Locale
	margin     float64
	maxResults int
	maxTokens  int
	metrics    *observe.Metrics
}

// Option configures a [Pipeline].
type Option func(*Pipeline)

// WithFrameHinter enables the frame-hint search retry.
func WithFrameHinter(h FrameHinter) Option {
	return func(p *Pipeline) { p.hints = h }
}

// WithLocale sets the catalog country and language.
func WithLocale(loc catalog.Locale) Option {
	return func(p *Pipeline) { p.locale = loc }
}

// WithMargin overrides [DefaultMargin].
func WithMargin(m float64) Option {
	return func(p *Pipeline) {
		if m > 0 {
			p.margin = m
		}
	}
}

// WithMaxResults overrides [DefaultMaxResults].
func WithMaxResults(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxResults = n
		}
	}
}

// WithMaxQueryTokens sets the token cap applied when normalizing frame-hint
// queries. Defaults to [intent.DefaultMaxQueryTokens].
func WithMaxQueryTokens(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxTokens = n
		}
	}
}

// WithMetrics records lookup and search latency. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// New creates a Pipeline over cat.
func New(cat catalog.Catalog, opts ...Option) *Pipeline {
	p := &Pipeline{
		catalog:    cat,
		locale:     catalog.Locale{Country: "de", Language: "de"},
		margin:     DefaultMargin,
		maxResults: DefaultMaxResults,
		maxTokens:  intent.DefaultMaxQueryTokens,
	}
	for _, o := range opts {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	return p
}

// Margin returns the disambiguation margin in effect.
func (p *Pipeline) Margin() float64 { return p.margin }

// Resolve runs the pipeline for req. Catalog and hint failures degrade to
// misses; Resolve itself never fails. trace may be nil.
func (p *Pipeline) Resolve(ctx context.Context, req Request, trace Tracer) Outcome {
	ctx, span := observe.StartSpan(ctx, "resolve.Pipeline.Resolve")
	defer span.End()
	if trace == nil {
		trace = func(context.Context, string, map[string]any) {}
	}

	out := p.resolve(ctx, req, trace)
	span.SetAttributes(
		attribute.String("resolve.status", out.Status.String()),
		attribute.String("catalog.domain", string(req.Domain)),
		attribute.Float64("resolve.confidence", out.Confidence),
	)
	return out
}

func (p *Pipeline) resolve(ctx context.Context, req Request, trace Tracer) Outcome {
	trace(ctx, "Recognition orchestrator started", map[string]any{"mode": "barcode_first"})

	out := Outcome{Status: Unresolved, Confidence: unresolvedConfidence, Query: req.Query}

	if req.Barcode != "" {
		if res, ok := p.lookup(ctx, req.Barcode, req.Domain); ok {
			id := res.ProductID
			if id == "" {
				id = req.Barcode
			}
			name := res.Name
			if name == "" {
				name = catalog.UnknownIdentity.Name
			}
			brand := strings.TrimSpace(res.Product.Brands)
			if brand == "" {
				brand = catalog.UnknownIdentity.Brand
			}
			out.Status = Resolved
			out.Identity = catalog.Identity{ID: id, Name: name, Brand: brand}
			out.Product = res.Product
			out.Confidence = res.Confidence
			return out
		}
	}

	trace(ctx, "Barcode miss, running catalog fallback search", nil)
	candidates := p.search(ctx, out.Query, req.Domain)

	if len(candidates) == 0 && req.Barcode == "" && req.Frame != nil && p.hints != nil {
		hint := p.hints.Hint(ctx, *req.Frame, req.Domain, req.Language)
		maxTokens := p.maxTokens
		if req.MaxQueryTokens > 0 {
			maxTokens = req.MaxQueryTokens
		}
		retry := intent.NormalizeQueryN(hint, maxTokens)
		if retry != "" && !strings.EqualFold(retry, out.Query) {
			out.Query = retry
			trace(ctx, "Catalog fallback retry with frame hint", map[string]any{"query_text": retry})
			candidates = p.search(ctx, retry, req.Domain)
		}
	}

	if len(candidates) == 0 {
		return out
	}

	margin := p.margin
	if req.Margin > 0 {
		margin = req.Margin
	}
	if top, ok := Disambiguate(candidates, margin); ok {
		out.Status = Disambiguation
		out.Candidates = top
		out.Prompt = DisambiguationPrompt(req.Language, top)
		return out
	}

	chosen := candidates[0]
	out.Status = Resolved
	out.Identity = catalog.Identity{ID: chosen.ID, Name: chosen.Name, Brand: "Catalog match"}
	out.Confidence = chosen.Confidence
	if res, ok := p.lookup(ctx, chosen.ID, req.Domain); ok {
		out.Product = res.Product
	} else {
		out.Product = catalog.MinimalProduct(chosen)
	}
	return out
}

// lookup reports a hit only when the catalog returned a product record.
func (p *Pipeline) lookup(ctx context.Context, barcode string, domain catalog.Domain) (catalog.LookupResult, bool) {
	if strings.TrimSpace(barcode) == "" {
		return catalog.LookupResult{}, false
	}
	start := time.Now()
	res, err := p.catalog.Lookup(ctx, barcode, domain, p.locale)
	if err = p.metrics.ObserveCall(ctx, p.metrics.LookupDuration, "catalog", "lookup", start, err); err != nil {
		observe.Logger(ctx).Warn("catalog lookup failed", "barcode", barcode, "err", err)
		return catalog.LookupResult{}, false
	}
	return res, res.Found && res.Product != nil
}

func (p *Pipeline) search(ctx context.Context, query string, domain catalog.Domain) []catalog.Candidate {
	if strings.TrimSpace(query) == "" {
		return nil
	}
	start := time.Now()
	cands, err := p.catalog.Search(ctx, query, domain, p.locale, p.maxResults)
	if err = p.metrics.ObserveCall(ctx, p.metrics.SearchDuration, "catalog", "search", start, err); err != nil {
		observe.Logger(ctx).Warn("catalog search failed", "query", query, "err", err)
		return nil
	}
	return cands
}
