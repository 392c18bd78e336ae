package catalog

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/MrWong99/nutrivision/internal/resilience"
)

// DefaultCacheTTL is how long lookups and searches stay cached.
const DefaultCacheTTL = 10 * time.Minute

// DefaultCallTimeout bounds one shared upstream call.
const DefaultCallTimeout = 10 * time.Second

// Cached wraps a [Catalog] with a shared TTL cache. Concurrent identical
// requests from different sessions collapse into one upstream call, and a
// circuit breaker short-circuits the upstream while it is failing.
//
// Successful results are cached, including "not found" lookups and empty
// searches. Errors never are.
//
// Cached is safe for concurrent use.
type Cached struct {
	backend Catalog
	cache   *cache.Cache
	group   singleflight.Group
	breaker *resilience.CircuitBreaker
	timeout time.Duration
}

var _ Catalog = (*Cached)(nil)

// CachedOption is a functional option for [NewCached].
type CachedOption func(*Cached)

// WithTTL overrides [DefaultCacheTTL].
func WithTTL(ttl time.Duration) CachedOption {
	return func(c *Cached) {
		if ttl > 0 {
			c.cache = cache.New(ttl, 2*ttl)
		}
	}
}

// WithCallTimeout bounds each upstream call. The call is shared by every
// waiting session, so it runs detached from the caller's cancellation and
// only this timeout stops it.
func WithCallTimeout(d time.Duration) CachedOption {
	return func(c *Cached) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithBreaker guards the backend with cb. Without it a breaker with default
// settings named "catalog" is used.
func WithBreaker(cb *resilience.CircuitBreaker) CachedOption {
	return func(c *Cached) {
		if cb != nil {
			c.breaker = cb
		}
	}
}

// NewCached wraps backend.
func NewCached(backend Catalog, opts ...CachedOption) *Cached {
	c := &Cached{
		backend: backend,
		cache:   cache.New(DefaultCacheTTL, 2*DefaultCacheTTL),
		timeout: DefaultCallTimeout,
	}
	for _, o := range opts {
		o(c)
	}
	if c.breaker == nil {
		c.breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "catalog"})
	}
	return c
}

// Breaker exposes the upstream circuit breaker for readiness reporting.
func (c *Cached) Breaker() *resilience.CircuitBreaker { return c.breaker }

// Len reports the number of cached entries, expired ones included until the
// next cleanup.
func (c *Cached) Len() int { return c.cache.ItemCount() }

func cacheKey(kind string, domain Domain, loc Locale, parts ...string) string {
	return strings.Join(append([]string{kind, string(domain), loc.Country, loc.Language}, parts...), "|")
}

// Lookup implements [Lookuper].
func (c *Cached) Lookup(ctx context.Context, barcode string, domain Domain, loc Locale) (LookupResult, error) {
	key := cacheKey("lookup", domain, loc, barcode)
	if v, ok := c.cache.Get(key); ok {
		return v.(LookupResult), nil
	}

	v, err := c.shared(ctx, key, func(ctx context.Context) (any, error) {
		return resilience.Do(ctx, c.breaker, func(ctx context.Context) (LookupResult, error) {
			return c.backend.Lookup(ctx, barcode, domain, loc)
		})
	})
	if err != nil {
		return LookupResult{}, fmt.Errorf("catalog: lookup %s: %w", barcode, err)
	}
	res := v.(LookupResult)
	c.cache.Set(key, res, cache.DefaultExpiration)
	return res, nil
}

// Search implements [Searcher]. The returned slice is a copy the caller may
// modify.
func (c *Cached) Search(ctx context.Context, query string, domain Domain, loc Locale, limit int) ([]Candidate, error) {
	key := cacheKey("search", domain, loc, fmt.Sprint(limit), strings.ToLower(strings.TrimSpace(query)))
	if v, ok := c.cache.Get(key); ok {
		return slices.Clone(v.([]Candidate)), nil
	}

	v, err := c.shared(ctx, key, func(ctx context.Context) (any, error) {
		return resilience.Do(ctx, c.breaker, func(ctx context.Context) ([]Candidate, error) {
			return c.backend.Search(ctx, query, domain, loc, limit)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: search %q: %w", query, err)
	}
	res := v.([]Candidate)
	c.cache.Set(key, res, cache.DefaultExpiration)
	return slices.Clone(res), nil
}

// shared runs fn once per key across concurrent callers. fn gets a context
// that keeps ctx's values but not its cancellation, so one session hanging
// up does not fail the others waiting on the same key. Each caller still
// stops waiting when its own ctx is done.
func (c *Cached) shared(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	ch := c.group.DoChan(key, func() (any, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		return fn(callCtx)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		return r.Val, r.Err
	}
}
