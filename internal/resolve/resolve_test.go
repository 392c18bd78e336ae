package resolve_test

import (
	"context"
	"errors"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/nutrivision/internal/catalog"
	catmock "github.com/MrWong99/nutrivision/internal/catalog/mock"
	"github.com/MrWong99/nutrivision/internal/observe"
	"github.com/MrWong99/nutrivision/internal/resolve"
	"github.com/MrWong99/nutrivision/internal/vision"
)

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

// stubHinter returns a fixed hint and counts calls.
type stubHinter struct {
	hint  string
	calls int
}

func (h *stubHinter) Hint(context.Context, vision.Frame, catalog.Domain, string) string {
	h.calls++
	return h.hint
}

// traceLog collects tracer messages.
type traceLog struct {
	messages []string
	details  []map[string]any
}

func (l *traceLog) trace(_ context.Context, msg string, details map[string]any) {
	l.messages = append(l.messages, msg)
	l.details = append(l.details, details)
}

func (l *traceLog) has(msg string) bool {
	for _, m := range l.messages {
		if m == msg {
			return true
		}
	}
	return false
}

var jpeg = &vision.Frame{MIMEType: "image/jpeg", Data: []byte{0xff, 0xd8}}

func nutella() *catalog.Product {
	return &catalog.Product{
		Code:            "3017620422003",
		ProductName:     "Nutella",
		Brands:          "Ferrero",
		Nutriments:      map[string]any{"sugars_100g": 56.3},
		IngredientsText: "sugar, palm oil, hazelnuts",
	}
}

func newPipeline(t *testing.T, cat catalog.Catalog, opts ...resolve.Option) *resolve.Pipeline {
	t.Helper()
	opts = append([]resolve.Option{resolve.WithMetrics(testMetrics(t))}, opts...)
	return resolve.New(cat, opts...)
}

func TestResolve_BarcodeHit(t *testing.T) {
	t.Parallel()

	cat := &catmock.Catalog{}
	cat.AddProduct(nutella())
	var log traceLog

	out := newPipeline(t, cat).Resolve(context.Background(), resolve.Request{
		Barcode: "3017620422003", Query: "nutella", Domain: catalog.DomainFood, Language: "en",
	}, log.trace)

	if out.Status != resolve.Resolved {
		t.Fatalf("Status = %v, want resolved", out.Status)
	}
	want := catalog.Identity{ID: "3017620422003", Name: "Nutella", Brand: "Ferrero"}
	if out.Identity != want {
		t.Errorf("Identity = %+v, want %+v", out.Identity, want)
	}
	if out.Confidence != catalog.LookupConfidence {
		t.Errorf("Confidence = %v, want %v", out.Confidence, catalog.LookupConfidence)
	}
	if _, searches := cat.Calls(); searches != 0 {
		t.Errorf("search called %d times on barcode hit", searches)
	}
	if len(log.messages) != 1 || log.messages[0] != "Recognition orchestrator started" {
		t.Errorf("trace = %v", log.messages)
	}
	if log.details[0]["mode"] != "barcode_first" {
		t.Errorf("details = %v", log.details[0])
	}
}

func TestResolve_BarcodeMissFallsBackToSearch(t *testing.T) {
	t.Parallel()

	cat := &catmock.Catalog{}
	cat.AddProduct(nutella())
	cat.AddResults("nutella", catalog.Candidate{ID: "3017620422003", Name: "Nutella", Confidence: 0.82})
	var log traceLog

	out := newPipeline(t, cat).Resolve(context.Background(), resolve.Request{
		Barcode: "4000000000000", Query: "nutella", Domain: catalog.DomainFood, Language: "en",
	}, log.trace)

	if out.Status != resolve.Resolved {
		t.Fatalf("Status = %v, want resolved", out.Status)
	}
	if out.Identity.Brand != "Catalog match" || out.Identity.Name != "Nutella" {
		t.Errorf("Identity = %+v", out.Identity)
	}
	if out.Confidence != 0.82 {
		t.Errorf("Confidence = %v, want 0.82", out.Confidence)
	}
	if out.Product == nil || out.Product.Brands != "Ferrero" {
		t.Errorf("Product = %+v, want full record from retry lookup", out.Product)
	}
	if !log.has("Barcode miss, running catalog fallback search") {
		t.Errorf("trace = %v", log.messages)
	}
	if lookups, _ := cat.Calls(); lookups != 2 {
		t.Errorf("lookups = %d, want 2 (barcode + candidate id)", lookups)
	}
}

func TestResolve_CandidateWithoutRecordGetsMinimalPayload(t *testing.T) {
	t.Parallel()

	cat := &catmock.Catalog{}
	cat.AddResults("bio muesli", catalog.Candidate{ID: "111", Name: "Bio Muesli", Confidence: 0.82})

	out := newPipeline(t, cat).Resolve(context.Background(), resolve.Request{
		Query: "bio muesli", Domain: catalog.DomainFood, Language: "de",
	}, nil)

	if out.Status != resolve.Resolved {
		t.Fatalf("Status = %v", out.Status)
	}
	p := out.Product
	if p == nil || p.Code != "111" || p.ProductName != "Bio Muesli" || p.Brands != "Catalog match" {
		t.Errorf("Product = %+v", p)
	}
	if p.IngredientsText != "" || p.AdditivesTags == nil || len(p.AdditivesTags) != 0 {
		t.Errorf("minimal payload malformed: %+v", p)
	}
}

func TestResolve_Disambiguation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		confidence [2]float64
		wantStatus resolve.Status
	}{
		{"close candidates ask", [2]float64{0.74, 0.70}, resolve.Disambiguation},
		{"clear winner proceeds", [2]float64{0.90, 0.60}, resolve.Resolved},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cat := &catmock.Catalog{}
			cat.AddResults("muesli",
				catalog.Candidate{ID: "1", Name: "Bio Muesli", Confidence: tt.confidence[0]},
				catalog.Candidate{ID: "2", Name: "Bio Haferflocken", Confidence: tt.confidence[1]},
			)

			out := newPipeline(t, cat).Resolve(context.Background(), resolve.Request{
				Query: "muesli", Domain: catalog.DomainFood, Language: "en",
			}, nil)

			if out.Status != tt.wantStatus {
				t.Fatalf("Status = %v, want %v", out.Status, tt.wantStatus)
			}
			lookups, _ := cat.Calls()
			switch tt.wantStatus {
			case resolve.Disambiguation:
				want := "Multiple close matches found: Bio Muesli or Bio Haferflocken. Which product do you mean?"
				if out.Prompt != want {
					t.Errorf("Prompt = %q, want %q", out.Prompt, want)
				}
				if len(out.Candidates) != 2 {
					t.Errorf("Candidates = %v", out.Candidates)
				}
				if lookups != 0 {
					t.Errorf("lookups = %d, want 0 on disambiguation", lookups)
				}
			case resolve.Resolved:
				if out.Identity.ID != "1" || out.Prompt != "" {
					t.Errorf("outcome = %+v", out)
				}
			}
		})
	}
}

func TestResolve_FrameHintRetry(t *testing.T) {
	t.Parallel()

	cat := &catmock.Catalog{}
	cat.AddResults("bio muesli", catalog.Candidate{ID: "111", Name: "Bio Muesli", Confidence: 0.82})
	h := &stubHinter{hint: "Bio Muesli"}
	var log traceLog

	out := newPipeline(t, cat, resolve.WithFrameHinter(h)).Resolve(context.Background(), resolve.Request{
		Query: "cereal", Domain: catalog.DomainFood, Language: "en", Frame: jpeg,
	}, log.trace)

	if out.Status != resolve.Resolved {
		t.Fatalf("Status = %v, want resolved", out.Status)
	}
	if out.Query != "bio muesli" {
		t.Errorf("Query = %q, want hint query", out.Query)
	}
	if h.calls != 1 {
		t.Errorf("hinter calls = %d, want 1", h.calls)
	}
	if !log.has("Catalog fallback retry with frame hint") {
		t.Errorf("trace = %v", log.messages)
	}
	if _, searches := cat.Calls(); searches != 2 {
		t.Errorf("searches = %d, want 2", searches)
	}
}

func TestResolve_FrameHintSameQueryNoRetry(t *testing.T) {
	t.Parallel()

	cat := &catmock.Catalog{}
	h := &stubHinter{hint: "Cereal"}

	out := newPipeline(t, cat, resolve.WithFrameHinter(h)).Resolve(context.Background(), resolve.Request{
		Query: "cereal", Domain: catalog.DomainFood, Language: "en", Frame: jpeg,
	}, nil)

	if out.Status != resolve.Unresolved {
		t.Fatalf("Status = %v, want unresolved", out.Status)
	}
	if _, searches := cat.Calls(); searches != 1 {
		t.Errorf("searches = %d, want 1", searches)
	}
}

func TestResolve_NoHintWithBarcodeOrWithoutFrame(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		req  resolve.Request
	}{
		{"barcode present", resolve.Request{Barcode: "4000000000000", Query: "x", Frame: jpeg}},
		{"no frame", resolve.Request{Query: "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := &stubHinter{hint: "bio muesli"}
			out := newPipeline(t, &catmock.Catalog{}, resolve.WithFrameHinter(h)).Resolve(context.Background(), tt.req, nil)
			if out.Status != resolve.Unresolved {
				t.Errorf("Status = %v", out.Status)
			}
			if h.calls != 0 {
				t.Errorf("hinter called %d times", h.calls)
			}
		})
	}
}

func TestResolve_CatalogFailuresDegrade(t *testing.T) {
	t.Parallel()

	cat := &catmock.Catalog{LookupErr: errors.New("timeout"), SearchErr: errors.New("503")}
	out := newPipeline(t, cat).Resolve(context.Background(), resolve.Request{
		Barcode: "3017620422003", Query: "nutella", Domain: catalog.DomainFood,
	}, nil)

	if out.Status != resolve.Unresolved {
		t.Errorf("Status = %v, want unresolved", out.Status)
	}
	if out.Confidence != 0.45 {
		t.Errorf("Confidence = %v, want 0.45", out.Confidence)
	}
}

func TestResolve_UsesLocaleAndLimit(t *testing.T) {
	t.Parallel()

	cat := &catmock.Catalog{}
	loc := catalog.Locale{Country: "at", Language: "de"}
	newPipeline(t, cat, resolve.WithLocale(loc), resolve.WithMaxResults(3)).Resolve(context.Background(), resolve.Request{
		Query: "manner schnitten", Domain: catalog.DomainFood,
	}, nil)

	if len(cat.SearchCalls) != 1 {
		t.Fatalf("search calls = %d", len(cat.SearchCalls))
	}
	call := cat.SearchCalls[0]
	if call.Locale != loc || call.Limit != 3 {
		t.Errorf("search call = %+v", call)
	}
}

func TestStatus_String(t *testing.T) {
	t.Parallel()

	for s, want := range map[resolve.Status]string{
		resolve.Resolved:       "resolved",
		resolve.Disambiguation: "disambiguation",
		resolve.Unresolved:     "unresolved",
	} {
		if got := s.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", s, got, want)
		}
	}
}
