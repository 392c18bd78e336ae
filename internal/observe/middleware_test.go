package observe

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type middlewareHarness struct {
	metrics *Metrics
	reader  *sdkmetric.ManualReader
	spans   *tracetest.InMemoryExporter
}

// newHarness installs an in-memory tracer provider globally and a private
// meter provider for the test's duration.
func newHarness(t *testing.T) middlewareHarness {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(orig) })

	return middlewareHarness{metrics: m, reader: reader, spans: exp}
}

func (h middlewareHarness) serve(handler http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	Middleware(h.metrics)(handler).ServeHTTP(rec, req)
	return rec
}

func TestMiddleware_CorrelationID(t *testing.T) {
	const upstream = "4bf92f3577b34da6a3ce929d0e0e4736"

	tests := []struct {
		name        string
		traceparent string
		want        string
	}{
		{name: "fresh trace"},
		{name: "continues caller trace", traceparent: "00-" + upstream + "-00f067aa0ba902b7-01", want: upstream},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			var seen string
			req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
			if tt.traceparent != "" {
				req.Header.Set("traceparent", tt.traceparent)
			}
			rec := h.serve(func(w http.ResponseWriter, r *http.Request) {
				seen = CorrelationID(r.Context())
			}, req)

			if len(seen) != 32 {
				t.Fatalf("correlation id %q, want 32 hex characters", seen)
			}
			if tt.want != "" && seen != tt.want {
				t.Errorf("correlation id = %q, want %q", seen, tt.want)
			}
			if got := rec.Header().Get("X-Correlation-ID"); got != seen {
				t.Errorf("X-Correlation-ID = %q, want %q", got, seen)
			}
			if !strings.Contains(rec.Header().Get("traceparent"), seen) {
				t.Errorf("traceparent response header %q lacks trace id", rec.Header().Get("traceparent"))
			}
		})
	}
}

func TestMiddleware_SpanCarriesStatus(t *testing.T) {
	h := newHarness(t)
	rec := h.serve(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d", rec.Code)
	}
	spans := h.spans.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	if spans[0].Name != "HTTP GET /readyz" {
		t.Errorf("span name = %q", spans[0].Name)
	}
	var status int64
	for _, a := range spans[0].Attributes {
		if a.Key == "http.response.status_code" {
			status = a.Value.AsInt64()
		}
	}
	if status != http.StatusServiceUnavailable {
		t.Errorf("span status attribute = %d, want 503", status)
	}
}

func TestMiddleware_RecordsDuration(t *testing.T) {
	h := newHarness(t)
	for range 2 {
		h.serve(func(http.ResponseWriter, *http.Request) {}, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	}

	var rm metricdata.ResourceMetrics
	if err := h.reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	met := findMetric(rm, "nutrivision.http.request.duration")
	if met == nil {
		t.Fatal("request duration metric missing")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok || len(hist.DataPoints) != 1 {
		t.Fatalf("unexpected histogram data %#v", met.Data)
	}
	dp := hist.DataPoints[0]
	if dp.Count != 2 {
		t.Errorf("count = %d, want 2", dp.Count)
	}
	if v, _ := dp.Attributes.Value("path"); v.AsString() != "/healthz" {
		t.Errorf("path attribute = %q", v.AsString())
	}
	if v, _ := dp.Attributes.Value("method"); v.AsString() != http.MethodGet {
		t.Errorf("method attribute = %q", v.AsString())
	}
}

func TestMiddleware_ProbesLogAtDebug(t *testing.T) {
	h := newHarness(t)
	var buf bytes.Buffer
	orig := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))
	t.Cleanup(func() { slog.SetDefault(orig) })

	h.serve(func(http.ResponseWriter, *http.Request) {}, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if buf.Len() != 0 {
		t.Errorf("probe logged at info: %q", buf.String())
	}

	h.serve(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}, httptest.NewRequest(http.MethodGet, "/ws/live", nil))
	logged := buf.String()
	if !strings.Contains(logged, "path=/ws/live") || !strings.Contains(logged, "status=403") {
		t.Errorf("request line = %q", logged)
	}
}

func TestMiddleware_ResponseControllerReachesWriter(t *testing.T) {
	h := newHarness(t)
	var flushErr error
	rec := h.serve(func(w http.ResponseWriter, _ *http.Request) {
		flushErr = http.NewResponseController(w).Flush()
	}, httptest.NewRequest(http.MethodGet, "/ws/live", nil))

	if flushErr != nil {
		t.Fatalf("Flush through middleware: %v", flushErr)
	}
	if !rec.Flushed {
		t.Error("underlying recorder was not flushed")
	}
}
