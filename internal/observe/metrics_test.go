package observe

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumValue returns the value of the data point whose attribute key equals
// value, or -1 when none exists.
func sumValue(t *testing.T, rm metricdata.ResourceMetrics, name, key, value string) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not a sum", name)
	}
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			return dp.Value
		}
	}
	return -1
}

func TestStageHistograms(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	stages := map[string]metric.Float64Histogram{
		"nutrivision.turn.duration":       m.TurnDuration,
		"nutrivision.lookup.duration":     m.LookupDuration,
		"nutrivision.search.duration":     m.SearchDuration,
		"nutrivision.refine.duration":     m.RefineDuration,
		"nutrivision.frame_hint.duration": m.FrameHintDuration,
	}
	for _, h := range stages {
		h.Record(ctx, 0.04)
		h.Record(ctx, 3)
	}
	rm := collect(t, reader)

	for name := range stages {
		t.Run(name, func(t *testing.T) {
			met := findMetric(rm, name)
			if met == nil {
				t.Fatal("not exported")
			}
			if met.Unit != "s" {
				t.Errorf("unit = %q, want s", met.Unit)
			}
			hist, ok := met.Data.(metricdata.Histogram[float64])
			if !ok || len(hist.DataPoints) != 1 {
				t.Fatalf("unexpected data %#v", met.Data)
			}
			dp := hist.DataPoints[0]
			if dp.Count != 2 {
				t.Errorf("count = %d, want 2", dp.Count)
			}
			if !slices.Equal(dp.Bounds, latencyBuckets) {
				t.Errorf("bounds = %v, want turn latency buckets", dp.Bounds)
			}
		})
	}
}

func TestRecordTurn(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordTurn(ctx, OutcomeResolved, "food", 120*time.Millisecond)
	m.RecordTurn(ctx, OutcomeResolved, "food", 80*time.Millisecond)
	m.RecordTurn(ctx, OutcomeUncertain, "food", 10*time.Millisecond)

	rm := collect(t, reader)
	if got := sumValue(t, rm, "nutrivision.turns", "outcome", OutcomeResolved); got != 2 {
		t.Errorf("resolved turns = %d, want 2", got)
	}
	if got := sumValue(t, rm, "nutrivision.turns", "outcome", OutcomeUncertain); got != 1 {
		t.Errorf("uncertain turns = %d, want 1", got)
	}
}

func TestObserveCall(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()
	errBoom := errors.New("boom")

	start := time.Now()
	if err := m.ObserveCall(ctx, m.LookupDuration, "openfoodfacts", "lookup", start, nil); err != nil {
		t.Fatalf("ObserveCall returned %v", err)
	}
	if err := m.ObserveCall(ctx, m.LookupDuration, "openfoodfacts", "lookup", start, errBoom); !errors.Is(err, errBoom) {
		t.Fatalf("ObserveCall returned %v, want errBoom", err)
	}

	rm := collect(t, reader)
	if got := sumValue(t, rm, "nutrivision.provider.requests", "status", "ok"); got != 1 {
		t.Errorf("ok requests = %d, want 1", got)
	}
	if got := sumValue(t, rm, "nutrivision.provider.requests", "status", "error"); got != 1 {
		t.Errorf("error requests = %d, want 1", got)
	}
	if got := sumValue(t, rm, "nutrivision.provider.errors", "kind", "lookup"); got != 1 {
		t.Errorf("errors = %d, want 1", got)
	}
	hist := findMetric(rm, "nutrivision.lookup.duration").Data.(metricdata.Histogram[float64])
	if hist.DataPoints[0].Count != 2 {
		t.Errorf("lookup samples = %d, want 2", hist.DataPoints[0].Count)
	}
}

func TestActiveSessions(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, -1)

	rm := collect(t, reader)
	met := findMetric(rm, "nutrivision.active_sessions")
	if met == nil {
		t.Fatal("metric not found")
	}
	sum := met.Data.(metricdata.Sum[int64])
	if got := sum.DataPoints[0].Value; got != 1 {
		t.Errorf("active sessions = %d, want 1", got)
	}
}

func TestDefaultMetrics_Singleton(t *testing.T) {
	if DefaultMetrics() != DefaultMetrics() {
		t.Error("DefaultMetrics is not a singleton")
	}
}
