// Package observe provides application-wide observability primitives for
// NutriVision: OpenTelemetry metrics, distributed tracing, trace-aware
// structured logging, and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exposed on
// /metrics through the Prometheus exporter bridge set up by [InitProvider].
// A package-level default [Metrics] instance ([DefaultMetrics]) is provided
// for convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/MrWong99/nutrivision"

// Turn outcomes recorded on [Metrics.Turns].
const (
	OutcomeResolved       = "resolved"
	OutcomeWholeFood      = "whole_food"
	OutcomeDisambiguation = "disambiguation"
	OutcomeUncertain      = "uncertain"
	OutcomeSocial         = "social"
	OutcomeExpiry         = "expiry"
	OutcomeDuplicate      = "duplicate"
)

// Metrics holds all OpenTelemetry instruments for the application. All
// fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms per turn stage ---

	// TurnDuration tracks the wall time of a whole user_query turn.
	TurnDuration metric.Float64Histogram

	// LookupDuration tracks exact barcode lookups against the catalog.
	LookupDuration metric.Float64Histogram

	// SearchDuration tracks free-text catalog searches.
	SearchDuration metric.Float64Histogram

	// RefineDuration tracks generative refinement of the spoken verdict.
	RefineDuration metric.Float64Histogram

	// FrameHintDuration tracks frame-hint inference on camera stills.
	FrameHintDuration metric.Float64Histogram

	// --- Counters ---

	// Turns counts completed turns. Use with attributes:
	//   attribute.String("outcome", ...), attribute.String("domain", ...)
	Turns metric.Int64Counter

	// ProviderRequests counts collaborator calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts collaborator failures. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of open live connections.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// interactive turn latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	histogram := func(name, desc string) (metric.Float64Histogram, error) {
		return m.Float64Histogram(name,
			metric.WithDescription(desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		)
	}

	// Histograms.
	if met.TurnDuration, err = histogram("nutrivision.turn.duration", "Latency of a complete user query turn."); err != nil {
		return nil, err
	}
	if met.LookupDuration, err = histogram("nutrivision.lookup.duration", "Latency of barcode lookups."); err != nil {
		return nil, err
	}
	if met.SearchDuration, err = histogram("nutrivision.search.duration", "Latency of catalog searches."); err != nil {
		return nil, err
	}
	if met.RefineDuration, err = histogram("nutrivision.refine.duration", "Latency of generative verdict refinement."); err != nil {
		return nil, err
	}
	if met.FrameHintDuration, err = histogram("nutrivision.frame_hint.duration", "Latency of frame-hint inference."); err != nil {
		return nil, err
	}

	// Counters.
	if met.Turns, err = m.Int64Counter("nutrivision.turns",
		metric.WithDescription("Total turns by outcome and domain."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("nutrivision.provider.requests",
		metric.WithDescription("Total collaborator requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("nutrivision.provider.errors",
		metric.WithDescription("Total collaborator errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("nutrivision.active_sessions",
		metric.WithDescription("Number of open live sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("nutrivision.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails, which does not happen with the global provider.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest records a collaborator request with its outcome.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a collaborator failure.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordTurn records a finished turn and its duration.
func (m *Metrics) RecordTurn(ctx context.Context, outcome, domain string, d time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("domain", domain),
	)
	m.Turns.Add(ctx, 1, attrs)
	m.TurnDuration.Record(ctx, d.Seconds(), attrs)
}

// ObserveCall records the duration of a collaborator call on h together with
// a provider request (and, on failure, a provider error). It returns err
// unchanged so it can wrap a return statement.
func (m *Metrics) ObserveCall(ctx context.Context, h metric.Float64Histogram, provider, kind string, start time.Time, err error) error {
	h.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attribute.String("provider", provider)))
	status := "ok"
	if err != nil {
		status = "error"
		m.RecordProviderError(ctx, provider, kind)
	}
	m.RecordProviderRequest(ctx, provider, kind, status)
	return err
}
