package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics bundles the gateway's instruments. All instruments are safe for
// concurrent use.
type Metrics struct {
	Requests        metric.Int64Counter
	RequestDuration metric.Float64Histogram
	UpstreamLatency metric.Float64Histogram
	ActiveStreams   metric.Int64UpDownCounter

	CacheHits   metric.Int64Counter
	CacheMisses metric.Int64Counter

	TranslationErrors metric.Int64Counter
	Classifications   metric.Int64Counter
}

// SetupMetrics wires an OpenTelemetry meter provider with a Prometheus
// exporter and creates the gateway instruments. The returned handler serves
// the scrape endpoint.
func SetupMetrics() (*Metrics, http.Handler, error) {
	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter("dsgate")

	m := &Metrics{}
	if m.Requests, err = meter.Int64Counter("dsgate_requests_total",
		metric.WithDescription("Requests served, by endpoint and status class")); err != nil {
		return nil, nil, err
	}
	if m.RequestDuration, err = meter.Float64Histogram("dsgate_request_duration_seconds",
		metric.WithDescription("End-to-end request duration"),
		metric.WithUnit("s")); err != nil {
		return nil, nil, err
	}
	if m.UpstreamLatency, err = meter.Float64Histogram("dsgate_upstream_latency_seconds",
		metric.WithDescription("Upstream gateway call latency"),
		metric.WithUnit("s")); err != nil {
		return nil, nil, err
	}
	if m.ActiveStreams, err = meter.Int64UpDownCounter("dsgate_active_streams",
		metric.WithDescription("Streams currently open to clients")); err != nil {
		return nil, nil, err
	}
	if m.CacheHits, err = meter.Int64Counter("dsgate_cache_hits_total",
		metric.WithDescription("Responses served from cache")); err != nil {
		return nil, nil, err
	}
	if m.CacheMisses, err = meter.Int64Counter("dsgate_cache_misses_total",
		metric.WithDescription("Cache lookups that fell through to upstream")); err != nil {
		return nil, nil, err
	}
	if m.TranslationErrors, err = meter.Int64Counter("dsgate_translation_errors_total",
		metric.WithDescription("Translation failures, by kind")); err != nil {
		return nil, nil, err
	}
	if m.Classifications, err = meter.Int64Counter("dsgate_task_classifications_total",
		metric.WithDescription("Task classifier outcomes, by task")); err != nil {
		return nil, nil, err
	}

	return m, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), nil
}
