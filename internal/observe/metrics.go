// Package observe provides application-wide observability primitives for
// chalkvoice: OpenTelemetry metrics, tracing, structured logging, and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all chalkvoice metrics.
const meterName = "github.com/chalkvoice/chalkvoice"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// TranscriptionDuration tracks one speech-to-text round trip.
	TranscriptionDuration metric.Float64Histogram

	// CommandDuration tracks the full command pipeline from transcript to
	// confirmation or rejection.
	CommandDuration metric.Float64Histogram

	// Commands counts processed commands. Use with attributes:
	//   attribute.String("intent", ...), attribute.String("outcome", ...)
	Commands metric.Int64Counter

	// Resolutions counts student reference resolutions. Use with attribute:
	//   attribute.String("outcome", "resolved"|"no_match"|"ambiguous")
	Resolutions metric.Int64Counter

	// StoreWrites counts record upserts. Use with attribute:
	//   attribute.String("record", "attendance"|"marks")
	StoreWrites metric.Int64Counter

	// FeedClients tracks the number of connected live-feed clients.
	FeedClients metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// transcription and command latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.TranscriptionDuration, err = m.Float64Histogram("chalkvoice.transcription.duration",
		metric.WithDescription("Latency of one speech-to-text round trip."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CommandDuration, err = m.Float64Histogram("chalkvoice.command.duration",
		metric.WithDescription("Latency of the command pipeline from transcript to outcome."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.Commands, err = m.Int64Counter("chalkvoice.commands",
		metric.WithDescription("Total processed commands by intent and outcome."),
	); err != nil {
		return nil, err
	}
	if met.Resolutions, err = m.Int64Counter("chalkvoice.resolutions",
		metric.WithDescription("Total student reference resolutions by outcome."),
	); err != nil {
		return nil, err
	}
	if met.StoreWrites, err = m.Int64Counter("chalkvoice.store.writes",
		metric.WithDescription("Total record upserts by record type."),
	); err != nil {
		return nil, err
	}

	if met.FeedClients, err = m.Int64UpDownCounter("chalkvoice.feed.clients",
		metric.WithDescription("Number of connected live-feed clients."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("chalkvoice.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordTranscription records one speech-to-text round trip.
// outcome is "ok", "timeout" or "error".
func (m *Metrics) RecordTranscription(ctx context.Context, elapsed time.Duration, outcome string) {
	m.TranscriptionDuration.Record(ctx, elapsed.Seconds(),
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}

// RecordCommandDuration records the latency of one full pipeline run, from
// transcript to confirmation or rejection.
func (m *Metrics) RecordCommandDuration(ctx context.Context, elapsed time.Duration, intent string) {
	m.CommandDuration.Record(ctx, elapsed.Seconds(),
		metric.WithAttributes(attribute.String("intent", intent)),
	)
}

// RecordCommand records one processed command with the standard attribute set.
func (m *Metrics) RecordCommand(ctx context.Context, intent, outcome string) {
	m.Commands.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("intent", intent),
			attribute.String("outcome", outcome),
		),
	)
}

// RecordResolution records one student reference resolution outcome.
func (m *Metrics) RecordResolution(ctx context.Context, outcome string) {
	m.Resolutions.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}

// RecordStoreWrite records one record upsert.
func (m *Metrics) RecordStoreWrite(ctx context.Context, record string) {
	m.StoreWrites.Add(ctx, 1,
		metric.WithAttributes(attribute.String("record", record)),
	)
}
