// Package observe provides observability primitives for voxline:
// OpenTelemetry metrics with a Prometheus exporter bridge so pipeline
// health can be scraped via a standard /metrics endpoint.
//
// A package-level default [Metrics] instance ([DefaultMetrics]) is provided
// for convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all voxline metrics.
const meterName = "github.com/voxline/voxline"

// Metrics holds all OpenTelemetry metric instruments for the client.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// FramesSent counts encoded microphone frames handed to the session.
	FramesSent metric.Int64Counter

	// FramesDropped counts capture frames dropped because the session was
	// not ready (the intentional freshness-over-completeness policy).
	FramesDropped metric.Int64Counter

	// VideoFramesSent counts JPEG frames forwarded on the outbound channel.
	VideoFramesSent metric.Int64Counter

	// ChunksScheduled counts inbound audio chunks placed on the playback
	// timeline.
	ChunksScheduled metric.Int64Counter

	// DecodeErrors counts inbound audio chunks dropped as malformed.
	DecodeErrors metric.Int64Counter

	// Flushes counts barge-in playback flushes.
	Flushes metric.Int64Counter

	// TransportErrors counts session-terminating transport failures.
	TransportErrors metric.Int64Counter

	// ActiveSessions tracks the number of live duplex sessions (0 or 1).
	ActiveSessions metric.Int64UpDownCounter

	// ChunkDuration tracks the playback duration of inbound audio chunks.
	ChunkDuration metric.Float64Histogram
}

// chunkBuckets defines histogram bucket boundaries (in seconds) sized for
// streamed response audio chunks.
var chunkBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.FramesSent, err = m.Int64Counter("voxline.capture.frames_sent",
		metric.WithDescription("Encoded microphone frames handed to the session."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("voxline.capture.frames_dropped",
		metric.WithDescription("Capture frames dropped because no session was ready."),
	); err != nil {
		return nil, err
	}
	if met.VideoFramesSent, err = m.Int64Counter("voxline.video.frames_sent",
		metric.WithDescription("JPEG video frames sent on the outbound channel."),
	); err != nil {
		return nil, err
	}
	if met.ChunksScheduled, err = m.Int64Counter("voxline.playback.chunks_scheduled",
		metric.WithDescription("Inbound audio chunks scheduled for playback."),
	); err != nil {
		return nil, err
	}
	if met.DecodeErrors, err = m.Int64Counter("voxline.playback.decode_errors",
		metric.WithDescription("Inbound audio chunks dropped as malformed."),
	); err != nil {
		return nil, err
	}
	if met.Flushes, err = m.Int64Counter("voxline.playback.flushes",
		metric.WithDescription("Playback flushes triggered by interruption."),
	); err != nil {
		return nil, err
	}
	if met.TransportErrors, err = m.Int64Counter("voxline.session.transport_errors",
		metric.WithDescription("Session-terminating transport failures."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("voxline.session.active",
		metric.WithDescription("Number of live duplex sessions."),
	); err != nil {
		return nil, err
	}
	if met.ChunkDuration, err = m.Float64Histogram("voxline.playback.chunk_duration",
		metric.WithDescription("Playback duration of inbound audio chunks."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(chunkBuckets...),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the process-wide [Metrics] instance backed by the
// global OTel meter provider. Instrument names are static and valid, so
// creation cannot fail at runtime; tests should prefer [NewMetrics] with
// their own provider.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, _ = NewMetrics(otel.GetMeterProvider())
	})
	return defaultMetrics
}
