package observe

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestNewMetricsRecords(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	ctx := context.Background()
	m.FramesSent.Add(ctx, 3)
	m.FramesDropped.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, 1)
	m.ChunkDuration.Record(ctx, 0.5)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	found := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		if sm.Scope.Name != meterName {
			continue
		}
		for _, inst := range sm.Metrics {
			found[inst.Name] = true
		}
	}

	for _, want := range []string{
		"voxline.capture.frames_sent",
		"voxline.capture.frames_dropped",
		"voxline.session.active",
		"voxline.playback.chunk_duration",
	} {
		if !found[want] {
			t.Errorf("instrument %q not collected", want)
		}
	}
}

func TestDefaultMetricsSingleton(t *testing.T) {
	t.Parallel()

	a := DefaultMetrics()
	b := DefaultMetrics()
	if a == nil || a != b {
		t.Error("DefaultMetrics must return one stable instance")
	}
}
