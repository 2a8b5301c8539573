package observe

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
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

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
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

// sumWhere returns the value of the counter data point whose attribute key
// has the string form want, and whether one was found.
func sumWhere(t *testing.T, rm metricdata.ResourceMetrics, name, key, want string) (int64, bool) {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not an int64 sum", name)
	}
	for _, dp := range sum.DataPoints {
		for _, kv := range dp.Attributes.ToSlice() {
			if string(kv.Key) == key && kv.Value.Emit() == want {
				return dp.Value, true
			}
		}
	}
	return 0, false
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestLatencyHistograms(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.VADDuration.Record(ctx, 0.0004)
	m.VADDuration.Record(ctx, 0.002)
	m.STTDuration.Record(ctx, 0.8)
	m.STTDuration.Record(ctx, 1.3)

	rm := collect(t, reader)
	for _, name := range []string{"voxgate.vad.duration", "voxgate.stt.duration"} {
		t.Run(name, func(t *testing.T) {
			met := findMetric(rm, name)
			if met == nil {
				t.Fatalf("metric %q not found", name)
			}
			hist, ok := met.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatalf("metric %q is not a histogram", name)
			}
			if len(hist.DataPoints) == 0 {
				t.Fatalf("metric %q has no data points", name)
			}
			if got := hist.DataPoints[0].Count; got != 2 {
				t.Errorf("sample count = %d, want 2", got)
			}
		})
	}
}

func TestRecordVerdict(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordVerdict(ctx, true, 0.6)
	m.RecordVerdict(ctx, true, 0.9)
	m.RecordVerdict(ctx, false, 0)

	rm := collect(t, reader)
	if v, ok := sumWhere(t, rm, "voxgate.vad.verdicts", "has_speech", "true"); !ok || v != 2 {
		t.Errorf("speech verdicts = %d (found %v), want 2", v, ok)
	}
	if v, ok := sumWhere(t, rm, "voxgate.vad.verdicts", "has_speech", "false"); !ok || v != 1 {
		t.Errorf("silence verdicts = %d (found %v), want 1", v, ok)
	}

	met := findMetric(rm, "voxgate.vad.speech_ratio")
	if met == nil {
		t.Fatal("speech ratio histogram not found")
	}
	hist := met.Data.(metricdata.Histogram[float64])
	if got := hist.DataPoints[0].Count; got != 3 {
		t.Errorf("ratio samples = %d, want 3", got)
	}
}

func TestRecordGateDecision(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordGateDecision(ctx, "skipped")
	m.RecordGateDecision(ctx, "skipped")
	m.RecordGateDecision(ctx, "transcribed")

	rm := collect(t, reader)
	if v, ok := sumWhere(t, rm, "voxgate.gate.decisions", "decision", "skipped"); !ok || v != 2 {
		t.Errorf("skipped = %d (found %v), want 2", v, ok)
	}
}

func TestRecordProviderError(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordProviderError(ctx, "whisper", "stt")

	rm := collect(t, reader)
	if v, ok := sumWhere(t, rm, "voxgate.provider.errors", "provider", "whisper"); !ok || v != 1 {
		t.Errorf("errors = %d (found %v), want 1", v, ok)
	}
}

func TestActiveStreams(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveStreams.Add(ctx, 1)
	m.ActiveStreams.Add(ctx, 1)
	m.ActiveStreams.Add(ctx, -1)

	rm := collect(t, reader)
	met := findMetric(rm, "voxgate.active_streams")
	if met == nil {
		t.Fatal("metric not found")
	}
	sum := met.Data.(metricdata.Sum[int64])
	if got := sum.DataPoints[0].Value; got != 1 {
		t.Errorf("active streams = %d, want 1", got)
	}
}

func TestDefaultMetrics_Singleton(t *testing.T) {
	if DefaultMetrics() != DefaultMetrics() {
		t.Error("DefaultMetrics returned different instances")
	}
}
