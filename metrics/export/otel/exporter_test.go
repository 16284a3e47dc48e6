package otel

import (
	"context"
	"sync"
	"testing"

	"github.com/MrEthical07/shieldauth"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot shieldauth.MetricsSnapshot
	dropped  uint64
	byType   map[shieldauth.AuditEventType]uint64
}

func (f *fakeSource) MetricsSnapshot() shieldauth.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := shieldauth.MetricsSnapshot{
		Counters:   make(map[shieldauth.MetricID]uint64, len(f.snapshot.Counters)),
		Histograms: make(map[shieldauth.MetricID][]uint64, len(f.snapshot.Histograms)),
	}
	for k, v := range f.snapshot.Counters {
		out.Counters[k] = v
	}
	for k, buckets := range f.snapshot.Histograms {
		out.Histograms[k] = append([]uint64(nil), buckets...)
	}
	return out
}

func (f *fakeSource) AuditDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func (f *fakeSource) AuditDroppedByType() map[shieldauth.AuditEventType]uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[shieldauth.AuditEventType]uint64, len(f.byType))
	for k, v := range f.byType {
		out[k] = v
	}
	return out
}

func newTestMeter() (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	reader := sdkmetric.NewManualReader()
	return reader, sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
}

func findSum(rm metricdata.ResourceMetrics, name string) (int64, bool) {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok && len(sum.DataPoints) > 0 {
				return sum.DataPoints[0].Value, true
			}
		}
	}
	return 0, false
}

func TestExporterRegistersAndCollects(t *testing.T) {
	reader, provider := newTestMeter()

	src := &fakeSource{
		snapshot: shieldauth.MetricsSnapshot{
			Counters: map[shieldauth.MetricID]uint64{
				shieldauth.MetricLoginSuccess:   3,
				shieldauth.MetricWebhookStale:   1,
				shieldauth.MetricOTPIssued:      5,
				shieldauth.MetricSessionRevoked: 2,
			},
			Histograms: map[shieldauth.MetricID][]uint64{
				shieldauth.MetricValidateLatency: {1, 1, 1, 1, 1, 1, 1, 1},
			},
		},
		dropped: 3,
		byType: map[shieldauth.AuditEventType]uint64{
			shieldauth.AuditEventLoginFailure: 2,
			shieldauth.AuditEventOTPIssued:    1,
		},
	}

	exp, err := NewExporterFromSource(provider.Meter("shieldauth-test"), src)
	if err != nil {
		t.Fatalf("NewExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if v, ok := findSum(rm, "shieldauth_login_success_total"); !ok || v != 3 {
		t.Fatalf("expected login success 3, got %d (found=%v)", v, ok)
	}
	if v, ok := findSum(rm, "shieldauth_otp_issued_total"); !ok || v != 5 {
		t.Fatalf("expected otp issued 5, got %d (found=%v)", v, ok)
	}
	if v, ok := findSum(rm, "shieldauth_audit_dropped_total"); !ok || v != 3 {
		t.Fatalf("expected audit dropped 3, got %d (found=%v)", v, ok)
	}
	byEvent := sumsByAttribute(rm, "shieldauth_audit_dropped_by_event_total", "event")
	if byEvent["login_failure"] != 2 || byEvent["otp_issued"] != 1 {
		t.Fatalf("unexpected per-event drops %v", byEvent)
	}
}

func sumsByAttribute(rm metricdata.ResourceMetrics, name, key string) map[string]int64 {
	out := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				v, _ := dp.Attributes.Value(attribute.Key(key))
				out[v.AsString()] = dp.Value
			}
		}
	}
	return out
}

func TestExporterRejectsNilInputs(t *testing.T) {
	_, provider := newTestMeter()

	if _, err := NewExporterFromSource(provider.Meter("shieldauth-test"), nil); err != ErrNilSource {
		t.Fatalf("expected ErrNilSource, got %v", err)
	}
	if _, err := NewExporterFromSource(nil, &fakeSource{}); err != ErrNilMeter {
		t.Fatalf("expected ErrNilMeter, got %v", err)
	}
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader, provider := newTestMeter()

	src := &fakeSource{
		snapshot: shieldauth.MetricsSnapshot{
			Counters: map[shieldauth.MetricID]uint64{
				shieldauth.MetricLoginSuccess: 1,
			},
			Histograms: map[shieldauth.MetricID][]uint64{
				shieldauth.MetricValidateLatency: {1},
			},
		},
	}

	exp, err := NewExporterFromSource(provider.Meter("shieldauth-test"), src)
	if err != nil {
		t.Fatalf("NewExporterFromSource failed: %v", err)
	}
	defer func() { _ = exp.Close() }()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.snapshot.Counters[shieldauth.MetricLoginSuccess] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}
