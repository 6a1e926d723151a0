package admission

import (
	"sync"
	"testing"
	"time"
)

func TestMetricsDisabledNoIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	m.Inc(MetricCheckAllowed)

	if got := m.Value(MetricCheckAllowed); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}

func TestMetricsEnabledIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Inc(MetricCheckAllowed)
	m.Inc(MetricCheckAllowed)
	m.Inc(MetricCheckAllowed)

	if got := m.Value(MetricCheckAllowed); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
}

func TestMetricsConcurrentIncrementSafe(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const goroutines = 32
	const perG = 4000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				m.Inc(MetricTokenVerifyOK)
			}
		}()
	}
	wg.Wait()

	want := uint64(goroutines * perG)
	if got := m.Value(MetricTokenVerifyOK); got != want {
		t.Fatalf("expected %d, got %d", want, got)
	}
}

func TestMetricsHistogramBucketCorrectness(t *testing.T) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})

	observations := []time.Duration{
		5 * time.Millisecond,
		10 * time.Millisecond,
		25 * time.Millisecond,
		50 * time.Millisecond,
		100 * time.Millisecond,
		250 * time.Millisecond,
		500 * time.Millisecond,
		700 * time.Millisecond,
	}

	for _, d := range observations {
		m.Observe(MetricCheckLatency, d)
	}

	snap := m.Snapshot()
	buckets := snap.Histograms[MetricCheckLatency]
	if len(buckets) != 8 {
		t.Fatalf("expected 8 buckets, got %d", len(buckets))
	}

	for i, v := range buckets {
		if v != 1 {
			t.Fatalf("bucket %d expected 1, got %d", i, v)
		}
	}
}

func TestMetricsSnapshotConsistency(t *testing.T) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})
	m.Inc(MetricCheckAllowed)
	m.Inc(MetricCheckDenied)
	m.Inc(MetricCheckDenied)
	m.Observe(MetricCheckLatency, 2*time.Millisecond)

	snap := m.Snapshot()

	if snap.Counters[MetricCheckAllowed] != 1 {
		t.Fatalf("expected MetricCheckAllowed=1 got %d", snap.Counters[MetricCheckAllowed])
	}
	if snap.Counters[MetricCheckDenied] != 2 {
		t.Fatalf("expected MetricCheckDenied=2 got %d", snap.Counters[MetricCheckDenied])
	}
	if len(snap.Histograms[MetricCheckLatency]) != 8 {
		t.Fatalf("expected histogram length 8")
	}
	if snap.Histograms[MetricCheckLatency][0] != 1 {
		t.Fatalf("expected first histogram bucket=1 got %d", snap.Histograms[MetricCheckLatency][0])
	}
}

func TestMetricsNilReceiverSafe(t *testing.T) {
	var m *Metrics
	m.Inc(MetricCheckAllowed)
	m.Observe(MetricCheckLatency, time.Millisecond)

	if m.Enabled() {
		t.Fatal("nil metrics must read as disabled")
	}
	if got := m.Value(MetricCheckAllowed); got != 0 {
		t.Fatalf("expected 0 from nil metrics, got %d", got)
	}
}
