package collector

import (
	"testing"
	"time"

	"scout/internal/core"
)

func loadEvent(ms float64, test *core.TestIdentity) core.Event {
	return core.Event{Kind: core.KindPerformance, Test: test, Payload: core.PerformancePayload{Metric: core.MetricLoad, ValueMs: ms}}
}

func TestComputeSummary_Empty(t *testing.T) {
	s := ComputeSummary(Snapshot{})

	if s.Events != 0 || len(s.Tests) != 0 {
		t.Errorf("expected empty summary, got %+v", s)
	}
	if s.Load != (DurationMetrics{}) {
		t.Errorf("expected zero load metrics, got %+v", s.Load)
	}
}

func TestComputeSummary_CountsByKindAndSeverity(t *testing.T) {
	c := New(WithClock(core.NewTickingClock(epoch, time.Second)))
	a := &core.TestIdentity{Title: "a"}
	c.Append(step("testStart", a))
	c.Append(core.Event{Kind: core.KindAnomaly, Test: a, Payload: core.AnomalyPayload{AnomalyType: "slow_page", Severity: core.SeverityHigh}})
	c.Append(core.Event{Kind: core.KindAnomaly, Test: a, Payload: core.OpaquePayload{}})
	c.Append(core.Event{Kind: core.KindError, Test: a, Payload: core.ErrorPayload{Message: "boom"}})
	c.Append(step("testEnd", a))

	s := ComputeSummary(c.Snapshot())

	if s.Events != 5 {
		t.Errorf("expected 5 events, got %d", s.Events)
	}
	if s.ByKind[core.KindStep] != 2 {
		t.Errorf("expected 2 steps, got %d", s.ByKind[core.KindStep])
	}
	if s.Anomalies[core.SeverityHigh] != 1 || s.Anomalies[core.SeverityMedium] != 1 {
		t.Errorf("unexpected severities: %v", s.Anomalies)
	}
	if s.Errors != 1 {
		t.Errorf("expected 1 error, got %d", s.Errors)
	}
	if s.Span != 4*time.Second {
		t.Errorf("expected 4s span, got %v", s.Span)
	}
}

func TestComputeSummary_LoadDistribution(t *testing.T) {
	c := New()
	for _, ms := range []float64{100, 200, 300, 400, 500, 600, 700, 800, 900, 1000} {
		c.Append(loadEvent(ms, nil))
	}
	c.Append(core.Event{Kind: core.KindPerformance, Payload: core.PerformancePayload{Metric: "fcp", ValueMs: 1}})

	s := ComputeSummary(c.Snapshot())

	if s.LoadSamples != 10 {
		t.Fatalf("expected 10 load samples, got %d", s.LoadSamples)
	}
	if s.Load.Min != 100*time.Millisecond || s.Load.Max != time.Second {
		t.Errorf("unexpected min/max: %v/%v", s.Load.Min, s.Load.Max)
	}
	if s.Load.P50 != 500*time.Millisecond {
		t.Errorf("expected p50=500ms, got %v", s.Load.P50)
	}
	if s.Load.Avg != 550*time.Millisecond {
		t.Errorf("expected avg=550ms, got %v", s.Load.Avg)
	}
}

func TestComputeSummary_PerTestFailure(t *testing.T) {
	c := New()
	ok := &core.TestIdentity{Title: "ok"}
	bad := &core.TestIdentity{Title: "bad"}
	c.Append(step("testStart", ok))
	c.Append(step("testEnd", ok))
	c.Append(step("testStart", bad))
	c.Append(step("testFailure", bad))
	c.Append(step("testEnd", bad))

	s := ComputeSummary(c.Snapshot())

	if len(s.Tests) != 2 {
		t.Fatalf("expected 2 tests, got %d", len(s.Tests))
	}
	if s.Tests[0].Failed {
		t.Error("test 'ok' should not be failed")
	}
	if !s.Tests[1].Failed || s.Tests[1].Steps != 3 {
		t.Errorf("unexpected summary for 'bad': %+v", s.Tests[1])
	}
	if s.FailedTests() != 1 {
		t.Errorf("expected 1 failed test, got %d", s.FailedTests())
	}
}

func TestComputeSummary_DoesNotModifySnapshot(t *testing.T) {
	c := New()
	c.Append(loadEvent(300, nil))
	c.Append(loadEvent(100, nil))
	snap := c.Snapshot()

	ComputeSummary(snap)

	p, _ := snap.Tests[0].Performance()
	if p.ValueMs != 300 {
		t.Error("ComputeSummary reordered the snapshot")
	}
}

func TestComputePercentile(t *testing.T) {
	durations := []time.Duration{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}
	if p50 := ComputePercentile(durations, 0.50); p50 != 50 {
		t.Errorf("expected p50=50, got %d", p50)
	}
	if p90 := ComputePercentile(durations, 0.90); p90 != 90 {
		t.Errorf("expected p90=90, got %d", p90)
	}
	if p := ComputePercentile(nil, 0.5); p != 0 {
		t.Errorf("expected 0 for empty input, got %d", p)
	}
	if p := ComputePercentile(durations, 1); p != 100 {
		t.Errorf("expected max for p>=1, got %d", p)
	}
}

func BenchmarkComputeSummary(b *testing.B) {
	c := New(WithMaxEvents(0))
	for i := 0; i < 10000; i++ {
		c.Append(loadEvent(float64(i%5000), &core.TestIdentity{Title: "bench"}))
	}
	snap := c.Snapshot()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ComputeSummary(snap)
	}
}
