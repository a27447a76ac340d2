package collector

import (
	"sort"
	"time"

	"scout/internal/core"
)

// Summary aggregates a snapshot for display and threshold checks.
type Summary struct {
	RunID       string
	Events      int
	Dropped     int
	Span        time.Duration
	ByKind      map[core.Kind]int
	Anomalies   map[core.Severity]int
	Errors      int
	LoadSamples int
	Load        DurationMetrics
	Tests       []TestSummary
}

// TestSummary describes one test's slice of the Run.
type TestSummary struct {
	Key       string
	Events    int
	Steps     int
	Anomalies int
	Errors    int
	Failed    bool
	Span      time.Duration
}

// DurationMetrics contains latency statistics.
type DurationMetrics struct {
	Min time.Duration
	Max time.Duration
	Avg time.Duration
	P50 time.Duration
	P90 time.Duration
	P95 time.Duration
	P99 time.Duration
}

// Step names emitted by the lifecycle hooks. A startStep restarts the step
// numbering of its test, so a retried test counts from 1 again.
const (
	startStep   = "testStart"
	failureStep = "testFailure"
)

// ComputeSummary computes a Summary from a snapshot. Pure function, no side effects.
func ComputeSummary(s Snapshot) *Summary {
	sum := &Summary{
		RunID:     s.RunID,
		Events:    len(s.Tests),
		Dropped:   s.Dropped,
		ByKind:    make(map[core.Kind]int),
		Anomalies: make(map[core.Severity]int),
		Tests:     make([]TestSummary, 0),
	}
	if len(s.Tests) == 0 {
		return sum
	}
	sum.Span = s.Tests[len(s.Tests)-1].Timestamp.Sub(s.Tests[0].Timestamp)

	loads := make([]time.Duration, 0)
	for _, e := range s.Tests {
		sum.ByKind[e.Kind]++
		switch e.Kind {
		case core.KindAnomaly:
			sev := core.SeverityMedium
			if a, ok := e.Anomaly(); ok {
				sev = a.Severity
			}
			sum.Anomalies[sev]++
		case core.KindError:
			sum.Errors++
		case core.KindPerformance:
			if p, ok := e.Performance(); ok && p.Metric == core.MetricLoad {
				loads = append(loads, time.Duration(p.ValueMs*float64(time.Millisecond)))
			}
		}
	}
	sum.LoadSamples = len(loads)
	sum.Load = ComputeDurationMetrics(loads)

	for _, g := range s.ByTest() {
		ts := TestSummary{
			Key:    g.Key,
			Events: len(g.Events),
			Span:   g.Events[len(g.Events)-1].Timestamp.Sub(g.Events[0].Timestamp),
		}
		for _, e := range g.Events {
			switch e.Kind {
			case core.KindStep:
				ts.Steps++
				if step, ok := e.Step(); ok && step.Name == failureStep {
					ts.Failed = true
				}
			case core.KindAnomaly:
				ts.Anomalies++
			case core.KindError:
				ts.Errors++
			}
		}
		sum.Tests = append(sum.Tests, ts)
	}
	return sum
}

// FailedTests returns the number of tests that recorded a failure step.
func (s *Summary) FailedTests() int {
	n := 0
	for _, t := range s.Tests {
		if t.Failed {
			n++
		}
	}
	return n
}

// TotalAnomalies returns the anomaly count across all severities.
func (s *Summary) TotalAnomalies() int {
	n := 0
	for _, c := range s.Anomalies {
		n += c
	}
	return n
}

// ComputePercentile calculates the percentile value from a sorted slice of durations.
// The percentile p should be between 0 and 1 (e.g., 0.95 for p95).
// The slice must be sorted in ascending order.
func ComputePercentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[len(sorted)-1]
	}
	index := int(float64(len(sorted)-1) * p)
	return sorted[index]
}

// ComputeDurationMetrics calculates all duration statistics from a slice of durations.
func ComputeDurationMetrics(durations []time.Duration) DurationMetrics {
	if len(durations) == 0 {
		return DurationMetrics{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var total time.Duration
	for _, d := range sorted {
		total += d
	}

	return DurationMetrics{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: total / time.Duration(len(sorted)),
		P50: ComputePercentile(sorted, 0.50),
		P90: ComputePercentile(sorted, 0.90),
		P95: ComputePercentile(sorted, 0.95),
		P99: ComputePercentile(sorted, 0.99),
	}
}
