package collector

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"scout/internal/core"
)

// Thresholds defines pass/fail criteria for a run.
type Thresholds struct {
	Load        *DurationThresholds `yaml:"load"`
	Anomalies   *AnomalyThresholds  `yaml:"anomalies"`
	FailedTests *FailureThresholds  `yaml:"failed_tests"`
	MaxErrors   *int                `yaml:"max_errors"`
}

// DurationThresholds defines page load limits.
type DurationThresholds struct {
	Avg time.Duration `yaml:"avg"`
	P50 time.Duration `yaml:"p50"`
	P90 time.Duration `yaml:"p90"`
	P95 time.Duration `yaml:"p95"`
	P99 time.Duration `yaml:"p99"`
}

// AnomalyThresholds caps the number of anomalies per severity.
type AnomalyThresholds struct {
	High   *int `yaml:"high"`
	Medium *int `yaml:"medium"`
	Low    *int `yaml:"low"`
	Total  *int `yaml:"total"`
}

// FailureThresholds defines the allowed share of failed tests.
type FailureThresholds struct {
	Rate string `yaml:"rate"`
}

// ThresholdResult represents the outcome of a single threshold check.
type ThresholdResult struct {
	Name      string `json:"name"`
	Passed    bool   `json:"passed"`
	Threshold string `json:"threshold"`
	Actual    string `json:"actual"`
}

// ThresholdResults contains all threshold check results.
type ThresholdResults struct {
	Passed  bool              `json:"passed"`
	Results []ThresholdResult `json:"results"`
}

// Check evaluates all thresholds against a computed summary.
func (t *Thresholds) Check(s *Summary) *ThresholdResults {
	if t == nil {
		return &ThresholdResults{Passed: true, Results: nil}
	}

	results := &ThresholdResults{
		Passed:  true,
		Results: make([]ThresholdResult, 0),
	}

	if t.Load != nil && s.LoadSamples > 0 {
		results.checkDurationThresholds(t.Load, &s.Load)
	}
	if t.Anomalies != nil {
		results.checkAnomalies(t.Anomalies, s)
	}
	if t.FailedTests != nil && t.FailedTests.Rate != "" {
		results.checkFailureRate(t.FailedTests, s)
	}
	if t.MaxErrors != nil {
		results.checkMax("errors.count", *t.MaxErrors, s.Errors)
	}

	return results
}

func (r *ThresholdResults) checkDurationThresholds(thresholds *DurationThresholds, actual *DurationMetrics) {
	checks := []struct {
		name      string
		threshold time.Duration
		actual    time.Duration
	}{
		{"load.avg", thresholds.Avg, actual.Avg},
		{"load.p50", thresholds.P50, actual.P50},
		{"load.p90", thresholds.P90, actual.P90},
		{"load.p95", thresholds.P95, actual.P95},
		{"load.p99", thresholds.P99, actual.P99},
	}

	for _, check := range checks {
		if check.threshold == 0 {
			continue
		}

		passed := check.actual < check.threshold
		if !passed {
			r.Passed = false
		}

		r.Results = append(r.Results, ThresholdResult{
			Name:      check.name,
			Passed:    passed,
			Threshold: FormatDuration(check.threshold),
			Actual:    FormatDuration(check.actual),
		})
	}
}

func (r *ThresholdResults) checkAnomalies(thresholds *AnomalyThresholds, s *Summary) {
	checks := []struct {
		name  string
		limit *int
		count int
	}{
		{"anomalies.high", thresholds.High, s.Anomalies[core.SeverityHigh]},
		{"anomalies.medium", thresholds.Medium, s.Anomalies[core.SeverityMedium]},
		{"anomalies.low", thresholds.Low, s.Anomalies[core.SeverityLow]},
		{"anomalies.total", thresholds.Total, s.TotalAnomalies()},
	}
	for _, check := range checks {
		if check.limit == nil {
			continue
		}
		r.checkMax(check.name, *check.limit, check.count)
	}
}

// checkMax passes when actual does not exceed limit.
func (r *ThresholdResults) checkMax(name string, limit, actual int) {
	passed := actual <= limit
	if !passed {
		r.Passed = false
	}
	r.Results = append(r.Results, ThresholdResult{
		Name:      name,
		Passed:    passed,
		Threshold: fmt.Sprintf("<= %d", limit),
		Actual:    strconv.Itoa(actual),
	})
}

func (r *ThresholdResults) checkFailureRate(thresholds *FailureThresholds, s *Summary) {
	thresholdRate, err := parsePercentage(thresholds.Rate)
	if err != nil {
		return
	}

	actualRate := 0.0
	if len(s.Tests) > 0 {
		actualRate = float64(s.FailedTests()) / float64(len(s.Tests)) * 100
	}
	passed := actualRate < thresholdRate

	if !passed {
		r.Passed = false
	}

	r.Results = append(r.Results, ThresholdResult{
		Name:      "failed_tests.rate",
		Passed:    passed,
		Threshold: thresholds.Rate,
		Actual:    fmt.Sprintf("%.2f%%", actualRate),
	})
}

func parsePercentage(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if !strings.HasSuffix(s, "%") {
		return 0, fmt.Errorf("invalid percentage format: %s", s)
	}
	s = strings.TrimSuffix(s, "%")
	return strconv.ParseFloat(s, 64)
}

// FormatDuration formats a duration for display.
func FormatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return d.Round(time.Second).String()
}

// Violations returns only the failed threshold results.
func (r *ThresholdResults) Violations() []ThresholdResult {
	violations := make([]ThresholdResult, 0)
	for _, result := range r.Results {
		if !result.Passed {
			violations = append(violations, result)
		}
	}
	return violations
}
