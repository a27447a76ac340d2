package collector

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"scout/internal/core"
)

// FormatText writes a run summary in human-readable format.
func FormatText(w io.Writer, s *Summary, thresholds *ThresholdResults) {
	if s.Events == 0 {
		fmt.Fprintln(w, "No events collected")
		return
	}

	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Scout - Test Run Insights")
	fmt.Fprintln(w, "=========================")
	fmt.Fprintln(w, "")
	if s.RunID != "" {
		fmt.Fprintf(w, "Run:        %s\n", s.RunID)
	}
	fmt.Fprintf(w, "Span:       %v\n", s.Span.Round(time.Millisecond))
	fmt.Fprintf(w, "Events:     %s\n", formatNumber(s.Events))
	if s.Dropped > 0 {
		fmt.Fprintf(w, "Dropped:    %s (oldest evicted)\n", formatNumber(s.Dropped))
	}
	fmt.Fprintf(w, "Tests:      %d (%d failed)\n", len(s.Tests), s.FailedTests())
	fmt.Fprintf(w, "Anomalies:  %d (high=%d medium=%d low=%d)\n",
		s.TotalAnomalies(),
		s.Anomalies[core.SeverityHigh],
		s.Anomalies[core.SeverityMedium],
		s.Anomalies[core.SeverityLow])
	fmt.Fprintf(w, "Errors:     %d\n", s.Errors)
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "By Kind:")
	for _, k := range sortedKinds(s.ByKind) {
		fmt.Fprintf(w, "  %-15s %s\n", k, formatNumber(s.ByKind[k]))
	}

	if s.LoadSamples > 0 {
		fmt.Fprintln(w, "")
		fmt.Fprintf(w, "Page Load (%d samples):\n", s.LoadSamples)
		fmt.Fprintf(w, "  Min:    %s\n", FormatDuration(s.Load.Min))
		fmt.Fprintf(w, "  Avg:    %s\n", FormatDuration(s.Load.Avg))
		fmt.Fprintf(w, "  P50:    %s\n", FormatDuration(s.Load.P50))
		fmt.Fprintf(w, "  P95:    %s\n", FormatDuration(s.Load.P95))
		fmt.Fprintf(w, "  Max:    %s\n", FormatDuration(s.Load.Max))
	}

	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "By Test:")
	for _, t := range s.Tests {
		name := t.Key
		if name == "" {
			name = "(outside tests)"
		}
		status := "ok"
		if t.Failed {
			status = "FAILED"
		}
		fmt.Fprintf(w, "  %-40s %-6s steps=%d anomalies=%d errors=%d\n",
			name, status, t.Steps, t.Anomalies, t.Errors)
	}

	if thresholds != nil && len(thresholds.Results) > 0 {
		fmt.Fprintln(w, "")
		fmt.Fprintln(w, "Thresholds:")
		for _, result := range thresholds.Results {
			symbol := "✓"
			if !result.Passed {
				symbol = "✗"
			}
			fmt.Fprintf(w, "  %s %s %s (actual: %s)\n",
				symbol, result.Name, result.Threshold, result.Actual)
		}
	}
}

// FormatJSON writes a run summary in JSON format.
func FormatJSON(w io.Writer, s *Summary, thresholds *ThresholdResults) {
	output := struct {
		RunID       string            `json:"runId,omitempty"`
		Span        string            `json:"span"`
		Events      int               `json:"events"`
		Dropped     int               `json:"dropped"`
		ByKind      map[core.Kind]int `json:"byKind"`
		Anomalies   map[string]int    `json:"anomalies"`
		Errors      int               `json:"errors"`
		LoadSamples int               `json:"loadSamples"`
		Load        *jsonDurations    `json:"load,omitempty"`
		Tests       []jsonTestSummary `json:"tests"`
		Thresholds  *ThresholdResults `json:"thresholds,omitempty"`
	}{
		RunID:       s.RunID,
		Span:        s.Span.Round(time.Millisecond).String(),
		Events:      s.Events,
		Dropped:     s.Dropped,
		ByKind:      s.ByKind,
		Anomalies:   make(map[string]int, len(s.Anomalies)),
		Errors:      s.Errors,
		LoadSamples: s.LoadSamples,
		Tests:       make([]jsonTestSummary, 0, len(s.Tests)),
		Thresholds:  thresholds,
	}
	for sev, n := range s.Anomalies {
		output.Anomalies[string(sev)] = n
	}
	if s.LoadSamples > 0 {
		d := toJSONDurations(s.Load)
		output.Load = &d
	}
	for _, t := range s.Tests {
		output.Tests = append(output.Tests, jsonTestSummary{
			Test:      t.Key,
			Events:    t.Events,
			Steps:     t.Steps,
			Anomalies: t.Anomalies,
			Errors:    t.Errors,
			Failed:    t.Failed,
			Span:      t.Span.Round(time.Millisecond).String(),
		})
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	_ = encoder.Encode(output) // stdout errors are unrecoverable
}

type jsonDurations struct {
	Min string `json:"min"`
	Max string `json:"max"`
	Avg string `json:"avg"`
	P50 string `json:"p50"`
	P90 string `json:"p90"`
	P95 string `json:"p95"`
	P99 string `json:"p99"`
}

type jsonTestSummary struct {
	Test      string `json:"test"`
	Events    int    `json:"events"`
	Steps     int    `json:"steps"`
	Anomalies int    `json:"anomalies"`
	Errors    int    `json:"errors"`
	Failed    bool   `json:"failed"`
	Span      string `json:"span"`
}

func toJSONDurations(d DurationMetrics) jsonDurations {
	return jsonDurations{
		Min: FormatDuration(d.Min),
		Max: FormatDuration(d.Max),
		Avg: FormatDuration(d.Avg),
		P50: FormatDuration(d.P50),
		P90: FormatDuration(d.P90),
		P95: FormatDuration(d.P95),
		P99: FormatDuration(d.P99),
	}
}

func sortedKinds(m map[core.Kind]int) []core.Kind {
	kinds := make([]core.Kind, 0, len(m))
	for k := range m {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

func formatNumber(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	return fmt.Sprintf("%d,%03d", n/1000, n%1000)
}
