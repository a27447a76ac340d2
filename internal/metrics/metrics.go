// Package metrics exposes Prometheus counters for the telemetry pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeTimeout = "timeout"
)

var (
	EventsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scout",
		Name:      "events_ingested_total",
		Help:      "Telemetry events appended to the run, by kind.",
	}, []string{"kind"})
	IngestFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "scout",
		Name:      "ingest_failures_total",
		Help:      "Log calls that failed host-side and were swallowed.",
	})
	ReportSaves = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scout",
		Name:      "report_saves_total",
		Help:      "Report persist attempts, by outcome.",
	}, []string{"outcome"})
	LinkChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scout",
		Name:      "link_checks_total",
		Help:      "Outbound link probes, by outcome.",
	}, []string{"outcome"})
	RunEvents = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "scout",
		Name:      "run_events",
		Help:      "Events currently retained in the run.",
	})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SaveOutcome maps a persist error to an outcome label.
func SaveOutcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeOK
}
